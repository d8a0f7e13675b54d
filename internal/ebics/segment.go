package ebics

// SegmentSize is the number of base64 characters carried by one transfer request.
const SegmentSize = 1024

// Segment splits text into chunks of size characters. Joining the chunks
// yields text again; an empty input yields a single empty chunk.
func Segment(text string, size int) []string {
	if size <= 0 {
		size = SegmentSize
	}
	segments := make([]string, 0, len(text)/size+1)
	for len(text) > size {
		segments = append(segments, text[:size])
		text = text[size:]
	}
	return append(segments, text)
}
