package swift

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"
)

// TagLine is one logical field: the tag between the leading colons and its
// operand, with continuation lines joined by CRLF.
type TagLine struct {
	Tag   string
	Value string
}

var tagPattern = regexp.MustCompile(`^:[\w]+:`)

// Banks exporting from DOS code pages leave umlauts in these positions.
var legacyChars = strings.NewReplacer(
	"™", "Ö",
	"š", "Ü",
	"Ž", "Ä",
	"á", "ß",
	`\`, "Ö",
	"]", "Ü",
	"[", "Ä",
	"~", "ß",
)

const maxLineSize = 1024 * 1024

// Assembler turns a raw MT94x stream into TagLines. A line consisting of a
// single "-" ends the current block; an '@' inside a physical line starts a
// new one.
type Assembler struct {
	sc      *bufio.Scanner
	pending []string
	tag     string
	value   string
	line    TagLine
	done    bool
}

// NewAssembler reads lines from r.
func NewAssembler(r io.Reader) *Assembler {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanAnyLines)
	return &Assembler{sc: sc}
}

// Scan advances to the next TagLine. It returns false at the end of the
// input or on a read error, which Err then reports.
func (a *Assembler) Scan() bool {
	if a.done {
		return false
	}
	for {
		line, ok := a.readLine()
		if !ok {
			a.done = true
			return a.flush()
		}

		if strings.TrimSpace(line) == "-" {
			if a.flush() {
				return true
			}
			continue
		}
		if line == "" {
			continue
		}

		if tagPattern.MatchString(line) {
			posColon := strings.Index(line[1:], ":") + 1
			emitted := a.flush()
			a.tag = line[1:posColon]
			a.value = line[posColon+1:]
			if emitted {
				return true
			}
			continue
		}
		if a.tag != "" {
			a.value += "\r\n" + line
		}
	}
}

// Line returns the TagLine produced by the last successful Scan.
func (a *Assembler) Line() TagLine {
	return a.line
}

// Err returns the first read error encountered.
func (a *Assembler) Err() error {
	return a.sc.Err()
}

func (a *Assembler) flush() bool {
	if a.tag == "" {
		return false
	}
	a.line = TagLine{Tag: a.tag, Value: a.value}
	a.tag, a.value = "", ""
	return true
}

func (a *Assembler) readLine() (string, bool) {
	var line string
	if n := len(a.pending); n > 0 {
		line = a.pending[0]
		a.pending = a.pending[1:]
	} else {
		if !a.sc.Scan() {
			return "", false
		}
		line = a.sc.Text()
	}

	if head, tail, found := strings.Cut(line, "@"); found {
		line = head
		if tail != "" {
			a.pending = append([]string{tail}, a.pending...)
		}
	}
	return legacyChars.Replace(line), true
}

// scanAnyLines splits on CRLF, LF or a lone CR.
func scanAnyLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
