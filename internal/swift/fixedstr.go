// Package swift parses SWIFT MT940 (end of day) and MT942 (intraday) account
// statements into models.Statement values.
package swift

import "fjacquet/ebics-mt940/internal/parsererror"

// FixedStr consumes a field operand from the left in fixed-width pieces.
type FixedStr struct {
	tag     string
	operand string
	orig    string
}

// NewFixedStr wraps operand; tag is only used in error messages.
func NewFixedStr(tag, operand string) *FixedStr {
	return &FixedStr{tag: tag, operand: operand, orig: operand}
}

// TakeM consumes exactly n characters. Fewer than n remaining is an error.
func (f *FixedStr) TakeM(n int) (string, error) {
	if len(f.operand) < n {
		return "", &parsererror.FieldTooShortError{Tag: f.tag, Want: n, Have: len(f.operand), Value: f.orig}
	}
	out := f.operand[:n]
	f.operand = f.operand[n:]
	return out, nil
}

// Take consumes up to n characters.
func (f *FixedStr) Take(n int) string {
	if len(f.operand) <= n {
		out := f.operand
		f.operand = ""
		return out
	}
	out := f.operand[:n]
	f.operand = f.operand[n:]
	return out
}

// TakeWhile consumes the leading run of characters accepted by keep, at most max.
func (f *FixedStr) TakeWhile(max int, keep func(byte) bool) string {
	i := 0
	for i < len(f.operand) && i < max && keep(f.operand[i]) {
		i++
	}
	out := f.operand[:i]
	f.operand = f.operand[i:]
	return out
}

// Peek returns the next n characters (or fewer) without consuming them.
func (f *FixedStr) Peek(n int) string {
	if len(f.operand) < n {
		return f.operand
	}
	return f.operand[:n]
}

// Rest consumes and returns everything left.
func (f *FixedStr) Rest() string {
	out := f.operand
	f.operand = ""
	return out
}

// Len is the number of unconsumed bytes.
func (f *FixedStr) Len() int {
	return len(f.operand)
}

func (f *FixedStr) malformed(reason string, err error) error {
	return &parsererror.MalformedFieldError{Tag: f.tag, Value: f.orig, Reason: reason, Err: err}
}
