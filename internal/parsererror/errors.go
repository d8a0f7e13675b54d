// Package parsererror defines the typed errors returned by the statement parsers.
// Callers use errors.As to recover the offending tag and raw operand.
package parsererror

import "fmt"

// ParseError represents an error during parsing
type ParseError struct {
	Parser string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse %s='%s': %v",
		e.Parser, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FieldTooShortError is returned when a mandatory fixed-width subfield asks for
// more characters than the operand has left.
type FieldTooShortError struct {
	Tag   string
	Want  int
	Have  int
	Value string
}

func (e *FieldTooShortError) Error() string {
	return fmt.Sprintf("field %s too short: need %d characters, have %d in '%s'",
		e.Tag, e.Want, e.Have, e.Value)
}

// MalformedFieldError represents a subfield grammar violation within one tag.
type MalformedFieldError struct {
	Tag    string
	Value  string
	Reason string
	Err    error
}

func (e *MalformedFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed field %s='%s': %s: %v", e.Tag, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed field %s='%s': %s", e.Tag, e.Value, e.Reason)
}

func (e *MalformedFieldError) Unwrap() error {
	return e.Err
}

// UnknownTagError is raised by the strict record readers for tags outside
// their message type.
type UnknownTagError struct {
	Format string
	Tag    string
	Value  string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("%s: tag %s not implemented (value '%s')", e.Format, e.Tag, e.Value)
}

// UnknownSubfieldError is raised for a structured subfield code outside the grammar.
type UnknownSubfieldError struct {
	Tag   string
	Code  int
	Value string
}

func (e *UnknownSubfieldError) Error() string {
	return fmt.Sprintf("unknown %s subfield %02d in '%s'", e.Tag, e.Code, e.Value)
}

// ValidationError represents a validation failure
type ValidationError struct {
	FilePath string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.FilePath, e.Reason)
}

// InvalidFormatError represents an error where the input does not conform
// to the expected format for a specific parser.
type InvalidFormatError struct {
	FilePath             string
	ExpectedFormat       string
	ActualContentSnippet string
	Msg                  string
}

func (e *InvalidFormatError) Error() string {
	if e.ActualContentSnippet != "" {
		return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s. Content snippet: '%s'",
			e.FilePath, e.Msg, e.ExpectedFormat, e.ActualContentSnippet)
	}
	return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s",
		e.FilePath, e.Msg, e.ExpectedFormat)
}

// DataExtractionError represents an error where specific required data could not be extracted
// from a file, even if the file format itself might be valid.
type DataExtractionError struct {
	FilePath       string
	FieldName      string
	RawDataSnippet string
	Reason         string
	Msg            string
}

func (e *DataExtractionError) Error() string {
	if e.RawDataSnippet != "" {
		return fmt.Sprintf("data extraction failed in file '%s' for field '%s': %s. Reason: %s. Raw data snippet: '%s'",
			e.FilePath, e.FieldName, e.Msg, e.Reason, e.RawDataSnippet)
	}
	return fmt.Sprintf("data extraction failed in file '%s' for field '%s': %s. Reason: %s",
		e.FilePath, e.FieldName, e.Msg, e.Reason)
}
