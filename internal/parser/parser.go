package parser

import (
	"io"
	"iter"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
)

// StatementParser reads bank statements from a stream.
type StatementParser interface {
	// Parse reads the whole input and returns every statement it contains.
	// Implementations return typed errors from the parsererror package for
	// malformed input.
	Parse(r io.Reader) ([]*models.Statement, error)
}

// StreamingParser yields statements lazily. Iteration stops after the first
// error; a consumer that breaks early leaves the rest of the input unread.
type StreamingParser interface {
	StatementParser
	Statements(r io.Reader) iter.Seq2[*models.Statement, error]
}

// FileParser parses a statement file by path.
type FileParser interface {
	ParseFile(path string) ([]*models.Statement, error)
}

// FullParser is implemented by every statement reader the CLI can select.
type FullParser interface {
	StreamingParser
	FileParser
	LoggerConfigurable
}

// LoggerConfigurable is implemented by components whose logger can be replaced.
type LoggerConfigurable interface {
	SetLogger(logger logging.Logger)
}
