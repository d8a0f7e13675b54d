package swift

import (
	"fmt"
	"io"
	"iter"
	"os"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parser"
)

// Parser is the lenient MT940/MT942 reader. Unknown tags are skipped;
// a malformed field ends the stream with a typed error.
type Parser struct {
	parser.BaseParser
	pending bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithPending flags every statement as pending (intraday MT942 data).
func WithPending(pending bool) Option {
	return func(p *Parser) { p.pending = pending }
}

// NewParser returns a lenient parser.
func NewParser(logger logging.Logger, opts ...Option) *Parser {
	p := &Parser{BaseParser: parser.NewBaseParser(logger)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Statements yields statements as they are completed. The fold state is
// local to each call, so two iterations never share a previous statement.
func (p *Parser) Statements(r io.Reader) iter.Seq2[*models.Statement, error] {
	return func(yield func(*models.Statement, error) bool) {
		acc := NewAccumulator(p.GetLogger(), p.pending)
		asm := NewAssembler(r)
		var state State

		for asm.Scan() {
			line := asm.Line()
			next, done, err := acc.Step(state, line)
			state = next
			for _, stmt := range done {
				if !yield(stmt, nil) {
					return
				}
			}
			if err != nil {
				yield(nil, fmt.Errorf("tag %s: %w", line.Tag, err))
				return
			}
		}
		if err := asm.Err(); err != nil {
			yield(nil, fmt.Errorf("reading statement: %w", err))
			return
		}

		for _, stmt := range acc.Finish(state) {
			if !yield(stmt, nil) {
				return
			}
		}
	}
}

// Parse collects every statement of r.
func (p *Parser) Parse(r io.Reader) ([]*models.Statement, error) {
	stmts := []*models.Statement{}
	for stmt, err := range p.Statements(r) {
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.GetLogger().Debug("Parsed statements", logging.Field{Key: logging.FieldStatements, Value: len(stmts)})
	return stmts, nil
}

// ParseFile parses the statement file at path.
func (p *Parser) ParseFile(path string) ([]*models.Statement, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("error opening statement file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			p.GetLogger().WithError(err).Warn("Failed to close file")
		}
	}()

	stmts, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	p.GetLogger().Info("Parsed statement file",
		logging.Field{Key: logging.FieldFile, Value: path},
		logging.Field{Key: logging.FieldStatements, Value: len(stmts)})
	return stmts, nil
}

var _ parser.FullParser = (*Parser)(nil)
