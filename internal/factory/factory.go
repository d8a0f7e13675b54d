// Package factory maps statement formats to their readers.
package factory

import (
	"fmt"
	"io"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/parser"
	"fjacquet/ebics-mt940/internal/swift"
)

// ParserType defines the statement formats available.
type ParserType string

const (
	MT940 ParserType = "mt940"
	MT942 ParserType = "mt942"
)

// Validator checks a stream against the strict grammar and returns the
// number of records it holds.
type Validator func(r io.Reader) (int, error)

// GetParser returns a new lenient reader using the process-wide logger.
// Deprecated: Use GetParserWithLogger instead for dependency injection.
func GetParser(parserType ParserType) (parser.FullParser, error) {
	return GetParserWithLogger(parserType, logging.GetLogger())
}

// GetParserWithLogger returns a new lenient reader for the given type. MT942
// statements are flagged pending.
func GetParserWithLogger(parserType ParserType, logger logging.Logger) (parser.FullParser, error) {
	switch parserType {
	case MT940:
		return swift.NewParser(logger), nil
	case MT942:
		return swift.NewParser(logger, swift.WithPending(true)), nil
	default:
		return nil, fmt.Errorf("unknown parser type: %s", parserType)
	}
}

// GetValidator returns the strict reader for the given type.
func GetValidator(parserType ParserType) (Validator, error) {
	switch parserType {
	case MT940:
		return func(r io.Reader) (int, error) {
			recs, err := swift.ReadMT940(r, logging.GetLogger())
			return len(recs), err
		}, nil
	case MT942:
		return func(r io.Reader) (int, error) {
			recs, err := swift.ReadMT942(r, logging.GetLogger())
			return len(recs), err
		}, nil
	default:
		return nil, fmt.Errorf("unknown parser type: %s", parserType)
	}
}
