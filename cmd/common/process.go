// Package common contains shared functionality for command handlers
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fjacquet/ebics-mt940/internal/common"
	"fjacquet/ebics-mt940/internal/container"
	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parser"
	"fjacquet/ebics-mt940/internal/publisher"
)

// ErrInvalidFormat is returned when strict validation finds no statement.
var ErrInvalidFormat = errors.New("the file is not in a valid format")

// Options controls a file conversion.
type Options struct {
	Input      string
	Output     string
	DateFormat string
	// Validate runs the strict reader before the lenient conversion.
	Validate factory.Validator
	// Publisher receives every parsed statement when set.
	Publisher publisher.Publisher
}

// OutputPath returns output, or input with a .csv extension when output is empty.
func OutputPath(input, output string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".csv"
}

// ValidateFile runs validate over the file at path.
func ValidateFile(validate factory.Validator, path string, log logging.Logger) error {
	log.Info("Validating format...", logging.Field{Key: logging.FieldFile, Value: path})
	f, err := os.Open(path) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("error validating file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Warn("Failed to close file")
		}
	}()

	n, err := validate(f)
	if err != nil {
		return fmt.Errorf("error validating file: %w", err)
	}
	if n == 0 {
		return ErrInvalidFormat
	}
	log.Info("Validation successful.", logging.Field{Key: logging.FieldCount, Value: n})
	return nil
}

// ProcessFileWithError converts one statement file to CSV.
func ProcessFileWithError(ctx context.Context, p parser.FullParser, opts Options, log logging.Logger) ([]*models.Statement, error) {
	p.SetLogger(log)

	if opts.Input == "" {
		return nil, errors.New("no input file given")
	}
	if opts.Validate != nil {
		if err := ValidateFile(opts.Validate, opts.Input, log); err != nil {
			return nil, err
		}
	}

	stmts, err := p.ParseFile(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("error parsing file: %w", err)
	}
	opts.Output = OutputPath(opts.Input, opts.Output)
	if err := Deliver(ctx, stmts, opts, log); err != nil {
		return stmts, err
	}
	return stmts, nil
}

// Deliver writes stmts as CSV and publishes them when a publisher is set.
func Deliver(ctx context.Context, stmts []*models.Statement, opts Options, log logging.Logger) error {
	if opts.Output == "" {
		return errors.New("no output file given")
	}
	if stmts == nil {
		stmts = []*models.Statement{}
	}
	if err := common.WriteStatementsToCSV(stmts, opts.Output, opts.DateFormat, log); err != nil {
		return fmt.Errorf("error converting to CSV: %w", err)
	}
	if opts.Publisher != nil {
		if err := publisher.PublishAll(ctx, opts.Publisher, stmts); err != nil {
			return fmt.Errorf("error publishing statements: %w", err)
		}
		log.Info("Statements published", logging.Field{Key: logging.FieldStatements, Value: len(stmts)})
	}
	log.Info("Conversion completed successfully!",
		logging.Field{Key: logging.FieldOutputFile, Value: opts.Output},
		logging.Field{Key: logging.FieldStatements, Value: len(stmts)})
	return nil
}

// ProcessFile is ProcessFileWithError that exits on failure.
func ProcessFile(ctx context.Context, p parser.FullParser, opts Options, log logging.Logger) {
	if _, err := ProcessFileWithError(ctx, p, opts, log); err != nil {
		log.Fatalf("%v", err)
	}
}

// ConvertFlags are the flags of the statement conversion commands.
type ConvertFlags struct {
	Input    string
	Output   string
	Validate bool
	Strict   bool
	Publish  bool
}

// Convert converts a statement file of type pt with the container's parser,
// strict validator and publisher.
func Convert(ctx context.Context, c *container.Container, pt factory.ParserType, flags ConvertFlags) ([]*models.Statement, error) {
	log := c.GetLogger().WithField(logging.FieldParser, string(pt))
	p, err := c.GetParser(pt)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Input:      flags.Input,
		Output:     flags.Output,
		DateFormat: models.ConvertDateFormat(c.GetConfig().CSV.DateFormat),
	}
	if flags.Strict || flags.Validate || c.GetConfig().Swift.Strict {
		if opts.Validate, err = factory.GetValidator(pt); err != nil {
			return nil, err
		}
	}
	if flags.Publish {
		if !c.GetConfig().Publisher.Enabled {
			log.Warn("Publishing requested but publisher is disabled in the configuration")
		}
		opts.Publisher = c.GetPublisher()
	}
	return ProcessFileWithError(ctx, p, opts, log)
}
