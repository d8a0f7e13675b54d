// Package common provides shared functionality across the statement commands.
package common

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"

	"github.com/gocarina/gocsv"
)

// Delimiter is the field separator used for CSV output.
var Delimiter rune = ','

// SetDelimiter allows setting the delimiter for CSV output
func SetDelimiter(delim rune) {
	Delimiter = delim
}

// ReadCSVFile reads CSV data into a slice of structs using gocsv.
// TCSVRow is the struct type that maps to the CSV columns.
func ReadCSVFile[TCSVRow any](filePath string, logger logging.Logger) ([]TCSVRow, error) {
	logger = logging.OrDefault(logger)
	logger.WithField(logging.FieldFile, filePath).Debug("Reading CSV file")

	file, err := os.Open(filePath) // #nosec G304 -- path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("error opening CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	reader := csv.NewReader(file)
	reader.Comma = Delimiter

	var rows []TCSVRow
	if err := gocsv.UnmarshalCSV(reader, &rows); err != nil {
		return nil, fmt.Errorf("error parsing CSV file: %w", err)
	}
	return rows, nil
}

// WriteStatementsToCSV writes one row per transaction of every statement.
// dateFormat is a Go time layout; empty means models.DefaultDateFormat.
func WriteStatementsToCSV(stmts []*models.Statement, csvFile, dateFormat string, logger logging.Logger) error {
	if stmts == nil {
		return fmt.Errorf("cannot write nil statements to CSV")
	}
	logger = logging.OrDefault(logger)

	var rows []models.TransactionRow
	for _, stmt := range stmts {
		rows = append(rows, models.NewTransactionRows(stmt, dateFormat)...)
	}

	logger.WithFields(
		logging.Field{Key: logging.FieldFile, Value: csvFile},
		logging.Field{Key: logging.FieldStatements, Value: len(stmts)},
		logging.Field{Key: logging.FieldCount, Value: len(rows)},
	).Info("Writing transactions to CSV file")

	dir := filepath.Dir(csvFile)
	if err := os.MkdirAll(dir, models.PermissionDirectory); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	file, err := os.Create(csvFile) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("error creating CSV file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close file")
		}
	}()

	csvWriter := csv.NewWriter(file)
	csvWriter.Comma = Delimiter

	if rows == nil {
		rows = []models.TransactionRow{}
	}
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csvWriter)); err != nil {
		return fmt.Errorf("error writing CSV data: %w", err)
	}
	return nil
}
