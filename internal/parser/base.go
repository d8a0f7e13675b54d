// Package parser provides the base parser functionality and common interfaces.
package parser

import (
	"fjacquet/ebics-mt940/internal/common"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
)

// BaseParser provides common functionality for all statement readers.
//
// Parsers should embed BaseParser to inherit common functionality:
//
//	type MyParser struct {
//		parser.BaseParser
//		// parser-specific fields
//	}
type BaseParser struct {
	logger logging.Logger
}

// NewBaseParser creates a new BaseParser instance with the provided logger.
// If logger is nil, the process-wide logger is used.
func NewBaseParser(logger logging.Logger) BaseParser {
	return BaseParser{
		logger: logging.OrDefault(logger),
	}
}

// SetLogger implements the LoggerConfigurable interface.
func (b *BaseParser) SetLogger(logger logging.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// GetLogger returns the current logger instance.
func (b *BaseParser) GetLogger() logging.Logger {
	return b.logger
}

// WriteToCSV writes the transactions of stmts through the shared CSV writer
// so every reader produces the same column layout.
func (b *BaseParser) WriteToCSV(stmts []*models.Statement, csvFile, dateFormat string) error {
	b.logger.Info("Writing statements to CSV using common writer",
		logging.Field{Key: logging.FieldFile, Value: csvFile},
		logging.Field{Key: logging.FieldStatements, Value: len(stmts)})

	return common.WriteStatementsToCSV(stmts, csvFile, dateFormat, b.logger)
}
