// Package batch converts a directory of statement files
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fjacquet/ebics-mt940/cmd/root"
	"fjacquet/ebics-mt940/internal/batch"
	"fjacquet/ebics-mt940/internal/common"
	"fjacquet/ebics-mt940/internal/container"
	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/publisher"
	"fjacquet/ebics-mt940/internal/scanner"

	"github.com/spf13/cobra"
)

var (
	parserType string
	publish    bool
)

// Cmd represents the batch command
var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch process statement files from a directory",
	Long: `Batch process statement files from an input directory and write one CSV per account
to an output directory. Statements of the same account are merged across files.

Example:
  ebics-mt940 batch -i statements/ -o csv/ --type mt942`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := Run(cmd.Context(), root.AppContainer, factory.ParserType(parserType),
			root.SharedFlags.Input, root.SharedFlags.Output, publish)
		return err
	},
}

func init() {
	Cmd.Flags().StringVar(&parserType, "type", string(factory.MT940), "Statement type (mt940 or mt942)")
	Cmd.Flags().BoolVar(&publish, "publish", false, "Publish parsed statements to the configured broker")
}

// Run converts every statement file under inputDir and returns the number of
// CSV files written.
func Run(ctx context.Context, c *container.Container, pt factory.ParserType, inputDir, outputDir string, publish bool) (int, error) {
	if inputDir == "" || outputDir == "" {
		return 0, errors.New("input and output directories must be specified")
	}
	log := c.GetLogger()
	p, err := c.GetParser(pt)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, models.PermissionDirectory); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	files, err := scanner.New(log).ScanPaths([]string{inputDir})
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		log.Warn("No statement files found in input directory", logging.Field{Key: "directory", Value: inputDir})
		return 0, nil
	}
	log.Info("Found files for processing", logging.Field{Key: logging.FieldCount, Value: len(files)})

	dateFormat := models.ConvertDateFormat(c.GetConfig().CSV.DateFormat)
	written := 0
	for _, group := range batch.NewAggregator(p, log).Aggregate(files) {
		output := filepath.Join(outputDir, batch.OutputFilename(group))
		if err := common.WriteStatementsToCSV(group.Statements, output, dateFormat, log); err != nil {
			log.WithError(err).Error("Failed to write consolidated CSV",
				logging.Field{Key: logging.FieldAccount, Value: group.Account},
				logging.Field{Key: logging.FieldOutputFile, Value: output})
			continue
		}
		if publish {
			if err := publisher.PublishAll(ctx, c.GetPublisher(), group.Statements); err != nil {
				return written, fmt.Errorf("error publishing statements: %w", err)
			}
		}
		log.Info("Created consolidated file",
			logging.Field{Key: logging.FieldAccount, Value: group.Account},
			logging.Field{Key: logging.FieldStatements, Value: len(group.Statements)},
			logging.Field{Key: "transactions", Value: group.Transactions()},
			logging.Field{Key: logging.FieldOutputFile, Value: output},
			logging.Field{Key: "sources", Value: group.SourceFiles})
		written++
	}
	return written, nil
}
