// Package mt940 handles MT940 statement conversion
package mt940

import (
	"fjacquet/ebics-mt940/cmd/common"
	"fjacquet/ebics-mt940/cmd/root"
	"fjacquet/ebics-mt940/internal/factory"

	"github.com/spf13/cobra"
)

var (
	strict  bool
	publish bool
)

// Cmd represents the mt940 command
var Cmd = &cobra.Command{
	Use:   "mt940",
	Short: "Convert MT940 statements to CSV",
	Long:  `Parse a SWIFT MT940 end-of-day statement file and write one CSV row per transaction.`,
	RunE:  mt940Func,
}

func init() {
	Cmd.Flags().BoolVar(&strict, "strict", false, "Check the file against the strict MT940 grammar first")
	Cmd.Flags().BoolVar(&publish, "publish", false, "Publish parsed statements to the configured broker")
}

func mt940Func(cmd *cobra.Command, args []string) error {
	root.Log.Info("MT940 convert command called")
	_, err := common.Convert(cmd.Context(), root.AppContainer, factory.MT940, common.ConvertFlags{
		Input:    root.SharedFlags.Input,
		Output:   root.SharedFlags.Output,
		Validate: root.SharedFlags.Validate,
		Strict:   strict,
		Publish:  publish,
	})
	return err
}
