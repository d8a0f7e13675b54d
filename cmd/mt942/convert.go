// Package mt942 handles MT942 intraday statement conversion
package mt942

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

// Cmd represents the mt942 command
var Cmd = &cobra.Command{
	Use:   "mt942",
	Short: "Convert MT942 intraday statements to CSV",
	Long:  `Parse a SWIFT MT942 intraday report. Statements are flagged pending in the CSV.`,
	RunE:  mt942Func,
}

func init() {
	Cmd.Flags().BoolVar(&strict, "strict", false, "Check the file against the strict MT942 grammar first")
	Cmd.Flags().BoolVar(&publish, "publish", false, "Publish parsed statements to the configured broker")
}

func mt942Func(cmd *cobra.Command, args []string) error {
	root.Log.Info("MT942 convert command called")
	_, err := common.Convert(cmd.Context(), root.AppContainer, factory.MT942, common.ConvertFlags{
		Input:    root.SharedFlags.Input,
		Output:   root.SharedFlags.Output,
		Validate: root.SharedFlags.Validate,
		Strict:   strict,
		Publish:  publish,
	})
	return err
}
