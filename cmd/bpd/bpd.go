// Package bpd contains the commands that manage stored bank parameter data
package bpd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"fjacquet/ebics-mt940/cmd/root"
	"fjacquet/ebics-mt940/internal/bpd"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/spf13/cobra"
)

// DefaultCountry is the bank country number of Germany.
const DefaultCountry = 280

var (
	country  int
	bankCode int
)

// ErrNotStored is returned when no BPD is stored for the requested bank.
var ErrNotStored = errors.New("no BPD stored for bank")

// Cmd represents the bpd command
var Cmd = &cobra.Command{
	Use:   "bpd",
	Short: "Manage stored bank parameter data",
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the stored BPD of a bank",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Get(cmd.Context(), bpdStore(), country, bankCode, cmd.OutOrStdout())
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Store the BPD read from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Save(cmd.Context(), bpdStore(), country, bankCode, args[0], root.AppContainer.GetLogger())
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored BPD of a bank",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bpdStore().Delete(cmd.Context(), country, bankCode)
	},
}

func bpdStore() bpd.Store { return root.AppContainer.GetBPDStore() }

func init() {
	Cmd.PersistentFlags().IntVar(&country, "country", DefaultCountry, "Bank country number")
	Cmd.PersistentFlags().IntVar(&bankCode, "bank", 0, "Bank code (BLZ)")
	_ = Cmd.MarkPersistentFlagRequired("bank")

	Cmd.AddCommand(getCmd, saveCmd, deleteCmd)
}

// Get writes the BPD stored for the bank, preceded by its version.
func Get(ctx context.Context, s bpd.Store, country, code int, out io.Writer) error {
	raw, ok, err := s.Get(ctx, country, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w %d:%d", ErrNotStored, country, code)
	}
	version, _, err := s.Version(ctx, country, code)
	if err != nil && !errors.Is(err, bpd.ErrNoVersion) {
		return err
	}
	_, err = fmt.Fprintf(out, "# version %d\n%s\n", version, raw)
	return err
}

// Save stores the content of file for the bank. Data without a parsable
// HIBPA segment is rejected.
func Save(ctx context.Context, s bpd.Store, country, code int, file string, log logging.Logger) error {
	log = logging.OrDefault(log)
	data, err := os.ReadFile(file) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("error reading BPD: %w", err)
	}
	version, err := bpd.ParseVersion(string(data), log)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := s.Save(ctx, country, code, string(data)); err != nil {
		return err
	}
	log.Info("Stored BPD",
		logging.Field{Key: logging.FieldBank, Value: fmt.Sprintf("%d:%d", country, code)},
		logging.Field{Key: "version", Value: version})
	return nil
}
