// Package ebics contains the EBICS order commands
package ebics

import (
	"context"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fjacquet/ebics-mt940/cmd/common"
	"fjacquet/ebics-mt940/cmd/root"
	"fjacquet/ebics-mt940/internal/container"
	"fjacquet/ebics-mt940/internal/ebics"
	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/secrets"

	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var (
	keyBits  int
	force    bool
	fromDate string
	toDate   string
	intraday bool
	publish  bool
)

// Cmd represents the ebics command
var Cmd = &cobra.Command{
	Use:   "ebics",
	Short: "Run EBICS orders against the configured bank",
	Long: `Run EBICS H004 orders. A new subscriber runs keygen, ini, hia and hpb once;
afterwards download, upload and statements can be used.`,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the signature, authentication and encryption keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Keygen(cmd.Context(), root.AppContainer, keyBits, force, cmd.OutOrStdout())
	},
}

var iniCmd = &cobra.Command{
	Use:   "ini",
	Short: "Send the signature public key (INI)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return KeyManagement(cmd.Context(), root.AppContainer, ebics.OrderINI, cmd.OutOrStdout())
	},
}

var hiaCmd = &cobra.Command{
	Use:   "hia",
	Short: "Send the authentication and encryption public keys (HIA)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return KeyManagement(cmd.Context(), root.AppContainer, ebics.OrderHIA, cmd.OutOrStdout())
	},
}

var hpbCmd = &cobra.Command{
	Use:   "hpb",
	Short: "Download and store the bank public keys (HPB)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return KeyManagement(cmd.Context(), root.AppContainer, ebics.OrderHPB, cmd.OutOrStdout())
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <ORDER>",
	Short: "Run a download order and write the order data",
	Long:  "Run a download order (" + strings.Join(ebics.SupportedOrderTypes(), ", ") + ").",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := dateRange(fromDate, toDate)
		if err != nil {
			return err
		}
		return Download(cmd.Context(), root.AppContainer, strings.ToUpper(args[0]), from, to, root.SharedFlags.Output, cmd.OutOrStdout())
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <ORDER> <file>",
	Short: "Upload order data from a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return Upload(cmd.Context(), root.AppContainer, strings.ToUpper(args[0]), args[1], cmd.OutOrStdout())
	},
}

var statementsCmd = &cobra.Command{
	Use:   "statements",
	Short: "Download MT940 (or MT942) statements and convert them to CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := dateRange(fromDate, toDate)
		if err != nil {
			return err
		}
		_, err = Statements(cmd.Context(), root.AppContainer, from, to, intraday, root.SharedFlags.Output, publish)
		return err
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keyBits, "bits", envelope.DefaultKeyBits, "RSA key size")
	keygenCmd.Flags().BoolVar(&force, "force", false, "Overwrite existing keys")

	for _, c := range []*cobra.Command{downloadCmd, statementsCmd} {
		c.Flags().StringVar(&fromDate, "from", "", "Start date (YYYY-MM-DD)")
		c.Flags().StringVar(&toDate, "to", "", "End date (YYYY-MM-DD)")
	}
	statementsCmd.Flags().BoolVar(&intraday, "intraday", false, "Download MT942 intraday data (VMK) instead of STA")
	statementsCmd.Flags().BoolVar(&publish, "publish", false, "Publish parsed statements to the configured broker")

	Cmd.AddCommand(keygenCmd, iniCmd, hiaCmd, hpbCmd, downloadCmd, uploadCmd, statementsCmd)
}

func dateRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse(dateLayout, from); err != nil {
			return f, t, fmt.Errorf("invalid --from date: %w", err)
		}
	}
	if to != "" {
		if t, err = time.Parse(dateLayout, to); err != nil {
			return f, t, fmt.Errorf("invalid --to date: %w", err)
		}
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return f, t, errors.New("--to is before --from")
	}
	return f, t, nil
}

// Keygen creates the three user keys and prints their hashes for the
// initialisation letter.
func Keygen(ctx context.Context, c *container.Container, bits int, force bool, out io.Writer) error {
	prefix := c.KeyPrefix()
	version := c.GetConfig().EBICS.SignatureVersion
	if !force {
		if _, err := secrets.LoadUserKeys(ctx, c.GetKeySource(), prefix, version); err == nil {
			return fmt.Errorf("keys for %s already exist, use --force to replace them", prefix)
		} else if !errors.Is(err, secrets.ErrNotFound) {
			return err
		}
	}

	keys, err := envelope.GenerateUserKeys(bits, version)
	if err != nil {
		return err
	}
	if err := secrets.SaveUserKeys(ctx, c.GetKeySource(), prefix, keys); err != nil {
		return err
	}
	c.GetLogger().Info("Generated user keys",
		logging.Field{Key: "prefix", Value: prefix},
		logging.Field{Key: "bits", Value: bits})

	for _, k := range []struct {
		name, version string
		pub           *rsa.PublicKey
	}{
		{"signature", version, &keys.Signature.PublicKey},
		{"authentication", envelope.AuthenticationX002, &keys.Authentication.PublicKey},
		{"encryption", envelope.EncryptionE002, &keys.Encryption.PublicKey},
	} {
		digest := strings.ToUpper(hex.EncodeToString(envelope.PublicKeyDigest(k.pub)))
		if _, err := fmt.Fprintf(out, "%-15s %s  %s\n", k.name, k.version, digest); err != nil {
			return err
		}
	}
	return nil
}

func report(out io.Writer, resp *ebics.Response) error {
	_, err := fmt.Fprintf(out, "%s: technical %s, business %s %s\n", resp.OrderType,
		ebics.ReturnCodeText(resp.TechnicalReturnCode),
		ebics.ReturnCodeText(resp.BusinessReturnCode),
		resp.ReportText)
	return err
}

func rejected(resp *ebics.Response) error {
	return fmt.Errorf("%s rejected by bank: %s %s", resp.OrderType,
		ebics.ReturnCodeText(max(resp.TechnicalReturnCode, resp.BusinessReturnCode)), resp.ReportText)
}

// KeyManagement runs INI, HIA or HPB. HPB stores the received bank keys.
func KeyManagement(ctx context.Context, c *container.Container, orderType string, out io.Writer) error {
	client, err := c.GetEBICSClient(ctx)
	if err != nil {
		return err
	}

	var resp *ebics.Response
	switch orderType {
	case ebics.OrderINI:
		resp, err = client.INI(ctx)
	case ebics.OrderHIA:
		resp, err = client.HIA(ctx)
	case ebics.OrderHPB:
		resp, err = client.HPB(ctx)
	default:
		return fmt.Errorf("%w: %s", ebics.ErrUnsupportedOrderType, orderType)
	}
	if err != nil {
		return err
	}
	if err := report(out, resp); err != nil {
		return err
	}
	if !resp.OK() {
		return rejected(resp)
	}
	if resp.BankKeys != nil {
		return c.GetBankKeyStore().SaveBankKeys(client.Config().HostID, resp.BankKeys)
	}
	return nil
}

// Download runs a download order and writes the order data to output, or to
// out when output is empty.
func Download(ctx context.Context, c *container.Container, orderType string, from, to time.Time, output string, out io.Writer) error {
	client, err := c.GetEBICSClient(ctx)
	if err != nil {
		return err
	}
	resp, err := client.Download(ctx, orderType, from, to)
	if err != nil {
		return err
	}
	if resp.TechnicalReturnCode == ebics.CodeNoDownloadDataAvailable || resp.BusinessReturnCode == ebics.CodeNoDownloadDataAvailable {
		c.GetLogger().Info("No download data available", logging.Field{Key: logging.FieldOrderType, Value: orderType})
		return nil
	}
	if !resp.OK() {
		return rejected(resp)
	}

	if output == "" {
		_, err = out.Write(resp.Data)
		return err
	}
	if err := os.WriteFile(output, resp.Data, models.PermissionReportFile); err != nil {
		return fmt.Errorf("error writing order data: %w", err)
	}
	c.GetLogger().Info("Order data written",
		logging.Field{Key: logging.FieldOrderType, Value: orderType},
		logging.Field{Key: logging.FieldOutputFile, Value: output},
		logging.Field{Key: "bytes", Value: len(resp.Data)})
	return nil
}

// Upload sends the content of file as order data.
func Upload(ctx context.Context, c *container.Container, orderType, file string, out io.Writer) error {
	data, err := os.ReadFile(file) // #nosec G304 -- path comes from the command line
	if err != nil {
		return fmt.Errorf("error reading order data: %w", err)
	}
	client, err := c.GetEBICSClient(ctx)
	if err != nil {
		return err
	}
	resp, err := client.Upload(ctx, orderType, data)
	if err != nil {
		return err
	}
	if err := report(out, resp); err != nil {
		return err
	}
	if !resp.OK() {
		return rejected(resp)
	}
	return nil
}

// Statements downloads STA (VMK when intraday) and writes the parsed
// statements to output as CSV.
func Statements(ctx context.Context, c *container.Container, from, to time.Time, intraday bool, output string, publish bool) ([]*models.Statement, error) {
	client, err := c.GetEBICSClient(ctx)
	if err != nil {
		return nil, err
	}
	stmts, resp, err := client.Statements(ctx, from, to, intraday)
	if err != nil {
		return nil, err
	}
	if resp.TechnicalReturnCode == ebics.CodeNoDownloadDataAvailable {
		c.GetLogger().Info("No statements available")
		return nil, nil
	}
	if !resp.OK() {
		return nil, rejected(resp)
	}

	if output == "" {
		output = "statements.csv"
	}
	opts := common.Options{
		Output:     output,
		DateFormat: models.ConvertDateFormat(c.GetConfig().CSV.DateFormat),
	}
	if publish {
		opts.Publisher = c.GetPublisher()
	}
	return stmts, common.Deliver(ctx, stmts, opts, c.GetLogger())
}
