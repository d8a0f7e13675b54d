// Package root contains the root command for the application
package root

import (
	"fmt"

	"fjacquet/ebics-mt940/internal/common"
	"fjacquet/ebics-mt940/internal/config"
	"fjacquet/ebics-mt940/internal/container"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/spf13/cobra"
)

// CommonFlags represents the flags that are common to multiple commands
type CommonFlags struct {
	Input    string
	Output   string
	Validate bool
}

var (
	// Log is the shared logger instance for commands
	Log = logging.GetLogger()

	// AppConfig is the configuration loaded before any subcommand runs.
	AppConfig *config.Config

	// AppContainer holds the wired dependencies for subcommands.
	AppContainer *container.Container

	// ConfigFile overrides the config.yaml search when set.
	ConfigFile string

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "ebics-mt940",
		Short: "An EBICS client and SWIFT MT940/MT942 statement converter.",
		Long: `ebics-mt940 talks EBICS H004 to your bank: key initialisation (INI, HIA, HPB),
order downloads and uploads. It also parses SWIFT MT940 and MT942 statements
into CSV and can publish them to a message broker.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to ebics-mt940!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return Setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			Teardown()
		},
	}

	// SharedFlags are accessible to all commands
	SharedFlags = CommonFlags{}
)

// Setup loads the environment and configuration, configures logging and
// builds the dependency container.
func Setup(cmd *cobra.Command, opts ...container.Option) error {
	config.LoadEnv()

	cfg, err := config.InitializeConfigFile(ConfigFile)
	if err != nil {
		return err
	}
	AppConfig = cfg
	Log = config.ConfigureLoggingFromConfig(cfg)
	logging.SetLogger(Log)

	common.SetDelimiter([]rune(cfg.CSV.Delimiter)[0])
	Log.Debug("CSV delimiter configured", logging.Field{Key: logging.FieldDelimiter, Value: cfg.CSV.Delimiter})

	opts = append([]container.Option{container.WithLogger(Log)}, opts...)
	c, err := container.NewContainer(cmd.Context(), cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	AppContainer = c
	return nil
}

// Teardown closes the dependency container.
func Teardown() {
	if AppContainer == nil {
		return
	}
	if err := AppContainer.Close(); err != nil {
		Log.WithError(err).Warn("Failed to close resources")
	}
	AppContainer = nil
}

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Input, "input", "i", "", "Input file")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Output file")
	Cmd.PersistentFlags().BoolVarP(&SharedFlags.Validate, "validate", "v", false, "Validate file format before conversion")
	Cmd.PersistentFlags().StringVar(&ConfigFile, "config", "", "Config file (default searches ./config.yaml, .ebics-mt940/, $HOME/.ebics-mt940/)")
}
