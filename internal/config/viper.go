// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"fjacquet/ebics-mt940/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. EBICS_MT940_EBICS_HOST_ID.
const EnvPrefix = "EBICS_MT940"

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	CSV struct {
		Delimiter  string `mapstructure:"delimiter" yaml:"delimiter"`
		DateFormat string `mapstructure:"date_format" yaml:"date_format"`
	} `mapstructure:"csv" yaml:"csv"`

	EBICS struct {
		URL              string `mapstructure:"url" yaml:"url"`
		HostID           string `mapstructure:"host_id" yaml:"host_id"`
		PartnerID        string `mapstructure:"partner_id" yaml:"partner_id"`
		UserID           string `mapstructure:"user_id" yaml:"user_id"`
		Product          string `mapstructure:"product" yaml:"product"`
		Language         string `mapstructure:"language" yaml:"language"`
		SecurityMedium   string `mapstructure:"security_medium" yaml:"security_medium"`
		TimeoutSeconds   int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		KeysDir          string `mapstructure:"keys_dir" yaml:"keys_dir"`
		SignatureVersion string `mapstructure:"signature_version" yaml:"signature_version"`
		BankKeysFile     string `mapstructure:"bank_keys_file" yaml:"bank_keys_file"`
		KeySource        string `mapstructure:"key_source" yaml:"key_source"`
		GCPProject       string `mapstructure:"gcp_project" yaml:"gcp_project"`
	} `mapstructure:"ebics" yaml:"ebics"`

	Swift struct {
		Intraday bool `mapstructure:"intraday" yaml:"intraday"`
		Strict   bool `mapstructure:"strict" yaml:"strict"`
	} `mapstructure:"swift" yaml:"swift"`

	BPD struct {
		Backend   string `mapstructure:"backend" yaml:"backend"`
		Directory string `mapstructure:"directory" yaml:"directory"`
		DSN       string `mapstructure:"dsn" yaml:"-"` // may carry a password
	} `mapstructure:"bpd" yaml:"bpd"`

	Publisher struct {
		Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
		URL              string `mapstructure:"url" yaml:"-"`
		Exchange         string `mapstructure:"exchange" yaml:"exchange"`
		RoutingKeyPrefix string `mapstructure:"routing_key_prefix" yaml:"routing_key_prefix"`
	} `mapstructure:"publisher" yaml:"publisher"`
}

// Timeout returns the EBICS HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.EBICS.TimeoutSeconds) * time.Second
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	return InitializeConfigFile("")
}

// InitializeConfigFile is InitializeConfig with an explicit config file. An
// empty path searches the standard locations.
func InitializeConfigFile(path string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.ebics-mt940")
		v.AddConfigPath(".ebics-mt940")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional unless given explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if path != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			logging.GetLogger().WithError(err).Warn("Error reading config file",
				logging.Field{Key: logging.FieldFile, Value: v.ConfigFileUsed()})
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 5. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("csv.date_format", "DD.MM.YYYY")

	v.SetDefault("ebics.url", "")
	v.SetDefault("ebics.host_id", "")
	v.SetDefault("ebics.partner_id", "")
	v.SetDefault("ebics.user_id", "")
	v.SetDefault("ebics.product", "ebics-mt940")
	v.SetDefault("ebics.language", "de")
	v.SetDefault("ebics.security_medium", "0000")
	v.SetDefault("ebics.timeout_seconds", 60)
	v.SetDefault("ebics.keys_dir", "keys")
	v.SetDefault("ebics.signature_version", "A006")
	v.SetDefault("ebics.bank_keys_file", "bankkeys.yaml")
	v.SetDefault("ebics.key_source", "file")
	v.SetDefault("ebics.gcp_project", "")

	v.SetDefault("swift.intraday", false)
	v.SetDefault("swift.strict", false)

	v.SetDefault("bpd.backend", "file")
	v.SetDefault("bpd.directory", "bpd")
	v.SetDefault("bpd.dsn", "")

	v.SetDefault("publisher.enabled", false)
	v.SetDefault("publisher.url", "")
	v.SetDefault("publisher.exchange", "ebics")
	v.SetDefault("publisher.routing_key_prefix", "statements")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if len(config.CSV.Delimiter) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", config.CSV.Delimiter)
	}

	switch config.EBICS.SignatureVersion {
	case "A005", "A006":
	default:
		return fmt.Errorf("ebics.signature_version must be A005 or A006, got: %s", config.EBICS.SignatureVersion)
	}

	if config.EBICS.TimeoutSeconds < 1 || config.EBICS.TimeoutSeconds > 600 {
		return fmt.Errorf("ebics.timeout_seconds must be between 1 and 600, got: %d", config.EBICS.TimeoutSeconds)
	}

	switch config.EBICS.KeySource {
	case "file":
	case "gcp":
		if config.EBICS.GCPProject == "" {
			return fmt.Errorf("ebics.gcp_project required when key_source is gcp")
		}
	default:
		return fmt.Errorf("ebics.key_source must be file or gcp, got: %s", config.EBICS.KeySource)
	}

	switch config.BPD.Backend {
	case "memory", "file":
	case "postgres":
		if config.BPD.DSN == "" {
			return fmt.Errorf("bpd.dsn required when backend is postgres")
		}
	default:
		return fmt.Errorf("unknown bpd.backend: %s", config.BPD.Backend)
	}

	if config.Publisher.Enabled && config.Publisher.URL == "" {
		return fmt.Errorf("publisher.url required when publisher is enabled")
	}

	return nil
}

// ConfigureLoggingFromConfig creates a logger based on the Config struct
func ConfigureLoggingFromConfig(config *Config) logging.Logger {
	return logging.NewLogrusAdapter(strings.ToLower(config.Log.Level), config.Log.Format)
}
