package ebics

import (
	"fmt"
	"time"

	"fjacquet/ebics-mt940/internal/envelope"
)

// Default header values.
const (
	DefaultProduct        = "ebics-mt940"
	DefaultLanguage       = "en"
	DefaultSecurityMedium = "0000"
)

// Config identifies the subscriber at its bank and carries the key material
// the commands sign and decrypt with. BankKeys stays nil until HPB succeeded.
type Config struct {
	URL            string
	HostID         string
	PartnerID      string
	UserID         string
	Product        string
	Language       string
	SecurityMedium string
	Timeout        time.Duration

	UserKeys *envelope.UserKeys
	BankKeys *envelope.BankKeys
}

func (c *Config) product() string {
	if c.Product == "" {
		return DefaultProduct
	}
	return c.Product
}

func (c *Config) language() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}

func (c *Config) securityMedium() string {
	if c.SecurityMedium == "" {
		return DefaultSecurityMedium
	}
	return c.SecurityMedium
}

func (c *Config) requireUserKeys() error {
	if c.UserKeys == nil || c.UserKeys.Signature == nil || c.UserKeys.Authentication == nil || c.UserKeys.Encryption == nil {
		return fmt.Errorf("%w: user keys", ErrMissingKeys)
	}
	return nil
}

func (c *Config) requireBankKeys() error {
	if c.BankKeys == nil || c.BankKeys.Authentication == nil || c.BankKeys.Encryption == nil {
		return fmt.Errorf("%w: bank keys (run HPB first)", ErrMissingKeys)
	}
	return nil
}
