// Package secrets loads and stores the subscriber's private keys.
package secrets

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"regexp"

	"fjacquet/ebics-mt940/internal/envelope"
)

// ErrNotFound is returned when a secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Source reads and writes PEM encoded private keys by name.
type Source interface {
	PrivateKeyPEM(ctx context.Context, name string) ([]byte, error)
	StorePrivateKeyPEM(ctx context.Context, name string, pem []byte) error
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)

func checkName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid secret name %q", name)
	}
	return nil
}

// Key names below a prefix.
const (
	SignatureSuffix      = "-signature"
	AuthenticationSuffix = "-authentication"
	EncryptionSuffix     = "-encryption"
)

// LoadUserKeys reads the three user keys stored under prefix.
func LoadUserKeys(ctx context.Context, src Source, prefix, signatureVersion string) (*envelope.UserKeys, error) {
	keys := &envelope.UserKeys{SignatureVersion: signatureVersion}
	for suffix, dst := range keySlots(keys) {
		pem, err := src.PrivateKeyPEM(ctx, prefix+suffix)
		if err != nil {
			return nil, fmt.Errorf("load %s%s: %w", prefix, suffix, err)
		}
		if *dst, err = envelope.ParsePrivateKeyPEM(pem); err != nil {
			return nil, fmt.Errorf("parse %s%s: %w", prefix, suffix, err)
		}
	}
	return keys, nil
}

// SaveUserKeys writes the three user keys under prefix.
func SaveUserKeys(ctx context.Context, src Source, prefix string, keys *envelope.UserKeys) error {
	for suffix, key := range keySlots(keys) {
		if *key == nil {
			return fmt.Errorf("%s%s: no key", prefix, suffix)
		}
		pem, err := envelope.EncodePrivateKeyPEM(*key)
		if err != nil {
			return err
		}
		if err := src.StorePrivateKeyPEM(ctx, prefix+suffix, pem); err != nil {
			return fmt.Errorf("store %s%s: %w", prefix, suffix, err)
		}
	}
	return nil
}

func keySlots(keys *envelope.UserKeys) map[string]**rsa.PrivateKey {
	return map[string]**rsa.PrivateKey{
		SignatureSuffix:      &keys.Signature,
		AuthenticationSuffix: &keys.Authentication,
		EncryptionSuffix:     &keys.Encryption,
	}
}
