// Package store persists the bank public keys received with HPB.
package store

import (
	"bytes"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the bank key file name looked up by FindConfigFile.
const DefaultFile = "bankkeys.yaml"

// ErrUnknownHost is returned when no keys are stored for a host.
var ErrUnknownHost = errors.New("no bank keys for host")

// ErrDigestMismatch is returned when a stored key does not match its recorded hash.
var ErrDigestMismatch = errors.New("bank key digest mismatch")

// KeyStore loads and saves bank keys per EBICS host.
type KeyStore interface {
	LoadBankKeys(hostID string) (*envelope.BankKeys, error)
	SaveBankKeys(hostID string, keys *envelope.BankKeys) error
}

type publicKey struct {
	Version  string `yaml:"version"`
	Modulus  string `yaml:"modulus"`
	Exponent string `yaml:"exponent"`
	Digest   string `yaml:"digest"`
}

type hostKeys struct {
	Authentication publicKey `yaml:"authentication"`
	Encryption     publicKey `yaml:"encryption"`
}

type keyFile struct {
	Hosts map[string]hostKeys `yaml:"hosts"`
}

// BankKeyStore keeps bank keys of all hosts in one YAML file.
type BankKeyStore struct {
	File   string
	logger logging.Logger
}

// NewBankKeyStore creates a store backed by file.
func NewBankKeyStore(file string, logger logging.Logger) *BankKeyStore {
	if file == "" {
		file = DefaultFile
	}
	return &BankKeyStore{File: file, logger: logging.OrDefault(logger)}
}

// FindConfigFile looks for a file in the current directory, ./config and
// ~/.config/ebics-mt940, in that order.
func FindConfigFile(filename string) (string, error) {
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".config", "ebics-mt940", filename))
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

func (s *BankKeyStore) read() (keyFile, string, error) {
	kf := keyFile{Hosts: map[string]hostKeys{}}
	path, err := FindConfigFile(s.File)
	if errors.Is(err, os.ErrNotExist) {
		return kf, s.File, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return kf, path, fmt.Errorf("error reading bank key file: %w", err)
	}
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return kf, path, fmt.Errorf("error parsing bank key file: %w", err)
	}
	if kf.Hosts == nil {
		kf.Hosts = map[string]hostKeys{}
	}
	return kf, path, nil
}

// LoadBankKeys implements KeyStore. Every key is checked against its stored
// digest.
func (s *BankKeyStore) LoadBankKeys(hostID string) (*envelope.BankKeys, error) {
	kf, path, err := s.read()
	if err != nil {
		return nil, err
	}
	hk, ok := kf.Hosts[strings.ToUpper(hostID)]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownHost, hostID)
	}

	auth, err := hk.Authentication.decode()
	if err != nil {
		return nil, fmt.Errorf("authentication key: %w", err)
	}
	enc, err := hk.Encryption.decode()
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	s.logger.Debug("Loaded bank keys",
		logging.Field{Key: "host", Value: hostID},
		logging.Field{Key: logging.FieldFile, Value: path})
	return &envelope.BankKeys{
		AuthenticationVersion: hk.Authentication.Version,
		Authentication:        auth,
		EncryptionVersion:     hk.Encryption.Version,
		Encryption:            enc,
	}, nil
}

// SaveBankKeys implements KeyStore. Other hosts in the file are preserved.
func (s *BankKeyStore) SaveBankKeys(hostID string, keys *envelope.BankKeys) error {
	if keys == nil || keys.Authentication == nil || keys.Encryption == nil {
		return errors.New("incomplete bank keys")
	}
	kf, path, err := s.read()
	if err != nil {
		return err
	}
	kf.Hosts[strings.ToUpper(hostID)] = hostKeys{
		Authentication: encodeKey(keys.AuthenticationVersion, keys.Authentication),
		Encryption:     encodeKey(keys.EncryptionVersion, keys.Encryption),
	}

	data, err := yaml.Marshal(kf)
	if err != nil {
		return fmt.Errorf("error marshaling bank keys: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing bank keys: %w", err)
	}

	s.logger.Info("Saved bank keys",
		logging.Field{Key: "host", Value: hostID},
		logging.Field{Key: logging.FieldFile, Value: path})
	return nil
}

func encodeKey(version string, key *rsa.PublicKey) publicKey {
	return publicKey{
		Version:  version,
		Modulus:  hex.EncodeToString(key.N.Bytes()),
		Exponent: hex.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		Digest:   hex.EncodeToString(envelope.PublicKeyDigest(key)),
	}
}

func (k publicKey) decode() (*rsa.PublicKey, error) {
	modulus, err := hex.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	exponent, err := hex.DecodeString(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	key, err := envelope.PublicKeyFromParts(modulus, exponent)
	if err != nil {
		return nil, err
	}
	if k.Digest != "" {
		want, err := hex.DecodeString(k.Digest)
		if err != nil || !bytes.Equal(want, envelope.PublicKeyDigest(key)) {
			return nil, ErrDigestMismatch
		}
	}
	return key, nil
}

// MemoryKeyStore is a KeyStore for tests.
type MemoryKeyStore struct {
	Keys map[string]*envelope.BankKeys
}

// LoadBankKeys implements KeyStore.
func (m *MemoryKeyStore) LoadBankKeys(hostID string) (*envelope.BankKeys, error) {
	k, ok := m.Keys[strings.ToUpper(hostID)]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownHost, hostID)
	}
	return k, nil
}

// SaveBankKeys implements KeyStore.
func (m *MemoryKeyStore) SaveBankKeys(hostID string, keys *envelope.BankKeys) error {
	if m.Keys == nil {
		m.Keys = map[string]*envelope.BankKeys{}
	}
	m.Keys[strings.ToUpper(hostID)] = keys
	return nil
}
