package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

// Key versions used in EBICS H004.
const (
	SignatureA005      = "A005"
	SignatureA006      = "A006"
	AuthenticationX002 = "X002"
	EncryptionE002     = "E002"
)

// DefaultKeyBits is the RSA modulus size for generated keys.
const DefaultKeyBits = 2048

// ErrUnsupportedVersion is returned for unknown signature or encryption versions.
var ErrUnsupportedVersion = errors.New("unsupported key version")

// UserKeys are the three private keys of an EBICS subscriber.
type UserKeys struct {
	SignatureVersion string
	Signature        *rsa.PrivateKey
	Authentication   *rsa.PrivateKey
	Encryption       *rsa.PrivateKey
}

// BankKeys are the public keys announced by the bank in its HPB response.
type BankKeys struct {
	AuthenticationVersion string
	Authentication        *rsa.PublicKey
	EncryptionVersion     string
	Encryption            *rsa.PublicKey
}

// GenerateUserKeys creates a fresh key set with the given signature version.
func GenerateUserKeys(bits int, signatureVersion string) (*UserKeys, error) {
	if signatureVersion != SignatureA005 && signatureVersion != SignatureA006 {
		return nil, fmt.Errorf("%w: signature %s", ErrUnsupportedVersion, signatureVersion)
	}
	if bits == 0 {
		bits = DefaultKeyBits
	}
	keys := &UserKeys{SignatureVersion: signatureVersion}
	for _, dst := range []**rsa.PrivateKey{&keys.Signature, &keys.Authentication, &keys.Encryption} {
		k, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, fmt.Errorf("generate rsa key: %w", err)
		}
		*dst = k
	}
	return keys, nil
}

// PublicKeyDigest computes the EBICS hash of a public key: SHA-256 over
// "<exponent> <modulus>" with both numbers as lowercase hex without leading
// zeros.
func PublicKeyDigest(pub *rsa.PublicKey) []byte {
	exp := big.NewInt(int64(pub.E)).Text(16)
	mod := pub.N.Text(16)
	sum := sha256.Sum256([]byte(exp + " " + mod))
	return sum[:]
}

// EncryptKey wraps a transaction key for the given recipient.
func EncryptKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt transaction key: %w", err)
	}
	return out, nil
}

// DecryptKey unwraps a transaction key with the user's encryption key.
func DecryptKey(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	out, err := rsa.DecryptPKCS1v15(rand.Reader, priv, data)
	if err != nil {
		return nil, fmt.Errorf("decrypt transaction key: %w", err)
	}
	return out, nil
}

// ParsePrivateKeyPEM reads a PKCS#1 or PKCS#8 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key is %T, not RSA", k)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM reads a PKIX or PKCS#1 RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("PKIX key is %T, not RSA", k)
		}
		return rk, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

// EncodePublicKeyPEM encodes key as a PKIX PEM block.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PublicKeyFromParts builds a public key from the big-endian modulus and
// exponent carried in EBICS key XML.
func PublicKeyFromParts(modulus, exponent []byte) (*rsa.PublicKey, error) {
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, errors.New("empty modulus or exponent")
	}
	e := new(big.Int).SetBytes(exponent)
	if !e.IsInt64() || e.Int64() > 1<<31-1 || e.Int64() < 3 {
		return nil, fmt.Errorf("invalid public exponent %s", e)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil
}
