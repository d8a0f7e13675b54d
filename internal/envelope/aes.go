// Package envelope holds the cryptographic primitives of an EBICS order:
// the AES transaction key envelope, RSA key transport, order signatures,
// public key digests and zlib compression.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// Padding names a block cipher padding scheme.
type Padding int

const (
	// ANSIX923 fills with zero bytes and ends with the pad length.
	ANSIX923 Padding = iota
	// ISO10126 fills with random bytes and ends with the pad length.
	ISO10126
)

func (p Padding) String() string {
	switch p {
	case ANSIX923:
		return "ANSIX923"
	case ISO10126:
		return "ISO10126"
	default:
		return fmt.Sprintf("Padding(%d)", int(p))
	}
}

// TransactionKeySize is the length of the AES-128 transaction key.
const TransactionKeySize = 16

// ErrPadding is returned when the padding of a decrypted block is invalid.
var ErrPadding = errors.New("invalid padding")

// NewTransactionKey returns a random AES-128 key.
func NewTransactionKey() ([]byte, error) {
	key := make([]byte, TransactionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate transaction key: %w", err)
	}
	return key, nil
}

// Pad extends data to a multiple of blockSize. A full block is added when
// data is already aligned.
func Pad(data []byte, blockSize int, p Padding) ([]byte, error) {
	n := blockSize - len(data)%blockSize
	fill := make([]byte, n-1)
	if p == ISO10126 {
		if _, err := rand.Read(fill); err != nil {
			return nil, err
		}
	}
	out := make([]byte, 0, len(data)+n)
	out = append(out, data...)
	out = append(out, fill...)
	return append(out, byte(n)), nil
}

// Unpad strips the padding added by Pad.
func Unpad(data []byte, blockSize int, p Padding) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrPadding, len(data), blockSize)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: pad length %d", ErrPadding, n)
	}
	if p == ANSIX923 {
		for _, b := range data[len(data)-n : len(data)-1] {
			if b != 0 {
				return nil, fmt.Errorf("%w: non-zero %s filler", ErrPadding, p)
			}
		}
	}
	return data[:len(data)-n], nil
}

// EncryptAES encrypts plain with AES-CBC, a zero IV and ANSIX923 padding.
func EncryptAES(key, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	padded, err := Pad(plain, block.BlockSize(), ANSIX923)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(padded))
	iv := make([]byte, block.BlockSize())
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// DecryptAES reverses EncryptAES. Banks differ in the padding they apply, so
// ANSIX923 is tried first and ISO10126 second; only when both reject the
// plaintext is an error returned.
func DecryptAES(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	bs := block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("aes: ciphertext length %d is not a multiple of %d", len(data), bs)
	}
	plain := make([]byte, len(data))
	iv := make([]byte, bs)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	out, firstErr := Unpad(plain, bs, ANSIX923)
	if firstErr == nil {
		return out, nil
	}
	out, err = Unpad(plain, bs, ISO10126)
	if err == nil {
		return out, nil
	}
	return nil, fmt.Errorf("aes: %w (after %v)", err, firstErr)
}
