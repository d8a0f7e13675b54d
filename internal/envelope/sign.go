package envelope

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// SignOrder produces the electronic signature (ES) over order data.
// A005 is PKCS#1 v1.5 and A006 is PSS, both over SHA-256.
func SignOrder(version string, key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	switch version {
	case SignatureA005:
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	case SignatureA006:
		return rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
	default:
		return nil, fmt.Errorf("%w: signature %s", ErrUnsupportedVersion, version)
	}
}

// VerifyOrder checks a signature produced by SignOrder.
func VerifyOrder(version string, pub *rsa.PublicKey, data, sig []byte) error {
	digest := sha256.Sum256(data)
	switch version {
	case SignatureA005:
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
	case SignatureA006:
		return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
	default:
		return fmt.Errorf("%w: signature %s", ErrUnsupportedVersion, version)
	}
}
