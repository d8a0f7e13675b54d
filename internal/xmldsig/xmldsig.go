// Package xmldsig signs and verifies the AuthSignature of EBICS messages.
//
// The signature covers every element carrying authenticate="true", taken in
// document order, canonicalized and concatenated before hashing.
package xmldsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// Algorithm identifiers used in EBICS H004 signatures.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgorithmC14N      = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	ReferenceURI       = "#xpointer(//*[@authenticate='true'])"
)

// AuthSignatureTag is the element that receives the signature.
const AuthSignatureTag = "AuthSignature"

var (
	// ErrNoAuthSignature is returned when the document has no AuthSignature element.
	ErrNoAuthSignature = errors.New("no AuthSignature element")
	// ErrNothingToSign is returned when no element is flagged authenticate="true".
	ErrNothingToSign = errors.New("no authenticated elements")
)

// VerificationError describes why a signature was rejected.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signature verification failed: %s: %v", e.Reason, e.Err)
	}
	return "signature verification failed: " + e.Reason
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Sign fills the AuthSignature element of doc with a SignedInfo and
// SignatureValue computed with key. Any previous content of AuthSignature is
// replaced.
func Sign(doc *etree.Document, key *rsa.PrivateKey) error {
	root := doc.Root()
	if root == nil {
		return ErrNoAuthSignature
	}
	auth := root.FindElement("./" + AuthSignatureTag)
	if auth == nil {
		return ErrNoAuthSignature
	}
	for _, c := range auth.ChildElements() {
		auth.RemoveChild(c)
	}
	if lookupNamespace(auth, "ds") == "" {
		auth.CreateAttr("xmlns:ds", NamespaceDS)
	}

	digest, err := ReferenceDigest(root)
	if err != nil {
		return err
	}

	signedInfo := auth.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", ReferenceURI)
	ref.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", AlgorithmC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))

	canonical, err := Canonicalize(signedInfo)
	if err != nil {
		return fmt.Errorf("canonicalize SignedInfo: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return fmt.Errorf("sign SignedInfo: %w", err)
	}
	auth.CreateElement("ds:SignatureValue").SetText(base64.StdEncoding.EncodeToString(sig))
	return nil
}

// Verify checks the AuthSignature of payload against pub.
func Verify(payload []byte, pub *rsa.PublicKey) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return &VerificationError{Reason: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return &VerificationError{Reason: "empty document"}
	}
	auth := root.FindElement("./" + AuthSignatureTag)
	if auth == nil {
		return &VerificationError{Reason: "missing AuthSignature", Err: ErrNoAuthSignature}
	}
	signedInfo := auth.FindElement("./SignedInfo")
	if signedInfo == nil {
		return &VerificationError{Reason: "missing SignedInfo"}
	}

	checks := []struct {
		path, attr, want string
	}{
		{"./CanonicalizationMethod", "Algorithm", AlgorithmC14N},
		{"./SignatureMethod", "Algorithm", AlgorithmRSASHA256},
		{"./Reference", "URI", ReferenceURI},
		{"./Reference/Transforms/Transform", "Algorithm", AlgorithmC14N},
		{"./Reference/DigestMethod", "Algorithm", AlgorithmSHA256},
	}
	for _, c := range checks {
		el := signedInfo.FindElement(c.path)
		if el == nil {
			return &VerificationError{Reason: "missing " + strings.TrimPrefix(c.path, "./")}
		}
		if got := el.SelectAttrValue(c.attr, ""); got != c.want {
			return &VerificationError{Reason: fmt.Sprintf("unexpected %s %q", c.attr, got)}
		}
	}

	wantDigest, err := decodeText(signedInfo.FindElement("./Reference/DigestValue"))
	if err != nil {
		return &VerificationError{Reason: "DigestValue", Err: err}
	}
	digest, err := ReferenceDigest(root)
	if err != nil {
		return &VerificationError{Reason: "reference digest", Err: err}
	}
	if !bytes.Equal(digest, wantDigest) {
		return &VerificationError{Reason: "digest mismatch"}
	}

	sig, err := decodeText(auth.FindElement("./SignatureValue"))
	if err != nil {
		return &VerificationError{Reason: "SignatureValue", Err: err}
	}
	canonical, err := Canonicalize(signedInfo)
	if err != nil {
		return &VerificationError{Reason: "canonicalize SignedInfo", Err: err}
	}
	sum := sha256.Sum256([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], sig); err != nil {
		return &VerificationError{Reason: "bad signature value", Err: err}
	}
	return nil
}

// ReferenceDigest hashes the canonical form of all authenticated elements.
func ReferenceDigest(root *etree.Element) ([]byte, error) {
	elems := authenticated(root, nil)
	if len(elems) == 0 {
		return nil, ErrNothingToSign
	}
	h := sha256.New()
	for _, el := range elems {
		c, err := Canonicalize(el)
		if err != nil {
			return nil, fmt.Errorf("canonicalize %s: %w", el.Tag, err)
		}
		h.Write([]byte(c))
	}
	return h.Sum(nil), nil
}

// Canonicalize renders el as a standalone subtree. Namespace declarations
// inherited from ancestors are copied onto the subtree root first, so the
// output does not depend on where el sits in its document.
func Canonicalize(el *etree.Element) (string, error) {
	c := el.Copy()
	declared := map[string]bool{}
	for _, a := range c.Attr {
		if p, ok := nsPrefix(a); ok {
			declared[p] = true
		}
	}
	var prefixes []string
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			prefix, ok := nsPrefix(a)
			if !ok || declared[prefix] {
				continue
			}
			declared[prefix] = true
			c.CreateAttr(a.FullKey(), a.Value)
			if prefix != "" {
				prefixes = append(prefixes, prefix)
			}
		}
	}
	transform := ""
	if len(prefixes) > 0 {
		sort.Strings(prefixes)
		transform = `<ec:InclusiveNamespaces xmlns:ec="http://www.w3.org/2001/10/xml-exc-c14n#" PrefixList="` +
			strings.Join(prefixes, " ") + `"/>`
	}
	canonicalizer := signedxml.ExclusiveCanonicalization{WithComments: false}
	return canonicalizer.ProcessElement(c, transform)
}

func authenticated(el *etree.Element, out []*etree.Element) []*etree.Element {
	if el.SelectAttrValue("authenticate", "") == "true" {
		out = append(out, el)
	}
	for _, c := range el.ChildElements() {
		out = authenticated(c, out)
	}
	return out
}

// nsPrefix reports whether a declares a namespace and returns its prefix.
func nsPrefix(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "xmlns":
		return a.Key, true
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	default:
		return "", false
	}
}

func lookupNamespace(el *etree.Element, prefix string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if p, ok := nsPrefix(a); ok && p == prefix {
				return a.Value
			}
		}
	}
	return ""
}

func decodeText(el *etree.Element) ([]byte, error) {
	if el == nil {
		return nil, errors.New("element missing")
	}
	text := strings.Join(strings.Fields(el.Text()), "")
	return base64.StdEncoding.DecodeString(text)
}
