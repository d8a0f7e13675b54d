package ebics

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/xmldsig"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Namespaces of the order data documents.
const (
	NamespaceSignature = "http://www.ebics.org/S001"
	NamespaceDS        = xmldsig.NamespaceDS
)

const (
	digestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
	timestampLayout = "2006-01-02T15:04:05.000Z"
	dateLayout      = "2006-01-02"
)

// Order attributes.
const (
	AttributeDownload      = "DZHNN"
	AttributeUpload        = "OZHNN"
	AttributeKeyManagement = "DZNNN"
)

// nonce returns 16 random bytes as uppercase hex.
func nonce() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

func timestamp(now time.Time) string {
	return now.UTC().Format(timestampLayout)
}

// newDocument creates an H004 document with the given root element.
func newDocument(root string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	r := doc.CreateElement(root)
	r.CreateAttr("xmlns", Namespace)
	r.CreateAttr("Version", ProtocolVersion)
	r.CreateAttr("Revision", ProtocolRevision)
	return doc, r
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// header creates header/static and header/mutable.
func header(root *etree.Element, authenticate bool) (static, mutable *etree.Element) {
	h := root.CreateElement("header")
	if authenticate {
		h.CreateAttr("authenticate", "true")
	}
	return h.CreateElement("static"), h.CreateElement("mutable")
}

// subscriberHeader fills the static header fields shared by all
// Initialisation and key management requests.
func subscriberHeader(static *etree.Element, cfg *Config, withNonce bool, now time.Time) {
	text(static, "HostID", cfg.HostID)
	if withNonce {
		text(static, "Nonce", nonce())
		text(static, "Timestamp", timestamp(now))
	}
	text(static, "PartnerID", cfg.PartnerID)
	text(static, "UserID", cfg.UserID)
	text(static, "Product", cfg.product()).CreateAttr("Language", cfg.language())
}

func orderDetails(static *etree.Element, orderType, attribute string) *etree.Element {
	od := static.CreateElement("OrderDetails")
	text(od, "OrderType", orderType)
	text(od, "OrderAttribute", attribute)
	return od
}

func bankPubKeyDigests(static *etree.Element, bank *envelope.BankKeys) {
	d := static.CreateElement("BankPubKeyDigests")
	a := text(d, "Authentication", base64.StdEncoding.EncodeToString(envelope.PublicKeyDigest(bank.Authentication)))
	a.CreateAttr("Version", envelope.AuthenticationX002)
	a.CreateAttr("Algorithm", digestAlgorithm)
	e := text(d, "Encryption", base64.StdEncoding.EncodeToString(envelope.PublicKeyDigest(bank.Encryption)))
	e.CreateAttr("Version", envelope.EncryptionE002)
	e.CreateAttr("Algorithm", digestAlgorithm)
}

// transactionHeader builds the header of Transfer and Receipt requests.
func transactionHeader(root *etree.Element, hostID, transactionID string, phase Phase) *etree.Element {
	static, mutable := header(root, true)
	text(static, "HostID", hostID)
	text(static, "TransactionID", transactionID)
	text(mutable, "TransactionPhase", phase.String())
	return mutable
}

func segmentNumber(mutable *etree.Element, n int, last bool) {
	s := text(mutable, "SegmentNumber", strconv.Itoa(n))
	s.CreateAttr("lastSegment", strconv.FormatBool(last))
}

// rsaKeyValue writes a ds:RSAKeyValue for pub.
func rsaKeyValue(parent *etree.Element, pub *rsa.PublicKey) {
	kv := parent.CreateElement("ds:RSAKeyValue")
	text(kv, "ds:Modulus", base64.StdEncoding.EncodeToString(pub.N.Bytes()))
	text(kv, "ds:Exponent", base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()))
}

// serialize renders doc without indentation.
func serialize(doc *etree.Document) ([]byte, error) {
	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}

// signAndSerialize adds the AuthSignature placeholder after the header,
// signs the document with the user's X002 key and serializes it.
func signAndSerialize(doc *etree.Document, key *rsa.PrivateKey) ([]byte, error) {
	root := doc.Root()
	auth := etree.NewElement("AuthSignature")
	if body := root.SelectElement("body"); body != nil {
		root.InsertChildAt(body.Index(), auth)
	} else {
		root.AddChild(auth)
	}
	if err := xmldsig.Sign(doc, key); err != nil {
		return nil, err
	}
	return serialize(doc)
}
