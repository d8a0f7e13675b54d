// Package ebicstest provides a scripted EBICS bank for tests.
package ebicstest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/xmldsig"

	"github.com/beevik/etree"
	"github.com/go-chi/chi/v5"
)

// Path is the route the bank answers on.
const Path = "/ebicsweb/ebicsweb"

const (
	namespace       = "urn:org:ebics:H004"
	digestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
	keyBits         = 1024
)

type reply struct {
	status int
	body   []byte
}

// Bank is an httptest server that answers requests from a queue of
// scripted replies and records every request it receives.
type Bank struct {
	Server *httptest.Server
	HostID string

	authKey *rsa.PrivateKey
	encKey  *rsa.PrivateKey

	mu       sync.Mutex
	replies  []reply
	requests [][]byte
}

// NewBank starts a bank with fresh keys. The server is closed with the test.
func NewBank(t testing.TB) *Bank {
	t.Helper()
	auth, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		t.Fatalf("generate bank auth key: %v", err)
	}
	enc, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		t.Fatalf("generate bank encryption key: %v", err)
	}
	b := &Bank{HostID: "TESTBANK", authKey: auth, encKey: enc}

	r := chi.NewRouter()
	r.Post(Path, b.serve)
	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the EBICS endpoint of the bank.
func (b *Bank) URL() string { return b.Server.URL + Path }

// Keys returns the bank's public keys.
func (b *Bank) Keys() *envelope.BankKeys {
	return &envelope.BankKeys{
		AuthenticationVersion: envelope.AuthenticationX002,
		Authentication:        &b.authKey.PublicKey,
		EncryptionVersion:     envelope.EncryptionE002,
		Encryption:            &b.encKey.PublicKey,
	}
}

// Enqueue appends replies to the script.
func (b *Bank) Enqueue(bodies ...[]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, body := range bodies {
		b.replies = append(b.replies, reply{status: http.StatusOK, body: body})
	}
}

// EnqueueStatus appends an empty reply with the given HTTP status.
func (b *Bank) EnqueueStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, reply{status: status})
}

// Requests returns the request bodies received so far.
func (b *Bank) Requests() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.requests))
	copy(out, b.requests)
	return out
}

func (b *Bank) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.requests = append(b.requests, body)
	if len(b.replies) == 0 {
		b.mu.Unlock()
		http.Error(w, "no scripted reply", http.StatusInternalServerError)
		return
	}
	next := b.replies[0]
	b.replies = b.replies[1:]
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
	w.WriteHeader(next.status)
	_, _ = w.Write(next.body)
}

// Reply describes an ebicsResponse. Empty codes mean 000000; a zero
// SegmentNumber leaves the element out.
type Reply struct {
	Phase         string
	TransactionID string
	NumSegments   int
	SegmentNumber int
	LastSegment   bool
	TechCode      string
	BusCode       string
	ReportText    string

	OrderData string
	// Encryption carries the DataEncryptionInfo of an Initialisation reply.
	Encryption *Encryption
}

// Encryption is the DataEncryptionInfo of a download.
type Encryption struct {
	Digest         []byte
	TransactionKey []byte
}

func code(c string) string {
	if c == "" {
		return "000000"
	}
	return c
}

func newResponse(tag string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(tag)
	root.CreateAttr("xmlns", namespace)
	root.CreateAttr("Version", "H004")
	root.CreateAttr("Revision", "1")
	return doc, root
}

func text(parent *etree.Element, tag, value string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(value)
	return el
}

// Response renders r as an ebicsResponse signed with the bank's
// authentication key.
func (b *Bank) Response(r Reply) []byte {
	doc, root := newResponse("ebicsResponse")
	h := root.CreateElement("header")
	h.CreateAttr("authenticate", "true")
	static := h.CreateElement("static")
	if r.TransactionID != "" {
		text(static, "TransactionID", r.TransactionID)
	}
	if r.NumSegments > 0 {
		text(static, "NumSegments", strconv.Itoa(r.NumSegments))
	}
	mutable := h.CreateElement("mutable")
	if r.Phase != "" {
		text(mutable, "TransactionPhase", r.Phase)
	}
	if r.SegmentNumber > 0 {
		text(mutable, "SegmentNumber", strconv.Itoa(r.SegmentNumber)).
			CreateAttr("lastSegment", strconv.FormatBool(r.LastSegment))
	}
	text(mutable, "ReturnCode", code(r.TechCode))
	text(mutable, "ReportText", r.ReportText)
	root.CreateElement("AuthSignature")

	body := root.CreateElement("body")
	if r.OrderData != "" || r.Encryption != nil {
		dt := body.CreateElement("DataTransfer")
		if r.Encryption != nil {
			dei := dt.CreateElement("DataEncryptionInfo")
			dei.CreateAttr("authenticate", "true")
			d := text(dei, "EncryptionPubKeyDigest", base64.StdEncoding.EncodeToString(r.Encryption.Digest))
			d.CreateAttr("Version", envelope.EncryptionE002)
			d.CreateAttr("Algorithm", digestAlgorithm)
			text(dei, "TransactionKey", base64.StdEncoding.EncodeToString(r.Encryption.TransactionKey))
		}
		text(dt, "OrderData", r.OrderData)
	}
	text(body, "ReturnCode", code(r.BusCode)).CreateAttr("authenticate", "true")

	if err := xmldsig.Sign(doc, b.authKey); err != nil {
		panic(fmt.Sprintf("ebicstest: sign response: %v", err))
	}
	return mustSerialize(doc)
}

// KeyManagementResponse renders an unsigned ebicsKeyManagementResponse.
func (b *Bank) KeyManagementResponse(techCode, busCode string, enc *Encryption, orderData string) []byte {
	doc, root := newResponse("ebicsKeyManagementResponse")
	h := root.CreateElement("header")
	h.CreateAttr("authenticate", "true")
	h.CreateElement("static")
	mutable := h.CreateElement("mutable")
	text(mutable, "ReturnCode", code(techCode))
	text(mutable, "ReportText", "[EBICS_OK] OK")
	body := root.CreateElement("body")
	if enc != nil {
		dt := body.CreateElement("DataTransfer")
		dei := dt.CreateElement("DataEncryptionInfo")
		dei.CreateAttr("authenticate", "true")
		d := text(dei, "EncryptionPubKeyDigest", base64.StdEncoding.EncodeToString(enc.Digest))
		d.CreateAttr("Version", envelope.EncryptionE002)
		d.CreateAttr("Algorithm", digestAlgorithm)
		text(dei, "TransactionKey", base64.StdEncoding.EncodeToString(enc.TransactionKey))
		text(dt, "OrderData", orderData)
	}
	text(body, "ReturnCode", code(busCode))
	return mustSerialize(doc)
}

// Encrypt packs data for user the way a bank does for a download: zlib,
// AES under a fresh transaction key, base64, split into segments of size
// characters.
func Encrypt(user *rsa.PublicKey, data []byte, size int) ([]string, *Encryption, error) {
	key, err := envelope.NewTransactionKey()
	if err != nil {
		return nil, nil, err
	}
	z, err := envelope.Compress(data)
	if err != nil {
		return nil, nil, err
	}
	enc, err := envelope.EncryptAES(key, z)
	if err != nil {
		return nil, nil, err
	}
	wrapped, err := envelope.EncryptKey(user, key)
	if err != nil {
		return nil, nil, err
	}
	return split(base64.StdEncoding.EncodeToString(enc), size),
		&Encryption{Digest: envelope.PublicKeyDigest(user), TransactionKey: wrapped}, nil
}

func split(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	return append(out, s)
}

// HPBResponse answers an HPB for user with the bank's keys.
func (b *Bank) HPBResponse(user *rsa.PublicKey) ([]byte, error) {
	segs, enc, err := Encrypt(user, b.HPBOrderData(), 1<<20)
	if err != nil {
		return nil, err
	}
	return b.KeyManagementResponse("", "", enc, segs[0]), nil
}

// HPBOrderData renders the bank keys as HPBResponseOrderData.
func (b *Bank) HPBOrderData() []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("HPBResponseOrderData")
	root.CreateAttr("xmlns", namespace)
	root.CreateAttr("xmlns:ds", xmldsig.NamespaceDS)

	auth := root.CreateElement("AuthenticationPubKeyInfo")
	keyValue(auth, &b.authKey.PublicKey)
	text(auth, "AuthenticationVersion", envelope.AuthenticationX002)
	enc := root.CreateElement("EncryptionPubKeyInfo")
	keyValue(enc, &b.encKey.PublicKey)
	text(enc, "EncryptionVersion", envelope.EncryptionE002)
	text(root, "HostID", b.HostID)
	return mustSerialize(doc)
}

func keyValue(parent *etree.Element, pub *rsa.PublicKey) {
	kv := parent.CreateElement("PubKeyValue").CreateElement("ds:RSAKeyValue")
	text(kv, "ds:Modulus", base64.StdEncoding.EncodeToString(pub.N.Bytes()))
	text(kv, "ds:Exponent", base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()))
}

// OpenUpload recovers the order data of an upload from its recorded
// Initialisation and Transfer requests.
func (b *Bank) OpenUpload(init []byte, transfers ...[]byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(init); err != nil {
		return nil, err
	}
	tk := doc.FindElement("//DataEncryptionInfo/TransactionKey")
	if tk == nil {
		return nil, fmt.Errorf("no TransactionKey in init request")
	}
	wrapped, err := base64.StdEncoding.DecodeString(tk.Text())
	if err != nil {
		return nil, err
	}
	key, err := envelope.DecryptKey(b.encKey, wrapped)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, t := range transfers {
		s, err := Inspect(t)
		if err != nil {
			return nil, err
		}
		sb.WriteString(s.OrderData)
	}
	encrypted, err := base64.StdEncoding.DecodeString(sb.String())
	if err != nil {
		return nil, err
	}
	z, err := envelope.DecryptAES(key, encrypted)
	if err != nil {
		return nil, err
	}
	return envelope.Decompress(z)
}

// Summary is what tests usually want to know about a request.
type Summary struct {
	Root          string
	Phase         string
	OrderType     string
	TransactionID string
	SegmentNumber string
	LastSegment   string
	OrderData     string
	Signed        bool
}

// Inspect summarises a request document.
func Inspect(data []byte) (Summary, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return Summary{}, err
	}
	root := doc.Root()
	if root == nil {
		return Summary{}, fmt.Errorf("empty document")
	}
	value := func(path string) string {
		if el := root.FindElement(path); el != nil {
			return strings.TrimSpace(el.Text())
		}
		return ""
	}
	s := Summary{
		Root:          root.Tag,
		Phase:         value("./header/mutable/TransactionPhase"),
		OrderType:     value("./header/static/OrderDetails/OrderType"),
		TransactionID: value("./header/static/TransactionID"),
		SegmentNumber: value("./header/mutable/SegmentNumber"),
		OrderData:     value("./body/DataTransfer/OrderData"),
		Signed:        root.FindElement("./AuthSignature/SignatureValue") != nil,
	}
	if seg := root.FindElement("./header/mutable/SegmentNumber"); seg != nil {
		s.LastSegment = seg.SelectAttrValue("lastSegment", "")
	}
	return s, nil
}

func mustSerialize(doc *etree.Document) []byte {
	doc.WriteSettings.CanonicalEndTags = true
	b, err := doc.WriteToBytes()
	if err != nil {
		panic(fmt.Sprintf("ebicstest: serialize: %v", err))
	}
	return b
}
