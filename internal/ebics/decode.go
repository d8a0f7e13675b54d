package ebics

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/xmlutils"

	"gopkg.in/xmlpath.v2"
)

// responsePaths holds the compiled response expressions.
var responsePaths = compileResponsePaths(xmlutils.DefaultEBICSResponseXPaths())

type compiledResponsePaths struct {
	transactionID, numSegments, phase, segmentNumber, lastSegment *xmlpath.Path

	techCode, reportText, busCode *xmlpath.Path

	orderData, transactionKey, encryptionDigest, encryptionVersion *xmlpath.Path
}

func compileResponsePaths(x xmlutils.EBICSResponse) compiledResponsePaths {
	return compiledResponsePaths{
		transactionID:     xmlpath.MustCompile(x.Header.TransactionID),
		numSegments:       xmlpath.MustCompile(x.Header.NumSegments),
		phase:             xmlpath.MustCompile(x.Header.TransactionPhase),
		segmentNumber:     xmlpath.MustCompile(x.Header.SegmentNumber),
		lastSegment:       xmlpath.MustCompile(x.Header.LastSegment),
		techCode:          xmlpath.MustCompile(x.Header.ReturnCode),
		reportText:        xmlpath.MustCompile(x.Header.ReportText),
		busCode:           xmlpath.MustCompile(x.Body.ReturnCode),
		orderData:         xmlpath.MustCompile(x.Body.OrderData),
		transactionKey:    xmlpath.MustCompile(x.Body.TransactionKey),
		encryptionDigest:  xmlpath.MustCompile(x.Body.EncryptionPubKeyDigest),
		encryptionVersion: xmlpath.MustCompile(x.Body.EncryptionVersion),
	}
}

// decoded is a parsed response together with its XML tree.
type decoded struct {
	result DeserializeResult
	root   *xmlpath.Node
}

func (d decoded) value(path *xmlpath.Path) string {
	s, _ := path.String(d.root)
	return strings.TrimSpace(s)
}

// decodeTransactionResponse reads an ebicsResponse. A missing SegmentNumber
// means the response is the last segment.
func decodeTransactionResponse(payload []byte) (decoded, error) {
	root, err := xmlutils.ParseXML(payload)
	if err != nil {
		return decoded{}, err
	}
	d := decoded{root: root}
	p := responsePaths

	tech, err := returnCode(d.value(p.techCode))
	if err != nil {
		return decoded{}, fmt.Errorf("header return code: %w", err)
	}
	bus, err := returnCode(d.value(p.busCode))
	if err != nil {
		return decoded{}, fmt.Errorf("body return code: %w", err)
	}
	d.result = DeserializeResult{
		TechnicalReturnCode: tech,
		BusinessReturnCode:  bus,
		TransactionID:       d.value(p.transactionID),
		ReportText:          xmlutils.CleanText(d.value(p.reportText)),
		LastSegment:         true,
	}

	if phase := d.value(p.phase); phase != "" {
		if d.result.Phase, err = ParsePhase(phase); err != nil {
			return decoded{}, err
		}
	}
	if n := d.value(p.numSegments); n != "" {
		if d.result.NumSegments, err = strconv.Atoi(n); err != nil {
			return decoded{}, fmt.Errorf("NumSegments %q: %w", n, err)
		}
	}
	if n := d.value(p.segmentNumber); n != "" {
		if d.result.SegmentNumber, err = strconv.Atoi(n); err != nil {
			return decoded{}, fmt.Errorf("SegmentNumber %q: %w", n, err)
		}
		last := d.value(p.lastSegment)
		d.result.LastSegment = last == "true" || last == "1"
	}
	return d, nil
}

// decodeKeyManagementResponse reads an ebicsKeyManagementResponse. Key
// management orders are a single round trip, so the result is always the
// last segment.
func decodeKeyManagementResponse(payload []byte) (decoded, error) {
	root, err := xmlutils.ParseXML(payload)
	if err != nil {
		return decoded{}, err
	}
	d := decoded{root: root}
	p := responsePaths

	tech, err := returnCode(d.value(p.techCode))
	if err != nil {
		return decoded{}, fmt.Errorf("header return code: %w", err)
	}
	bus, err := returnCode(d.value(p.busCode))
	if err != nil {
		return decoded{}, fmt.Errorf("body return code: %w", err)
	}
	d.result = DeserializeResult{
		TechnicalReturnCode: tech,
		BusinessReturnCode:  bus,
		ReportText:          xmlutils.CleanText(d.value(p.reportText)),
		LastSegment:         true,
	}
	return d, nil
}

// returnCode parses a six digit return code. An absent code counts as OK.
func returnCode(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// encryptionInfo is the DataEncryptionInfo block of a response.
type encryptionInfo struct {
	version        string
	digest         []byte
	transactionKey []byte
}

func (d decoded) encryptionInfo() (encryptionInfo, error) {
	p := responsePaths
	info := encryptionInfo{version: d.value(p.encryptionVersion)}
	var err error
	if info.digest, err = decodeBase64(d.value(p.encryptionDigest)); err != nil {
		return info, fmt.Errorf("EncryptionPubKeyDigest: %w", err)
	}
	if info.transactionKey, err = decodeBase64(d.value(p.transactionKey)); err != nil {
		return info, fmt.Errorf("TransactionKey: %w", err)
	}
	if len(info.transactionKey) == 0 {
		return info, fmt.Errorf("missing TransactionKey")
	}
	return info, nil
}

// unwrapKey checks the encryption version and key digest, then decrypts the
// transaction key with the user's E002 key.
func (info encryptionInfo) unwrapKey(user *rsa.PrivateKey) ([]byte, error) {
	if info.version != envelope.EncryptionE002 {
		return nil, fmt.Errorf("encryption version %s not supported", info.version)
	}
	if !bytes.Equal(info.digest, envelope.PublicKeyDigest(&user.PublicKey)) {
		return nil, fmt.Errorf("wrong digest in xml")
	}
	return envelope.DecryptKey(user, info.transactionKey)
}

// openOrderData decrypts and inflates order data.
func openOrderData(key, encrypted []byte) ([]byte, error) {
	plain, err := envelope.DecryptAES(key, encrypted)
	if err != nil {
		return nil, err
	}
	return envelope.Decompress(plain)
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
}
