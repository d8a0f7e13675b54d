package ebics

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/xmlutils"

	"github.com/beevik/etree"
)

// Key management order types.
const (
	OrderINI = "INI"
	OrderHIA = "HIA"
	OrderHPB = "HPB"
)

// keyManagementCommand is the single round trip shared by INI, HIA and HPB.
// It has no Initialisation phase; the protocol sends its one request as
// the only Transfer request.
type keyManagementCommand struct {
	baseCommand
	build func() ([]byte, error)
}

func (c *keyManagementCommand) OrderAttribute() string           { return AttributeKeyManagement }
func (c *keyManagementCommand) TransactionType() TransactionType { return Upload }

// TransferRequests implements Command.
func (c *keyManagementCommand) TransferRequests() ([]Request, error) {
	if err := c.cfg.requireUserKeys(); err != nil {
		return nil, err
	}
	data, err := c.build()
	if err != nil {
		return nil, err
	}
	return []Request{{Document: data, SegmentNumber: 1, LastSegment: true}}, nil
}

// Deserialize implements Command.
func (c *keyManagementCommand) Deserialize(payload []byte) (DeserializeResult, error) {
	d, err := decodeKeyManagementResponse(payload)
	if err != nil {
		return DeserializeResult{}, err
	}
	c.response.update(d.result)
	return d.result, nil
}

// unsecured builds an ebicsUnsecuredRequest carrying orderData.
func (c *keyManagementCommand) unsecured(orderData []byte) ([]byte, error) {
	z, err := envelope.Compress(orderData)
	if err != nil {
		return nil, err
	}
	doc, root := newDocument("ebicsUnsecuredRequest")
	static, _ := header(root, true)
	subscriberHeader(static, c.cfg, false, time.Time{})
	orderDetails(static, c.orderType, AttributeKeyManagement)
	text(static, "SecurityMedium", c.cfg.securityMedium())
	dt := root.CreateElement("body").CreateElement("DataTransfer")
	text(dt, "OrderData", base64.StdEncoding.EncodeToString(z))
	return serialize(doc)
}

// orderDataDocument starts an order data document in namespace ns.
func orderDataDocument(rootTag, ns string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(rootTag)
	root.CreateAttr("xmlns", ns)
	root.CreateAttr("xmlns:ds", NamespaceDS)
	return doc, root
}

func pubKeyValue(parent *etree.Element, pub *rsa.PublicKey, now time.Time) {
	pkv := parent.CreateElement("PubKeyValue")
	rsaKeyValue(pkv, pub)
	text(pkv, "TimeStamp", timestamp(now))
}

// NewINICommand sends the user's signature key.
func NewINICommand(cfg *Config, logger logging.Logger) Command {
	c := &keyManagementCommand{baseCommand: newBaseCommand(cfg, OrderINI, logger)}
	c.build = func() ([]byte, error) {
		doc, root := orderDataDocument("SignaturePubKeyOrderData", NamespaceSignature)
		info := root.CreateElement("SignaturePubKeyInfo")
		pubKeyValue(info, &cfg.UserKeys.Signature.PublicKey, time.Now())
		text(info, "SignatureVersion", cfg.UserKeys.SignatureVersion)
		text(root, "PartnerID", cfg.PartnerID)
		text(root, "UserID", cfg.UserID)
		data, err := serialize(doc)
		if err != nil {
			return nil, err
		}
		return c.unsecured(data)
	}
	return c
}

// NewHIACommand sends the user's authentication and encryption keys.
func NewHIACommand(cfg *Config, logger logging.Logger) Command {
	c := &keyManagementCommand{baseCommand: newBaseCommand(cfg, OrderHIA, logger)}
	c.build = func() ([]byte, error) {
		now := time.Now()
		doc, root := orderDataDocument("HIARequestOrderData", Namespace)
		auth := root.CreateElement("AuthenticationPubKeyInfo")
		pubKeyValue(auth, &cfg.UserKeys.Authentication.PublicKey, now)
		text(auth, "AuthenticationVersion", envelope.AuthenticationX002)
		enc := root.CreateElement("EncryptionPubKeyInfo")
		pubKeyValue(enc, &cfg.UserKeys.Encryption.PublicKey, now)
		text(enc, "EncryptionVersion", envelope.EncryptionE002)
		text(root, "PartnerID", cfg.PartnerID)
		text(root, "UserID", cfg.UserID)
		data, err := serialize(doc)
		if err != nil {
			return nil, err
		}
		return c.unsecured(data)
	}
	return c
}

// HPBCommand downloads the bank's public keys. The keys end up in
// Response().BankKeys.
type HPBCommand struct {
	keyManagementCommand
}

// NewHPBCommand creates an HPB order.
func NewHPBCommand(cfg *Config, logger logging.Logger) *HPBCommand {
	c := &HPBCommand{keyManagementCommand{baseCommand: newBaseCommand(cfg, OrderHPB, logger)}}
	c.build = c.request
	return c
}

func (c *HPBCommand) request() ([]byte, error) {
	doc, root := newDocument("ebicsNoPubKeyDigestsRequest")
	static, _ := header(root, true)
	subscriberHeader(static, c.cfg, true, time.Now())
	orderDetails(static, OrderHPB, AttributeDownload)
	text(static, "SecurityMedium", c.cfg.securityMedium())
	root.CreateElement("body")
	return signAndSerialize(doc, c.cfg.UserKeys.Authentication)
}

// Deserialize implements Command.
func (c *HPBCommand) Deserialize(payload []byte) (DeserializeResult, error) {
	d, err := decodeKeyManagementResponse(payload)
	if err != nil {
		return DeserializeResult{}, err
	}
	c.response.update(d.result)
	if d.result.HasError() {
		return d.result, nil
	}

	info, err := d.encryptionInfo()
	if err != nil {
		return d.result, err
	}
	key, err := info.unwrapKey(c.cfg.UserKeys.Encryption)
	if err != nil {
		return d.result, err
	}
	encrypted, err := decodeBase64(d.value(responsePaths.orderData))
	if err != nil {
		return d.result, fmt.Errorf("OrderData: %w", err)
	}
	orderData, err := openOrderData(key, encrypted)
	if err != nil {
		return d.result, err
	}
	bank, err := parseHPBOrderData(orderData)
	if err != nil {
		return d.result, err
	}
	c.response.BankKeys = bank
	c.logger.Info("Bank keys received", logging.Field{Key: logging.FieldHostID, Value: c.cfg.HostID})
	return d.result, nil
}

// parseHPBOrderData reads the bank keys out of HPBResponseOrderData.
func parseHPBOrderData(data []byte) (*envelope.BankKeys, error) {
	root, err := xmlutils.ParseXML(data)
	if err != nil {
		return nil, err
	}
	x := xmlutils.DefaultHPBOrderDataXPaths()
	value := func(path string) string {
		v, _ := xmlutils.First(root, path)
		return v
	}

	bank := &envelope.BankKeys{
		AuthenticationVersion: value(x.AuthenticationVersion),
		EncryptionVersion:     value(x.EncryptionVersion),
	}
	if bank.AuthenticationVersion != envelope.AuthenticationX002 {
		return nil, fmt.Errorf("%w: authentication %q", envelope.ErrUnsupportedVersion, bank.AuthenticationVersion)
	}
	if bank.EncryptionVersion != envelope.EncryptionE002 {
		return nil, fmt.Errorf("%w: encryption %q", envelope.ErrUnsupportedVersion, bank.EncryptionVersion)
	}
	if bank.Authentication, err = publicKey(value(x.AuthenticationModulus), value(x.AuthenticationExponent)); err != nil {
		return nil, fmt.Errorf("authentication key: %w", err)
	}
	if bank.Encryption, err = publicKey(value(x.EncryptionModulus), value(x.EncryptionExponent)); err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	return bank, nil
}

func publicKey(modulus, exponent string) (*rsa.PublicKey, error) {
	m, err := decodeBase64(modulus)
	if err != nil {
		return nil, err
	}
	e, err := decodeBase64(exponent)
	if err != nil {
		return nil, err
	}
	return envelope.PublicKeyFromParts(m, e)
}
