package ebics

import (
	"encoding/base64"
	"fmt"
	"time"

	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/beevik/etree"
)

// Upload order types with a command.
const (
	OrderCCT = "CCT" // SEPA credit transfer
	OrderCDD = "CDD" // SEPA direct debit
	OrderCDB = "CDB" // SEPA business direct debit
	OrderXE2 = "XE2" // SEPA credit transfer, Swiss variant
)

// UploadCommand sends order data to the bank. The data is signed, packed and
// segmented once, before the first request is built.
type UploadCommand struct {
	baseCommand
	data           []byte
	transactionKey []byte
	now            func() time.Time

	prepared      bool
	signatureData string
	segments      []string
	transactionID string
}

// NewUploadCommand creates an upload of data under orderType.
func NewUploadCommand(cfg *Config, orderType string, data []byte, logger logging.Logger) (*UploadCommand, error) {
	key, err := envelope.NewTransactionKey()
	if err != nil {
		return nil, err
	}
	return &UploadCommand{
		baseCommand:    newBaseCommand(cfg, orderType, logger),
		data:           data,
		transactionKey: key,
		now:            time.Now,
	}, nil
}

func (c *UploadCommand) OrderAttribute() string           { return AttributeUpload }
func (c *UploadCommand) TransactionType() TransactionType { return Upload }

// prepare signs the order data and encrypts it and the signature with the
// transaction key.
func (c *UploadCommand) prepare() error {
	if c.prepared {
		return nil
	}
	keys := c.cfg.UserKeys
	sig, err := envelope.SignOrder(keys.SignatureVersion, keys.Signature, c.data)
	if err != nil {
		return err
	}
	usd, err := c.userSignatureData(sig)
	if err != nil {
		return err
	}
	if c.signatureData, err = c.seal(usd); err != nil {
		return fmt.Errorf("signature data: %w", err)
	}
	orderData, err := c.seal(c.data)
	if err != nil {
		return fmt.Errorf("order data: %w", err)
	}
	c.segments = Segment(orderData, SegmentSize)
	c.prepared = true
	c.logger.Debug("Upload prepared",
		logging.Field{Key: logging.FieldNumSegments, Value: len(c.segments)})
	return nil
}

// seal compresses, encrypts and base64-encodes b.
func (c *UploadCommand) seal(b []byte) (string, error) {
	z, err := envelope.Compress(b)
	if err != nil {
		return "", err
	}
	enc, err := envelope.EncryptAES(c.transactionKey, z)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

func (c *UploadCommand) userSignatureData(sig []byte) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("UserSignatureData")
	root.CreateAttr("xmlns", NamespaceSignature)
	osd := root.CreateElement("OrderSignatureData")
	text(osd, "SignatureVersion", c.cfg.UserKeys.SignatureVersion)
	text(osd, "SignatureValue", base64.StdEncoding.EncodeToString(sig))
	text(osd, "PartnerID", c.cfg.PartnerID)
	text(osd, "UserID", c.cfg.UserID)
	return serialize(doc)
}

// InitRequest implements Command.
func (c *UploadCommand) InitRequest() (*Request, error) {
	if err := c.cfg.requireUserKeys(); err != nil {
		return nil, err
	}
	if err := c.cfg.requireBankKeys(); err != nil {
		return nil, err
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}
	bank := c.cfg.BankKeys
	wrapped, err := envelope.EncryptKey(bank.Encryption, c.transactionKey)
	if err != nil {
		return nil, err
	}

	doc, root := newDocument("ebicsRequest")
	static, mutable := header(root, true)
	subscriberHeader(static, c.cfg, true, c.now())
	od := orderDetails(static, c.orderType, AttributeUpload)
	od.CreateElement("StandardOrderParams")
	bankPubKeyDigests(static, bank)
	text(static, "SecurityMedium", c.cfg.securityMedium())
	text(static, "NumSegments", fmt.Sprint(len(c.segments)))
	text(mutable, "TransactionPhase", PhaseInitialisation.String())

	dt := root.CreateElement("body").CreateElement("DataTransfer")
	dei := dt.CreateElement("DataEncryptionInfo")
	dei.CreateAttr("authenticate", "true")
	digest := text(dei, "EncryptionPubKeyDigest", base64.StdEncoding.EncodeToString(envelope.PublicKeyDigest(bank.Encryption)))
	digest.CreateAttr("Version", bank.EncryptionVersion)
	digest.CreateAttr("Algorithm", digestAlgorithm)
	text(dei, "TransactionKey", base64.StdEncoding.EncodeToString(wrapped))
	sd := text(dt, "SignatureData", c.signatureData)
	sd.CreateAttr("authenticate", "true")

	data, err := signAndSerialize(doc, c.cfg.UserKeys.Authentication)
	if err != nil {
		return nil, err
	}
	return &Request{Document: data}, nil
}

// TransferRequests returns one request per order data segment.
func (c *UploadCommand) TransferRequests() ([]Request, error) {
	if c.transactionID == "" {
		return nil, nil
	}
	if err := c.prepare(); err != nil {
		return nil, err
	}
	reqs := make([]Request, 0, len(c.segments))
	for i, seg := range c.segments {
		n, last := i+1, i+1 == len(c.segments)
		doc, root := newDocument("ebicsRequest")
		mutable := transactionHeader(root, c.cfg.HostID, c.transactionID, PhaseTransfer)
		segmentNumber(mutable, n, last)
		text(root.CreateElement("body").CreateElement("DataTransfer"), "OrderData", seg)

		data, err := signAndSerialize(doc, c.cfg.UserKeys.Authentication)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, Request{Document: data, SegmentNumber: n, LastSegment: last})
	}
	return reqs, nil
}

// Deserialize implements Command.
func (c *UploadCommand) Deserialize(payload []byte) (DeserializeResult, error) {
	d, err := c.deserializeTransaction(payload)
	if err != nil {
		return DeserializeResult{}, err
	}
	dr := d.result
	if dr.HasError() || dr.IsRecoverySync() {
		return dr, nil
	}
	if dr.Phase == PhaseInitialisation {
		if dr.TransactionID == "" {
			return dr, fmt.Errorf("missing TransactionID")
		}
		c.transactionID = dr.TransactionID
		// the Initialisation answer never closes an upload
		dr.LastSegment = false
	}
	return dr, nil
}
