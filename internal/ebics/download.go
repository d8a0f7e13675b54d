package ebics

import (
	"fmt"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
)

// Download order types with a command.
const (
	OrderSTA = "STA" // MT940 end of day statements
	OrderVMK = "VMK" // MT942 intraday statements
	OrderC52 = "C52" // camt.052 account reports
	OrderC53 = "C53" // camt.053 statements
	OrderC54 = "C54" // camt.054 notifications
	OrderHAA = "HAA"
	OrderHTD = "HTD"
	OrderHKD = "HKD"
	OrderPTK = "PTK"
)

// DownloadCommand fetches order data from the bank. Segments are collected
// as they arrive and decrypted once the last one is in.
type DownloadCommand struct {
	baseCommand
	from, to time.Time
	now      func() time.Time

	transactionID  string
	transactionKey []byte
	numSegments    int
	initSegment    int
	segments       []string
	received       int
}

// NewDownloadCommand creates a download of orderType. A zero from or to
// leaves the date range out and lets the bank pick its default.
func NewDownloadCommand(cfg *Config, orderType string, from, to time.Time, logger logging.Logger) *DownloadCommand {
	return &DownloadCommand{
		baseCommand: newBaseCommand(cfg, orderType, logger),
		from:        from,
		to:          to,
		now:         time.Now,
	}
}

func (c *DownloadCommand) OrderAttribute() string           { return AttributeDownload }
func (c *DownloadCommand) TransactionType() TransactionType { return Download }

// InitRequest implements Command.
func (c *DownloadCommand) InitRequest() (*Request, error) {
	if err := c.cfg.requireUserKeys(); err != nil {
		return nil, err
	}
	if err := c.cfg.requireBankKeys(); err != nil {
		return nil, err
	}

	doc, root := newDocument("ebicsRequest")
	static, mutable := header(root, true)
	subscriberHeader(static, c.cfg, true, c.now())
	od := orderDetails(static, c.orderType, AttributeDownload)
	params := od.CreateElement("StandardOrderParams")
	if !c.from.IsZero() && !c.to.IsZero() {
		dr := params.CreateElement("DateRange")
		text(dr, "Start", c.from.Format(dateLayout))
		text(dr, "End", c.to.Format(dateLayout))
	}
	bankPubKeyDigests(static, c.cfg.BankKeys)
	text(static, "SecurityMedium", c.cfg.securityMedium())
	text(mutable, "TransactionPhase", PhaseInitialisation.String())
	root.CreateElement("body")

	data, err := signAndSerialize(doc, c.cfg.UserKeys.Authentication)
	if err != nil {
		return nil, err
	}
	return &Request{Document: data}, nil
}

// TransferRequests returns one request for every segment after the one
// delivered with the Initialisation response.
func (c *DownloadCommand) TransferRequests() ([]Request, error) {
	if c.transactionID == "" {
		return nil, nil
	}
	var reqs []Request
	for n := c.initSegment + 1; n <= c.numSegments; n++ {
		doc, root := newDocument("ebicsRequest")
		mutable := transactionHeader(root, c.cfg.HostID, c.transactionID, PhaseTransfer)
		last := n == c.numSegments
		segmentNumber(mutable, n, last)
		root.CreateElement("body")

		data, err := signAndSerialize(doc, c.cfg.UserKeys.Authentication)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, Request{Document: data, SegmentNumber: n, LastSegment: last})
	}
	return reqs, nil
}

// ReceiptRequest implements Command.
func (c *DownloadCommand) ReceiptRequest() (*Request, error) {
	if c.transactionID == "" {
		return nil, nil
	}
	return c.receipt(c.transactionID)
}

// Deserialize implements Command.
func (c *DownloadCommand) Deserialize(payload []byte) (DeserializeResult, error) {
	d, err := c.deserializeTransaction(payload)
	if err != nil {
		return DeserializeResult{}, err
	}
	dr := d.result
	if dr.HasError() || dr.IsRecoverySync() {
		return dr, nil
	}

	switch dr.Phase {
	case PhaseInitialisation:
		if err := c.begin(d); err != nil {
			return dr, err
		}
		if err := c.store(dr.SegmentNumber, d.value(responsePaths.orderData)); err != nil {
			return dr, err
		}
	case PhaseTransfer:
		if c.segments == nil {
			return dr, fmt.Errorf("transfer response before initialisation")
		}
		if err := c.store(dr.SegmentNumber, d.value(responsePaths.orderData)); err != nil {
			return dr, err
		}
	case PhaseReceipt:
		return dr, nil
	}

	if c.received == c.numSegments && c.response.Data == nil {
		if err := c.assemble(); err != nil {
			return dr, err
		}
	}
	return dr, nil
}

// begin records the transaction parameters of the Initialisation response.
func (c *DownloadCommand) begin(d decoded) error {
	dr := d.result
	if dr.TransactionID == "" {
		return fmt.Errorf("missing TransactionID")
	}
	if dr.NumSegments < 1 {
		return fmt.Errorf("invalid NumSegments %d", dr.NumSegments)
	}
	info, err := d.encryptionInfo()
	if err != nil {
		return err
	}
	key, err := info.unwrapKey(c.cfg.UserKeys.Encryption)
	if err != nil {
		return err
	}
	if dr.SegmentNumber == 0 {
		dr.SegmentNumber = 1
	}

	c.transactionID = dr.TransactionID
	c.transactionKey = key
	c.numSegments = dr.NumSegments
	c.initSegment = dr.SegmentNumber
	c.segments = make([]string, dr.NumSegments)
	c.received = 0
	c.logger.Debug("Download initialised",
		logging.Field{Key: logging.FieldNumSegments, Value: dr.NumSegments})
	return nil
}

func (c *DownloadCommand) store(n int, orderData string) error {
	if n == 0 && c.numSegments == 1 {
		n = 1
	}
	if n < 1 || n > len(c.segments) {
		return fmt.Errorf("segment %d outside 1..%d", n, len(c.segments))
	}
	if orderData == "" {
		return fmt.Errorf("segment %d has no OrderData", n)
	}
	if c.segments[n-1] == "" {
		c.received++
	}
	c.segments[n-1] = orderData
	return nil
}

// assemble decodes every segment, then decrypts and inflates the whole.
func (c *DownloadCommand) assemble() error {
	var encrypted []byte
	for i, s := range c.segments {
		b, err := decodeBase64(s)
		if err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
		encrypted = append(encrypted, b...)
	}
	data, err := openOrderData(c.transactionKey, encrypted)
	if err != nil {
		return err
	}
	c.response.Data = data
	c.logger.Debug("Download complete",
		logging.Field{Key: logging.FieldCount, Value: len(data)})
	return nil
}
