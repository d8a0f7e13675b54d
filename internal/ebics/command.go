package ebics

import (
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/xmldsig"
)

// Command is one EBICS order. The protocol asks it for requests and hands
// every bank answer back to Deserialize; the outcome accumulates in
// Response.
type Command interface {
	OrderType() string
	OrderAttribute() string
	TransactionType() TransactionType

	// InitRequest returns the Initialisation request, or nil when the
	// order has no Initialisation phase.
	InitRequest() (*Request, error)
	// TransferRequests returns the Transfer requests in segment order.
	TransferRequests() ([]Request, error)
	// ReceiptRequest returns the Receipt request, or nil when the order
	// ends without one.
	ReceiptRequest() (*Request, error)

	Deserialize(payload []byte) (DeserializeResult, error)
	Response() *Response
}

// baseCommand carries what every command shares.
type baseCommand struct {
	cfg       *Config
	orderType string
	logger    logging.Logger
	response  *Response
}

func newBaseCommand(cfg *Config, orderType string, logger logging.Logger) baseCommand {
	return baseCommand{
		cfg:       cfg,
		orderType: orderType,
		logger:    logging.OrDefault(logger).WithField(logging.FieldOrderType, orderType),
		response:  &Response{OrderType: orderType},
	}
}

func (c *baseCommand) OrderType() string   { return c.orderType }
func (c *baseCommand) Response() *Response { return c.response }

func (c *baseCommand) InitRequest() (*Request, error)       { return nil, nil }
func (c *baseCommand) TransferRequests() ([]Request, error) { return nil, nil }
func (c *baseCommand) ReceiptRequest() (*Request, error)    { return nil, nil }

// verify checks the bank's AuthSignature when the bank keys are known.
func (c *baseCommand) verify(payload []byte) error {
	if c.cfg.BankKeys == nil || c.cfg.BankKeys.Authentication == nil {
		return nil
	}
	if err := xmldsig.Verify(payload, c.cfg.BankKeys.Authentication); err != nil {
		return &SignatureError{Reason: "bank AuthSignature", Err: err}
	}
	return nil
}

// deserializeTransaction verifies and decodes an ebicsResponse and records
// its return codes.
func (c *baseCommand) deserializeTransaction(payload []byte) (decoded, error) {
	if err := c.verify(payload); err != nil {
		return decoded{}, err
	}
	d, err := decodeTransactionResponse(payload)
	if err != nil {
		return decoded{}, err
	}
	c.response.update(d.result)
	return d, nil
}

// receipt builds the positive acknowledgement that closes a download.
func (c *baseCommand) receipt(transactionID string) (*Request, error) {
	if err := c.cfg.requireUserKeys(); err != nil {
		return nil, err
	}
	doc, root := newDocument("ebicsRequest")
	transactionHeader(root, c.cfg.HostID, transactionID, PhaseReceipt)
	body := root.CreateElement("body")
	r := body.CreateElement("TransferReceipt")
	r.CreateAttr("authenticate", "true")
	text(r, "ReceiptCode", "0")

	data, err := signAndSerialize(doc, c.cfg.UserKeys.Authentication)
	if err != nil {
		return nil, err
	}
	return &Request{Document: data}, nil
}
