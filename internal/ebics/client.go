package ebics

import (
	"bytes"
	"context"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/swift"
)

// Client runs orders for one subscriber. It is not safe for concurrent use:
// an EBICS dialog is sequential.
type Client struct {
	cfg      *Config
	protocol *Protocol
	logger   logging.Logger
}

// NewClient creates a client. A nil transport posts to cfg.URL.
func NewClient(cfg *Config, transport Transport, logger logging.Logger) *Client {
	logger = logging.OrDefault(logger).WithField(logging.FieldHostID, cfg.HostID)
	if transport == nil {
		transport = NewHTTPTransport(cfg.URL, cfg.Timeout, logger)
	}
	return &Client{
		cfg:      cfg,
		protocol: NewProtocol(transport, StructureValidator{}, logger),
		logger:   logger,
	}
}

// Config returns the client's configuration, including bank keys learnt by HPB.
func (c *Client) Config() *Config { return c.cfg }

// Run sends cmd and returns its response. A bank-level failure is not an
// error; check Response.OK.
func (c *Client) Run(ctx context.Context, cmd Command) (*Response, error) {
	if err := c.protocol.Send(ctx, cmd); err != nil {
		return cmd.Response(), err
	}
	resp := cmd.Response()
	fields := []logging.Field{
		{Key: logging.FieldOrderType, Value: resp.OrderType},
		{Key: logging.FieldTechCode, Value: ReturnCodeText(resp.TechnicalReturnCode)},
		{Key: logging.FieldBusCode, Value: ReturnCodeText(resp.BusinessReturnCode)},
	}
	if resp.OK() {
		c.logger.Info("Order completed", fields...)
	} else {
		c.logger.Warn("Order rejected by bank", fields...)
	}
	return resp, nil
}

// Order resolves params to a command and runs it.
func (c *Client) Order(ctx context.Context, params OrderParams) (*Response, error) {
	cmd, err := NewCommand(c.cfg, params, c.logger)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, cmd)
}

// INI sends the signature key.
func (c *Client) INI(ctx context.Context) (*Response, error) {
	return c.Order(ctx, KeyManagementParams{OrderType: OrderINI})
}

// HIA sends the authentication and encryption keys.
func (c *Client) HIA(ctx context.Context) (*Response, error) {
	return c.Order(ctx, KeyManagementParams{OrderType: OrderHIA})
}

// HPB fetches the bank keys and installs them in the client configuration.
func (c *Client) HPB(ctx context.Context) (*Response, error) {
	resp, err := c.Order(ctx, KeyManagementParams{OrderType: OrderHPB})
	if err != nil {
		return resp, err
	}
	if resp.BankKeys != nil {
		c.cfg.BankKeys = resp.BankKeys
	}
	return resp, nil
}

// Download runs a download order.
func (c *Client) Download(ctx context.Context, orderType string, from, to time.Time) (*Response, error) {
	return c.Order(ctx, DateRangeParams{OrderType: orderType, From: from, To: to})
}

// STA downloads MT940 statements.
func (c *Client) STA(ctx context.Context, from, to time.Time) (*Response, error) {
	return c.Download(ctx, OrderSTA, from, to)
}

// VMK downloads MT942 intraday statements.
func (c *Client) VMK(ctx context.Context, from, to time.Time) (*Response, error) {
	return c.Download(ctx, OrderVMK, from, to)
}

// C52 downloads camt.052 account reports.
func (c *Client) C52(ctx context.Context, from, to time.Time) (*Response, error) {
	return c.Download(ctx, OrderC52, from, to)
}

// C53 downloads camt.053 statements.
func (c *Client) C53(ctx context.Context, from, to time.Time) (*Response, error) {
	return c.Download(ctx, OrderC53, from, to)
}

// Upload runs an upload order.
func (c *Client) Upload(ctx context.Context, orderType string, data []byte) (*Response, error) {
	return c.Order(ctx, UploadParams{OrderType: orderType, Data: data})
}

// Statements downloads STA (or VMK when intraday is set) and parses the
// result. No statements and a nil error come back when the bank has no data.
func (c *Client) Statements(ctx context.Context, from, to time.Time, intraday bool) ([]*models.Statement, *Response, error) {
	orderType := OrderSTA
	if intraday {
		orderType = OrderVMK
	}
	resp, err := c.Download(ctx, orderType, from, to)
	if err != nil || !resp.OK() || len(resp.Data) == 0 {
		return nil, resp, err
	}
	parser := swift.NewParser(c.logger, swift.WithPending(intraday))
	stmts, err := parser.Parse(bytes.NewReader(resp.Data))
	return stmts, resp, err
}
