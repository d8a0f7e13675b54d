package ebics

import (
	"fmt"
	"sort"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
)

// OrderParams describes an order to run. The set of implementations is
// closed: DateRangeParams, UploadParams and KeyManagementParams.
type OrderParams interface {
	orderType() string
	isOrderParams()
}

// DateRangeParams selects a download. A zero From or To omits the range.
type DateRangeParams struct {
	OrderType string
	From, To  time.Time
}

// UploadParams carries the order data of an upload.
type UploadParams struct {
	OrderType string
	Data      []byte
}

// KeyManagementParams selects INI, HIA or HPB.
type KeyManagementParams struct {
	OrderType string
}

func (p DateRangeParams) orderType() string     { return p.OrderType }
func (p UploadParams) orderType() string        { return p.OrderType }
func (p KeyManagementParams) orderType() string { return p.OrderType }

func (DateRangeParams) isOrderParams()     {}
func (UploadParams) isOrderParams()        {}
func (KeyManagementParams) isOrderParams() {}

type commandFactory func(cfg *Config, p OrderParams, logger logging.Logger) (Command, error)

func downloadFactory(cfg *Config, p OrderParams, logger logging.Logger) (Command, error) {
	dp, ok := p.(DateRangeParams)
	if !ok {
		return nil, fmt.Errorf("%s needs DateRangeParams, got %T", p.orderType(), p)
	}
	return NewDownloadCommand(cfg, dp.OrderType, dp.From, dp.To, logger), nil
}

func uploadFactory(cfg *Config, p OrderParams, logger logging.Logger) (Command, error) {
	up, ok := p.(UploadParams)
	if !ok {
		return nil, fmt.Errorf("%s needs UploadParams, got %T", p.orderType(), p)
	}
	return NewUploadCommand(cfg, up.OrderType, up.Data, logger)
}

func keyManagementFactory(build func(*Config, logging.Logger) Command) commandFactory {
	return func(cfg *Config, _ OrderParams, logger logging.Logger) (Command, error) {
		return build(cfg, logger), nil
	}
}

var registry = map[string]commandFactory{
	OrderSTA: downloadFactory,
	OrderVMK: downloadFactory,
	OrderC52: downloadFactory,
	OrderC53: downloadFactory,
	OrderC54: downloadFactory,
	OrderHAA: downloadFactory,
	OrderHTD: downloadFactory,
	OrderHKD: downloadFactory,
	OrderPTK: downloadFactory,

	OrderCCT: uploadFactory,
	OrderCDD: uploadFactory,
	OrderCDB: uploadFactory,
	OrderXE2: uploadFactory,

	OrderINI: keyManagementFactory(NewINICommand),
	OrderHIA: keyManagementFactory(NewHIACommand),
	OrderHPB: keyManagementFactory(func(cfg *Config, logger logging.Logger) Command {
		return NewHPBCommand(cfg, logger)
	}),
}

// NewCommand resolves params to its command. Upload params with an order
// type outside the registry still get a generic upload.
func NewCommand(cfg *Config, params OrderParams, logger logging.Logger) (Command, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: no params", ErrUnsupportedOrderType)
	}
	if f, ok := registry[params.orderType()]; ok {
		return f(cfg, params, logger)
	}
	if _, ok := params.(UploadParams); ok {
		return uploadFactory(cfg, params, logger)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, params.orderType())
}

// SupportedOrderTypes lists the order types NewCommand knows.
func SupportedOrderTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
