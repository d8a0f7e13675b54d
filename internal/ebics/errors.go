package ebics

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOrderType is returned by NewCommand for order types without a command.
var ErrUnsupportedOrderType = errors.New("unsupported order type")

// ErrMissingKeys is returned when an order needs key material that is not configured.
var ErrMissingKeys = errors.New("missing key material")

// CreateRequestError is returned when a command cannot build a request.
type CreateRequestError struct {
	OrderType string
	Err       error
}

func (e *CreateRequestError) Error() string {
	return fmt.Sprintf("can't create %s request: %v", e.OrderType, e.Err)
}

func (e *CreateRequestError) Unwrap() error { return e.Err }

// DeserializationError is returned when a bank response cannot be decoded.
type DeserializationError struct {
	OrderType string
	Err       error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("can't deserialize %s response: %v", e.OrderType, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// RecoverySyncError is returned once the bank asked for more recovery
// synchronisations than a transaction allows.
type RecoverySyncError struct {
	OrderType string
	Attempts  int
}

func (e *RecoverySyncError) Error() string {
	return fmt.Sprintf("recovery sync failed for %s after %d attempts", e.OrderType, e.Attempts)
}

// ConnectionError wraps transport failures and non-200 HTTP answers.
type ConnectionError struct {
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error: %v", e.Err)
	}
	return fmt.Sprintf("connection error: got http status code %d", e.StatusCode)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaValidationError is returned when a request fails structural validation.
type SchemaValidationError struct {
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return "schema validation failed: " + e.Reason
}

// SignatureError is returned when a response signature does not verify.
type SignatureError struct {
	Reason string
	Err    error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signature error: %s: %v", e.Reason, e.Err)
	}
	return "signature error: " + e.Reason
}

func (e *SignatureError) Unwrap() error { return e.Err }
