// Package ebics implements the client side of EBICS H004: order commands,
// the request builders and the transaction state machine that drives a
// command through its Initialisation, Transfer and Receipt phases.
package ebics

import (
	"fmt"

	"fjacquet/ebics-mt940/internal/envelope"
)

// Phase is the EBICS transaction phase.
type Phase int

const (
	PhaseInitialisation Phase = iota
	PhaseTransfer
	PhaseReceipt
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialisation:
		return "Initialisation"
	case PhaseTransfer:
		return "Transfer"
	case PhaseReceipt:
		return "Receipt"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase maps the TransactionPhase element text to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "Initialisation":
		return PhaseInitialisation, nil
	case "Transfer":
		return PhaseTransfer, nil
	case "Receipt":
		return PhaseReceipt, nil
	default:
		return 0, fmt.Errorf("unknown transaction phase %q", s)
	}
}

// TransactionType tells whether order data flows to or from the bank.
type TransactionType int

const (
	Upload TransactionType = iota
	Download
)

func (t TransactionType) String() string {
	if t == Download {
		return "Download"
	}
	return "Upload"
}

// Request is one serialized request document. SegmentNumber and LastSegment
// are set on Transfer requests only.
type Request struct {
	Document      []byte
	SegmentNumber int
	LastSegment   bool
}

// DeserializeResult is what a command reports back to the state machine
// after decoding a response.
type DeserializeResult struct {
	TechnicalReturnCode int
	BusinessReturnCode  int
	Phase               Phase
	TransactionID       string
	SegmentNumber       int
	NumSegments         int
	LastSegment         bool
	ReportText          string
}

// IsRecoverySync reports whether the bank asked to resynchronise the transaction.
func (r DeserializeResult) IsRecoverySync() bool {
	return r.TechnicalReturnCode == CodeRecoverySync
}

// HasError reports whether the response carries a return code that ends the
// transaction. Recovery sync is not an error, and neither are the note
// (01xxxx) and warning (03xxxx) classes such as EBICS_ORDER_PARAMS_IGNORED.
func (r DeserializeResult) HasError() bool {
	if r.IsRecoverySync() {
		return false
	}
	return isErrorCode(r.TechnicalReturnCode) || isErrorCode(r.BusinessReturnCode)
}

func isErrorCode(code int) bool {
	return code >= codeErrorClass
}

func isWarningCode(code int) bool {
	return code >= codeWarningClass && code < codeErrorClass
}

// Response is the caller-visible outcome of an order. Bank-level failures are
// reported here through the return codes, never as Go errors.
type Response struct {
	OrderType           string
	TechnicalReturnCode int
	BusinessReturnCode  int
	ReportText          string
	TransactionID       string

	// Data holds the decrypted, inflated order data of a download.
	Data []byte
	// BankKeys is set by a successful HPB.
	BankKeys *envelope.BankKeys
}

// OK reports whether both return codes signal success.
func (r *Response) OK() bool {
	dr := DeserializeResult{
		TechnicalReturnCode: r.TechnicalReturnCode,
		BusinessReturnCode:  r.BusinessReturnCode,
	}
	return !dr.HasError()
}

func (r *Response) update(dr DeserializeResult) {
	r.TechnicalReturnCode = dr.TechnicalReturnCode
	r.BusinessReturnCode = dr.BusinessReturnCode
	r.ReportText = dr.ReportText
	if dr.TransactionID != "" {
		r.TransactionID = dr.TransactionID
	}
}

// TransactionContext is the progress of one Send call. The state machine
// passes it by value and each step returns an updated copy.
type TransactionContext struct {
	Phase               Phase
	NumSegments         int
	SegmentIndex        int
	SegmentNumber       int
	LastSegment         bool
	TransactionID       string
	TechnicalReturnCode int
	BusinessReturnCode  int
	RecoverySyncCount   int

	requests        []Request
	requestsFetched bool
}

// apply records the bank's answer. The transaction id is kept from the first
// response that carries one.
func (tc TransactionContext) apply(dr DeserializeResult) TransactionContext {
	tc.BusinessReturnCode = dr.BusinessReturnCode
	tc.TechnicalReturnCode = dr.TechnicalReturnCode
	tc.LastSegment = dr.LastSegment
	tc.NumSegments = dr.NumSegments
	tc.SegmentNumber = dr.SegmentNumber
	tc.Phase = dr.Phase
	if tc.TransactionID == "" {
		tc.TransactionID = dr.TransactionID
	}
	return tc
}
