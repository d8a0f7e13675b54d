package ebics

import (
	"context"
	"fmt"

	"fjacquet/ebics-mt940/internal/logging"
)

// MaxRecoverySync is the number of recovery synchronisations one
// transaction may go through.
const MaxRecoverySync = 3

type state int

const (
	stateInit state = iota
	stateTransferUpload
	stateTransferDownload
	stateReceipt
	stateTerminal
)

func (s state) String() string {
	return [...]string{"Init", "TransferUpload", "TransferDownload", "Receipt", "Terminal"}[s]
}

// Protocol drives commands through an EBICS transaction.
type Protocol struct {
	transport Transport
	validator Validator
	logger    logging.Logger
}

// NewProtocol creates a protocol driver. A nil validator disables request
// validation.
func NewProtocol(transport Transport, validator Validator, logger logging.Logger) *Protocol {
	return &Protocol{
		transport: transport,
		validator: validator,
		logger:    logging.OrDefault(logger),
	}
}

// transaction is one Send call.
type transaction struct {
	p      *Protocol
	cmd    Command
	logger logging.Logger
}

// Send runs cmd to completion. Bank-level failures end the transaction
// normally and are reported through cmd.Response(); the returned error is
// reserved for protocol failures.
func (p *Protocol) Send(ctx context.Context, cmd Command) error {
	t := &transaction{
		p:      p,
		cmd:    cmd,
		logger: p.logger.WithField(logging.FieldOrderType, cmd.OrderType()),
	}
	st, tc := stateInit, TransactionContext{}
	for st != stateTerminal {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.logger.Debug("Transaction step",
			logging.Field{Key: logging.FieldState, Value: st.String()},
			logging.Field{Key: logging.FieldSegment, Value: tc.SegmentNumber},
			logging.Field{Key: logging.FieldNumSegments, Value: tc.NumSegments})

		var err error
		st, tc, err = t.step(ctx, st, tc)
		if err != nil {
			return err
		}
	}
	t.logger.Debug("Transaction finished",
		logging.Field{Key: logging.FieldTechCode, Value: tc.TechnicalReturnCode},
		logging.Field{Key: logging.FieldBusCode, Value: tc.BusinessReturnCode})
	return nil
}

// step is the transition function of the state machine.
func (t *transaction) step(ctx context.Context, st state, tc TransactionContext) (state, TransactionContext, error) {
	switch st {
	case stateInit:
		return t.init(ctx, tc)
	case stateTransferUpload:
		return t.transferUpload(ctx, tc)
	case stateTransferDownload:
		return t.transferDownload(ctx, tc)
	case stateReceipt:
		return t.receipt(ctx, tc)
	default:
		return stateTerminal, tc, nil
	}
}

func (t *transaction) init(ctx context.Context, tc TransactionContext) (state, TransactionContext, error) {
	req, err := t.cmd.InitRequest()
	if err != nil {
		return stateTerminal, tc, t.createError(err)
	}
	if req != nil {
		if t.p.validator != nil {
			if err := t.p.validator.Validate(req.Document); err != nil {
				return stateTerminal, tc, err
			}
		}
		dr, err := t.exchange(ctx, req)
		if err != nil {
			return stateTerminal, tc, err
		}
		tc = tc.apply(dr)
		if dr.HasError() {
			t.logBankError(dr)
			return stateTerminal, tc, nil
		}
		if sync, err := t.recoverySync(&tc, dr); sync || err != nil {
			return stateInit, tc, err
		}
	}

	switch t.cmd.TransactionType() {
	case Upload:
		return stateTransferUpload, tc, nil
	case Download:
		return stateTransferDownload, tc, nil
	default:
		return stateTerminal, tc, nil
	}
}

func (t *transaction) transferUpload(ctx context.Context, tc TransactionContext) (state, TransactionContext, error) {
	tc, err := t.fetchRequests(tc, false)
	if err != nil {
		return stateTerminal, tc, err
	}
	if len(tc.requests) == 0 || tc.SegmentIndex >= len(tc.requests) {
		return stateTerminal, tc, nil
	}

	req := tc.requests[tc.SegmentIndex]
	dr, err := t.exchange(ctx, &req)
	if err != nil {
		return stateTerminal, tc, err
	}
	tc = tc.apply(dr)
	if dr.HasError() {
		t.logBankError(dr)
		return stateTerminal, tc, nil
	}
	if dr.LastSegment && !dr.IsRecoverySync() {
		return stateTerminal, tc, nil
	}

	sync, err := t.recoverySync(&tc, dr)
	switch {
	case err != nil:
		return stateTerminal, tc, err
	case sync:
		if tc, err = t.fetchRequests(tc, true); err != nil {
			return stateTerminal, tc, err
		}
		// the bank reports the last segment it accepted; resume with the next one
		tc.SegmentIndex = clamp(tc.SegmentNumber, 0, len(tc.requests)-1)
		return stateTransferUpload, tc, nil
	case tc.SegmentIndex < len(tc.requests)-1:
		tc.SegmentIndex++
		return stateTransferUpload, tc, nil
	default:
		return stateTerminal, tc, nil
	}
}

func (t *transaction) transferDownload(ctx context.Context, tc TransactionContext) (state, TransactionContext, error) {
	tc, err := t.fetchRequests(tc, false)
	if err != nil {
		return stateTerminal, tc, err
	}
	if tc.LastSegment {
		return stateReceipt, tc, nil
	}

	// the next request is the one for the segment after the last received
	idx := -1
	for i, r := range tc.requests {
		if r.SegmentNumber == tc.SegmentNumber+1 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return stateReceipt, tc, nil
	}
	tc.SegmentIndex = idx

	req := tc.requests[idx]
	dr, err := t.exchange(ctx, &req)
	if err != nil {
		return stateTerminal, tc, err
	}
	tc = tc.apply(dr)
	if dr.HasError() {
		t.logBankError(dr)
		return stateTerminal, tc, nil
	}

	sync, err := t.recoverySync(&tc, dr)
	switch {
	case err != nil:
		return stateTerminal, tc, err
	case sync:
		tc.LastSegment = false
		tc, err = t.fetchRequests(tc, true)
		return stateTransferDownload, tc, err
	case dr.LastSegment:
		return stateReceipt, tc, nil
	default:
		return stateTransferDownload, tc, nil
	}
}

func (t *transaction) receipt(ctx context.Context, tc TransactionContext) (state, TransactionContext, error) {
	req, err := t.cmd.ReceiptRequest()
	if err != nil {
		return stateTerminal, tc, t.createError(err)
	}
	if req == nil {
		return stateTerminal, tc, nil
	}
	dr, err := t.exchange(ctx, req)
	if err != nil {
		return stateTerminal, tc, err
	}
	tc = tc.apply(dr)
	if sync, err := t.recoverySync(&tc, dr); sync || err != nil {
		return stateReceipt, tc, err
	}
	if dr.HasError() {
		t.logBankError(dr)
	}
	return stateTerminal, tc, nil
}

// fetchRequests loads the command's transfer requests once, or again when
// refresh is set.
func (t *transaction) fetchRequests(tc TransactionContext, refresh bool) (TransactionContext, error) {
	if tc.requestsFetched && !refresh {
		return tc, nil
	}
	reqs, err := t.cmd.TransferRequests()
	if err != nil {
		return tc, t.createError(err)
	}
	tc.requests = reqs
	tc.requestsFetched = true
	return tc, nil
}

// recoverySync counts a recovery sync answer against the transaction-wide
// bound. It reports whether dr was a sync and fails once the bound is spent.
func (t *transaction) recoverySync(tc *TransactionContext, dr DeserializeResult) (bool, error) {
	if !dr.IsRecoverySync() {
		return false, nil
	}
	if tc.RecoverySyncCount >= MaxRecoverySync {
		return true, &RecoverySyncError{OrderType: t.cmd.OrderType(), Attempts: tc.RecoverySyncCount + 1}
	}
	tc.RecoverySyncCount++
	t.logger.Warn("Recovery sync requested by bank",
		logging.Field{Key: logging.FieldSegment, Value: dr.SegmentNumber},
		logging.Field{Key: logging.FieldCount, Value: tc.RecoverySyncCount})
	return true, nil
}

func (t *transaction) exchange(ctx context.Context, req *Request) (DeserializeResult, error) {
	payload, err := t.p.transport.Send(ctx, req.Document)
	if err != nil {
		return DeserializeResult{}, fmt.Errorf("send %s request: %w", t.cmd.OrderType(), err)
	}
	dr, err := t.cmd.Deserialize(payload)
	if err != nil {
		return dr, &DeserializationError{OrderType: t.cmd.OrderType(), Err: err}
	}
	if isWarningCode(dr.TechnicalReturnCode) || isWarningCode(dr.BusinessReturnCode) {
		t.logger.Warn("Bank returned a warning",
			logging.Field{Key: logging.FieldPhase, Value: dr.Phase.String()},
			logging.Field{Key: logging.FieldTechCode, Value: ReturnCodeText(dr.TechnicalReturnCode)},
			logging.Field{Key: logging.FieldBusCode, Value: ReturnCodeText(dr.BusinessReturnCode)})
	}
	return dr, nil
}

func (t *transaction) createError(err error) error {
	return &CreateRequestError{OrderType: t.cmd.OrderType(), Err: err}
}

func (t *transaction) logBankError(dr DeserializeResult) {
	t.logger.Warn("Bank returned an error",
		logging.Field{Key: logging.FieldPhase, Value: dr.Phase.String()},
		logging.Field{Key: logging.FieldTechCode, Value: ReturnCodeText(dr.TechnicalReturnCode)},
		logging.Field{Key: logging.FieldBusCode, Value: ReturnCodeText(dr.BusinessReturnCode)},
		logging.Field{Key: "report", Value: dr.ReportText})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
