package swift

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parsererror"
)

// ErrInvalidAmount marks an opening balance whose amount could not be read.
// The statement is still processed with a zero start balance.
var ErrInvalidAmount = errors.New("invalid balance amount")

// State is the accumulator's fold state. Current is nil while no statement
// is open. Previous is the last statement that was closed.
type State struct {
	Current  *models.Statement
	Previous *models.Statement

	// held is a statement closed by 90D. It is emitted on the next tag so a
	// directly following 90C can still add the credit summary.
	held *models.Statement
}

// Accumulator folds TagLines into statements.
type Accumulator struct {
	pending bool
	logger  logging.Logger
}

// NewAccumulator returns an accumulator. With pending set every emitted
// statement is flagged as an intraday (MT942) statement.
func NewAccumulator(logger logging.Logger, pending bool) *Accumulator {
	return &Accumulator{pending: pending, logger: logging.OrDefault(logger)}
}

// Step applies one TagLine and returns the new state with the statements
// that were completed by it.
func (a *Accumulator) Step(s State, line TagLine) (State, []*models.Statement, error) {
	var out []*models.Statement

	if s.held != nil {
		held := s.held
		s.held = nil
		if line.Tag == "90C" && s.Current == nil {
			if err := applyF90(held, line); err != nil {
				return s, nil, err
			}
			return s, []*models.Statement{held}, nil
		}
		out = append(out, held)
	}

	if s.Current != nil {
		s.Current.AddLine(line.Tag, line.Value)
	}

	tag, data := line.Tag, line.Value
	switch {
	case tag == "OS", tag == "64", tag == "65":

	case tag == "20":
		if s.Current == nil {
			s.Current = &models.Statement{Type: data}
			s.Current.AddLine(tag, data)
		}

	case tag == "25":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		if bank, account, found := strings.Cut(data, "/"); found {
			stmt.BankCode = bank
			stmt.AccountCode = trimLeadingZeros(account)
		}

	case strings.HasPrefix(tag, "60"):
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		if err := a.applyOpeningBalance(stmt, line); err != nil {
			return s, out, err
		}

	case tag == "28C":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		if len(stmt.Transactions) == 0 {
			if number, _, found := strings.Cut(data, "/"); found {
				stmt.ID = number
			} else {
				// realtime statement; some savings banks send 0/1 for real ones
				stmt.ID = ""
			}
		}

	case tag == "61":
		if s.Current == nil {
			s.Current = &models.Statement{}
			s.Current.AddLine(tag, data)
		}
		tx, err := ScanStatementLine(data)
		if err != nil {
			return s, out, err
		}
		s.Current.Transactions = append(s.Current.Transactions, tx)
		s.Current.EndBalance = s.Current.EndBalance.Add(tx.Amount)

	case tag == "86":
		var tx *models.Transaction
		if s.Current != nil {
			tx = s.Current.LastTransaction()
		}
		if tx == nil {
			return s, out, &parsererror.MalformedFieldError{Tag: tag, Value: data, Reason: "no statement line to attach to"}
		}
		if err := applyF86(tx, data); err != nil {
			return s, out, err
		}

	case strings.HasPrefix(tag, "62"):
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		closed, err := applyClosingBalance(stmt, line)
		if err != nil {
			return s, out, err
		}
		if closed {
			stmt.Finalize(a.pending)
			out = append(out, stmt)
			s.Previous, s.Current = stmt, nil
		}

	case tag == "34F":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		f, err := ParseF34F(data)
		if err != nil {
			return s, out, err
		}
		stmt.Currency = f.Currency
		switch f.Mark {
		case models.MarkCredit:
			stmt.SmallestCreditAmount = f.Limit
		case models.MarkDebit:
			stmt.SmallestAmount = f.Limit.Neg()
		default:
			stmt.SmallestAmount = f.Limit
		}

	case tag == "13":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		if len(data) >= 10 && allDigits(data[:10]) {
			created, err := time.Parse("0601021504", data[:10])
			if err != nil {
				return s, out, &parsererror.MalformedFieldError{Tag: tag, Value: data, Reason: "invalid creation time", Err: err}
			}
			stmt.CreationDate = created
		}

	case tag == "13D":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		created, err := creationTime(data)
		if err != nil {
			return s, out, err
		}
		stmt.CreationDate = created

	case tag == "90D":
		stmt, err := requireOpen(s, line)
		if err != nil {
			return s, out, err
		}
		if err := applyF90(stmt, line); err != nil {
			return s, out, err
		}
		stmt.Finalize(a.pending)
		s.held, s.Previous, s.Current = stmt, stmt, nil

	case tag == "90C":
		if s.Current == nil {
			// the credit summary of a statement that was already emitted
			if s.Previous != nil {
				if err := applyF90(s.Previous, line); err != nil {
					return s, out, err
				}
			}
			break
		}
		stmt := s.Current
		if err := applyF90(stmt, line); err != nil {
			return s, out, err
		}
		stmt.Finalize(a.pending)
		out = append(out, stmt)
		s.Previous, s.Current = stmt, nil

	default:
		a.logger.Debug("Ignoring unknown tag", logging.Field{Key: logging.FieldTag, Value: tag})
	}

	return s, out, nil
}

// Finish flushes a held statement and the statement still open at the end
// of the input.
func (a *Accumulator) Finish(s State) []*models.Statement {
	var out []*models.Statement
	if s.held != nil {
		out = append(out, s.held)
	}
	if s.Current != nil {
		s.Current.Finalize(a.pending)
		out = append(out, s.Current)
	}
	return out
}

func requireOpen(s State, line TagLine) (*models.Statement, error) {
	if s.Current == nil {
		return nil, &parsererror.MalformedFieldError{Tag: line.Tag, Value: line.Value, Reason: "no statement open"}
	}
	return s.Current, nil
}

func (a *Accumulator) applyOpeningBalance(stmt *models.Statement, line TagLine) error {
	fs := NewFixedStr(line.Tag, line.Value)
	mark, err := fs.TakeM(1)
	if err != nil {
		return err
	}
	rawDate, err := fs.TakeM(6)
	if err != nil {
		return err
	}
	date, err := parseYYMMDD(line.Tag, rawDate, false)
	if err != nil {
		return err
	}
	currency, err := fs.TakeM(3)
	if err != nil {
		return err
	}
	stmt.Currency = currency

	amount, err := models.ParseSwiftAmount(fs.Rest())
	if err != nil {
		a.logger.WithError(fmt.Errorf("%w: %v", ErrInvalidAmount, err)).Warn("Invalid opening balance",
			logging.Field{Key: logging.FieldTag, Value: line.Tag})
	} else {
		if mark == models.MarkDebit {
			amount = amount.Neg()
		}
		if line.Tag == "60F" || (line.Tag == "60M" && stmt.StartBalance.IsZero()) {
			stmt.StartBalance = amount
			stmt.EndBalance = amount
		}
	}

	if line.Tag == "60F" || line.Tag == "60M" {
		stmt.StartDate = date
	}
	return nil
}

func applyClosingBalance(stmt *models.Statement, line TagLine) (bool, error) {
	fs := NewFixedStr(line.Tag, line.Value)
	mark, err := fs.TakeM(1)
	if err != nil {
		return false, err
	}
	rawDate, err := fs.TakeM(6)
	if err != nil {
		return false, err
	}
	date, err := parseYYMMDD(line.Tag, rawDate, false)
	if err != nil {
		return false, err
	}

	if fs.Len() > 3 {
		fs.Take(3)
		amount, err := models.ParseSwiftAmount(trimTrailer(fs.Rest()))
		if err != nil {
			return false, fs.malformed("invalid closing balance", err)
		}
		if mark == models.MarkDebit {
			amount = amount.Neg()
		}
		stmt.EndBalance = amount
	}

	if line.Tag == "62F" || line.Tag == "62M" {
		stmt.EndDate = date
		return true, nil
	}
	return false, nil
}

func applyF86(tx *models.Transaction, data string) error {
	f, err := parseFreeF86(data)
	if err != nil {
		return err
	}
	tx.TypeCode = f.TransactionCode
	tx.Text = f.PostingText
	tx.Primanota = f.JournalNumber
	tx.Description += f.Description()
	tx.BankCode = f.BIC
	tx.AccountCode = f.IBAN
	tx.PartnerName += f.PayerName
	tx.TextKeyAddition = f.SepaCode
	return nil
}

func applyF90(stmt *models.Statement, line TagLine) error {
	f, err := ParseF90(line.Tag, line.Value)
	if err != nil {
		return err
	}
	if stmt.Currency == "" {
		stmt.Currency = f.Currency
	}
	if line.Tag == "90D" {
		stmt.CountDebit = f.Count
		stmt.AmountDebit = f.Amount.Neg()
	} else {
		stmt.CountCredit = f.Count
		stmt.AmountCredit = f.Amount
	}
	return nil
}

func creationTime(data string) (time.Time, error) {
	if f, err := ParseF13D(data); err == nil {
		if ts, err := f.Timestamp(); err == nil {
			return ts, nil
		}
	}
	if len(data) >= 6 {
		if d, err := parseYYMMDD("13D", data[:6], false); err == nil {
			return d, nil
		}
	}
	return time.Time{}, &parsererror.MalformedFieldError{Tag: "13D", Value: data, Reason: "invalid creation time"}
}

// trimLeadingZeros drops leading zeros from numeric account numbers and
// leaves IBANs alone.
func trimLeadingZeros(code string) string {
	n, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return code
	}
	return strconv.FormatInt(n, 10)
}
