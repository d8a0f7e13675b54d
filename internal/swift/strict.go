package swift

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parsererror"
)

// F60 is an opening balance split by the strict reader.
type F60 struct {
	Sign     string
	Date     string
	Currency string
	Balance  string
}

var f60Pattern = regexp.MustCompile(`^([CD])([0-9]{6})([A-Z]{3})(.*)$`)

// ParseF60 splits an opening balance without interpreting the amount.
func ParseF60(tag, operand string) (F60, error) {
	m := f60Pattern.FindStringSubmatch(operand)
	if m == nil {
		return F60{}, &parsererror.MalformedFieldError{Tag: tag, Value: operand, Reason: "expected <C|D><YYMMDD><currency><amount>"}
	}
	return F60{Sign: m[1], Date: m[2], Currency: m[3], Balance: m[4]}, nil
}

// MT940Record is one end of day statement message read by ReadMT940.
type MT940Record struct {
	TRN             string
	RelatedRef      string
	Account         string
	StatementNumber string
	SequenceNumber  string
	Opening         *F60
	ClosingTag      string
	Closing         string
	Lines           []F61
	Details         []F86
}

// MT942Record is one intraday message read by ReadMT942.
type MT942Record struct {
	TRN             string
	Account         string
	StatementNumber string
	SequenceNumber  string
	Created         *F13D
	Debits          *F90
	Credits         *F90
	FloorLimits     []F34F
	Lines           []F61
	Details         []F86
}

// ReadMT940 reads MT940 messages with the strict grammar: every tag must
// belong to the message type and every statement line needs its details.
// Records without a reference (20) or an account (25) are logged and
// skipped. A nil logger uses the process-wide one.
func ReadMT940(r io.Reader, logger logging.Logger) ([]MT940Record, error) {
	logger = logging.OrDefault(logger)
	var out []MT940Record
	rec := &MT940Record{}
	seen := false

	flush := func() error {
		if seen {
			switch missing := missingHeader(rec.TRN, rec.Account); {
			case missing != "":
				skipRecord(logger, "MT940", rec.TRN, missing)
			default:
				if err := checkDetails("MT940", len(rec.Lines), len(rec.Details)); err != nil {
					return err
				}
				out = append(out, *rec)
			}
		}
		rec, seen = &MT940Record{}, false
		return nil
	}

	err := readRecords(r, func(tag, operand string) error {
		if tag == "" {
			return flush()
		}
		seen = true
		switch tag {
		case "20":
			rec.TRN = operand
		case "21":
			rec.RelatedRef = operand
		case "25":
			rec.Account = operand
		case "28C":
			f := ParseF28C(operand)
			rec.StatementNumber, rec.SequenceNumber = f.StatementNumber, f.SequenceNumber
		case "60F", "60M":
			f, err := ParseF60(tag, operand)
			if err != nil {
				return err
			}
			rec.Opening = &f
		case "61":
			f, err := ParseF61(operand)
			if err != nil {
				return err
			}
			rec.Lines = append(rec.Lines, f)
		case "86":
			f, err := ParseF86(operand)
			if err != nil {
				return err
			}
			rec.Details = append(rec.Details, f)
		case "62F", "62M":
			rec.ClosingTag, rec.Closing = tag, operand
		default:
			return &parsererror.UnknownTagError{Format: "MT940", Tag: tag, Value: operand}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadMT942 reads MT942 messages with the strict grammar. Incomplete
// records are skipped as in ReadMT940.
func ReadMT942(r io.Reader, logger logging.Logger) ([]MT942Record, error) {
	logger = logging.OrDefault(logger)
	var out []MT942Record
	rec := &MT942Record{}
	seen := false

	flush := func() error {
		if seen {
			switch missing := missingHeader(rec.TRN, rec.Account); {
			case missing != "":
				skipRecord(logger, "MT942", rec.TRN, missing)
			default:
				if err := checkDetails("MT942", len(rec.Lines), len(rec.Details)); err != nil {
					return err
				}
				out = append(out, *rec)
			}
		}
		rec, seen = &MT942Record{}, false
		return nil
	}

	err := readRecords(r, func(tag, operand string) error {
		if tag == "" {
			return flush()
		}
		seen = true
		switch tag {
		case "20":
			rec.TRN = operand
		case "25":
			rec.Account = operand
		case "28C":
			f := ParseF28C(operand)
			rec.StatementNumber, rec.SequenceNumber = f.StatementNumber, f.SequenceNumber
		case "61":
			f, err := ParseF61(operand)
			if err != nil {
				return err
			}
			rec.Lines = append(rec.Lines, f)
		case "86":
			f, err := ParseF86(operand)
			if err != nil {
				return err
			}
			rec.Details = append(rec.Details, f)
		case "34F":
			f, err := ParseF34F(operand)
			if err != nil {
				return err
			}
			rec.FloorLimits = append(rec.FloorLimits, f)
		case "13D":
			f, err := ParseF13D(operand)
			if err != nil {
				return err
			}
			rec.Created = &f
		case "90D", "90C":
			f, err := ParseF90(tag, operand)
			if err != nil {
				return err
			}
			if tag == "90D" {
				rec.Debits = &f
			} else {
				rec.Credits = &f
			}
		default:
			return &parsererror.UnknownTagError{Format: "MT942", Tag: tag, Value: operand}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func missingHeader(trn, account string) string {
	switch {
	case trn == "":
		return "transaction reference (20)"
	case account == "":
		return "account (25)"
	}
	return ""
}

func skipRecord(logger logging.Logger, format, trn, missing string) {
	logger.WithFields(
		logging.Field{Key: "format", Value: format},
		logging.Field{Key: "reference", Value: trn},
	).Warn("Skipping record without " + missing)
}

func checkDetails(format string, lines, details int) error {
	if lines != details {
		return &parsererror.ValidationError{
			FilePath: format,
			Reason:   fmt.Sprintf("%d statement lines (61) but %d detail fields (86)", lines, details),
		}
	}
	return nil
}

// readRecords joins continuation lines onto their tag line and calls fn for
// each field. A blank line or a lone "-" ends a record and is reported as
// an empty tag. Lines before the first tag are skipped.
func readRecords(r io.Reader, fn func(tag, operand string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanAnyLines)

	prev := ""
	started := false
	emit := func(line string) error {
		if line == "" {
			return fn("", "")
		}
		tag, operand, err := splitTagLine(line)
		if err != nil {
			return err
		}
		return fn(tag, operand)
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "-" {
			line = ""
		}
		if !started {
			if !strings.HasPrefix(line, ":") {
				continue
			}
			prev, started = line, true
			continue
		}
		if line == "" || strings.HasPrefix(line, ":") {
			if err := emit(prev); err != nil {
				return err
			}
			prev = line
			continue
		}
		prev += line
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading statement: %w", err)
	}
	if started {
		return emit(prev)
	}
	return nil
}

func splitTagLine(line string) (string, string, error) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 || parts[1] == "" {
		return "", "", &parsererror.MalformedFieldError{Tag: "?", Value: line, Reason: "expected :<tag>:<value>"}
	}
	return strings.ToUpper(parts[1]), parts[2], nil
}

// ToStatement converts the record into the statement model used by the
// lenient parser.
func (r MT940Record) ToStatement() (*models.Statement, error) {
	stmt := &models.Statement{Type: r.TRN, ID: r.StatementNumber}
	stmt.BankCode, stmt.AccountCode = splitAccount(r.Account)

	if r.Opening != nil {
		start, err := ParseBalance("60F", r.Opening.Sign+r.Opening.Date+r.Opening.Currency+r.Opening.Balance)
		if err != nil {
			return nil, err
		}
		stmt.Currency = start.Money.Currency
		stmt.StartBalance = start.Signed()
		stmt.StartDate = start.Date
	}
	if r.Closing != "" {
		end, err := ParseBalance(r.ClosingTag, r.Closing)
		if err != nil {
			return nil, err
		}
		stmt.EndBalance = end.Signed()
		stmt.EndDate = end.Date
	}

	txs, err := pairTransactions(r.Lines, r.Details)
	if err != nil {
		return nil, err
	}
	stmt.Transactions = txs
	stmt.Finalize(false)
	return stmt, nil
}

// ToStatement converts the record into a pending statement.
func (r MT942Record) ToStatement() (*models.Statement, error) {
	stmt := &models.Statement{Type: r.TRN, ID: r.StatementNumber}
	stmt.BankCode, stmt.AccountCode = splitAccount(r.Account)

	for _, limit := range r.FloorLimits {
		stmt.Currency = limit.Currency
		switch limit.Mark {
		case models.MarkCredit:
			stmt.SmallestCreditAmount = limit.Limit
		case models.MarkDebit:
			stmt.SmallestAmount = limit.Limit.Neg()
		default:
			stmt.SmallestAmount = limit.Limit
		}
	}
	if r.Created != nil {
		ts, err := r.Created.Timestamp()
		if err != nil {
			return nil, err
		}
		stmt.CreationDate = ts
	}
	if r.Debits != nil {
		stmt.CountDebit = r.Debits.Count
		stmt.AmountDebit = r.Debits.Amount.Neg()
		if stmt.Currency == "" {
			stmt.Currency = r.Debits.Currency
		}
	}
	if r.Credits != nil {
		stmt.CountCredit = r.Credits.Count
		stmt.AmountCredit = r.Credits.Amount
		if stmt.Currency == "" {
			stmt.Currency = r.Credits.Currency
		}
	}

	txs, err := pairTransactions(r.Lines, r.Details)
	if err != nil {
		return nil, err
	}
	stmt.Transactions = txs
	stmt.Finalize(true)
	return stmt, nil
}

func splitAccount(account string) (string, string) {
	bank, acct, found := strings.Cut(account, "/")
	if !found {
		return "", account
	}
	return bank, trimLeadingZeros(acct)
}

func pairTransactions(lines []F61, details []F86) ([]*models.Transaction, error) {
	if len(lines) != len(details) {
		return nil, &parsererror.ValidationError{
			FilePath: "statement",
			Reason:   fmt.Sprintf("%d statement lines (61) but %d detail fields (86)", len(lines), len(details)),
		}
	}
	txs := make([]*models.Transaction, 0, len(lines))
	for i, line := range lines {
		tx, err := line.Transaction()
		if err != nil {
			return nil, err
		}
		d := details[i]
		tx.TypeCode = d.TransactionCode
		tx.Text = d.PostingText
		tx.Primanota = d.JournalNumber
		tx.Description = d.Description()
		tx.BankCode = d.BIC
		tx.AccountCode = d.IBAN
		tx.PartnerName = d.PayerName
		tx.TextKeyAddition = d.SepaCode
		txs = append(txs, tx)
	}
	return txs, nil
}

// Transaction interprets the split statement line. Debits and reversed
// credits are negative.
func (f F61) Transaction() (*models.Transaction, error) {
	value, err := parseYYMMDD("61", f.ValueDate, true)
	if err != nil {
		return nil, err
	}
	entry, err := entryDate("61", f.EntryDate, value)
	if err != nil {
		return nil, err
	}
	amount, err := models.ParseSwiftAmount(f.Amount)
	if err != nil {
		return nil, &parsererror.MalformedFieldError{Tag: "61", Value: f.Amount, Reason: "invalid amount", Err: err}
	}
	switch f.DebitCredit {
	case models.MarkDebit:
		amount = amount.Neg()
	case models.MarkCredit:
	default:
		return nil, &parsererror.MalformedFieldError{Tag: "61", Value: f.DebitCredit, Reason: "debit/credit mark must be C or D"}
	}
	return &models.Transaction{
		ValueDate:         value,
		InputDate:         entry,
		Amount:            amount,
		TransactionTypeID: f.TrxCode,
		CustomerReference: f.RefAccount,
		BankReference:     f.SrvAccount,
		OtherInformation:  f.Supplementary,
	}, nil
}
