package swift

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parsererror"

	"github.com/shopspring/decimal"
)

// F61 is a statement line split along its fixed-width grammar.
type F61 struct {
	ValueDate     string
	EntryDate     string
	DebitCredit   string
	FundsCode     string
	Amount        string
	TrxCode       string
	RefAccount    string
	SrvAccount    string
	Supplementary string
}

const maxAmountLen = 15

func isAmountChar(b byte) bool { return isDigit(b) || b == ',' }

// ParseF61 parses field 61 with mandatory widths for the date, mark, funds
// code and transaction code. The amount is the leading run of digits and
// commas, capped at 15 characters.
func ParseF61(operand string) (F61, error) {
	var f F61
	var err error
	fs := NewFixedStr("61", operand)

	if f.ValueDate, err = fs.TakeM(6); err != nil {
		return F61{}, err
	}
	if f.EntryDate, err = fs.TakeM(4); err != nil {
		return F61{}, err
	}
	if f.DebitCredit, err = fs.TakeM(1); err != nil {
		return F61{}, err
	}
	if f.FundsCode, err = fs.TakeM(1); err != nil {
		return F61{}, err
	}
	if f.Amount = fs.TakeWhile(maxAmountLen, isAmountChar); f.Amount == "" {
		if fs.Len() == 0 {
			return F61{}, &parsererror.FieldTooShortError{Tag: "61", Want: 1, Have: 0, Value: operand}
		}
		return F61{}, fs.malformed("missing amount", nil)
	}
	if f.TrxCode, err = fs.TakeM(3); err != nil {
		return F61{}, err
	}

	rest := fs.Rest()
	idx := strings.Index(rest, "//")
	if idx < 0 {
		f.RefAccount = rest
		return f, nil
	}

	ref := NewFixedStr("61", rest)
	f.RefAccount, _ = ref.TakeM(idx)
	if sep, _ := ref.TakeM(2); sep != "//" {
		return F61{}, fs.malformed("reference separator", nil)
	}
	srv := ref.Take(16)
	if crlf := strings.Index(srv, "\r\n"); crlf >= 0 {
		// servicing account ends early; the rest belongs to the supplementary details
		ref = NewFixedStr("61", srv[crlf+2:]+ref.Rest())
		srv = srv[:crlf]
	} else if strings.HasPrefix(ref.Peek(2), "\r\n") {
		ref.Take(2)
	}
	f.SrvAccount = srv
	f.Supplementary = ref.Take(34)
	return f, nil
}

// Subfield is one numbered part of a structured field 86.
type Subfield struct {
	Code  int
	Value string
}

// F86 is structured remittance information.
type F86 struct {
	TransactionCode string
	Separator       byte
	PostingText     string // 00
	JournalNumber   string // 10
	Remittance      []Subfield
	RemInfo         map[string]string
	BIC             string // 30
	IBAN            string // 31
	PayerName       string // 32, 33
	SepaCode        string // 34
}

// ParseF86 parses a structured field 86. Subfield codes 11-19 are reserved
// and ignored; codes outside the grammar fail with UnknownSubfieldError.
func ParseF86(operand string) (F86, error) {
	return parseF86(operand, false)
}

// parseFreeF86 is ParseF86 for free-text remittance lines. A field without a
// numeric transaction code becomes posting text, and chunks without a
// subfield code are appended to the posting text. Unknown numeric codes
// still fail.
func parseFreeF86(operand string) (F86, error) {
	return parseF86(operand, true)
}

func parseF86(operand string, free bool) (F86, error) {
	operand = strings.ReplaceAll(operand, "\r\n", "")
	fs := NewFixedStr("86", operand)

	if free && (len(operand) < 3 || !allDigits(operand[:3])) {
		return F86{PostingText: operand, RemInfo: map[string]string{}}, nil
	}
	code, err := fs.TakeM(3)
	if err != nil {
		return F86{}, err
	}
	f := F86{TransactionCode: code, RemInfo: map[string]string{}}
	if fs.Len() == 0 {
		return f, nil
	}

	rest := fs.Rest()
	f.Separator = rest[0]
	lastRemInfo := ""
	for _, chunk := range strings.Split(rest[1:], string(f.Separator)) {
		if chunk == "" {
			continue
		}
		if len(chunk) < 2 || !allDigits(chunk[:2]) {
			if free {
				f.PostingText = joinText(f.PostingText, chunk)
				continue
			}
			return F86{}, &parsererror.MalformedFieldError{
				Tag: "86", Value: operand, Reason: fmt.Sprintf("subfield '%s' has no numeric code", chunk),
			}
		}
		fno, _ := strconv.Atoi(chunk[:2])
		value := chunk[2:]

		switch {
		case fno == 0:
			f.PostingText = joinText(f.PostingText, value)
		case fno == 10:
			f.JournalNumber = value
		case fno >= 11 && fno <= 19:
		case fno >= 20 && fno <= 29, fno >= 60 && fno <= 63:
			f.Remittance = append(f.Remittance, Subfield{Code: fno, Value: value})
			if key, val, ok := strings.Cut(value, "+"); ok {
				f.RemInfo[key] += val
				lastRemInfo = key
			} else if lastRemInfo != "" {
				f.RemInfo[lastRemInfo] += value
			} else {
				f.RemInfo[strconv.Itoa(fno)] = value
			}
		case fno == 30:
			f.BIC = value
		case fno == 31:
			f.IBAN = value
		case fno == 32, fno == 33:
			f.PayerName += value
		case fno == 34:
			f.SepaCode = value
		case fno == 35, fno == 36:
			f.Remittance = append(f.Remittance, Subfield{Code: fno, Value: value})
		default:
			return F86{}, &parsererror.UnknownSubfieldError{Tag: "86", Code: fno, Value: chunk}
		}
	}
	return f, nil
}

func joinText(text, more string) string {
	if text == "" {
		return more
	}
	return text + " " + more
}

// Description concatenates the free-text subfields. Lines 20-29 are joined
// with a single space, the others are appended as they are.
func (f F86) Description() string {
	var b strings.Builder
	for _, sf := range f.Remittance {
		value := sf.Value
		if sf.Code >= 20 && sf.Code <= 29 && !strings.HasSuffix(value, " ") {
			value += " "
		}
		b.WriteString(value)
	}
	return b.String()
}

// Balance is an opening (60x) or closing (62x) balance.
type Balance struct {
	Mark  string
	Date  time.Time
	Money models.Money
}

// Signed returns the amount with debit balances negated.
func (b Balance) Signed() decimal.Decimal {
	if b.Mark == models.MarkDebit {
		return b.Money.Amount.Neg()
	}
	return b.Money.Amount
}

// ParseBalance parses mark(1) date(6) currency(3) amount for tags 60F, 60M,
// 62F, 62M, 64 and 65.
func ParseBalance(tag, operand string) (Balance, error) {
	fs := NewFixedStr(tag, operand)
	mark, err := fs.TakeM(1)
	if err != nil {
		return Balance{}, err
	}
	if mark != models.MarkCredit && mark != models.MarkDebit {
		return Balance{}, fs.malformed("debit/credit mark must be C or D", nil)
	}
	rawDate, err := fs.TakeM(6)
	if err != nil {
		return Balance{}, err
	}
	date, err := parseYYMMDD(tag, rawDate, false)
	if err != nil {
		return Balance{}, err
	}
	currency, err := fs.TakeM(3)
	if err != nil {
		return Balance{}, err
	}
	amount, err := models.ParseSwiftAmount(trimTrailer(fs.Rest()))
	if err != nil {
		return Balance{}, fs.malformed("invalid amount", err)
	}
	return Balance{Mark: mark, Date: date, Money: models.NewMoney(amount, currency)}, nil
}

// trimTrailer removes the "-\0\0\0" block end some banks leave on the last line.
func trimTrailer(s string) string {
	if idx := strings.Index(s, "-\x00"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimRight(s, "\x00\r\n ")
}

// F28C is the statement and sequence number.
type F28C struct {
	StatementNumber string
	SequenceNumber  string
}

// ParseF28C splits "number/sequence"; the sequence is optional.
func ParseF28C(operand string) F28C {
	number, seq, _ := strings.Cut(operand, "/")
	return F28C{StatementNumber: number, SequenceNumber: seq}
}

// F34F is an intraday floor limit.
type F34F struct {
	Currency string
	Mark     string // "", "D" or "C"
	Limit    decimal.Decimal
}

// ParseF34F parses currency(3), an optional D/C mark and the limit amount.
func ParseF34F(operand string) (F34F, error) {
	fs := NewFixedStr("34F", operand)
	currency, err := fs.TakeM(3)
	if err != nil {
		return F34F{}, err
	}
	f := F34F{Currency: currency}
	if next := fs.Peek(1); next == models.MarkDebit || next == models.MarkCredit {
		f.Mark = fs.Take(1)
	}
	if f.Limit, err = models.ParseSwiftAmount(fs.Rest()); err != nil {
		return F34F{}, fs.malformed("invalid limit", err)
	}
	return f, nil
}

// F13D is the creation timestamp of an intraday message.
type F13D struct {
	Date   string
	Time   string
	Sign   string
	Offset string
}

// ParseF13D parses date(6) time(4) sign(1) offset.
func ParseF13D(operand string) (F13D, error) {
	var f F13D
	var err error
	fs := NewFixedStr("13D", operand)
	if f.Date, err = fs.TakeM(6); err != nil {
		return F13D{}, err
	}
	if f.Time, err = fs.TakeM(4); err != nil {
		return F13D{}, err
	}
	if f.Sign, err = fs.TakeM(1); err != nil {
		return F13D{}, err
	}
	if f.Sign != "+" && f.Sign != "-" {
		return F13D{}, fs.malformed("offset sign must be + or -", nil)
	}
	f.Offset = fs.Rest()
	return f, nil
}

// Timestamp resolves the field into an instant in its own UTC offset.
func (f F13D) Timestamp() (time.Time, error) {
	date, err := parseYYMMDD("13D", f.Date, false)
	if err != nil {
		return time.Time{}, err
	}
	if !allDigits(f.Time) || !allDigits(f.Offset) || len(f.Offset) != 4 {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: "13D", Value: f.Date + f.Time + f.Sign + f.Offset, Reason: "invalid time or offset"}
	}
	hh, _ := strconv.Atoi(f.Time[:2])
	mi, _ := strconv.Atoi(f.Time[2:])
	oh, _ := strconv.Atoi(f.Offset[:2])
	om, _ := strconv.Atoi(f.Offset[2:])
	if hh > 23 || mi > 59 {
		return time.Time{}, &parsererror.MalformedFieldError{Tag: "13D", Value: f.Time, Reason: "time out of range"}
	}
	offset := oh*3600 + om*60
	if f.Sign == "-" {
		offset = -offset
	}
	zone := time.FixedZone("", offset)
	return time.Date(date.Year(), date.Month(), date.Day(), hh, mi, 0, 0, zone), nil
}

// F90 is the number and sum of debit (90D) or credit (90C) entries.
type F90 struct {
	Count    int
	Currency string
	Amount   decimal.Decimal
}

var f90Pattern = regexp.MustCompile(`^(\d+)([A-Z]{3})([\d,]+)$`)

// ParseF90 parses count digits, a currency and an amount with comma decimals.
func ParseF90(tag, operand string) (F90, error) {
	operand = trimTrailer(operand)
	m := f90Pattern.FindStringSubmatch(operand)
	if m == nil {
		return F90{}, &parsererror.MalformedFieldError{Tag: tag, Value: operand, Reason: "expected <count><currency><amount>"}
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return F90{}, &parsererror.MalformedFieldError{Tag: tag, Value: operand, Reason: "invalid count", Err: err}
	}
	amount, err := models.ParseSwiftAmount(m[3])
	if err != nil {
		return F90{}, &parsererror.MalformedFieldError{Tag: tag, Value: operand, Reason: "invalid amount", Err: err}
	}
	return F90{Count: count, Currency: m[2], Amount: amount}, nil
}
