package swift

import (
	"strings"
	"unicode"

	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parsererror"
)

// ScanStatementLine reads a field 61 leniently into a transaction. Unlike
// ParseF61 it tolerates a missing entry date, storno marks (RC, RD), a
// funds code letter before the amount and value dates past the end of the
// month, which some banks emit for standing orders on the 30th.
func ScanStatementLine(operand string) (*models.Transaction, error) {
	malformed := func(reason string, err error) error {
		return &parsererror.MalformedFieldError{Tag: "61", Value: operand, Reason: reason, Err: err}
	}

	fs := NewFixedStr("61", operand)
	rawValue, err := fs.TakeM(6)
	if err != nil {
		return nil, err
	}
	valueDate, err := parseYYMMDD("61", rawValue, true)
	if err != nil {
		return nil, err
	}
	tx := &models.Transaction{ValueDate: valueDate}

	if next := fs.Peek(4); len(next) == 4 && allDigits(next) {
		if tx.InputDate, err = entryDate("61", fs.Take(4), valueDate); err != nil {
			return nil, err
		}
	}

	rest := fs.Rest()
	nIdx := strings.IndexByte(rest, 'N')
	if nIdx < 1 {
		return nil, malformed("missing amount", nil)
	}

	negative := false
	switch {
	case strings.HasPrefix(rest, models.MarkReverseDebit):
		rest = rest[2:]
	case strings.HasPrefix(rest, models.MarkReverseCredit):
		negative = true
		rest = rest[2:]
	case strings.HasPrefix(rest, models.MarkDebit):
		negative = true
		rest = rest[1:]
	default:
		rest = rest[1:]
	}
	if rest != "" && unicode.IsLetter(rune(rest[0])) {
		rest = rest[1:]
	}

	nIdx = strings.IndexByte(rest, 'N')
	if nIdx < 1 {
		return nil, malformed("missing amount", nil)
	}
	amount, err := models.ParseSwiftAmount(rest[:nIdx])
	if err != nil {
		return nil, malformed("invalid amount", err)
	}
	if negative {
		amount = amount.Neg()
	}
	tx.Amount = amount
	rest = rest[nIdx:]

	if len(rest) < 4 || !isTypeIDChars(rest[1:4]) {
		return nil, malformed("missing transaction type", nil)
	}
	tx.TransactionTypeID = rest[:4]
	rest = rest[4:]

	if idx := strings.Index(rest, "//"); idx > 0 {
		tx.CustomerReference = rest[:idx]
		rest = rest[idx+2:]
		if crlf := strings.Index(rest, "\r\n"); crlf >= 0 {
			tx.BankReference = rest[:crlf]
			rest = rest[crlf+2:]
		} else {
			tx.BankReference = rest
			rest = ""
		}
	} else if crlf := strings.Index(rest, "\r\n"); crlf >= 0 {
		tx.CustomerReference = rest[:crlf]
		rest = rest[crlf+2:]
	} else {
		tx.CustomerReference = rest
		rest = ""
	}

	if strings.TrimSpace(rest) != "" {
		tx.OtherInformation = rest
	}
	return tx, nil
}

func isTypeIDChars(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !isDigit(c) {
			return false
		}
	}
	return true
}
