package models

import (
	"strings"
	"time"
)

// DefaultDateFormat is the Go layout used for CSV dates unless configured otherwise.
const DefaultDateFormat = "02.01.2006"

// TransactionRow is the flat CSV representation of one statement transaction.
type TransactionRow struct {
	Account           string `csv:"Account"`
	BankCode          string `csv:"BankCode"`
	StatementID       string `csv:"StatementID"`
	ValueDate         string `csv:"ValueDate"`
	EntryDate         string `csv:"EntryDate"`
	Amount            string `csv:"Amount"`
	Currency          string `csv:"Currency"`
	CreditDebit       string `csv:"CreditDebit"`
	TransactionTypeID string `csv:"TransactionType"`
	TypeCode          string `csv:"TypeCode"`
	Text              string `csv:"Text"`
	PartnerName       string `csv:"PartnerName"`
	PartnerIBAN       string `csv:"PartnerIBAN"`
	PartnerBIC        string `csv:"PartnerBIC"`
	Description       string `csv:"Description"`
	EndToEndRef       string `csv:"EndToEndReference"`
	MandateRef        string `csv:"MandateReference"`
	Remittance        string `csv:"Remittance"`
	CustomerReference string `csv:"CustomerReference"`
	BankReference     string `csv:"BankReference"`
	Pending           bool   `csv:"Pending"`
}

// NewTransactionRows flattens a statement into CSV rows. dateFormat is a Go
// time layout; an empty value selects DefaultDateFormat.
func NewTransactionRows(stmt *Statement, dateFormat string) []TransactionRow {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}

	rows := make([]TransactionRow, 0, len(stmt.Transactions))
	for _, tx := range stmt.Transactions {
		direction := TransactionTypeCredit
		if tx.IsDebit() {
			direction = TransactionTypeDebit
		}
		rows = append(rows, TransactionRow{
			Account:           stmt.AccountCode,
			BankCode:          stmt.BankCode,
			StatementID:       stmt.ID,
			ValueDate:         formatDate(tx.ValueDate, dateFormat),
			EntryDate:         formatDate(tx.InputDate, dateFormat),
			Amount:            tx.Amount.StringFixed(2),
			Currency:          stmt.Currency,
			CreditDebit:       direction,
			TransactionTypeID: tx.TransactionTypeID,
			TypeCode:          tx.TypeCode,
			Text:              tx.Text,
			PartnerName:       strings.TrimSpace(tx.PartnerName),
			PartnerIBAN:       tx.AccountCode,
			PartnerBIC:        tx.BankCode,
			Description:       tx.Description,
			EndToEndRef:       strings.TrimSpace(tx.SepaPurposes[SepaEREF]),
			MandateRef:        strings.TrimSpace(tx.SepaPurposes[SepaMREF]),
			Remittance:        strings.TrimSpace(tx.SepaPurposes[SepaSVWZ]),
			CustomerReference: tx.CustomerReference,
			BankReference:     tx.BankReference,
			Pending:           stmt.Pending,
		})
	}
	return rows
}

// ConvertDateFormat maps the DD.MM.YYYY style used in configuration files to a Go layout.
func ConvertDateFormat(pattern string) string {
	r := strings.NewReplacer("YYYY", "2006", "YY", "06", "MM", "01", "DD", "02")
	return r.Replace(pattern)
}

func formatDate(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
