// Package models provides the data structures used throughout the application.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Line is one raw tag/value record that contributed to a statement.
type Line struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Statement is one reconciled bank statement period assembled from an
// MT940 or MT942 message. Amounts are signed: debits are negative.
type Statement struct {
	Type         string          `json:"type"`
	ID           string          `json:"id"`
	BankCode     string          `json:"bank_code"`
	AccountCode  string          `json:"account_code"`
	Currency     string          `json:"currency"`
	StartBalance decimal.Decimal `json:"start_balance"`
	StartDate    time.Time       `json:"start_date"`
	EndBalance   decimal.Decimal `json:"end_balance"`
	EndDate      time.Time       `json:"end_date"`
	CreationDate time.Time       `json:"creation_date"`

	// Intraday (MT942) floor limits and entry summaries.
	SmallestAmount       decimal.Decimal `json:"smallest_amount"`
	SmallestCreditAmount decimal.Decimal `json:"smallest_credit_amount"`
	CountDebit           int             `json:"count_debit"`
	AmountDebit          decimal.Decimal `json:"amount_debit"`
	CountCredit          int             `json:"count_credit"`
	AmountCredit         decimal.Decimal `json:"amount_credit"`

	Pending      bool           `json:"pending"`
	Lines        []Line         `json:"-"`
	Transactions []*Transaction `json:"transactions"`
}

// AddLine records the raw tag that was applied to the statement.
func (s *Statement) AddLine(tag, value string) {
	s.Lines = append(s.Lines, Line{Tag: tag, Value: value})
}

// LastTransaction returns the most recently appended transaction, or nil.
func (s *Statement) LastTransaction() *Transaction {
	if len(s.Transactions) == 0 {
		return nil
	}
	return s.Transactions[len(s.Transactions)-1]
}

// Finalize back-fills entry dates from the end date, applies the pending
// flag and extracts SEPA purposes from each description.
func (s *Statement) Finalize(pending bool) {
	for _, tx := range s.Transactions {
		if tx.InputDate.IsZero() {
			tx.InputDate = s.EndDate
		}
	}

	if pending {
		s.Pending = true
	}

	for _, tx := range s.Transactions {
		tx.extractPurposes()
	}
}

// Transaction is one statement line (61) with its remittance information (86).
type Transaction struct {
	ValueDate         time.Time       `json:"value_date"`
	InputDate         time.Time       `json:"input_date"`
	Amount            decimal.Decimal `json:"amount"`
	TransactionTypeID string          `json:"transaction_type_id"`
	CustomerReference string          `json:"customer_reference"`
	BankReference     string          `json:"bank_reference"`
	OtherInformation  string          `json:"other_information"`

	TypeCode        string `json:"type_code"`
	Text            string `json:"text"`
	Primanota       string `json:"primanota"`
	Description     string `json:"description"`
	BankCode        string `json:"bank_code"`
	AccountCode     string `json:"account_code"`
	PartnerName     string `json:"partner_name"`
	TextKeyAddition string `json:"text_key_addition"`

	SepaPurposes map[SepaPurpose]string `json:"sepa_purposes,omitempty"`
}

func (t *Transaction) extractPurposes() {
	if trimmed := trimRightSpace(t.Description); trimmed != "" {
		t.Description = trimmed
		t.SepaPurposes = ExtractSepaPurposes(trimmed)
	}
}

// IsDebit reports whether money left the account.
func (t *Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}
