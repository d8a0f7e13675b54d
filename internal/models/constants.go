package models

// Debit/credit marks as they appear in SWIFT balance and statement lines.
const (
	MarkDebit         = "D"
	MarkCredit        = "C"
	MarkReverseDebit  = "RD"
	MarkReverseCredit = "RC"
)

// Direction codes written to the CSV export.
const (
	TransactionTypeDebit  = "DBIT"
	TransactionTypeCredit = "CRDT"
)

// File permissions
const (
	PermissionConfigFile = 0600
	PermissionDirectory  = 0750
	PermissionReportFile = 0644
)
