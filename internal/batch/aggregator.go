// Package batch groups statements parsed from many files by account
package batch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parser"
)

// DateRange represents a date range with start and end dates
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String returns the date range in the format "YYYY-MM-DD_YYYY-MM-DD"
func (dr DateRange) String() string {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%s", dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
}

// Merge combines this date range with another, returning the overall range
func (dr DateRange) Merge(other DateRange) DateRange {
	start, end := dr.Start, dr.End
	if start.IsZero() || (!other.Start.IsZero() && other.Start.Before(start)) {
		start = other.Start
	}
	if end.IsZero() || (!other.End.IsZero() && other.End.After(end)) {
		end = other.End
	}
	return DateRange{Start: start, End: end}
}

// AccountGroup holds the statements of one account, oldest first.
type AccountGroup struct {
	Account     string
	Statements  []*models.Statement
	SourceFiles []string
	DateRange   DateRange
}

// Transactions returns the number of transactions in the group.
func (g *AccountGroup) Transactions() int {
	n := 0
	for _, s := range g.Statements {
		n += len(s.Transactions)
	}
	return n
}

// Aggregator parses statement files and groups the result by account.
type Aggregator struct {
	parser parser.FileParser
	logger logging.Logger
}

// NewAggregator creates an Aggregator reading files with p.
func NewAggregator(p parser.FileParser, logger logging.Logger) *Aggregator {
	return &Aggregator{parser: p, logger: logging.OrDefault(logger)}
}

// AccountKey identifies the account of a statement, "bank/account" when the
// bank code is known.
func AccountKey(stmt *models.Statement) string {
	switch {
	case stmt.AccountCode == "":
		return "unknown"
	case stmt.BankCode == "":
		return stmt.AccountCode
	default:
		return stmt.BankCode + "/" + stmt.AccountCode
	}
}

// Aggregate parses every file and returns one group per account, sorted by
// account. A file that fails to parse is logged and skipped.
func (a *Aggregator) Aggregate(files []string) []*AccountGroup {
	groups := make(map[string]*AccountGroup)

	for _, file := range files {
		stmts, err := a.parser.ParseFile(file)
		if err != nil {
			a.logger.WithError(err).Error("Failed to parse file",
				logging.Field{Key: logging.FieldFile, Value: file})
			continue
		}
		a.logger.Debug("Loaded statements from file",
			logging.Field{Key: logging.FieldCount, Value: len(stmts)},
			logging.Field{Key: logging.FieldFile, Value: filepath.Base(file)})

		seen := make(map[string]bool)
		for _, stmt := range stmts {
			key := AccountKey(stmt)
			g, ok := groups[key]
			if !ok {
				g = &AccountGroup{Account: key}
				groups[key] = g
			}
			g.Statements = append(g.Statements, stmt)
			g.DateRange = g.DateRange.Merge(DateRange{Start: stmt.StartDate, End: stmt.EndDate})
			if !seen[key] {
				g.SourceFiles = append(g.SourceFiles, filepath.Base(file))
				seen[key] = true
			}
		}
	}

	result := make([]*AccountGroup, 0, len(groups))
	for _, g := range groups {
		sortStatements(g.Statements)
		a.logDuplicates(g)
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account < result[j].Account })

	a.logger.Info("Grouped statements by account",
		logging.Field{Key: "total_files", Value: len(files)},
		logging.Field{Key: "account_groups", Value: len(result)})
	return result
}

// sortStatements orders by end date, then by statement number.
func sortStatements(stmts []*models.Statement) {
	sort.SliceStable(stmts, func(i, j int) bool {
		if !stmts[i].EndDate.Equal(stmts[j].EndDate) {
			return stmts[i].EndDate.Before(stmts[j].EndDate)
		}
		return stmts[i].ID < stmts[j].ID
	})
}

// logDuplicates warns about statements delivered more than once, as happens
// when downloaded date ranges overlap. Duplicates are kept.
func (a *Aggregator) logDuplicates(g *AccountGroup) {
	seen := make(map[string]bool)
	count := 0
	for _, s := range g.Statements {
		k := fmt.Sprintf("%s|%s|%s|%s", s.ID, s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly), s.EndBalance.String())
		if seen[k] {
			count++
			a.logger.Warn("Potential duplicate statement",
				logging.Field{Key: logging.FieldAccount, Value: g.Account},
				logging.Field{Key: "statement", Value: s.ID},
				logging.Field{Key: "end_date", Value: s.EndDate.Format(time.DateOnly)})
		}
		seen[k] = true
	}
	if count > 0 {
		a.logger.Warn("Found potential duplicate statements",
			logging.Field{Key: logging.FieldCount, Value: count},
			logging.Field{Key: logging.FieldAccount, Value: g.Account})
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// OutputFilename creates the name of the consolidated CSV of a group:
// {account}_{start}_{end}.csv, or {account}.csv without a date range.
func OutputFilename(g *AccountGroup) string {
	account := unsafeChars.ReplaceAllString(g.Account, "_")
	if r := g.DateRange.String(); r != "" {
		return fmt.Sprintf("%s_%s.csv", account, r)
	}
	return account + ".csv"
}
