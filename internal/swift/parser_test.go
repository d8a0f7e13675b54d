package swift

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/parsererror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mt940Single = ":20:REF\r\n" +
	":25:BANK/ACCT\r\n" +
	":28C:1/1\r\n" +
	":60F:C240101EUR100,00\r\n" +
	":61:2401150115C50,00NTRFNONREF//B123\r\n" +
	":86:166?00GUTSCHRIFT?20EREF+E2E1?21SVWZ+Rent?32John Doe\r\n" +
	":62F:C240131EUR150,00\r\n" +
	"-"

const mt942Feed = ":20:INTRADAY\r\n" +
	":25:50010517/0123456789\r\n" +
	":28C:1\r\n" +
	":34F:EURD0,\r\n" +
	":13D:2401151200+0100\r\n" +
	":61:240115D12,50NMSCNONREF\r\n" +
	":86:005?00LASTSCHRIFT?20SVWZ+Card\r\n" +
	":90D:5EUR100,00\r\n" +
	":90C:3EUR50,00\r\n" +
	"-"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParser_MT940StatementClosure(t *testing.T) {
	p := NewParser(logging.NewMockLogger())

	stmts, err := p.Parse(strings.NewReader(mt940Single))
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	stmt := stmts[0]
	assert.Equal(t, "1", stmt.ID)
	assert.Equal(t, "REF", stmt.Type)
	assert.Equal(t, "BANK", stmt.BankCode)
	assert.Equal(t, "ACCT", stmt.AccountCode)
	assert.Equal(t, "EUR", stmt.Currency)
	assert.True(t, dec("100").Equal(stmt.StartBalance))
	assert.True(t, dec("150").Equal(stmt.EndBalance))
	assert.Equal(t, date(2024, 1, 1), stmt.StartDate)
	assert.Equal(t, date(2024, 1, 31), stmt.EndDate)
	assert.False(t, stmt.Pending)
	require.Len(t, stmt.Transactions, 1)

	tx := stmt.Transactions[0]
	assert.True(t, dec("50").Equal(tx.Amount))
	assert.Equal(t, "166", tx.TypeCode)
	assert.Equal(t, "GUTSCHRIFT", tx.Text)
	assert.Equal(t, "John Doe", tx.PartnerName)
	assert.Equal(t, "EREF+E2E1 SVWZ+Rent", tx.Description)
	assert.Equal(t, "E2E1 ", tx.SepaPurposes[models.SepaEREF])
	assert.Equal(t, "Rent", tx.SepaPurposes[models.SepaSVWZ])

	tags := make([]string, 0, len(stmt.Lines))
	for _, l := range stmt.Lines {
		tags = append(tags, l.Tag)
	}
	assert.Equal(t, []string{"20", "25", "28C", "60F", "61", "86", "62F"}, tags)
}

func TestParser_MT942DebitCreditPairing(t *testing.T) {
	p := NewParser(logging.NewMockLogger(), WithPending(true))

	stmts, err := p.Parse(strings.NewReader(mt942Feed))
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	stmt := stmts[0]
	assert.Equal(t, 5, stmt.CountDebit)
	assert.True(t, dec("-100").Equal(stmt.AmountDebit))
	assert.Equal(t, 3, stmt.CountCredit)
	assert.True(t, dec("50").Equal(stmt.AmountCredit))
	assert.True(t, stmt.Pending)
	assert.Equal(t, "123456789", stmt.AccountCode)
	assert.Equal(t, "EUR", stmt.Currency)
	assert.True(t, stmt.CreationDate.Equal(time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)))

	require.Len(t, stmt.Transactions, 1)
	tx := stmt.Transactions[0]
	assert.True(t, dec("-12.5").Equal(tx.Amount))
	assert.Equal(t, stmt.EndDate, tx.InputDate)
}

func TestParser_MT942SingleDebitSummary(t *testing.T) {
	feed := strings.Replace(mt942Feed, ":90C:3EUR50,00\r\n", "", 1) + "\r\n:20:NEXT\r\n:25:X/1\r\n"

	stmts, err := NewParser(nil, WithPending(true)).Parse(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, 5, stmts[0].CountDebit)
	assert.Zero(t, stmts[0].CountCredit)
	assert.Equal(t, "NEXT", stmts[1].Type)
}

func TestParser_CreditSummaryAfterEmittedStatement(t *testing.T) {
	feed := ":20:A\r\n:25:B/1\r\n:62F:C240131EUR1,\r\n:90C:2EUR7,\r\n-"

	var seen []*models.Statement
	for stmt, err := range NewParser(nil).Statements(strings.NewReader(feed)) {
		require.NoError(t, err)
		seen = append(seen, stmt)
	}
	require.Len(t, seen, 1)
	assert.Equal(t, 2, seen[0].CountCredit)
}

func TestParser_IntermediatePagesAreEmitted(t *testing.T) {
	feed := ":20:REF\r\n:25:BANK/ACCT\r\n:28C:7/1\r\n:60F:C240101EUR100,00\r\n" +
		":61:240102C10,NTRFA\r\n:86:166?20one\r\n:62M:C240102EUR110,00\r\n" +
		":20:REF\r\n:25:BANK/ACCT\r\n:28C:7/2\r\n:60M:C240102EUR110,00\r\n" +
		":61:240103D5,NTRFB\r\n:86:166?20two\r\n:62F:C240103EUR105,00\r\n-"

	stmts, err := NewParser(nil).Parse(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.True(t, dec("110").Equal(stmts[0].EndBalance))
	assert.Equal(t, "7", stmts[1].ID)
	assert.True(t, dec("110").Equal(stmts[1].StartBalance))
	assert.True(t, dec("105").Equal(stmts[1].EndBalance))
	assert.Equal(t, "two", stmts[1].Transactions[0].Description)
}

func TestParser_OpeningBalanceRules(t *testing.T) {
	t.Run("60M keeps an existing start balance", func(t *testing.T) {
		feed := ":20:R\r\n:60F:C240101EUR5,\r\n:60M:C240102EUR9,\r\n:62F:C240102EUR9,\r\n"
		stmts, err := NewParser(nil).Parse(strings.NewReader(feed))
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.True(t, dec("5").Equal(stmts[0].StartBalance))
		assert.Equal(t, date(2024, 1, 2), stmts[0].StartDate)
	})

	t.Run("invalid amount is logged and skipped", func(t *testing.T) {
		logger := logging.NewMockLogger()
		feed := ":20:R\r\n:60F:C240101EURabc\r\n:62F:C240102EUR9,\r\n"
		stmts, err := NewParser(logger).Parse(strings.NewReader(feed))
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.True(t, stmts[0].StartBalance.IsZero())

		warnings := logger.GetEntriesByLevel("WARN")
		require.Len(t, warnings, 1)
		assert.ErrorIs(t, warnings[0].Error, ErrInvalidAmount)
	})

	t.Run("debit balance is negative", func(t *testing.T) {
		feed := ":20:R\r\n:60F:D240101EUR5,\r\n:62F:D240102EUR5,\r\n"
		stmts, err := NewParser(nil).Parse(strings.NewReader(feed))
		require.NoError(t, err)
		assert.True(t, dec("-5").Equal(stmts[0].StartBalance))
		assert.True(t, dec("-5").Equal(stmts[0].EndBalance))
	})
}

func TestParser_OpenStatementEmittedAtEnd(t *testing.T) {
	feed := ":20:R\r\n:25:B/A\r\n:61:240102C10,NTRFA\r\n:64:C240102EUR1,\r\n:XX:ignored"

	stmts, err := NewParser(nil, WithPending(true)).Parse(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.True(t, stmts[0].Pending)
	assert.Len(t, stmts[0].Transactions, 1)
}

func TestParser_StatementLineOpensStatement(t *testing.T) {
	stmts, err := NewParser(nil).Parse(strings.NewReader(":61:240102C10,NTRFA\r\n:62F:C240102EUR10,\r\n"))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "61", stmts[0].Lines[0].Tag)
}

func TestParser_Errors(t *testing.T) {
	t.Run("unknown 86 subfield aborts the stream", func(t *testing.T) {
		feed := strings.Replace(mt940Single, "?32John Doe", "?99SOMEDATA", 1)
		_, err := NewParser(nil).Parse(strings.NewReader(feed))
		var unknown *parsererror.UnknownSubfieldError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, 99, unknown.Code)
		assert.Contains(t, err.Error(), "tag 86")
	})

	t.Run("remittance information without statement line", func(t *testing.T) {
		_, err := NewParser(nil).Parse(strings.NewReader(":20:R\r\n:86:166?20x\r\n"))
		var malformed *parsererror.MalformedFieldError
		assert.ErrorAs(t, err, &malformed)
	})

	t.Run("account without open statement", func(t *testing.T) {
		_, err := NewParser(nil).Parse(strings.NewReader(":25:B/A\r\n"))
		assert.Error(t, err)
	})

	t.Run("statements before the error are still yielded", func(t *testing.T) {
		feed := mt940Single + "\r\n:20:R2\r\n:61:bad\r\n"
		var got []*models.Statement
		var lastErr error
		for stmt, err := range NewParser(nil).Statements(strings.NewReader(feed)) {
			if err != nil {
				lastErr = err
				break
			}
			got = append(got, stmt)
		}
		assert.Len(t, got, 1)
		assert.Error(t, lastErr)
	})
}

func TestParser_FreeTextRemittance(t *testing.T) {
	t.Run("field without transaction code", func(t *testing.T) {
		feed := strings.Replace(mt940Single, "166?00GUTSCHRIFT?20EREF+E2E1?21SVWZ+Rent?32John Doe", "NONREF payment", 1)
		stmts, err := NewParser(nil).Parse(strings.NewReader(feed))
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		require.Len(t, stmts[0].Transactions, 1)

		tx := stmts[0].Transactions[0]
		assert.Empty(t, tx.TypeCode)
		assert.Equal(t, "NONREF payment", tx.Text)
		assert.True(t, dec("150").Equal(stmts[0].EndBalance))
	})

	t.Run("chunk without subfield code", func(t *testing.T) {
		feed := strings.Replace(mt940Single, "?32John Doe", "?32John Doe?paid in full", 1)
		stmts, err := NewParser(nil).Parse(strings.NewReader(feed))
		require.NoError(t, err)
		require.Len(t, stmts, 1)

		tx := stmts[0].Transactions[0]
		assert.Equal(t, "166", tx.TypeCode)
		assert.Equal(t, "GUTSCHRIFT paid in full", tx.Text)
		assert.Equal(t, "John Doe", tx.PartnerName)
	})

	t.Run("strict reader still rejects it", func(t *testing.T) {
		_, err := ParseF86("166?00GUTSCHRIFT?paid in full")
		var malformed *parsererror.MalformedFieldError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestParser_StopEarly(t *testing.T) {
	feed := mt940Single + "\r\n" + mt940Single
	count := 0
	for _, err := range NewParser(nil).Statements(strings.NewReader(feed)) {
		require.NoError(t, err)
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestParser_ParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sta.mt940")
	require.NoError(t, os.WriteFile(path, []byte(mt940Single), 0600))

	logger := logging.NewMockLogger()
	stmts, err := NewParser(logger).ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
	assert.True(t, logger.HasEntry("INFO", "Parsed statement file"))

	_, err = NewParser(logger).ParseFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
