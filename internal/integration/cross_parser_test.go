package integration

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fjacquet/ebics-mt940/internal/common"
	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/models"
	"fjacquet/ebics-mt940/internal/swift"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mt940 = ":20:STARTUMS\r\n" +
	":21:NONREF\r\n" +
	":25:10020030/0001234567\r\n" +
	":28C:00012/001\r\n" +
	":60F:C240101EUR100,00\r\n" +
	":61:2401020102CN50,00N05NONREF//BANKREF\r\n" +
	":86:166?00GUTSCHRIFT?20SVWZ+Invoice\r\n" +
	"?2142?32ACME\r\n" +
	":61:2401030103DN20,00N05NONREF\r\n" +
	":86:005?00LASTSCHRIFT?20SVWZ+Power?32City Utility\r\n" +
	":62F:C240103EUR130,00\r\n" +
	"-"

const mt942 = ":20:INTRADAY\r\n" +
	":25:50010517/0123456789\r\n" +
	":28C:1\r\n" +
	":34F:EURD0,\r\n" +
	":13D:2401151200+0100\r\n" +
	":61:240115D12,50NMSCNONREF\r\n" +
	":86:005?00LASTSCHRIFT?20SVWZ+Card?32Shop\r\n" +
	":90D:1EUR12,50\r\n" +
	":90C:0EUR0,00\r\n" +
	"-"

func strictStatements(t *testing.T) []*models.Statement {
	t.Helper()
	recs, err := swift.ReadMT940(strings.NewReader(mt940), nil)
	require.NoError(t, err)
	stmts := make([]*models.Statement, 0, len(recs))
	for _, rec := range recs {
		stmt, err := rec.ToStatement()
		require.NoError(t, err)
		stmts = append(stmts, stmt)
	}
	return stmts
}

// TestStrictAndLenientReadersAgree checks that the record reader and the
// line parser extract the same booking data from a well-formed feed.
func TestStrictAndLenientReadersAgree(t *testing.T) {
	lenient, err := swift.NewParser(logging.NewMockLogger()).Parse(strings.NewReader(mt940))
	require.NoError(t, err)
	strict := strictStatements(t)

	require.Len(t, lenient, 1)
	require.Len(t, strict, 1)
	l, s := lenient[0], strict[0]

	assert.Equal(t, s.BankCode, l.BankCode)
	assert.Equal(t, s.AccountCode, l.AccountCode)
	assert.Equal(t, s.Currency, l.Currency)
	assert.True(t, s.StartBalance.Equal(l.StartBalance), "start balance %s != %s", s.StartBalance, l.StartBalance)
	assert.True(t, s.EndBalance.Equal(l.EndBalance), "end balance %s != %s", s.EndBalance, l.EndBalance)
	assert.Equal(t, s.StartDate, l.StartDate)
	assert.Equal(t, s.EndDate, l.EndDate)

	require.Len(t, l.Transactions, 2)
	require.Len(t, s.Transactions, 2)
	for i := range l.Transactions {
		lt, st := l.Transactions[i], s.Transactions[i]
		assert.True(t, st.Amount.Equal(lt.Amount), "transaction %d amount", i)
		assert.Equal(t, st.ValueDate, lt.ValueDate, "transaction %d value date", i)
		assert.Equal(t, st.InputDate, lt.InputDate, "transaction %d entry date", i)
		assert.Equal(t, st.TypeCode, lt.TypeCode, "transaction %d type code", i)
		assert.Equal(t, strings.TrimSpace(st.PartnerName), strings.TrimSpace(lt.PartnerName), "transaction %d partner", i)
	}
	assert.True(t, l.Transactions[1].IsDebit())
}

func readCSVHeader(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path) // #nosec G304 -- test file
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan(), "empty CSV %s", path)
	return strings.Split(sc.Text(), ",")
}

// TestCSVColumnsConsistent verifies that end of day and intraday statements
// produce the same CSV layout.
func TestCSVColumnsConsistent(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewMockLogger()
	common.SetDelimiter(',')

	inputs := map[factory.ParserType]string{factory.MT940: mt940, factory.MT942: mt942}
	headers := make(map[factory.ParserType][]string)
	for pt, feed := range inputs {
		p, err := factory.GetParserWithLogger(pt, logger)
		require.NoError(t, err)
		stmts, err := p.Parse(strings.NewReader(feed))
		require.NoError(t, err, string(pt))
		require.NotEmpty(t, stmts)

		out := filepath.Join(dir, string(pt)+".csv")
		require.NoError(t, common.WriteStatementsToCSV(stmts, out, models.DefaultDateFormat, logger))
		headers[pt] = readCSVHeader(t, out)
	}

	assert.Equal(t, headers[factory.MT940], headers[factory.MT942])
	for _, column := range []string{
		"Account", "BankCode", "StatementID", "ValueDate", "EntryDate", "Amount", "Currency",
		"CreditDebit", "PartnerName", "PartnerIBAN", "Description", "Remittance", "Pending",
	} {
		assert.Contains(t, headers[factory.MT940], column)
	}
}

// TestValidatorsMatchParsers checks that a feed accepted by the strict
// validator parses to the same number of statements.
func TestValidatorsMatchParsers(t *testing.T) {
	for pt, feed := range map[factory.ParserType]string{factory.MT940: mt940, factory.MT942: mt942} {
		t.Run(string(pt), func(t *testing.T) {
			validate, err := factory.GetValidator(pt)
			require.NoError(t, err)
			n, err := validate(strings.NewReader(feed))
			require.NoError(t, err)

			p, err := factory.GetParser(pt)
			require.NoError(t, err)
			stmts, err := p.Parse(strings.NewReader(feed))
			require.NoError(t, err)
			assert.Equal(t, n, len(stmts))
		})
	}
}
