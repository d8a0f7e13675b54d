package swift

import (
	"errors"
	"testing"
	"time"

	"fjacquet/ebics-mt940/internal/parsererror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedStr(t *testing.T) {
	fs := NewFixedStr("61", "ABCDEFG")

	got, err := fs.TakeM(3)
	require.NoError(t, err)
	assert.Equal(t, "ABC", got)
	assert.Equal(t, "DE", fs.Peek(2))
	assert.Equal(t, "DEFG", fs.Take(10))
	assert.Equal(t, 0, fs.Len())

	_, err = fs.TakeM(1)
	var short *parsererror.FieldTooShortError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "61", short.Tag)
	assert.Equal(t, "ABCDEFG", short.Value)
}

func TestParseF61(t *testing.T) {
	t.Run("mandatory fields without reference split", func(t *testing.T) {
		f, err := ParseF61("240101" + "0101" + "D" + "N" + "000000000012345" + "N12" + "REF123")
		require.NoError(t, err)

		assert.Equal(t, "240101", f.ValueDate)
		assert.Equal(t, "0101", f.EntryDate)
		assert.Equal(t, "D", f.DebitCredit)
		assert.Equal(t, "N", f.FundsCode)
		assert.Equal(t, "000000000012345", f.Amount)
		assert.Equal(t, "N12", f.TrxCode)
		assert.Equal(t, "REF123", f.RefAccount)
		assert.Empty(t, f.SrvAccount)
		assert.Empty(t, f.Supplementary)
	})

	t.Run("reference with servicing account and supplementary details", func(t *testing.T) {
		f, err := ParseF61("2401010101CR1000,N05REF1//BANKREF\r\nSUPPL")
		require.NoError(t, err)

		assert.Equal(t, "1000,", f.Amount)
		assert.Equal(t, "N05", f.TrxCode)
		assert.Equal(t, "REF1", f.RefAccount)
		assert.Equal(t, "BANKREF", f.SrvAccount)
		assert.Equal(t, "SUPPL", f.Supplementary)
	})

	t.Run("servicing account is capped at 16 characters", func(t *testing.T) {
		f, err := ParseF61("2401010101CR1,N05R//0123456789ABCDEFXYZ")
		require.NoError(t, err)
		assert.Equal(t, "0123456789ABCDEF", f.SrvAccount)
		assert.Equal(t, "XYZ", f.Supplementary)
	})

	tests := []struct {
		name    string
		operand string
		short   bool
	}{
		{name: "too short for value date", operand: "24010", short: true},
		{name: "too short for entry date", operand: "240101010", short: true},
		{name: "no amount left", operand: "2401010101DN", short: true},
		{name: "amount not numeric", operand: "2401010101DNXYZ", short: false},
		{name: "transaction code cut off", operand: "2401010101DN5,N1", short: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseF61(tt.operand)
			require.Error(t, err)
			if tt.short {
				var short *parsererror.FieldTooShortError
				assert.ErrorAs(t, err, &short)
			} else {
				var malformed *parsererror.MalformedFieldError
				assert.ErrorAs(t, err, &malformed)
			}
		})
	}
}

func TestParseF86(t *testing.T) {
	t.Run("structured subfields", func(t *testing.T) {
		f, err := ParseF86("166?00GUTSCHRIFT?109249?20EREF+E2E1?21SVWZ+Rent for?22 January?30DEUTDEFF?31DE123?32John?33 Doe?34997?1234")
		require.NoError(t, err)

		assert.Equal(t, "166", f.TransactionCode)
		assert.Equal(t, byte('?'), f.Separator)
		assert.Equal(t, "GUTSCHRIFT", f.PostingText)
		assert.Equal(t, "9249", f.JournalNumber)
		assert.Equal(t, "DEUTDEFF", f.BIC)
		assert.Equal(t, "DE123", f.IBAN)
		assert.Equal(t, "John Doe", f.PayerName)
		assert.Equal(t, "997", f.SepaCode)
		assert.Equal(t, "E2E1", f.RemInfo["EREF"])
		assert.Equal(t, "Rent for January", f.RemInfo["SVWZ"])
		assert.Len(t, f.Remittance, 3)
		assert.Equal(t, "EREF+E2E1 SVWZ+Rent for  January ", f.Description())
	})

	t.Run("line breaks are removed before splitting", func(t *testing.T) {
		f, err := ParseF86("166?20foo\r\n?21bar?35 Payee?61tail")
		require.NoError(t, err)
		assert.Equal(t, "foo bar  Payeetail", f.Description())
	})

	t.Run("custom separator", func(t *testing.T) {
		f, err := ParseF86("020/00TEXT/20Line")
		require.NoError(t, err)
		assert.Equal(t, byte('/'), f.Separator)
		assert.Equal(t, "TEXT", f.PostingText)
	})

	t.Run("transaction code only", func(t *testing.T) {
		f, err := ParseF86("166")
		require.NoError(t, err)
		assert.Equal(t, "166", f.TransactionCode)
		assert.Empty(t, f.Remittance)
	})

	t.Run("unknown subfield code raises", func(t *testing.T) {
		_, err := ParseF86("051?99SOMEDATA")
		var unknown *parsererror.UnknownSubfieldError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, 99, unknown.Code)
		assert.Equal(t, "99SOMEDATA", unknown.Value)
	})

	t.Run("non numeric subfield code raises", func(t *testing.T) {
		_, err := ParseF86("166?XXfoo")
		var malformed *parsererror.MalformedFieldError
		assert.ErrorAs(t, err, &malformed)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseF86("16")
		var short *parsererror.FieldTooShortError
		assert.ErrorAs(t, err, &short)
	})
}

func TestParseF34F(t *testing.T) {
	tests := []struct {
		name    string
		operand string
		mark    string
		limit   string
		wantErr bool
	}{
		{name: "debit limit", operand: "EURD123,45", mark: "D", limit: "123.45"},
		{name: "credit limit", operand: "EURC10,", mark: "C", limit: "10"},
		{name: "no mark", operand: "EUR0,50", mark: "", limit: "0.5"},
		{name: "currency cut off", operand: "EU", wantErr: true},
		{name: "limit not numeric", operand: "EURDabc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseF34F(tt.operand)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "EUR", f.Currency)
			assert.Equal(t, tt.mark, f.Mark)
			assert.True(t, decimal.RequireFromString(tt.limit).Equal(f.Limit), "limit %s", f.Limit)
		})
	}
}

func TestParseF13D(t *testing.T) {
	f, err := ParseF13D("2401151230+0100")
	require.NoError(t, err)
	assert.Equal(t, F13D{Date: "240115", Time: "1230", Sign: "+", Offset: "0100"}, f)

	ts, err := f.Timestamp()
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2024, 1, 15, 11, 30, 0, 0, time.UTC)))

	_, err = ParseF13D("2401151230*0100")
	assert.Error(t, err)

	_, err = ParseF13D("240115")
	var short *parsererror.FieldTooShortError
	assert.ErrorAs(t, err, &short)

	bad, err := ParseF13D("2401152599-0100")
	require.NoError(t, err)
	_, err = bad.Timestamp()
	assert.Error(t, err)
}

func TestParseF90(t *testing.T) {
	f, err := ParseF90("90D", "5EUR100,00")
	require.NoError(t, err)
	assert.Equal(t, 5, f.Count)
	assert.Equal(t, "EUR", f.Currency)
	assert.True(t, decimal.NewFromInt(100).Equal(f.Amount))

	f, err = ParseF90("90C", "3EUR50,00-\x00\x00")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(f.Amount))

	_, err = ParseF90("90D", "EUR100")
	var malformed *parsererror.MalformedFieldError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "90D", malformed.Tag)
}

func TestParseBalance(t *testing.T) {
	b, err := ParseBalance("62F", "C240131EUR150,00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, "EUR", b.Money.Currency)
	assert.True(t, decimal.NewFromInt(150).Equal(b.Signed()))

	b, err = ParseBalance("60F", "D240131EUR1,5")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("-1.5").Equal(b.Signed()))

	for _, operand := range []string{"X240131EUR1", "C240231EUR1", "C240131EURabc"} {
		_, err := ParseBalance("60F", operand)
		var malformed *parsererror.MalformedFieldError
		assert.True(t, errors.As(err, &malformed), operand)
	}

	_, err = ParseBalance("60F", "C2401")
	var short *parsererror.FieldTooShortError
	assert.ErrorAs(t, err, &short)
}

func TestParseF28C(t *testing.T) {
	assert.Equal(t, F28C{StatementNumber: "00012", SequenceNumber: "001"}, ParseF28C("00012/001"))
	assert.Equal(t, F28C{StatementNumber: "5"}, ParseF28C("5"))
}
