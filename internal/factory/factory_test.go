package factory_test

import (
	"strings"
	"testing"

	"fjacquet/ebics-mt940/internal/factory"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = ":20:REF\r\n:25:BANK/ACCT\r\n:28C:1/1\r\n:60F:C240101EUR100,00\r\n" +
	":61:2401150115CN50,00NTRFNONREF//B123\r\n:86:166?00GUTSCHRIFT?20SVWZ+Rent\r\n" +
	":62F:C240131EUR150,00\r\n-"

func TestGetParser(t *testing.T) {
	tests := []struct {
		name        string
		parserType  factory.ParserType
		wantPending bool
		expectError bool
	}{
		{name: "MT940 Parser", parserType: factory.MT940},
		{name: "MT942 Parser", parserType: factory.MT942, wantPending: true},
		{name: "Unknown Parser", parserType: "camt", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := factory.GetParserWithLogger(tt.parserType, logging.NewMockLogger())
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			stmts, err := p.Parse(strings.NewReader(feed))
			require.NoError(t, err)
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.wantPending, stmts[0].Pending)
		})
	}

	p, err := factory.GetParser(factory.MT940)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestGetValidator(t *testing.T) {
	validate, err := factory.GetValidator(factory.MT940)
	require.NoError(t, err)
	n, err := validate(strings.NewReader(feed))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = validate(strings.NewReader(":20:REF\r\n:25:A/B\r\n:34F:EUR1,\r\n"))
	assert.Error(t, err)

	_, err = factory.GetValidator("pdf")
	assert.Error(t, err)

	validate, err = factory.GetValidator(factory.MT942)
	require.NoError(t, err)
	assert.NotNil(t, validate)
}
