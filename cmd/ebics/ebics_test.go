package ebics

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fjacquet/ebics-mt940/internal/config"
	"fjacquet/ebics-mt940/internal/container"
	"fjacquet/ebics-mt940/internal/ebics"
	"fjacquet/ebics-mt940/internal/ebics/ebicstest"
	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"
	"fjacquet/ebics-mt940/internal/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyBits = 1024

const mt940Feed = ":20:REF\r\n:25:10020030/0001234567\r\n:28C:1/1\r\n:60F:C240101EUR100,00\r\n" +
	":61:2401150115C50,00NTRFNONREF//B123\r\n:86:166?00GUTSCHRIFT?20SVWZ+Rent?32John Doe\r\n" +
	":62F:C240131EUR150,00\r\n-"

func newTestContainer(t *testing.T, bank *ebicstest.Bank) *container.Container {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.CSV.Delimiter = ","
	cfg.CSV.DateFormat = "DD.MM.YYYY"
	cfg.EBICS.URL = bank.URL()
	cfg.EBICS.HostID = bank.HostID
	cfg.EBICS.PartnerID = "PARTNER1"
	cfg.EBICS.UserID = "USER1"
	cfg.EBICS.SignatureVersion = envelope.SignatureA006
	cfg.EBICS.TimeoutSeconds = 10
	cfg.EBICS.KeySource = "file"
	cfg.EBICS.KeysDir = filepath.Join(dir, "keys")
	cfg.EBICS.BankKeysFile = filepath.Join(dir, "bankkeys.yaml")
	cfg.BPD.Backend = "memory"

	c, err := container.NewContainer(context.Background(), cfg, container.WithLogger(logging.NewMockLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// initialised runs keygen and HPB so the container has all keys.
func initialised(t *testing.T) (*container.Container, *ebicstest.Bank, *envelope.UserKeys) {
	t.Helper()
	ctx := context.Background()
	bank := ebicstest.NewBank(t)
	c := newTestContainer(t, bank)

	require.NoError(t, Keygen(ctx, c, testKeyBits, false, &bytes.Buffer{}))
	user, err := secrets.LoadUserKeys(ctx, c.GetKeySource(), c.KeyPrefix(), envelope.SignatureA006)
	require.NoError(t, err)

	reply, err := bank.HPBResponse(&user.Encryption.PublicKey)
	require.NoError(t, err)
	bank.Enqueue(reply)
	require.NoError(t, KeyManagement(ctx, c, ebics.OrderHPB, &bytes.Buffer{}))
	return c, bank, user
}

func scriptDownload(t *testing.T, bank *ebicstest.Bank, user *envelope.UserKeys, data []byte) {
	t.Helper()
	segs, enc, err := ebicstest.Encrypt(&user.Encryption.PublicKey, data, ebics.SegmentSize)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	bank.Enqueue(
		bank.Response(ebicstest.Reply{
			Phase: "Initialisation", TransactionID: "TX1", NumSegments: 1,
			SegmentNumber: 1, LastSegment: true, OrderData: segs[0], Encryption: enc,
		}),
		bank.Response(ebicstest.Reply{Phase: "Receipt", TransactionID: "TX1", TechCode: "011000"}),
	)
}

func TestDateRange(t *testing.T) {
	from, to, err := dateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), to)

	from, to, err = dateRange("", "")
	require.NoError(t, err)
	assert.True(t, from.IsZero())
	assert.True(t, to.IsZero())

	_, _, err = dateRange("01.01.2024", "")
	assert.ErrorContains(t, err, "--from")
	_, _, err = dateRange("2024-02-01", "2024-01-01")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, ebicstest.NewBank(t))

	var out bytes.Buffer
	require.NoError(t, Keygen(ctx, c, testKeyBits, false, &out))
	assert.Contains(t, out.String(), "signature       A006")
	assert.Contains(t, out.String(), "authentication  X002")
	assert.Contains(t, out.String(), "encryption      E002")

	_, err := os.Stat(filepath.Join(c.GetConfig().EBICS.KeysDir, "PARTNER1-USER1-signature.pem"))
	assert.NoError(t, err)

	assert.ErrorContains(t, Keygen(ctx, c, testKeyBits, false, &out), "already exist")
	assert.NoError(t, Keygen(ctx, c, testKeyBits, true, &out))
}

func TestKeyManagement(t *testing.T) {
	ctx := context.Background()
	c, bank, _ := initialised(t)

	keys, err := c.GetBankKeyStore().LoadBankKeys(bank.HostID)
	require.NoError(t, err)
	assert.True(t, bank.Keys().Encryption.Equal(keys.Encryption))

	bank.Enqueue(bank.KeyManagementResponse("", "", nil, ""))
	var out bytes.Buffer
	require.NoError(t, KeyManagement(ctx, c, ebics.OrderINI, &out))
	assert.Contains(t, out.String(), "INI: technical EBICS_OK")

	bank.Enqueue(bank.KeyManagementResponse("091002", "", nil, "[EBICS_INVALID_USER_OR_USER_STATE]"))
	err = KeyManagement(ctx, c, ebics.OrderHIA, &out)
	assert.ErrorContains(t, err, "HIA rejected by bank")

	assert.ErrorIs(t, KeyManagement(ctx, c, "XYZ", &out), ebics.ErrUnsupportedOrderType)
}

func TestKeyManagement_WithoutKeys(t *testing.T) {
	c := newTestContainer(t, ebicstest.NewBank(t))
	err := KeyManagement(context.Background(), c, ebics.OrderINI, &bytes.Buffer{})
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	c, bank, user := initialised(t)

	scriptDownload(t, bank, user, []byte("camt.053 payload"))
	output := filepath.Join(t.TempDir(), "c53.xml")
	require.NoError(t, Download(ctx, c, ebics.OrderC53, time.Time{}, time.Time{}, output, &bytes.Buffer{}))
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "camt.053 payload", string(got))

	scriptDownload(t, bank, user, []byte("to stdout"))
	var out bytes.Buffer
	require.NoError(t, Download(ctx, c, ebics.OrderHAA, time.Time{}, time.Time{}, "", &out))
	assert.Equal(t, "to stdout", out.String())

	bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Initialisation", TechCode: "090005"}))
	out.Reset()
	require.NoError(t, Download(ctx, c, ebics.OrderSTA, time.Time{}, time.Time{}, "", &out))
	assert.Empty(t, out.String())

	bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Initialisation", TechCode: "091005"}))
	assert.ErrorContains(t, Download(ctx, c, ebics.OrderSTA, time.Time{}, time.Time{}, "", &out), "rejected")
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	c, bank, _ := initialised(t)

	file := filepath.Join(t.TempDir(), "pain.001.xml")
	require.NoError(t, os.WriteFile(file, []byte("<Document/>"), 0600))

	bank.Enqueue(
		bank.Response(ebicstest.Reply{Phase: "Initialisation", TransactionID: "TX2"}),
		bank.Response(ebicstest.Reply{Phase: "Transfer", TransactionID: "TX2", SegmentNumber: 1, LastSegment: true}),
	)
	var out bytes.Buffer
	require.NoError(t, Upload(ctx, c, ebics.OrderCCT, file, &out))
	assert.Contains(t, out.String(), "CCT: technical EBICS_OK")

	docs := bank.Requests()
	got, err := bank.OpenUpload(docs[len(docs)-2], docs[len(docs)-1])
	require.NoError(t, err)
	assert.Equal(t, "<Document/>", string(got))

	assert.Error(t, Upload(ctx, c, ebics.OrderCCT, filepath.Join(t.TempDir(), "missing"), &out))
}

func TestStatements(t *testing.T) {
	ctx := context.Background()
	c, bank, user := initialised(t)

	scriptDownload(t, bank, user, []byte(mt940Feed))
	output := filepath.Join(t.TempDir(), "statements.csv")
	stmts, err := Statements(ctx, c, time.Time{}, time.Time{}, false, output, true)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "1234567", stmts[0].AccountCode)

	csv, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "John Doe")
	assert.Contains(t, string(csv), "15.01.2024")

	bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Initialisation", TechCode: "090005"}))
	stmts, err = Statements(ctx, c, time.Time{}, time.Time{}, true, output, false)
	require.NoError(t, err)
	assert.Empty(t, stmts)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range Cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"keygen", "ini", "hia", "hpb", "download", "upload", "statements"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, downloadCmd.Flags().Lookup("from"))
	assert.NotNil(t, statementsCmd.Flags().Lookup("intraday"))
}
