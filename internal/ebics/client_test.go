package ebics

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"fjacquet/ebics-mt940/internal/ebics/ebicstest"
	"fjacquet/ebics-mt940/internal/envelope"
	"fjacquet/ebics-mt940/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyBits = 1024

func newTestClient(t *testing.T) (*Client, *ebicstest.Bank) {
	t.Helper()
	bank := ebicstest.NewBank(t)
	keys, err := envelope.GenerateUserKeys(testKeyBits, envelope.SignatureA005)
	require.NoError(t, err)
	cfg := &Config{
		URL:       bank.URL(),
		HostID:    bank.HostID,
		PartnerID: "PARTNER1",
		UserID:    "USER1",
		UserKeys:  keys,
		BankKeys:  bank.Keys(),
	}
	return NewClient(cfg, nil, logging.NewMockLogger()), bank
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// scriptDownload queues the replies of a complete download of data.
func scriptDownload(t *testing.T, bank *ebicstest.Bank, user *envelope.UserKeys, data []byte) int {
	t.Helper()
	segs, enc, err := ebicstest.Encrypt(&user.Encryption.PublicKey, data, SegmentSize)
	require.NoError(t, err)
	n := len(segs)
	bank.Enqueue(bank.Response(ebicstest.Reply{
		Phase:         "Initialisation",
		TransactionID: "TX0001",
		NumSegments:   n,
		SegmentNumber: 1,
		LastSegment:   n == 1,
		OrderData:     segs[0],
		Encryption:    enc,
	}))
	for i := 2; i <= n; i++ {
		bank.Enqueue(bank.Response(ebicstest.Reply{
			Phase:         "Transfer",
			TransactionID: "TX0001",
			SegmentNumber: i,
			LastSegment:   i == n,
			OrderData:     segs[i-1],
		}))
	}
	bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Receipt", TransactionID: "TX0001", TechCode: "011000"}))
	return n
}

func summaries(t *testing.T, docs [][]byte) []ebicstest.Summary {
	t.Helper()
	out := make([]ebicstest.Summary, len(docs))
	for i, d := range docs {
		s, err := ebicstest.Inspect(d)
		require.NoError(t, err)
		out[i] = s
	}
	return out
}

func TestClient_DownloadMultipleSegments(t *testing.T) {
	client, bank := newTestClient(t)
	data := randomBytes(t, 3000)
	n := scriptDownload(t, bank, client.Config().UserKeys, data)
	require.Greater(t, n, 2)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	resp, err := client.STA(context.Background(), from, to)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "TX0001", resp.TransactionID)
	assert.Equal(t, data, resp.Data)

	reqs := summaries(t, bank.Requests())
	require.Len(t, reqs, n+1)
	assert.Equal(t, "Initialisation", reqs[0].Phase)
	assert.Equal(t, OrderSTA, reqs[0].OrderType)
	for i := 1; i < n; i++ {
		assert.Equal(t, "Transfer", reqs[i].Phase)
		assert.Equal(t, "TX0001", reqs[i].TransactionID)
		assert.Equal(t, strconv.Itoa(i+1), reqs[i].SegmentNumber)
		assert.Equal(t, strconv.FormatBool(i+1 == n), reqs[i].LastSegment)
	}
	assert.Equal(t, "Receipt", reqs[n].Phase)
	for _, r := range reqs {
		assert.True(t, r.Signed, "request %s is not signed", r.Phase)
	}
}

func TestClient_DownloadNoData(t *testing.T) {
	client, bank := newTestClient(t)
	bank.Enqueue(bank.Response(ebicstest.Reply{
		Phase:      "Initialisation",
		TechCode:   "090005",
		ReportText: "[EBICS_NO_DOWNLOAD_DATA_AVAILABLE] No data",
	}))

	resp, err := client.C53(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, CodeNoDownloadDataAvailable, resp.TechnicalReturnCode)
	assert.Equal(t, "[EBICS_NO_DOWNLOAD_DATA_AVAILABLE] No data", resp.ReportText)
	assert.Nil(t, resp.Data)
	assert.Len(t, bank.Requests(), 1)
}

const mt940Feed = ":20:REF\r\n" +
	":25:BANK/ACCT\r\n" +
	":28C:1/1\r\n" +
	":60F:C240101EUR100,00\r\n" +
	":61:2401150115C50,00NTRFNONREF//B123\r\n" +
	":86:166?00GUTSCHRIFT?20EREF+E2E1?21SVWZ+Rent?32John Doe\r\n" +
	":62F:C240131EUR150,00\r\n" +
	"-"

func TestClient_Statements(t *testing.T) {
	client, bank := newTestClient(t)
	scriptDownload(t, bank, client.Config().UserKeys, []byte(mt940Feed))

	stmts, resp, err := client.Statements(context.Background(), time.Time{}, time.Time{}, false)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	require.Len(t, stmts, 1)
	assert.Equal(t, "ACCT", stmts[0].AccountCode)
	require.Len(t, stmts[0].Transactions, 1)
}

func TestClient_Upload(t *testing.T) {
	client, bank := newTestClient(t)
	data := randomBytes(t, 2000)

	bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Initialisation", TransactionID: "TX0002"}))
	for i := 1; i <= 3; i++ {
		bank.Enqueue(bank.Response(ebicstest.Reply{Phase: "Transfer", TransactionID: "TX0002", SegmentNumber: i, LastSegment: i == 3}))
	}

	resp, err := client.Upload(context.Background(), OrderCCT, data)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	docs := bank.Requests()
	reqs := summaries(t, docs)
	require.Len(t, reqs, 4, "init and exactly three transfers, no receipt")
	assert.Equal(t, OrderCCT, reqs[0].OrderType)
	for i, r := range reqs[1:] {
		assert.Equal(t, "Transfer", r.Phase)
		assert.Equal(t, "TX0002", r.TransactionID)
		assert.Equal(t, strconv.Itoa(i+1), r.SegmentNumber)
		assert.LessOrEqual(t, len(r.OrderData), SegmentSize)
	}
	assert.Equal(t, "true", reqs[3].LastSegment)

	got, err := bank.OpenUpload(docs[0], docs[1:]...)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestClient_HPB(t *testing.T) {
	client, bank := newTestClient(t)
	client.Config().BankKeys = nil

	reply, err := bank.HPBResponse(&client.Config().UserKeys.Encryption.PublicKey)
	require.NoError(t, err)
	bank.Enqueue(reply)

	resp, err := client.HPB(context.Background())
	require.NoError(t, err)
	require.True(t, resp.OK())

	got := client.Config().BankKeys
	require.NotNil(t, got)
	want := bank.Keys()
	assert.Equal(t, want.Authentication.N, got.Authentication.N)
	assert.Equal(t, want.Authentication.E, got.Authentication.E)
	assert.Equal(t, want.Encryption.N, got.Encryption.N)
	assert.Equal(t, envelope.AuthenticationX002, got.AuthenticationVersion)

	reqs := summaries(t, bank.Requests())
	require.Len(t, reqs, 1)
	assert.Equal(t, "ebicsNoPubKeyDigestsRequest", reqs[0].Root)
	assert.Equal(t, OrderHPB, reqs[0].OrderType)
	assert.True(t, reqs[0].Signed)
}

func TestClient_KeyManagementUploads(t *testing.T) {
	tests := []struct {
		name      string
		run       func(*Client) (*Response, error)
		orderType string
		rootTag   string
	}{
		{"INI", func(c *Client) (*Response, error) { return c.INI(context.Background()) }, OrderINI, "SignaturePubKeyOrderData"},
		{"HIA", func(c *Client) (*Response, error) { return c.HIA(context.Background()) }, OrderHIA, "HIARequestOrderData"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, bank := newTestClient(t)
			bank.Enqueue(bank.KeyManagementResponse("", "", nil, ""))

			resp, err := tt.run(client)
			require.NoError(t, err)
			assert.True(t, resp.OK())

			reqs := summaries(t, bank.Requests())
			require.Len(t, reqs, 1)
			assert.Equal(t, "ebicsUnsecuredRequest", reqs[0].Root)
			assert.Equal(t, tt.orderType, reqs[0].OrderType)
			assert.False(t, reqs[0].Signed)

			z, err := base64.StdEncoding.DecodeString(reqs[0].OrderData)
			require.NoError(t, err)
			orderData, err := envelope.Decompress(z)
			require.NoError(t, err)
			assert.Contains(t, string(orderData), "<"+tt.rootTag)
			assert.Contains(t, string(orderData), "<PartnerID>PARTNER1</PartnerID>")
		})
	}
}

func TestClient_KeyManagementRejected(t *testing.T) {
	client, bank := newTestClient(t)
	bank.Enqueue(bank.KeyManagementResponse("091002", "", nil, ""))

	resp, err := client.INI(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, 91002, resp.TechnicalReturnCode)
}

func TestClient_Errors(t *testing.T) {
	t.Run("missing bank keys", func(t *testing.T) {
		client, bank := newTestClient(t)
		client.Config().BankKeys = nil

		_, err := client.STA(context.Background(), time.Time{}, time.Time{})
		require.ErrorIs(t, err, ErrMissingKeys)
		var createErr *CreateRequestError
		assert.ErrorAs(t, err, &createErr)
		assert.Empty(t, bank.Requests())
	})

	t.Run("response signed by another bank", func(t *testing.T) {
		client, bank := newTestClient(t)
		other := ebicstest.NewBank(t)
		bank.Enqueue(other.Response(ebicstest.Reply{Phase: "Initialisation", TechCode: "090005"}))

		_, err := client.STA(context.Background(), time.Time{}, time.Time{})
		var sigErr *SignatureError
		assert.ErrorAs(t, err, &sigErr)
	})

	t.Run("http error", func(t *testing.T) {
		client, bank := newTestClient(t)
		bank.EnqueueStatus(http.StatusInternalServerError)

		_, err := client.STA(context.Background(), time.Time{}, time.Time{})
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, http.StatusInternalServerError, connErr.StatusCode)
	})

	t.Run("wrong encryption key digest", func(t *testing.T) {
		client, bank := newTestClient(t)
		stranger, err := envelope.GenerateUserKeys(testKeyBits, envelope.SignatureA005)
		require.NoError(t, err)
		scriptDownload(t, bank, stranger, []byte("data"))

		_, err = client.STA(context.Background(), time.Time{}, time.Time{})
		var decodeErr *DeserializationError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, err.Error(), "wrong digest")
	})
}

func TestClient_Order(t *testing.T) {
	client, bank := newTestClient(t)
	scriptDownload(t, bank, client.Config().UserKeys, []byte("payload"))

	resp, err := client.Order(context.Background(), DateRangeParams{OrderType: OrderHAA})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), resp.Data)

	_, err = client.Order(context.Background(), DateRangeParams{OrderType: "ZZZ"})
	assert.ErrorIs(t, err, ErrUnsupportedOrderType)
}
