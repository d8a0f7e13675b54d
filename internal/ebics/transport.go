package ebics

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"fjacquet/ebics-mt940/internal/logging"
)

// DefaultTimeout bounds one HTTP round trip to the bank.
const DefaultTimeout = 60 * time.Second

// maxResponseSize caps the body read from the bank.
const maxResponseSize = 64 << 20

// Transport delivers one request document and returns the bank's answer.
type Transport interface {
	Send(ctx context.Context, body []byte) ([]byte, error)
}

// HTTPTransport posts requests to the bank's EBICS URL.
type HTTPTransport struct {
	url    string
	client *http.Client
	logger logging.Logger
}

// NewHTTPTransport creates a transport that requires TLS 1.2 or later.
func NewHTTPTransport(url string, timeout time.Duration, logger logging.Logger) *HTTPTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPTransport{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger: logging.OrDefault(logger),
	}
}

// NewHTTPTransportWithClient uses client as is.
func NewHTTPTransportWithClient(url string, client *http.Client, logger logging.Logger) *HTTPTransport {
	return &HTTPTransport{url: url, client: client, logger: logging.OrDefault(logger)}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) ([]byte, error) {
	t.logger.Debug("Sending request", logging.Field{Key: "bytes", Value: len(body)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		t.logger.Error("Unexpected HTTP status", logging.Field{Key: logging.FieldStatus, Value: resp.StatusCode})
		return nil, &ConnectionError{StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &ConnectionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	t.logger.Debug("Got response", logging.Field{Key: "bytes", Value: len(payload)})
	return payload, nil
}
