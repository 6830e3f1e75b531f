package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const httpBodyPreviewLimit = 512
const httpBodyReadCap = 128 << 10

// HTTPTransport POSTs a JSON-RPC payload to cfg.URL per call.
type HTTPTransport struct {
	config *ServerConfig
	client *http.Client

	connected atomic.Bool
}

// NewHTTPTransport creates an HTTPTransport for cfg.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{config: cfg, client: &http.Client{Timeout: timeout}}
}

// Connect marks the transport ready; HTTP has no persistent session.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("mcp http transport %s: url is required", t.config.ID)
	}
	t.connected.Store(true)
	return nil
}

// Connected reports whether Connect succeeded and Close hasn't run.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}

// Close marks the transport unusable; the underlying http.Client has
// no persistent resources to release.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// SetRequestHandler is a no-op: a unary HTTP POST never carries an
// unsolicited server-to-client request.
func (t *HTTPTransport) SetRequestHandler(RequestHandler) {}

// Call POSTs payload as the request body. A non-2xx response becomes
// a *TransportError carrying a truncated body preview; 5xx and 429
// are flagged retryable.
func (t *HTTPTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	if !t.Connected() {
		return nil, fmt.Errorf("mcp http transport %s: not connected", t.config.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp http transport %s: %w", t.config.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpBodyReadCap))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := body
		if len(preview) > httpBodyPreviewLimit {
			preview = preview[:httpBodyPreviewLimit]
		}
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &TransportError{StatusCode: resp.StatusCode, BodyPreview: string(preview), Retryable: retryable}
	}

	return body, nil
}
