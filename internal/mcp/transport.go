package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// TransportError describes a failed transport call (such as a non-2xx
// HTTP status); Retryable marks failures worth retrying (5xx, 429)
// (spec.md §4.7).
type TransportError struct {
	StatusCode  int
	BodyPreview string
	Retryable   bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp transport error: status=%d body=%s", e.StatusCode, e.BodyPreview)
}

// RequestHandler answers a server-initiated JSON-RPC request (one with
// no corresponding pending Call), returning the JSON-RPC "result" value
// to report back, or an error to report as an RPCError.
type RequestHandler func(method string, params json.RawMessage) (json.RawMessage, error)

// Transport is the request/response contract every MCP wire format
// implements: send a raw JSON-RPC payload, get a raw JSON-RPC payload
// back. Framing (newline-delimited stdio frames, HTTP bodies) is the
// transport's concern, not the client's.
type Transport interface {
	Connect(ctx context.Context) error
	Call(ctx context.Context, payload []byte) ([]byte, error)
	Close() error
	Connected() bool

	// SetRequestHandler registers the handler a transport capable of
	// server-initiated requests (e.g. stdio's duplex stream) dispatches
	// to when it reads a frame carrying "method" instead of a pending
	// call's "id"-matched response. Transports with no server-push
	// capability implement this as a no-op.
	SetRequestHandler(handler RequestHandler)
}

// NewTransport builds the Transport matching cfg.Transport.
func NewTransport(cfg *ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg), nil
	case TransportStdio:
		return NewStdioTransport(cfg), nil
	case TransportInProcess:
		return nil, nil // caller supplies one directly via NewInProcessTransport
	default:
		return nil, &TransportError{BodyPreview: "unknown transport: " + string(cfg.Transport)}
	}
}
