package mcp

import (
	"context"
	"sync/atomic"
)

// InProcessHandler answers a raw JSON-RPC request payload directly,
// without any wire framing, for deterministic tests.
type InProcessHandler func(ctx context.Context, payload []byte) ([]byte, error)

// InProcessTransport dispatches Call synchronously to a handler
// function, used in place of a spawned process or HTTP server in
// tests (spec.md §4.7).
type InProcessTransport struct {
	handler   InProcessHandler
	connected atomic.Bool
}

// NewInProcessTransport wraps handler as a Transport.
func NewInProcessTransport(handler InProcessHandler) *InProcessTransport {
	return &InProcessTransport{handler: handler}
}

// Connect marks the transport ready.
func (t *InProcessTransport) Connect(ctx context.Context) error {
	t.connected.Store(true)
	return nil
}

// Call invokes the wrapped handler directly.
func (t *InProcessTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	return t.handler(ctx, payload)
}

// Close marks the transport unusable.
func (t *InProcessTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// Connected reports whether Connect has run and Close hasn't.
func (t *InProcessTransport) Connected() bool {
	return t.connected.Load()
}

// SetRequestHandler is a no-op: the wrapped handler only ever answers
// calls this client makes, never initiates one of its own.
func (t *InProcessTransport) SetRequestHandler(RequestHandler) {}
