// Package trace implements the span tracer: an explicit per-tracer
// span stack, root-only export, and pluggable exporters (spec.md
// §4.6).
package trace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lumenforge/agentrt/pkg/models"
)

// Exporter receives a fully-linked root span when it closes.
type Exporter interface {
	Export(span *models.Span)
}

// DiscardExporter drops every span.
type DiscardExporter struct{}

// Export implements Exporter.
func (DiscardExporter) Export(*models.Span) {}

// CallbackExporter forwards each root span to a user-supplied function.
type CallbackExporter struct {
	Func func(*models.Span)
}

// Export implements Exporter.
func (c CallbackExporter) Export(span *models.Span) {
	if c.Func != nil {
		c.Func(span)
	}
}

// ConsoleExporter logs each root span via a Printf-style sink. Nil
// Printf defaults to fmt.Printf.
type ConsoleExporter struct {
	Printf func(format string, args ...any)
}

// Export implements Exporter.
func (c ConsoleExporter) Export(span *models.Span) {
	printf := c.Printf
	if printf == nil {
		printf = fmt.Printf
	}
	printf("[trace %s] %s (%s) status=%s duration=%s\n",
		span.TraceID, span.Name, span.Kind, span.Status, span.Duration())
}

// Tracer maintains one trace id and an explicit span stack. Callers
// wrap units of work with Span, not goroutine-local context, matching
// spec.md's explicit-stack-per-tracer model.
type Tracer struct {
	mu       sync.Mutex
	traceID  string
	stack    []*models.Span
	exporter Exporter
	disabled bool
}

// New creates a Tracer exporting root spans via exporter. A nil
// exporter discards spans. A fresh trace id is minted immediately.
func New(exporter Exporter) *Tracer {
	if exporter == nil {
		exporter = DiscardExporter{}
	}
	return &Tracer{traceID: newTraceID(), exporter: exporter}
}

// Disable turns this tracer into a no-op: Span still returns a usable
// End function, but no spans are created or exported.
func (t *Tracer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = true
}

// TraceID returns the tracer's current trace id.
func (t *Tracer) TraceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.traceID
}

// ResetTraceID starts a fresh trace, discarding any in-flight stack.
func (t *Tracer) ResetTraceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traceID = newTraceID()
	t.stack = nil
	return t.traceID
}

// Started is a handle to an open span returned by Span; call End to
// close it.
type Started struct {
	tracer *Tracer
	span   *models.Span
	noop   bool
}

// Span opens a new span as a child of the current stack top (or a
// root if the stack is empty), pushes it onto the stack, and returns
// a handle to close it. Disabled tracers return a no-op handle.
func (t *Tracer) Span(name string, kind models.SpanKind, attrs map[string]any) *Started {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disabled {
		return &Started{noop: true}
	}

	span := &models.Span{
		SpanID:     newSpanID(),
		TraceID:    t.traceID,
		Name:       name,
		Kind:       kind,
		StartTime:  time.Now().UTC(),
		Attributes: attrs,
		Status:     models.SpanRunning,
	}
	if len(t.stack) > 0 {
		parent := t.stack[len(t.stack)-1]
		span.ParentID = parent.SpanID
		parent.Children = append(parent.Children, span)
	}
	t.stack = append(t.stack, span)

	return &Started{tracer: t, span: span}
}

// End closes the span with status ok (or error, if err is non-nil)
// and, if it was a root span, exports the fully-linked subtree.
func (s *Started) End(err error) {
	if s == nil || s.noop {
		return
	}
	t := s.tracer
	t.mu.Lock()
	s.span.EndTime = time.Now().UTC()
	if err != nil {
		s.span.Status = models.SpanError
		s.span.Error = err.Error()
	} else {
		s.span.Status = models.SpanOK
	}

	if len(t.stack) > 0 && t.stack[len(t.stack)-1] == s.span {
		t.stack = t.stack[:len(t.stack)-1]
	}
	isRoot := s.span.ParentID == ""
	exporter := t.exporter
	span := s.span
	t.mu.Unlock()

	if isRoot {
		exporter.Export(span)
	}
}

// SetAttribute records an attribute on the open span.
func (s *Started) SetAttribute(key string, value any) {
	if s == nil || s.noop {
		return
	}
	t := s.tracer
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.span.Attributes == nil {
		s.span.Attributes = map[string]any{}
	}
	s.span.Attributes[key] = value
}

// newTraceID returns a 32-character lowercase hex string (16 random
// bytes), matching spec.md §3's trace_id format.
func newTraceID() string {
	return randomHex(16)
}

// newSpanID returns a 12-character lowercase hex string (6 random
// bytes), matching spec.md §3's span_id format.
func newSpanID() string {
	return randomHex(6)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("trace: read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}
