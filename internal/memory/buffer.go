package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenforge/agentrt/internal/store"
	"github.com/lumenforge/agentrt/pkg/models"
)

const (
	bufferKey     = "buffer"
	bufferMetaKey = "buffer_meta"
)

// DefaultBufferTriggerCount and DefaultBufferTriggerInterval are the
// default ConversationBuffer extraction thresholds.
const (
	DefaultBufferTriggerCount    = 20
	DefaultBufferTriggerInterval = 10 * time.Minute
)

// BufferEntry is one timestamped entry in a ConversationBuffer.
type BufferEntry struct {
	Role      models.Role `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

type bufferMeta struct {
	LastExtractionAt time.Time `json:"last_extraction_at"`
}

// ConversationBuffer is an append-only tail of recent messages
// awaiting memory extraction (spec.md §4.2).
type ConversationBuffer struct {
	store           store.Store
	ns              string
	triggerCount    int
	triggerInterval time.Duration
	now             func() time.Time
}

// BufferOptions configures a ConversationBuffer.
type BufferOptions struct {
	TriggerCount    int
	TriggerInterval time.Duration

	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// NewConversationBuffer creates a ConversationBuffer bound to namespace ns.
func NewConversationBuffer(s store.Store, ns string, opts BufferOptions) *ConversationBuffer {
	count := opts.TriggerCount
	if count <= 0 {
		count = DefaultBufferTriggerCount
	}
	interval := opts.TriggerInterval
	if interval <= 0 {
		interval = DefaultBufferTriggerInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ConversationBuffer{store: s, ns: ns, triggerCount: count, triggerInterval: interval, now: now}
}

// Add appends a timestamped entry to the buffer.
func (b *ConversationBuffer) Add(ctx context.Context, role models.Role, content string) error {
	encoded, err := json.Marshal(BufferEntry{Role: role, Content: content, Timestamp: b.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode buffer entry: %w", err)
	}
	return b.store.Append(ctx, b.ns, bufferKey, string(encoded))
}

// ShouldExtract reports whether the buffer has accumulated enough
// content, by count or by time, to warrant draining for extraction.
func (b *ConversationBuffer) ShouldExtract(ctx context.Context) (bool, error) {
	length, err := b.store.ListLength(ctx, b.ns, bufferKey)
	if err != nil {
		return false, fmt.Errorf("buffer length: %w", err)
	}
	if length >= b.triggerCount {
		return true, nil
	}
	if length == 0 {
		return false, nil
	}

	meta, ok, err := b.readMeta(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		// No extraction has ever happened and the buffer is non-empty.
		return true, nil
	}
	return b.now().Sub(meta.LastExtractionAt) >= b.triggerInterval, nil
}

// GetAndClear atomically (from the caller's perspective: under the
// store's own serialization) drains every entry, clears the list, and
// records the extraction time.
func (b *ConversationBuffer) GetAndClear(ctx context.Context) ([]BufferEntry, error) {
	raw, err := b.store.GetList(ctx, b.ns, bufferKey, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("drain buffer: %w", err)
	}
	if err := b.store.ClearList(ctx, b.ns, bufferKey); err != nil {
		return nil, fmt.Errorf("clear buffer: %w", err)
	}
	if err := b.writeMeta(ctx, bufferMeta{LastExtractionAt: b.now().UTC()}); err != nil {
		return nil, err
	}

	out := make([]BufferEntry, 0, len(raw))
	for _, entry := range raw {
		var e BufferEntry
		if err := json.Unmarshal([]byte(entry), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Clear discards the buffer contents without stamping extraction meta.
func (b *ConversationBuffer) Clear(ctx context.Context) error {
	return b.store.ClearList(ctx, b.ns, bufferKey)
}

func (b *ConversationBuffer) readMeta(ctx context.Context) (bufferMeta, bool, error) {
	raw, ok, err := b.store.Get(ctx, b.ns, bufferMetaKey)
	if err != nil {
		return bufferMeta{}, false, fmt.Errorf("read buffer meta: %w", err)
	}
	if !ok {
		return bufferMeta{}, false, nil
	}
	var meta bufferMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return bufferMeta{}, false, fmt.Errorf("decode buffer meta: %w", err)
	}
	return meta, true, nil
}

func (b *ConversationBuffer) writeMeta(ctx context.Context, meta bufferMeta) error {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode buffer meta: %w", err)
	}
	if err := b.store.Set(ctx, b.ns, bufferMetaKey, string(encoded)); err != nil {
		return fmt.Errorf("write buffer meta: %w", err)
	}
	return nil
}
