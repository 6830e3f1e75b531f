package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenforge/agentrt/internal/store"
	"github.com/lumenforge/agentrt/pkg/models"
)

const shortTermKey = "short_term"

// DefaultMaxMessages is the default ShortTermMemory window size.
const DefaultMaxMessages = 40

// ShortTermMemory is the rolling last-N-messages window of a
// conversation, persisted via Store (spec.md §4.2).
type ShortTermMemory struct {
	store       store.Store
	ns          string
	maxMessages int
}

// NewShortTermMemory creates a ShortTermMemory bound to namespace ns.
// maxMessages <= 0 uses DefaultMaxMessages.
func NewShortTermMemory(s store.Store, ns string, maxMessages int) *ShortTermMemory {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &ShortTermMemory{store: s, ns: ns, maxMessages: maxMessages}
}

// AddMessage appends a message and trims the window to maxMessages.
func (m *ShortTermMemory) AddMessage(ctx context.Context, role models.Role, content string) error {
	encoded, err := json.Marshal(models.Message{Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("encode short-term message: %w", err)
	}
	if err := m.store.Append(ctx, m.ns, shortTermKey, string(encoded)); err != nil {
		return fmt.Errorf("append short-term message: %w", err)
	}
	return m.store.TrimList(ctx, m.ns, shortTermKey, m.maxMessages)
}

// GetHistory returns up to limit messages, oldest first. limit <= 0
// means "all retained messages".
func (m *ShortTermMemory) GetHistory(ctx context.Context, limit int) ([]models.Message, error) {
	raw, err := m.store.GetList(ctx, m.ns, shortTermKey, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get short-term history: %w", err)
	}
	if limit > 0 && limit < len(raw) {
		raw = raw[len(raw)-limit:]
	}
	out := make([]models.Message, 0, len(raw))
	for _, entry := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue // tolerate a corrupt entry rather than fail the whole read
		}
		out = append(out, msg)
	}
	return out, nil
}

// Clear removes the entire short-term window.
func (m *ShortTermMemory) Clear(ctx context.Context) error {
	return m.store.ClearList(ctx, m.ns, shortTermKey)
}
