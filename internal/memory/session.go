package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenforge/agentrt/internal/store"
	"github.com/lumenforge/agentrt/pkg/models"
)

// Extractor distills a drained conversation buffer plus the current
// long-term document into a delta to merge into long-term memory. A
// nil or empty-map return means "nothing worth remembering".
type Extractor func(ctx context.Context, drained []BufferEntry, current map[string]any) (map[string]any, error)

// Session is the facade composing WorkingMemory, ShortTermMemory,
// LongTermMemory, and ConversationBuffer over one Store, bound to a
// single (agent_id, user_id) pair (spec.md §4.3).
type Session struct {
	AgentID string
	UserID  string

	namespace string

	Working   *WorkingMemory
	ShortTerm *ShortTermMemory
	LongTerm  *LongTermMemory
	Buffer    *ConversationBuffer

	extractor Extractor
}

// SessionOptions configures a Session.
type SessionOptions struct {
	MaxShortTermMessages int
	LongTerm             LongTermOptions
	Buffer               BufferOptions
	Extractor            Extractor
}

// NewSession creates a Session for (agentID, userID) over s.
func NewSession(s store.Store, agentID, userID string, opts SessionOptions) *Session {
	ns := store.Namespace(agentID, userID)
	return &Session{
		AgentID:   agentID,
		UserID:    userID,
		namespace: ns,
		Working:   NewWorkingMemory(),
		ShortTerm: NewShortTermMemory(s, ns, opts.MaxShortTermMessages),
		LongTerm:  NewLongTermMemory(s, ns, opts.LongTerm),
		Buffer:    NewConversationBuffer(s, ns, opts.Buffer),
		extractor: opts.Extractor,
	}
}

// Namespace returns the "{agent_id}:{user_id}" namespace this session
// is bound to.
func (s *Session) Namespace() string {
	return s.namespace
}

// Load returns a read snapshot of short-term and long-term memory plus
// working memory; the extraction buffer is not included.
func (s *Session) Load(ctx context.Context) (*models.MemoryContext, error) {
	shortTerm, err := s.ShortTerm.GetHistory(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load short-term: %w", err)
	}
	longTerm, err := s.LongTerm.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load long-term: %w", err)
	}
	return &models.MemoryContext{
		Working:   s.Working.Snapshot(),
		ShortTerm: shortTerm,
		LongTerm:  longTerm,
	}, nil
}

// AddMessage appends to both short-term memory and the extraction
// buffer, as spec.md §4.3 requires.
func (s *Session) AddMessage(ctx context.Context, role models.Role, content string) error {
	if err := s.ShortTerm.AddMessage(ctx, role, content); err != nil {
		return err
	}
	return s.Buffer.Add(ctx, role, content)
}

// ExtractIfNeeded drains the buffer and merges an extractor-produced
// delta into long-term memory when due. Returns nil if no extractor
// is bound, extraction isn't due, or the extractor produced nothing.
func (s *Session) ExtractIfNeeded(ctx context.Context) (map[string]any, error) {
	if s.extractor == nil {
		return nil, nil
	}
	due, err := s.Buffer.ShouldExtract(ctx)
	if err != nil {
		return nil, err
	}
	if !due {
		return nil, nil
	}

	drained, err := s.Buffer.GetAndClear(ctx)
	if err != nil {
		return nil, err
	}

	current, err := s.LongTerm.Get(ctx)
	if err != nil {
		return nil, err
	}

	delta, err := s.extractor(ctx, drained, current)
	if err != nil {
		return nil, fmt.Errorf("extract long-term delta: %w", err)
	}
	if len(delta) == 0 {
		return nil, nil
	}

	if _, err := s.LongTerm.Update(ctx, delta); err != nil {
		return nil, err
	}
	return delta, nil
}

// FormatForPrompt renders long-term plus working memory as a
// human-readable text block. Returns ("", false) if there is no
// meaningful content to report.
func (s *Session) FormatForPrompt(ctx context.Context, template func(longTerm, working map[string]any) string) (string, bool, error) {
	longTerm, err := s.LongTerm.Get(ctx)
	if err != nil {
		return "", false, err
	}
	working := s.Working.Snapshot()

	if !hasMeaningfulContent(longTerm) && len(working) == 0 {
		return "", false, nil
	}

	if template != nil {
		return template(longTerm, working), true, nil
	}
	return defaultFormat(longTerm, working), true, nil
}

func hasMeaningfulContent(doc map[string]any) bool {
	for k, v := range doc {
		if k == "meta" {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return true
			}
		case map[string]any:
			if len(t) > 0 {
				return true
			}
		case []any:
			if len(t) > 0 {
				return true
			}
		case nil:
			continue
		default:
			return true
		}
	}
	return false
}

func defaultFormat(longTerm, working map[string]any) string {
	var b strings.Builder
	b.WriteString("User memory:\n")
	for _, key := range []string{"summary", "basic_info", "personality", "life_context", "interests", "preferences"} {
		v, ok := longTerm[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", key, t)
		case []any:
			if len(t) == 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", key, t)
		case map[string]any:
			if len(t) == 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: %v\n", key, t)
		}
	}
	if len(working) > 0 {
		b.WriteString("Session state:\n")
		for k, v := range working {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// SaveLongTerm re-persists the current long-term document as-is.
func (s *Session) SaveLongTerm(ctx context.Context) error {
	current, err := s.LongTerm.Get(ctx)
	if err != nil {
		return err
	}
	return s.LongTerm.Save(ctx, current)
}

// UpdateLongTerm deep-merges updates into long-term memory directly,
// bypassing the buffer/extractor path.
func (s *Session) UpdateLongTerm(ctx context.Context, updates map[string]any) (map[string]any, error) {
	return s.LongTerm.Update(ctx, updates)
}

// ClearHistory clears the short-term message window.
func (s *Session) ClearHistory(ctx context.Context) error {
	return s.ShortTerm.Clear(ctx)
}

// ClearBuffer clears the extraction buffer.
func (s *Session) ClearBuffer(ctx context.Context) error {
	return s.Buffer.Clear(ctx)
}

// ClearAll clears working, short-term, long-term, and buffer memory.
func (s *Session) ClearAll(ctx context.Context) error {
	s.Working.Clear()
	if err := s.ShortTerm.Clear(ctx); err != nil {
		return err
	}
	if err := s.LongTerm.Delete(ctx); err != nil {
		return err
	}
	return s.Buffer.Clear(ctx)
}
