package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lumenforge/agentrt/internal/store"
)

const longTermKey = "long_term"

// DefaultLongTermCacheTTL is the default TTL of LongTermMemory's
// full-object cache. Zero disables caching.
const DefaultLongTermCacheTTL = 300 * time.Second

// DefaultLongTermSchema returns a fresh instance of the built-in
// long-term profile schema (spec.md §3). Callers that supply their
// own schema treat the long-term value as opaque JSON instead.
func DefaultLongTermSchema() map[string]any {
	return map[string]any{
		"basic_info":   map[string]any{},
		"personality":  map[string]any{},
		"life_context": map[string]any{},
		"interests":    []any{},
		"summary":      "",
		"preferences":  map[string]any{},
		"meta": map[string]any{
			"conversation_count": 0,
			"created_at":         "",
			"updated_at":         "",
		},
	}
}

// LongTermMemory is the structured, durable user profile, deep-merged
// on update (spec.md §4.2).
type LongTermMemory struct {
	store      store.Store
	ns         string
	defaultFn  func() map[string]any
	cacheTTL   time.Duration

	mu        sync.Mutex
	cached    map[string]any
	cachedAt  time.Time
}

// LongTermOptions configures a LongTermMemory.
type LongTermOptions struct {
	// DefaultSchema produces a fresh default document when no value
	// has been stored yet. Nil uses DefaultLongTermSchema.
	DefaultSchema func() map[string]any

	// CacheTTL memoizes Get's full object. Unset (the Go zero value)
	// uses DefaultLongTermCacheTTL; a negative value disables caching,
	// as does DisableCache.
	CacheTTL time.Duration

	// DisableCache forces CacheTTL to zero regardless of CacheTTL.
	DisableCache bool
}

// NewLongTermMemory creates a LongTermMemory bound to namespace ns.
func NewLongTermMemory(s store.Store, ns string, opts LongTermOptions) *LongTermMemory {
	defaultFn := opts.DefaultSchema
	if defaultFn == nil {
		defaultFn = DefaultLongTermSchema
	}
	ttl := opts.CacheTTL
	if ttl == 0 && !opts.DisableCache {
		ttl = DefaultLongTermCacheTTL
	}
	if opts.DisableCache {
		ttl = 0
	}
	return &LongTermMemory{store: s, ns: ns, defaultFn: defaultFn, cacheTTL: ttl}
}

// Get returns the current long-term document, seeding it with a
// freshly stamped default schema on first read.
func (m *LongTermMemory) Get(ctx context.Context) (map[string]any, error) {
	if cached, ok := m.cacheLookup(); ok {
		return cloneValue(cached).(map[string]any), nil
	}

	raw, ok, err := m.store.Get(ctx, m.ns, longTermKey)
	if err != nil {
		return nil, fmt.Errorf("get long-term memory: %w", err)
	}
	if !ok {
		doc := m.defaultFn()
		stampCreated(doc)
		m.cacheStore(doc)
		return cloneValue(doc).(map[string]any), nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode long-term memory: %w", err)
	}
	m.cacheStore(doc)
	return cloneValue(doc).(map[string]any), nil
}

// Save overwrites the full long-term document.
func (m *LongTermMemory) Save(ctx context.Context, full map[string]any) error {
	encoded, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("encode long-term memory: %w", err)
	}
	if err := m.store.Set(ctx, m.ns, longTermKey, string(encoded)); err != nil {
		return fmt.Errorf("save long-term memory: %w", err)
	}
	m.cacheInvalidate()
	return nil
}

// Update deep-merges delta into the current document, bumps
// meta.conversation_count, and stamps meta.updated_at.
func (m *LongTermMemory) Update(ctx context.Context, delta map[string]any) (map[string]any, error) {
	current, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	merged := deepMerge(current, delta)
	bumpMeta(merged)
	if err := m.Save(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the stored long-term document entirely.
func (m *LongTermMemory) Delete(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.ns, longTermKey); err != nil {
		return fmt.Errorf("delete long-term memory: %w", err)
	}
	m.cacheInvalidate()
	return nil
}

func (m *LongTermMemory) cacheLookup() (map[string]any, bool) {
	if m.cacheTTL <= 0 {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return nil, false
	}
	if time.Since(m.cachedAt) > m.cacheTTL {
		return nil, false
	}
	return m.cached, true
}

func (m *LongTermMemory) cacheStore(doc map[string]any) {
	if m.cacheTTL <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = cloneValue(doc).(map[string]any)
	m.cachedAt = time.Now()
}

func (m *LongTermMemory) cacheInvalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

func stampCreated(doc map[string]any) {
	meta, _ := doc["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		doc["meta"] = meta
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if s, _ := meta["created_at"].(string); s == "" {
		meta["created_at"] = now
	}
}

func bumpMeta(doc map[string]any) {
	meta, _ := doc["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		doc["meta"] = meta
	}
	count, _ := meta["conversation_count"].(float64)
	if count == 0 {
		if iv, ok := meta["conversation_count"].(int); ok {
			count = float64(iv)
		}
	}
	meta["conversation_count"] = count + 1
	meta["updated_at"] = time.Now().UTC().Format(time.RFC3339)
}
