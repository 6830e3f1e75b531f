// Package store provides the namespaced key-value and ordered-list
// persistence contract that the memory framework is built on
// (spec.md §4.1).
package store

import "context"

// Store is the persistence contract every memory layer is built on.
// Every operation is namespaced; implementations MUST NOT let an
// operation on one namespace observe or mutate another.
type Store interface {
	// Get returns the value stored at (ns, key), or ("", false) if
	// unset.
	Get(ctx context.Context, ns, key string) (string, bool, error)

	// Set overwrites the value stored at (ns, key).
	Set(ctx context.Context, ns, key, value string) error

	// Delete removes the value stored at (ns, key), if any.
	Delete(ctx context.Context, ns, key string) error

	// ListKeys returns the union of KV and list keys present under ns.
	ListKeys(ctx context.Context, ns string) ([]string, error)

	// Append appends value to the tail of the ordered list at (ns, key).
	Append(ctx context.Context, ns, key, value string) error

	// GetList returns up to limit entries starting at offset, oldest
	// first. limit == 0 means "all".
	GetList(ctx context.Context, ns, key string, limit, offset int) ([]string, error)

	// TrimList drops the oldest entries so the list has at most
	// maxSize entries remaining, preserving the tail suffix.
	TrimList(ctx context.Context, ns, key string, maxSize int) error

	// ClearList removes every entry in the list at (ns, key).
	ClearList(ctx context.Context, ns, key string) error

	// ListLength returns the number of entries in the list at (ns, key).
	ListLength(ctx context.Context, ns, key string) (int, error)
}

// Namespace builds the "{agent_id}:{user_id}" namespace string used
// to isolate one session's storage from every other (spec.md §3).
func Namespace(agentID, userID string) string {
	return agentID + ":" + userID
}
