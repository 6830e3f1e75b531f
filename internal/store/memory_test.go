package store

import (
	"context"
	"testing"
)

func TestMemoryStoreKV(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, _ := s.Get(ctx, "a:1", "k"); ok {
		t.Fatalf("expected miss on unset key")
	}
	if err := s.Set(ctx, "a:1", "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, _ := s.Get(ctx, "a:1", "k")
	if !ok || v != "v1" {
		t.Fatalf("got (%q, %v), want (v1, true)", v, ok)
	}

	// namespace isolation: same key, different namespace, must not see it.
	if _, ok, _ := s.Get(ctx, "a:2", "k"); ok {
		t.Fatalf("namespace isolation violated")
	}

	if err := s.Delete(ctx, "a:1", "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a:1", "k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestMemoryStoreListOrderingAndTrim(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ns := "agent:user"

	for _, v := range []string{"m1", "m2", "m3", "m4", "m5"} {
		if err := s.Append(ctx, ns, "history", v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.GetList(ctx, ns, "history", 0, 0)
	if err != nil {
		t.Fatalf("get_list: %v", err)
	}
	want := []string{"m1", "m2", "m3", "m4", "m5"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if err := s.TrimList(ctx, ns, "history", 3); err != nil {
		t.Fatalf("trim: %v", err)
	}
	got, _ = s.GetList(ctx, ns, "history", 0, 0)
	want = []string{"m3", "m4", "m5"}
	if !equalStrings(got, want) {
		t.Fatalf("trim_list did not preserve tail suffix: got %v, want %v", got, want)
	}

	n, _ := s.ListLength(ctx, ns, "history")
	if n != 3 {
		t.Fatalf("list_length = %d, want 3", n)
	}

	if err := s.ClearList(ctx, ns, "history"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ = s.ListLength(ctx, ns, "history")
	if n != 0 {
		t.Fatalf("list_length after clear = %d, want 0", n)
	}
}

func TestMemoryStoreListKeysUnion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ns := "agent:user"

	s.Set(ctx, ns, "kv_only", "x")
	s.Append(ctx, ns, "list_only", "y")
	s.Set(ctx, ns, "both", "x")
	s.Append(ctx, ns, "both", "y")

	keys, err := s.ListKeys(ctx, ns)
	if err != nil {
		t.Fatalf("list_keys: %v", err)
	}
	want := map[string]bool{"kv_only": true, "list_only": true, "both": true}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want keys %v", keys, want)
	}
	for _, k := range keys {
		if !want[k] {
			t.Fatalf("unexpected key %q", k)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
