package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Store.Driver != "memory" {
		t.Fatalf("store driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("llm provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if cfg.Handoff.MaxHopCount != 8 {
		t.Fatalf("max hop count = %d, want 8", cfg.Handoff.MaxHopCount)
	}
}

func TestLoadOverridesDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")
	body := "llm:\n  provider: openai\n  default_model: gpt-4o\nstore:\n  driver: sqlite\n  path: agentrt.db\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.DefaultModel != "gpt-4o" {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "agentrt.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Natural.StateEnabled != true {
		t.Fatalf("expected an untouched section to keep its default, got %+v", cfg.Natural)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
