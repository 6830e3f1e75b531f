// Package config loads the runtime's top-level YAML configuration,
// mirroring the teacher's dual json+yaml tagged section structs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one runtime process.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	LLM      LLMConfig      `json:"llm" yaml:"llm"`
	Handoff  HandoffConfig  `json:"handoff" yaml:"handoff"`
	Natural  NaturalConfig  `json:"natural" yaml:"natural"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
}

// ServerConfig configures the composition root's own identity.
type ServerConfig struct {
	AgentID string `json:"agent_id" yaml:"agent_id"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is "memory" or "sqlite". Default "memory".
	Driver string `json:"driver" yaml:"driver"`
	// Path is the sqlite database file, used when Driver == "sqlite".
	Path string `json:"path" yaml:"path"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	// Provider is "anthropic", "openai", or "bedrock". Default "anthropic".
	Provider     string        `json:"provider" yaml:"provider"`
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Region       string        `json:"region" yaml:"region"`
	DefaultModel string        `json:"default_model" yaml:"default_model"`
	MaxTokens    int           `json:"max_tokens" yaml:"max_tokens"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// HandoffConfig configures the cross-agent delegation engine.
type HandoffConfig struct {
	IdempotencyTTL     time.Duration `json:"idempotency_ttl" yaml:"idempotency_ttl"`
	MaxHopCount        int           `json:"max_hop_count" yaml:"max_hop_count"`
	CrossOwnerDisabled bool          `json:"cross_owner_disabled" yaml:"cross_owner_disabled"`
	// SigningKey, when non-empty, turns on signed identity tokens for
	// every handoff request.
	SigningKey string `json:"signing_key" yaml:"signing_key"`
}

// NaturalConfig toggles the proactive-conversation feature set.
type NaturalConfig struct {
	StateEnabled    bool `json:"state_enabled" yaml:"state_enabled"`
	EmotionEnabled  bool `json:"emotion_enabled" yaml:"emotion_enabled"`
	StyleEnabled    bool `json:"style_enabled" yaml:"style_enabled"`
	OpenerEnabled   bool `json:"opener_enabled" yaml:"opener_enabled"`
	CompressEnabled bool `json:"compress_enabled" yaml:"compress_enabled"`
	FeedbackEnabled bool `json:"feedback_enabled" yaml:"feedback_enabled"`
}

// TracingConfig configures the optional OTLP span exporter. An empty
// Endpoint keeps tracing local (console only).
type TracingConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Insecure  bool   `json:"insecure" yaml:"insecure"`
}

// LoggingConfig configures the process-wide slog handler.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error". Default "info".
	Level string `json:"level" yaml:"level"`
	// JSON selects the slog JSON handler over the text handler.
	JSON bool `json:"json" yaml:"json"`
}

// Default returns a Config with every subsystem's documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{AgentID: "agentrt"},
		Store:  StoreConfig{Driver: "memory"},
		LLM:    LLMConfig{Provider: "anthropic"},
		Handoff: HandoffConfig{
			IdempotencyTTL: 86400 * time.Second,
			MaxHopCount:    8,
		},
		Natural: NaturalConfig{StateEnabled: true, EmotionEnabled: true, StyleEnabled: true},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and parses the YAML configuration at path, applying
// Default() for any zero-valued section the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
