package natural

import "testing"

func TestDefaultConfigGating(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.StateEnabled || !cfg.EmotionEnabled || !cfg.StyleEnabled {
		t.Fatalf("expected state/emotion/style on by default, got %+v", cfg)
	}
	if cfg.OpenerEnabled || cfg.CompressEnabled || cfg.FeedbackEnabled {
		t.Fatalf("expected opener/compress/feedback off by default, got %+v", cfg)
	}
}
