package natural

import (
	"context"
	"strings"
	"testing"

	"github.com/lumenforge/agentrt/internal/memory"
	"github.com/lumenforge/agentrt/pkg/models"
)

func TestEstimateTokensWeightsCodeBlocks(t *testing.T) {
	plain := EstimateTokens(strings.Repeat("a", 27))
	if plain != 10 {
		t.Fatalf("plain estimate = %d, want 10", plain)
	}

	fenced := EstimateTokens("```" + strings.Repeat("a", 27) + "```")
	if fenced <= plain {
		t.Fatalf("fenced estimate %d should exceed plain estimate %d", fenced, plain)
	}
}

func TestCompressLeavesShortHistoryUnchanged(t *testing.T) {
	wm := memory.NewWorkingMemory()
	history := []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}
	cfg := CompressorConfig{TokenThreshold: 1000, KeepRecent: 2, Version: "v1"}

	out, err := Compress(context.Background(), cfg, wm, history, nil)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(out) != len(history) {
		t.Fatalf("expected unchanged history, got %d messages", len(out))
	}
}

func TestCompressSummarizesOldestAndCaches(t *testing.T) {
	wm := memory.NewWorkingMemory()
	var history []models.Message
	for i := 0; i < 20; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: strings.Repeat("word ", 50)})
	}
	cfg := CompressorConfig{TokenThreshold: 10, KeepRecent: 2, Version: "v1"}

	calls := 0
	summarizer := func(ctx context.Context, messages []models.Message) (string, error) {
		calls++
		return "summary text", nil
	}

	out, err := Compress(context.Background(), cfg, wm, history, summarizer)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 1 summary + 2 kept messages, got %d", len(out))
	}
	if out[0].Role != models.RoleSystem || !strings.Contains(out[0].Content, "[sdk.summary:v1]") {
		t.Fatalf("expected tagged system summary, got %+v", out[0])
	}
	if calls != 1 {
		t.Fatalf("expected summarizer called once, got %d", calls)
	}

	out2, err := Compress(context.Background(), cfg, wm, history, summarizer)
	if err != nil {
		t.Fatalf("second Compress: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached summary to avoid a second summarizer call, got %d calls", calls)
	}
	if len(out2) != 3 {
		t.Fatalf("expected cached path to also produce 3 messages, got %d", len(out2))
	}
}
