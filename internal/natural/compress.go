package natural

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumenforge/agentrt/internal/memory"
	"github.com/lumenforge/agentrt/pkg/models"
)

// charsPerToken approximates tokens from character count when no
// tokenizer is wired in (spec.md §4.13).
const charsPerToken = 2.7

// codeBlockWeight is the multiplier applied to characters inside
// triple-backtick fences, which tokenize denser than prose.
const codeBlockWeight = 1.5

// CompressorConfig bounds when and how history gets summarized.
type CompressorConfig struct {
	// TokenThreshold triggers a compression pass once EstimateTokens
	// of the full message list reaches or exceeds it.
	TokenThreshold int

	// KeepRecent is the number of most recent messages left
	// untouched; everything older is a candidate for summarization.
	KeepRecent int

	// Version is embedded in the cache key and the summary tag so a
	// format change invalidates stale cached summaries.
	Version string
}

// Summarizer condenses a run of messages into a short text summary,
// typically backed by an LLM call.
type Summarizer func(ctx context.Context, messages []models.Message) (string, error)

// EstimateTokens approximates the token count of text, weighting
// triple-backtick-fenced spans by codeBlockWeight.
func EstimateTokens(text string) int {
	segments := strings.Split(text, "```")
	var chars float64
	for i, seg := range segments {
		n := float64(len([]rune(seg)))
		if i%2 == 1 {
			chars += n * codeBlockWeight
		} else {
			chars += n
		}
	}
	return int(chars / charsPerToken)
}

func estimateMessagesTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

func cacheKey(version string) string {
	return fmt.Sprintf("sdk.context_summary:%s", version)
}

func summaryTag(version string) string {
	return fmt.Sprintf("[sdk.summary:%s]", version)
}

// Compress replaces the oldest messages in history with a single
// cached or freshly generated system-message summary once the
// estimated token count reaches cfg.TokenThreshold. History shorter
// than KeepRecent, or already under threshold, is returned unchanged.
func Compress(ctx context.Context, cfg CompressorConfig, wm *memory.WorkingMemory, history []models.Message, summarize Summarizer) ([]models.Message, error) {
	if cfg.TokenThreshold <= 0 || len(history) <= cfg.KeepRecent {
		return history, nil
	}
	if estimateMessagesTokens(history) < cfg.TokenThreshold {
		return history, nil
	}

	head := history[:len(history)-cfg.KeepRecent]
	tail := history[len(history)-cfg.KeepRecent:]

	key := cacheKey(cfg.Version)
	if cached, ok := wm.Get(key); ok {
		if text, ok := cached.(string); ok && text != "" {
			return prependSummary(cfg.Version, text, tail), nil
		}
	}

	summary, err := summarize(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("natural: summarize history: %w", err)
	}
	wm.Set(key, summary)

	return prependSummary(cfg.Version, summary, tail), nil
}

func prependSummary(version, summary string, tail []models.Message) []models.Message {
	out := make([]models.Message, 0, len(tail)+1)
	out = append(out, models.Message{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("%s %s", summaryTag(version), summary),
	})
	out = append(out, tail...)
	return out
}
