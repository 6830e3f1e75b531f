package natural

import (
	"sort"
	"strings"
	"time"
)

// maxFeedbackMessageLength bounds how long a message can be and still
// be considered a feedback signal rather than ordinary conversation.
const maxFeedbackMessageLength = 50

// DefaultFeedbackPatterns maps a preference key to its candidate
// values, each backed by the English keywords that trigger it.
var DefaultFeedbackPatterns = map[string]map[string][]string{
	"style": {
		"concise":  {"too long", "tl;dr", "tldr", "be brief", "get to the point", "shorter please", "too much"},
		"detailed": {"tell me more", "elaborate", "go into detail", "explain more", "more detail"},
	},
	"tone": {
		"casual": {"talk normal", "be casual", "less formal", "lighten up", "plain english"},
		"formal": {"be more professional", "more formal", "be formal"},
	},
}

// DefaultPreferencePrompts maps a preference value to the hint text
// injected into the system prompt when that preference is active.
var DefaultPreferencePrompts = map[string]map[string]string{
	"style": {
		"concise":  "This user prefers concise replies. Keep it under 100 words and get to the point.",
		"detailed": "This user likes detailed explanations. Feel free to elaborate.",
	},
	"tone": {
		"casual": "This user prefers a casual, conversational tone over formal language.",
		"formal": "This user prefers a professional, formal tone.",
	},
}

// FeedbackResult is the outcome of scanning one message for feedback
// signals against a preference set.
type FeedbackResult struct {
	Matched  bool
	Changes  map[string]string
	Triggers map[string]string
}

// OnPreferenceChange is invoked whenever detect-and-adapt changes a
// user's preferences.
type OnPreferenceChange func(userID string, changes map[string]string)

// FeedbackDetector scans user messages for implicit feedback about
// reply style and tone, and keeps a preference map in sync.
type FeedbackDetector struct {
	patterns  map[string]map[string][]string
	maxLength int
	onChange  OnPreferenceChange
}

// NewFeedbackDetector builds a detector with the default English
// keyword patterns. Use SetPatterns to override them.
func NewFeedbackDetector(onChange OnPreferenceChange) *FeedbackDetector {
	return &FeedbackDetector{
		patterns:  DefaultFeedbackPatterns,
		maxLength: maxFeedbackMessageLength,
		onChange:  onChange,
	}
}

// SetPatterns replaces the keyword pattern map wholesale.
func (d *FeedbackDetector) SetPatterns(patterns map[string]map[string][]string) {
	d.patterns = patterns
}

// AddPattern appends keywords to one preference key/value pair,
// creating it if absent.
func (d *FeedbackDetector) AddPattern(prefKey, prefValue string, keywords []string) {
	if d.patterns == nil {
		d.patterns = make(map[string]map[string][]string)
	}
	if d.patterns[prefKey] == nil {
		d.patterns[prefKey] = make(map[string][]string)
	}
	d.patterns[prefKey][prefValue] = append(d.patterns[prefKey][prefValue], keywords...)
}

// Detect scans message against the keyword patterns, returning only
// the preferences whose value actually changed relative to current.
func (d *FeedbackDetector) Detect(message string, current map[string]string) FeedbackResult {
	msg := strings.TrimSpace(message)
	result := FeedbackResult{Changes: map[string]string{}, Triggers: map[string]string{}}
	if msg == "" || len([]rune(msg)) > d.maxLength {
		return result
	}
	lower := strings.ToLower(msg)

	prefKeys := make([]string, 0, len(d.patterns))
	for k := range d.patterns {
		prefKeys = append(prefKeys, k)
	}
	sort.Strings(prefKeys)

	for _, prefKey := range prefKeys {
		valueMap := d.patterns[prefKey]
		values := make([]string, 0, len(valueMap))
		for v := range valueMap {
			values = append(values, v)
		}
		sort.Strings(values)

		for _, prefValue := range values {
			matchedKeyword := ""
			for _, kw := range valueMap[prefValue] {
				if strings.Contains(lower, strings.ToLower(kw)) {
					matchedKeyword = kw
					break
				}
			}
			if matchedKeyword == "" {
				continue
			}
			if current[prefKey] != prefValue {
				result.Matched = true
				result.Changes[prefKey] = prefValue
				result.Triggers[prefKey] = matchedKeyword
			}
			break
		}
	}

	return result
}

// DetectAndAdapt runs Detect and, on a match, updates preferences in
// place, stamps "updated_at", and fires onChange.
func (d *FeedbackDetector) DetectAndAdapt(userID, message string, preferences map[string]string, now time.Time) FeedbackResult {
	result := d.Detect(message, preferences)
	if !result.Matched {
		return result
	}
	for k, v := range result.Changes {
		preferences[k] = v
	}
	preferences["updated_at"] = now.Format(time.RFC3339)

	if d.onChange != nil {
		d.onChange(userID, result.Changes)
	}
	return result
}

// BuildPreferencePrompt renders preferences into a system-prompt
// addendum using promptMap (DefaultPreferencePrompts if nil), or
// returns "" if no preference maps to a hint.
func BuildPreferencePrompt(preferences map[string]string, promptMap map[string]map[string]string, header string) string {
	if promptMap == nil {
		promptMap = DefaultPreferencePrompts
	}
	keys := make([]string, 0, len(preferences))
	for k := range preferences {
		if k == "updated_at" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var hints []string
	for _, prefKey := range keys {
		if text := promptMap[prefKey][preferences[prefKey]]; text != "" {
			hints = append(hints, text)
		}
	}
	if len(hints) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(hints, "\n")
}
