package natural

import (
	"testing"
	"time"
)

func TestDetectMatchesStylePreference(t *testing.T) {
	d := NewFeedbackDetector(nil)
	result := d.Detect("too long, get to the point", map[string]string{})
	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.Changes["style"] != "concise" {
		t.Fatalf("changes = %v, want style=concise", result.Changes)
	}
}

func TestDetectIgnoresLongMessages(t *testing.T) {
	d := NewFeedbackDetector(nil)
	longMsg := "too long " + string(make([]byte, 60))
	result := d.Detect(longMsg, map[string]string{})
	if result.Matched {
		t.Fatal("expected long message to be skipped")
	}
}

func TestDetectSkipsUnchangedPreference(t *testing.T) {
	d := NewFeedbackDetector(nil)
	result := d.Detect("too long", map[string]string{"style": "concise"})
	if result.Matched {
		t.Fatal("expected no match when preference already at that value")
	}
}

func TestDetectAndAdaptUpdatesInPlaceAndFiresCallback(t *testing.T) {
	var gotUserID string
	var gotChanges map[string]string
	d := NewFeedbackDetector(func(userID string, changes map[string]string) {
		gotUserID = userID
		gotChanges = changes
	})

	prefs := map[string]string{}
	result := d.DetectAndAdapt("user-1", "be more professional", prefs, time.Unix(0, 0))
	if !result.Matched {
		t.Fatal("expected a match")
	}
	if prefs["tone"] != "formal" {
		t.Fatalf("prefs = %v, want tone=formal", prefs)
	}
	if prefs["updated_at"] == "" {
		t.Fatal("expected updated_at to be stamped")
	}
	if gotUserID != "user-1" || gotChanges["tone"] != "formal" {
		t.Fatalf("callback got userID=%q changes=%v", gotUserID, gotChanges)
	}
}

func TestBuildPreferencePromptSkipsMetadataAndEmpty(t *testing.T) {
	prompt := BuildPreferencePrompt(map[string]string{
		"style":      "concise",
		"updated_at": "2026-01-01T00:00:00Z",
	}, nil, "Reply style preferences:")
	if prompt == "" {
		t.Fatal("expected a non-empty prompt")
	}

	empty := BuildPreferencePrompt(map[string]string{"updated_at": "x"}, nil, "header")
	if empty != "" {
		t.Fatalf("expected empty prompt for metadata-only preferences, got %q", empty)
	}
}

func TestAddPatternExtendsKeywords(t *testing.T) {
	d := NewFeedbackDetector(nil)
	d.AddPattern("language", "english", []string{"speak english"})
	result := d.Detect("please speak english", map[string]string{})
	if result.Changes["language"] != "english" {
		t.Fatalf("changes = %v, want language=english", result.Changes)
	}
}
