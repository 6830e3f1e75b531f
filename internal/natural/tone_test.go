package natural

import "testing"

func TestDetectToneKeyword(t *testing.T) {
	cases := []struct {
		utterance string
		want      Mood
	}{
		{"I am so happy and excited about this, thanks!!", MoodHappy},
		{"this is making me furious, I hate it", MoodAngry},
		{"I'm really worried and anxious about tomorrow", MoodAnxious},
		{"I feel so sad and disappointed today", MoodSad},
		{"what time is the meeting", MoodNeutral},
	}
	for _, tc := range cases {
		if got := DetectTone(tc.utterance); got != tc.want {
			t.Fatalf("DetectTone(%q) = %s, want %s", tc.utterance, got, tc.want)
		}
	}
}

func TestDetectToneChineseKeywords(t *testing.T) {
	if got := DetectTone("我真的很焦虑，很害怕"); got != MoodAnxious {
		t.Fatalf("got %s, want anxious", got)
	}
}

func TestDetectToneBangsBoostScore(t *testing.T) {
	base := DetectTone("annoyed")
	boosted := DetectTone("annoyed!!!!!")
	if base != MoodAngry || boosted != MoodAngry {
		t.Fatalf("expected both to detect angry, got base=%s boosted=%s", base, boosted)
	}
}

func TestDetectToneBelowThresholdIsNeutral(t *testing.T) {
	if got := DetectTone("what year was this building constructed"); got != MoodNeutral {
		t.Fatalf("got %s, want neutral", got)
	}
}
