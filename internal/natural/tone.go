package natural

import "strings"

// Mood is a detected emotional tone.
type Mood string

const (
	MoodNeutral Mood = "neutral"
	MoodAngry   Mood = "angry"
	MoodAnxious Mood = "anxious"
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
)

// moodThreshold is the minimum score required for a non-neutral mood
// to win (spec.md §4.13).
const moodThreshold = 0.3

// keywordWeights maps a bilingual (English/Chinese) keyword to its
// contribution toward a mood's score when found in an utterance.
var keywordWeights = map[Mood]map[string]float64{
	MoodAngry: {
		"angry": 0.4, "furious": 0.5, "pissed": 0.4, "annoyed": 0.3, "hate": 0.4,
		"生气": 0.4, "愤怒": 0.5, "讨厌": 0.4, "烦": 0.3,
	},
	MoodAnxious: {
		"worried": 0.4, "anxious": 0.5, "nervous": 0.4, "scared": 0.4, "afraid": 0.4,
		"担心": 0.4, "焦虑": 0.5, "害怕": 0.4, "紧张": 0.4,
	},
	MoodHappy: {
		"happy": 0.4, "great": 0.3, "awesome": 0.4, "love": 0.4, "thanks": 0.3, "excited": 0.4,
		"开心": 0.4, "高兴": 0.4, "谢谢": 0.3, "太好了": 0.4,
	},
	MoodSad: {
		"sad": 0.4, "depressed": 0.5, "unhappy": 0.4, "down": 0.3, "disappointed": 0.4,
		"难过": 0.4, "伤心": 0.4, "失望": 0.4, "沮丧": 0.5,
	},
}

// moodOrder fixes evaluation order so ties resolve deterministically,
// independent of Go's randomized map iteration.
var moodOrder = []Mood{MoodAngry, MoodAnxious, MoodHappy, MoodSad}

// DetectTone scores utterance against every mood's keyword list and
// returns the winner. Multiple "!"/"！" boost the leading non-neutral
// score; a top score below moodThreshold falls back to neutral.
func DetectTone(utterance string) Mood {
	lower := strings.ToLower(utterance)

	var topMood Mood = MoodNeutral
	var topScore float64

	for _, mood := range moodOrder {
		var score float64
		for kw, weight := range keywordWeights[mood] {
			if strings.Contains(lower, kw) {
				score += weight
			}
		}
		if score > topScore {
			topScore = score
			topMood = mood
		}
	}

	bangs := strings.Count(utterance, "!") + strings.Count(utterance, "！")
	if bangs >= 2 && topMood != MoodNeutral {
		topScore += 0.1 * float64(bangs-1)
	}

	if topScore < moodThreshold {
		return MoodNeutral
	}
	return topMood
}
