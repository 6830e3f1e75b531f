// Package natural implements the pre/post-processing pipeline that
// augments the Agent Loop without changing its contract: session
// state tracking, tone detection, response styling, opener selection,
// and context compression (spec.md §4.13).
package natural

import "time"

// TimeOfDay buckets a local clock hour into a coarse band.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"
	TimeAfternoon TimeOfDay = "afternoon"
	TimeEvening   TimeOfDay = "evening"
	TimeLateNight TimeOfDay = "late_night"
)

// MessageLength buckets a user message by character count.
type MessageLength string

const (
	LengthShort  MessageLength = "short"
	LengthMedium MessageLength = "medium"
	LengthLong   MessageLength = "long"
)

// followupWindow is how recently the previous message must have
// arrived for the current one to count as a followup.
const followupWindow = 60 * time.Second

// SessionMeta is what the state tracker needs about prior activity to
// derive State; callers populate it from their own session store.
type SessionMeta struct {
	TurnIndex        int
	LastMessageAt    time.Time
	FirstSeenAt      time.Time
	TotalSessions    int
	IsFirstSession   bool
}

// State is the derived per-turn conversational context (spec.md §4.13).
type State struct {
	TurnIndex            int
	IsFollowup           bool
	IsFirstConversation  bool
	DaysSinceLast        int
	TotalSessions        int
	TimeOfDay            TimeOfDay
	UserMessageLength    MessageLength
	LocalTime            time.Time
}

// DeriveState computes State from meta and the current message, as of
// now (in loc, the session's local time zone).
func DeriveState(meta SessionMeta, userMessage string, now time.Time, loc *time.Location) State {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	state := State{
		TurnIndex:           meta.TurnIndex,
		IsFirstConversation: meta.IsFirstSession,
		TotalSessions:       meta.TotalSessions,
		TimeOfDay:           timeOfDay(local.Hour()),
		UserMessageLength:   messageLength(userMessage),
		LocalTime:           local,
	}

	if !meta.LastMessageAt.IsZero() {
		state.IsFollowup = now.Sub(meta.LastMessageAt) <= followupWindow
		state.DaysSinceLast = int(now.Sub(meta.LastMessageAt).Hours() / 24)
	}

	return state
}

func timeOfDay(hour int) TimeOfDay {
	switch {
	case hour >= 6 && hour < 12:
		return TimeMorning
	case hour >= 12 && hour < 18:
		return TimeAfternoon
	case hour >= 18 && hour < 23:
		return TimeEvening
	default:
		return TimeLateNight
	}
}

func messageLength(msg string) MessageLength {
	n := len([]rune(msg))
	switch {
	case n < 20:
		return LengthShort
	case n <= 120:
		return LengthMedium
	default:
		return LengthLong
	}
}
