package natural

import (
	"testing"
	"time"
)

func TestDeriveStateFollowupWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 30, 0, time.UTC)
	meta := SessionMeta{LastMessageAt: now.Add(-30 * time.Second)}

	state := DeriveState(meta, "hi", now, time.UTC)
	if !state.IsFollowup {
		t.Fatal("expected followup within the 60s window")
	}
}

func TestDeriveStateNotFollowupWhenStale(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	meta := SessionMeta{LastMessageAt: now.Add(-10 * 24 * time.Hour)}

	state := DeriveState(meta, "hi", now, time.UTC)
	if state.IsFollowup {
		t.Fatal("expected not a followup after 10 days")
	}
	if state.DaysSinceLast != 10 {
		t.Fatalf("DaysSinceLast = %d, want 10", state.DaysSinceLast)
	}
}

func TestDeriveStateTimeOfDayBands(t *testing.T) {
	cases := []struct {
		hour int
		want TimeOfDay
	}{
		{7, TimeMorning},
		{13, TimeAfternoon},
		{20, TimeEvening},
		{2, TimeLateNight},
		{23, TimeLateNight},
	}
	for _, tc := range cases {
		now := time.Date(2026, 8, 1, tc.hour, 0, 0, 0, time.UTC)
		state := DeriveState(SessionMeta{}, "hi", now, time.UTC)
		if state.TimeOfDay != tc.want {
			t.Fatalf("hour %d: TimeOfDay = %s, want %s", tc.hour, state.TimeOfDay, tc.want)
		}
	}
}

func TestDeriveStateMessageLengthBands(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	short := DeriveState(SessionMeta{}, "hi", now, time.UTC)
	if short.UserMessageLength != LengthShort {
		t.Fatalf("short: got %s", short.UserMessageLength)
	}

	medium := DeriveState(SessionMeta{}, "this message is exactly medium length for the band", now, time.UTC)
	if medium.UserMessageLength != LengthMedium {
		t.Fatalf("medium: got %s", medium.UserMessageLength)
	}

	long := DeriveState(SessionMeta{}, "this is a much longer message that should fall into the long band because it exceeds one hundred twenty characters by a fair margin", now, time.UTC)
	if long.UserMessageLength != LengthLong {
		t.Fatalf("long: got %s", long.UserMessageLength)
	}
}

func TestDeriveStateDefaultsToUTCWhenLocNil(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	state := DeriveState(SessionMeta{}, "hi", now, nil)
	if state.LocalTime.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", state.LocalTime.Location())
	}
}
