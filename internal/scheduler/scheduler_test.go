package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestTickSkipsUserAlreadySentToday(t *testing.T) {
	store := NewMemoryUserStore()
	store.RecordSent("u1", "daily_checkin", time.Now().Format("2006-01-02"))

	var sent []string
	s := New(Config{
		Store: store,
		Send: func(ctx context.Context, userID, text string) error {
			sent = append(sent, userID)
			return nil
		},
	})
	s.Register(Trigger{
		Name:    "daily_checkin",
		Check:   func(ctx context.Context) ([]string, error) { return []string{"u1"}, nil },
		Message: func(ctx context.Context, userID string) (string, error) { return "hi", nil },
	})

	s.tick(context.Background())
	if len(sent) != 0 {
		t.Fatalf("expected no send for already-sent user, got %v", sent)
	}
}

func TestTickSendsAndRecordsDedup(t *testing.T) {
	store := NewMemoryUserStore()
	var sent []string
	s := New(Config{
		Store: store,
		Send: func(ctx context.Context, userID, text string) error {
			sent = append(sent, userID+":"+text)
			return nil
		},
	})
	s.Register(Trigger{
		Name:    "daily_checkin",
		Check:   func(ctx context.Context) ([]string, error) { return []string{"u1", "u2"}, nil },
		Message: func(ctx context.Context, userID string) (string, error) { return "hello " + userID, nil },
	})

	s.tick(context.Background())
	if len(sent) != 2 {
		t.Fatalf("expected 2 sends, got %v", sent)
	}

	today := time.Now().Format("2006-01-02")
	if !store.AlreadySentToday("u1", "daily_checkin", today) {
		t.Fatal("expected u1 to be recorded as sent")
	}
}

func TestTickSkipsEmptyMessage(t *testing.T) {
	store := NewMemoryUserStore()
	var sentCount int
	s := New(Config{
		Store: store,
		Send: func(ctx context.Context, userID, text string) error {
			sentCount++
			return nil
		},
	})
	s.Register(Trigger{
		Name:    "silent",
		Check:   func(ctx context.Context) ([]string, error) { return []string{"u1"}, nil },
		Message: func(ctx context.Context, userID string) (string, error) { return "", nil },
	})
	s.tick(context.Background())
	if sentCount != 0 {
		t.Fatalf("expected no send for empty message, got %d", sentCount)
	}
}

func TestTickContinuesAfterSendFailure(t *testing.T) {
	store := NewMemoryUserStore()
	s := New(Config{
		Store: store,
		Send: func(ctx context.Context, userID, text string) error {
			return context.DeadlineExceeded
		},
	})
	s.Register(Trigger{
		Name:    "flaky",
		Check:   func(ctx context.Context) ([]string, error) { return []string{"u1"}, nil },
		Message: func(ctx context.Context, userID string) (string, error) { return "hi", nil },
	})
	s.tick(context.Background())
	today := time.Now().Format("2006-01-02")
	if store.AlreadySentToday("u1", "flaky", today) {
		t.Fatal("expected failed send not to be recorded as sent")
	}
}

func TestDisabledTriggerIsSkipped(t *testing.T) {
	store := NewMemoryUserStore()
	store.SetEnabled("u1", "daily_checkin", false)
	var sentCount int
	s := New(Config{
		Store: store,
		Send: func(ctx context.Context, userID, text string) error {
			sentCount++
			return nil
		},
	})
	s.Register(Trigger{
		Name:    "daily_checkin",
		Check:   func(ctx context.Context) ([]string, error) { return []string{"u1"}, nil },
		Message: func(ctx context.Context, userID string) (string, error) { return "hi", nil },
	})
	s.tick(context.Background())
	if sentCount != 0 {
		t.Fatalf("expected disabled trigger to skip send, got %d", sentCount)
	}
}

func TestStartIsIdempotentAndStopWaits(t *testing.T) {
	s := New(Config{Interval: time.Hour})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	s.Stop()
}
