// Package scheduler implements the periodic trigger loop: per-user
// daily-deduped proactive messages delivered through an injected send
// callback (spec.md §4.12).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultIntervalSeconds is the tick period when Config.Interval is unset.
const DefaultIntervalSeconds = 60

// CheckFunc returns the user ids a trigger applies to on this tick.
type CheckFunc func(ctx context.Context) ([]string, error)

// MessageFunc produces the message text for userID, or "" to skip.
type MessageFunc func(ctx context.Context, userID string) (string, error)

// SendFunc delivers text to userID. Failures are logged, never raised
// (spec.md §4.12 step 3).
type SendFunc func(ctx context.Context, userID, text string) error

// Trigger is one registered proactive-message source.
type Trigger struct {
	Name    string
	Check   CheckFunc
	Message MessageFunc
}

// UserStore persists per-user trigger enablement and dedup state.
type UserStore interface {
	Enabled(userID, trigger string) bool
	SetEnabled(userID, trigger string, enabled bool)
	AlreadySentToday(userID, trigger, date string) bool
	RecordSent(userID, trigger, date string)
}

// MemoryUserStore is the in-memory default UserStore.
type MemoryUserStore struct {
	mu      sync.Mutex
	enabled map[string]bool
	sentOn  map[string]string
}

// NewMemoryUserStore creates an empty MemoryUserStore; triggers are
// enabled by default for any user not explicitly disabled.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{enabled: make(map[string]bool), sentOn: make(map[string]string)}
}

func key(userID, trigger string) string { return userID + "\x00" + trigger }

// Enabled reports whether trigger is enabled for userID.
func (s *MemoryUserStore) Enabled(userID, trigger string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.enabled[key(userID, trigger)]
	if !ok {
		return true
	}
	return v
}

// SetEnabled toggles trigger for userID.
func (s *MemoryUserStore) SetEnabled(userID, trigger string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[key(userID, trigger)] = enabled
}

// AlreadySentToday reports whether trigger already sent userID a
// message on date (a "2006-01-02"-formatted string in the
// scheduler's clock zone).
func (s *MemoryUserStore) AlreadySentToday(userID, trigger, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentOn[key(userID, trigger)] == date
}

// RecordSent marks trigger as having messaged userID on date.
func (s *MemoryUserStore) RecordSent(userID, trigger, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentOn[key(userID, trigger)] = date
}

// Config configures a Scheduler.
type Config struct {
	// Interval between ticks. Default DefaultIntervalSeconds.
	Interval time.Duration

	// Location is the clock zone used for "today" comparisons.
	// Default time.Local.
	Location *time.Location

	Send  SendFunc
	Store UserStore
}

// Scheduler runs a cron-driven tick loop over a set of Triggers,
// matching spec.md §4.12's per-tick trigger/user dedup pipeline. The
// tick cadence is expressed as a robfig/cron "@every" spec built from
// Config.Interval.
type Scheduler struct {
	log *slog.Logger

	mu       sync.Mutex
	triggers []Trigger
	store    UserStore
	send     SendFunc
	location *time.Location
	interval time.Duration

	cron      *cron.Cron
	entryID   cron.EntryID
	running   bool
	cancelAll context.CancelFunc
}

// New creates a Scheduler. A nil Config.Store defaults to
// NewMemoryUserStore.
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultIntervalSeconds * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryUserStore()
	}
	return &Scheduler{
		log:      slog.Default().With("component", "scheduler"),
		store:    cfg.Store,
		send:     cfg.Send,
		location: cfg.Location,
		interval: cfg.Interval,
	}
}

// Register adds a Trigger. Safe to call at any time; a tick already in
// progress uses the trigger list as it was when that tick began.
func (s *Scheduler) Register(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

// Start begins ticking every Config.Interval. Idempotent: a second
// call while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelAll = cancel

	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", s.interval)
	id, err := c.AddFunc(spec, func() { s.tick(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.entryID = id
	c.Start()
	s.cron = c
	s.running = true
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	cancel := s.cancelAll
	s.running = false
	s.mu.Unlock()

	cancel()
	stopCtx := c.Stop()
	<-stopCtx.Done()
}

// tick runs every trigger once, skipping users with dedup already
// recorded today, never letting a send failure stop the tick.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	triggers := append([]Trigger(nil), s.triggers...)
	s.mu.Unlock()

	today := time.Now().In(s.location).Format("2006-01-02")

	for _, trig := range triggers {
		if ctx.Err() != nil {
			return
		}
		userIDs, err := trig.Check(ctx)
		if err != nil {
			s.log.Error("trigger check failed", "trigger", trig.Name, "error", err)
			continue
		}
		for _, userID := range userIDs {
			if !s.store.Enabled(userID, trig.Name) {
				continue
			}
			if s.store.AlreadySentToday(userID, trig.Name, today) {
				continue
			}
			text, err := trig.Message(ctx, userID)
			if err != nil {
				s.log.Error("trigger message failed", "trigger", trig.Name, "user_id", userID, "error", err)
				continue
			}
			if text == "" {
				continue
			}
			if s.send != nil {
				if err := s.send(ctx, userID, text); err != nil {
					s.log.Error("trigger send failed", "trigger", trig.Name, "user_id", userID, "error", err)
					continue
				}
			}
			s.store.RecordSent(userID, trig.Name, today)
		}
	}
}
