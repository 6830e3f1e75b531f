package guardrail

import (
	"context"
	"errors"
	"testing"
	"time"
)

func passGuard(name string) Guard {
	return Guard{Name: name, Check: func(ctx context.Context, gc Context) (Result, error) {
		return Result{Passed: true}, nil
	}}
}

func failGuard(name, reason string, delay time.Duration) Guard {
	return Guard{Name: name, Check: func(ctx context.Context, gc Context) (Result, error) {
		time.Sleep(delay)
		return Result{Passed: false, Reason: reason}, nil
	}}
}

func raisingGuard(name string) Guard {
	return Guard{Name: name, Check: func(ctx context.Context, gc Context) (Result, error) {
		return Result{}, errors.New("boom")
	}}
}

func TestEmptyListPasses(t *testing.T) {
	e := Engine{}
	res, err := e.CheckInput(context.Background(), Context{Content: "hi"})
	if err != nil || !res.Passed {
		t.Fatalf("expected pass, got res=%v err=%v", res, err)
	}
}

func TestSequentialStopsAtFirstFailure(t *testing.T) {
	calls := 0
	countingFail := Guard{Name: "a", Check: func(ctx context.Context, gc Context) (Result, error) {
		calls++
		return Result{Passed: false, Reason: "nope"}, nil
	}}
	countingPass := Guard{Name: "b", Check: func(ctx context.Context, gc Context) (Result, error) {
		calls++
		return Result{Passed: true}, nil
	}}

	e := Engine{Input: List{Guards: []Guard{countingFail, countingPass}, Mode: ModeSequential}}
	_, err := e.CheckInput(context.Background(), Context{})
	var triggered *TriggeredError
	if !errors.As(err, &triggered) {
		t.Fatalf("expected TriggeredError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected sequential mode to stop after first failure, ran %d guards", calls)
	}
	if triggered.Result.GuardrailName != "a" {
		t.Fatalf("expected failing guard name 'a', got %s", triggered.Result.GuardrailName)
	}
}

func TestParallelReturnsFirstFailureByDeclarationOrderNotCompletionOrder(t *testing.T) {
	// "a" is slow but declared first, "b" is fast but declared second.
	// The declared-first failure must win even though "b" finishes first.
	a := failGuard("a", "slow-fail", 20*time.Millisecond)
	b := failGuard("b", "fast-fail", 0)

	e := Engine{Input: List{Guards: []Guard{a, b}, Mode: ModeParallel}}
	res := e.CheckInputSafe(context.Background(), Context{})
	if res.Passed {
		t.Fatalf("expected failure")
	}
	if res.GuardrailName != "a" {
		t.Fatalf("expected declaration-order guard 'a' to win, got %s", res.GuardrailName)
	}
}

func TestGuardErrorRecordedAsFailure(t *testing.T) {
	e := Engine{Output: List{Guards: []Guard{raisingGuard("risky")}}}
	res, err := e.CheckOutput(context.Background(), Context{Content: "x"})
	if err == nil {
		t.Fatalf("expected tripwire error")
	}
	if res.Passed {
		t.Fatalf("expected failed result")
	}
	if res.Reason != "boom" {
		t.Fatalf("expected error text as reason, got %q", res.Reason)
	}
}

func TestCheckInputSafeNeverReturnsError(t *testing.T) {
	e := Engine{Input: List{Guards: []Guard{raisingGuard("x")}}}
	res := e.CheckInputSafe(context.Background(), Context{})
	if res.Passed {
		t.Fatalf("expected failure result without raising")
	}
}

func TestAllPassingGuardsPass(t *testing.T) {
	e := Engine{Input: List{Guards: []Guard{passGuard("a"), passGuard("b")}}}
	res, err := e.CheckInput(context.Background(), Context{})
	if err != nil || !res.Passed {
		t.Fatalf("expected pass, got res=%v err=%v", res, err)
	}
}
