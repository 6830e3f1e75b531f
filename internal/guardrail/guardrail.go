// Package guardrail implements ordered input/output guard lists with
// parallel or sequential execution and tripwire semantics (spec.md
// §4.5).
package guardrail

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of one guard's check.
type Result struct {
	Passed   bool
	Reason   string
	Metadata map[string]any

	// GuardrailName is stamped on the Result before it is returned to
	// the caller, identifying which guard produced it.
	GuardrailName string
}

// Context is the input handed to every guard predicate.
type Context struct {
	// Content is the text under review: user_input for an input guard,
	// the model's output for an output guard.
	Content string

	AgentID string
	UserID  string

	Extra map[string]any
}

// Guard is one named predicate. Name is used both for declaration
// order tie-breaking and for stamping Result.GuardrailName.
type Guard struct {
	Name  string
	Check func(ctx context.Context, gc Context) (Result, error)
}

// Mode selects how a guard list is evaluated.
type Mode string

const (
	// ModeParallel runs every guard concurrently and returns the first
	// failure by declaration order among the guards that failed, not
	// by completion order.
	ModeParallel Mode = "parallel"

	// ModeSequential iterates guards in order, stopping at the first
	// failure or error.
	ModeSequential Mode = "sequential"
)

// TriggeredError is raised by CheckInput/CheckOutput when a guard
// fails or errors, carrying the stamped Result.
type TriggeredError struct {
	Stage  string // "input" or "output"
	Result Result
}

func (e *TriggeredError) Error() string {
	return fmt.Sprintf("%s guardrail triggered: %s (%s)", e.Stage, e.Result.GuardrailName, e.Result.Reason)
}

// List is an ordered set of guards evaluated together.
type List struct {
	Guards []Guard
	Mode   Mode
}

// evaluate runs the list and returns the first failing Result (by
// declaration order) or a passing Result if every guard passed. An
// empty list always passes.
func (l List) evaluate(ctx context.Context, gc Context) Result {
	if len(l.Guards) == 0 {
		return Result{Passed: true}
	}

	mode := l.Mode
	if mode == "" {
		mode = ModeParallel
	}

	if mode == ModeSequential {
		for _, g := range l.Guards {
			res := runGuard(ctx, g, gc)
			if !res.Passed {
				return res
			}
		}
		return Result{Passed: true}
	}

	results := make([]Result, len(l.Guards))
	var wg sync.WaitGroup
	wg.Add(len(l.Guards))
	for i, g := range l.Guards {
		i, g := i, g
		go func() {
			defer wg.Done()
			results[i] = runGuard(ctx, g, gc)
		}()
	}
	wg.Wait()

	for _, res := range results {
		if !res.Passed {
			return res
		}
	}
	return Result{Passed: true}
}

func runGuard(ctx context.Context, g Guard, gc Context) Result {
	res, err := g.Check(ctx, gc)
	if err != nil {
		res = Result{Passed: false, Reason: err.Error()}
	}
	res.GuardrailName = g.Name
	return res
}

// Engine holds the input and output guard lists for one Agent Loop.
type Engine struct {
	Input  List
	Output List
}

// CheckInputSafe runs the input guard list and returns the Result
// without raising.
func (e Engine) CheckInputSafe(ctx context.Context, gc Context) Result {
	return e.Input.evaluate(ctx, gc)
}

// CheckOutputSafe runs the output guard list and returns the Result
// without raising.
func (e Engine) CheckOutputSafe(ctx context.Context, gc Context) Result {
	return e.Output.evaluate(ctx, gc)
}

// CheckInput runs the input guard list, returning a *TriggeredError
// if any guard fails.
func (e Engine) CheckInput(ctx context.Context, gc Context) (Result, error) {
	res := e.CheckInputSafe(ctx, gc)
	if !res.Passed {
		return res, &TriggeredError{Stage: "input", Result: res}
	}
	return res, nil
}

// CheckOutput runs the output guard list, returning a *TriggeredError
// if any guard fails.
func (e Engine) CheckOutput(ctx context.Context, gc Context) (Result, error) {
	res := e.CheckOutputSafe(ctx, gc)
	if !res.Passed {
		return res, &TriggeredError{Stage: "output", Result: res}
	}
	return res, nil
}
