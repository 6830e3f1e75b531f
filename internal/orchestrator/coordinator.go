package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/lumenforge/agentrt/internal/handoff"
	"github.com/lumenforge/agentrt/pkg/models"
)

// ExecutionMode selects how the coordinator's selected agents run.
type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

// Decision is the coordinator LLM's required JSON shape (spec.md §4.11).
type Decision struct {
	SelectedAgents   []string          `json:"selected_agents"`
	ExecutionMode    ExecutionMode     `json:"execution_mode"`
	AgentInputs      map[string]string `json:"agent_inputs,omitempty"`
	ExpectedOutput   string            `json:"expected_output,omitempty"`
	FallbackAgent    string            `json:"fallback_agent,omitempty"`
	FallbackResponse string            `json:"fallback_response,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	Confidence       float64           `json:"confidence,omitempty"`
	Constraints      []string          `json:"constraints,omitempty"`
}

// CoordinatorLLMFunc calls the dedicated routing model with the
// catalog of visible agents and the user's input, returning its raw
// (possibly fenced, possibly noisy) text response.
type CoordinatorLLMFunc func(ctx context.Context, catalog []models.AgentCard, userInput string) (string, error)

// Coordinator drives the coordinator dispatch mode.
type Coordinator struct {
	LLM    CoordinatorLLMFunc
	Engine *handoff.Engine
}

// ParseDecision extracts a Decision from raw coordinator output:
// triple-backtick fences are stripped and the first balanced {...}
// substring is parsed. Malformed input yields an empty selection
// rather than an error, matching spec.md's permissive-parsing contract.
func ParseDecision(raw string) Decision {
	candidate := stripCodeFences(raw)
	candidate = firstBalancedObject(candidate)
	if candidate == "" {
		return Decision{}
	}
	var d Decision
	if err := json.Unmarshal([]byte(candidate), &d); err != nil {
		return Decision{}
	}
	return d
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Run executes one coordinator round: decide, then dispatch selected
// agents per the decision's execution mode.
func (c *Coordinator) Run(ctx context.Context, caller models.Caller, catalog []models.AgentCard, userInput string) (models.HandoffResult, error) {
	raw, err := c.LLM(ctx, catalog, userInput)
	if err != nil {
		return models.HandoffResult{}, fmt.Errorf("coordinator llm call: %w", err)
	}
	decision := ParseDecision(raw)

	if len(decision.SelectedAgents) == 0 {
		return models.HandoffResult{Output: decision.FallbackResponse, Status: models.HandoffStatusSuccess}, nil
	}

	mode := decision.ExecutionMode
	if mode == "" {
		mode = ExecutionSequential
	}

	if mode == ExecutionParallel {
		return c.runParallel(ctx, caller, decision, userInput)
	}
	return c.runSequential(ctx, caller, decision, userInput)
}

func (c *Coordinator) buildRequest(caller models.Caller, decision Decision, agentID, userInput string) *models.HandoffRequest {
	content := userInput
	if input, ok := decision.AgentInputs[agentID]; ok && input != "" {
		content = input
	}
	return &models.HandoffRequest{
		FromAgent:     caller.AgentID,
		ToAgent:       agentID,
		Reason:        decision.Reason,
		RequestedMode: models.HandoffModeCoordinator,
		CallerOwnerID: caller.OwnerID,
		CallerOrgID:   caller.OrgID,
		Context: &models.HandoffContext{
			Messages: []models.HandoffMessage{{Role: models.RoleUser, Content: content}},
		},
	}
}

func (c *Coordinator) runSequential(ctx context.Context, caller models.Caller, decision Decision, userInput string) (models.HandoffResult, error) {
	var lastErr error
	for _, agentID := range decision.SelectedAgents {
		result, err := c.Engine.Handoff(ctx, c.buildRequest(caller, decision, agentID, userInput))
		if err != nil {
			lastErr = err
			continue
		}
		if result.Status == models.HandoffStatusSuccess {
			return *result, nil
		}
		lastErr = result.Error
	}
	return c.fallback(ctx, caller, decision, userInput, lastErr)
}

func (c *Coordinator) runParallel(ctx context.Context, caller models.Caller, decision Decision, userInput string) (models.HandoffResult, error) {
	type outcome struct {
		result models.HandoffResult
		err    error
	}
	outcomes := make([]outcome, len(decision.SelectedAgents))
	var wg sync.WaitGroup
	wg.Add(len(decision.SelectedAgents))
	for i, agentID := range decision.SelectedAgents {
		i, agentID := i, agentID
		go func() {
			defer wg.Done()
			result, err := c.Engine.Handoff(ctx, c.buildRequest(caller, decision, agentID, userInput))
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			outcomes[i] = outcome{result: *result}
		}()
	}
	wg.Wait()

	var lastErr error
	for _, o := range outcomes {
		if o.err != nil {
			lastErr = o.err
			continue
		}
		if o.result.Status == models.HandoffStatusSuccess {
			return o.result, nil
		}
		lastErr = o.result.Error
	}
	return c.fallback(ctx, caller, decision, userInput, lastErr)
}

// fallback runs when every selected agent failed. It retries once
// against decision.FallbackAgent, if one was named, before falling
// back to the coordinator's canned FallbackResponse text.
func (c *Coordinator) fallback(ctx context.Context, caller models.Caller, decision Decision, userInput string, lastErr error) (models.HandoffResult, error) {
	if decision.FallbackAgent != "" {
		result, err := c.Engine.Handoff(ctx, c.buildRequest(caller, decision, decision.FallbackAgent, userInput))
		if err == nil && result.Status == models.HandoffStatusSuccess {
			return *result, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = result.Error
		}
	}
	if decision.FallbackResponse != "" {
		return models.HandoffResult{Output: decision.FallbackResponse, Status: models.HandoffStatusSuccess}, nil
	}
	if lastErr != nil {
		return models.HandoffResult{}, lastErr
	}
	return models.HandoffResult{}, fmt.Errorf("coordinator: no selected agent succeeded")
}
