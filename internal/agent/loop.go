// Package agent implements the ReAct-style driver loop: message
// assembly, the LLM call, tool dispatch, guardrail enforcement, and
// turn bookkeeping (spec.md §4.8).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumenforge/agentrt/internal/guardrail"
	"github.com/lumenforge/agentrt/internal/tools"
	"github.com/lumenforge/agentrt/internal/trace"
	"github.com/lumenforge/agentrt/pkg/models"
)

// DefaultMaxTurns bounds a run when LoopConfig.MaxTurns is unset.
const DefaultMaxTurns = 10

// LLMResponse is what a model callback returns for one turn.
type LLMResponse struct {
	Content   string
	ToolCalls []models.ToolCall
}

// LLMFunc calls the model with the current message list and, if the
// registry is non-empty, its exported tool schema.
type LLMFunc func(ctx context.Context, messages []models.Message, toolSchema []models.OpenAIFunctionTool) (LLMResponse, error)

// Hooks are optional callbacks fired at fixed points in a turn, in the
// order: OnLLMStart -> OnLLMEnd -> (OnToolStart -> OnToolEnd)* -> OnTurnEnd.
type Hooks struct {
	OnLLMStart  func(ctx context.Context, turn int, messages []models.Message)
	OnLLMEnd    func(ctx context.Context, turn int, resp LLMResponse)
	OnToolStart func(ctx context.Context, name string, args json.RawMessage)
	OnToolEnd   func(ctx context.Context, name string, result string, err error)
	OnTurnEnd   func(ctx context.Context, turn int, record models.TurnRecord)
	OnError     func(ctx context.Context, err error)
}

// LoopConfig configures one Loop's run behavior.
type LoopConfig struct {
	// MaxTurns bounds the reason-act cycle. Default DefaultMaxTurns.
	MaxTurns int

	// SystemPrompt, if set, is prepended as the first message.
	SystemPrompt string

	Guardrails guardrail.Engine
	Hooks      Hooks
	Tracer     *trace.Tracer
	AgentID    string
	UserID     string
}

func sanitizeLoopConfig(cfg LoopConfig) LoopConfig {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return cfg
}

// Loop drives one agent's reason-act cycle over a tool registry.
type Loop struct {
	llm      LLMFunc
	registry *tools.Registry
	config   LoopConfig
	log      *slog.Logger
}

// New creates a Loop calling llm and dispatching through registry.
// A nil registry is treated as empty (no tools offered to the model).
func New(llm LLMFunc, registry *tools.Registry, config LoopConfig) *Loop {
	return &Loop{
		llm:      llm,
		registry: registry,
		config:   sanitizeLoopConfig(config),
		log:      slog.Default().With("component", "agent.loop"),
	}
}

// RunInput is the Entry contract for Run: run(user_input, history?, extra_context?).
type RunInput struct {
	UserInput    string
	History      []models.Message
	ExtraContext string
}

// Run assembles the message list and iterates the INIT -> BUILD_MESSAGES
// -> LLM_CALL -> HAS_TOOL_CALLS? state machine until the model produces
// a tool-call-free response, a guardrail trips, or max turns is hit.
func (l *Loop) Run(ctx context.Context, in RunInput) (models.AgentResult, error) {
	var span *trace.Started
	if l.config.Tracer != nil {
		span = l.config.Tracer.Span("agent.run", models.SpanKindAgent, map[string]any{
			"agent_id": l.config.AgentID,
			"user_id":  l.config.UserID,
		})
	}

	messages := l.assembleMessages(in)
	result := models.AgentResult{Messages: messages}

	var toolSchema []models.OpenAIFunctionTool
	if l.registry != nil && l.registry.Len() > 0 {
		toolSchema = l.registry.ToOpenAISchema()
	}

	maxTurns := l.config.MaxTurns
	var lastText string
	var runErr error

	for turn := 1; turn <= maxTurns; turn++ {
		if turn == 1 {
			gc := guardrail.Context{Content: in.UserInput, AgentID: l.config.AgentID, UserID: l.config.UserID}
			if _, err := l.config.Guardrails.CheckInput(ctx, gc); err != nil {
				result.StoppedReason = models.StoppedInputGuardrailBlocked
				result.TotalTurns = turn - 1
				if span != nil {
					span.End(err)
				}
				return result, err
			}
		}

		if l.config.Hooks.OnLLMStart != nil {
			l.config.Hooks.OnLLMStart(ctx, turn, messages)
		}
		resp, err := l.llm(ctx, messages, toolSchema)
		if l.config.Hooks.OnLLMEnd != nil {
			l.config.Hooks.OnLLMEnd(ctx, turn, resp)
		}
		if err != nil {
			runErr = fmt.Errorf("llm call on turn %d: %w", turn, err)
			if l.config.Hooks.OnError != nil {
				l.config.Hooks.OnError(ctx, runErr)
			}
			result.StoppedReason = models.StoppedError
			result.FinalOutput = runErr.Error()
			result.TotalTurns = turn
			if span != nil {
				span.End(runErr)
			}
			return result, runErr
		}
		if resp.Content != "" {
			lastText = resp.Content
		}

		record := models.TurnRecord{Turn: turn, Output: resp.Content}

		if len(resp.ToolCalls) == 0 {
			gc := guardrail.Context{Content: resp.Content, AgentID: l.config.AgentID, UserID: l.config.UserID}
			if _, err := l.config.Guardrails.CheckOutput(ctx, gc); err != nil {
				result.StoppedReason = models.StoppedOutputGuardrailBlocked
				result.TotalTurns = turn
				if span != nil {
					span.End(err)
				}
				return result, err
			}

			record.IsFinal = true
			result.Turns = append(result.Turns, record)
			messages = append(messages, models.Message{Role: models.RoleAssistant, Content: resp.Content})
			result.FinalOutput = resp.Content
			result.StoppedReason = models.StoppedCompleted
			result.TotalTurns = turn
			result.Messages = messages
			if l.config.Hooks.OnTurnEnd != nil {
				l.config.Hooks.OnTurnEnd(ctx, turn, record)
			}
			if span != nil {
				span.End(nil)
			}
			return result, nil
		}

		messages = append(messages, models.Message{Role: models.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, call := range resp.ToolCalls {
			args := json.RawMessage(call.Arguments)
			if l.config.Hooks.OnToolStart != nil {
				l.config.Hooks.OnToolStart(ctx, call.Name, args)
			}

			var resultText string
			var toolErr error
			if l.registry == nil {
				toolErr = fmt.Errorf("%w: %s", tools.ErrNotFound, call.Name)
			} else {
				tc := &models.ToolContext{CallID: call.ID, AgentID: l.config.AgentID, UserID: l.config.UserID}
				if l.config.Tracer != nil {
					tc.TraceID = l.config.Tracer.TraceID()
				}
				resultText, toolErr = l.registry.Execute(ctx, call.Name, args, tc)
			}

			if l.config.Hooks.OnToolEnd != nil {
				l.config.Hooks.OnToolEnd(ctx, call.Name, resultText, toolErr)
			}

			callRecord := models.ToolCallRecord{CallID: call.ID, ToolName: call.Name, Args: call.Arguments}
			if toolErr != nil {
				callRecord.Error = toolErr.Error()
				resultText = "error: " + toolErr.Error()
			}
			callRecord.Result = resultText
			record.ToolCalls = append(record.ToolCalls, callRecord)
			result.TotalToolCalls++

			messages = append(messages, models.Message{
				Role:       models.RoleTool,
				Content:    resultText,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}

		result.Turns = append(result.Turns, record)
		if l.config.Hooks.OnTurnEnd != nil {
			l.config.Hooks.OnTurnEnd(ctx, turn, record)
		}
	}

	result.StoppedReason = models.StoppedMaxTurns
	result.FinalOutput = lastText
	result.TotalTurns = maxTurns
	result.Messages = messages
	if span != nil {
		span.End(runErr)
	}
	return result, nil
}

// assembleMessages builds the initial list: system prompt, extra
// context (as a second system message), prior history, user message.
func (l *Loop) assembleMessages(in RunInput) []models.Message {
	var messages []models.Message
	if l.config.SystemPrompt != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: l.config.SystemPrompt})
	}
	if in.ExtraContext != "" {
		messages = append(messages, models.Message{Role: models.RoleSystem, Content: in.ExtraContext})
	}
	messages = append(messages, in.History...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: in.UserInput})
	return messages
}
