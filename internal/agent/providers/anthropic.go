package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lumenforge/agentrt/internal/agent"
	"github.com/lumenforge/agentrt/pkg/models"
)

// AnthropicConfig configures an Anthropic-backed LLMFunc.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicProvider adapts the Anthropic Messages API to agent.LLMFunc.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
	retry        retrier
}

// NewAnthropicProvider builds a provider from cfg, applying defaults
// for MaxRetries (3), RetryDelay (1s), MaxTokens (4096), and
// DefaultModel ("claude-sonnet-4-20250514").
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agent.LLMFunc.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []models.Message, toolSchema []models.OpenAIFunctionTool) (agent.LLMResponse, error) {
	converted, system, err := p.convertMessages(messages)
	if err != nil {
		return agent.LLMResponse{}, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		Messages:  converted,
		MaxTokens: int64(p.maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(toolSchema) > 0 {
		tools, err := p.convertTools(toolSchema)
		if err != nil {
			return agent.LLMResponse{}, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	var resp *anthropic.Message
	runErr := p.retry.run(ctx, isRetryableMessage, func() error {
		var callErr error
		resp, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if runErr != nil {
		return agent.LLMResponse{}, fmt.Errorf("anthropic: %w", runErr)
	}

	return toLLMResponse(resp), nil
}

func toLLMResponse(resp *anthropic.Message) agent.LLMResponse {
	out := agent.LLMResponse{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	return out
}

func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, string, error) {
	var result []anthropic.MessageParam
	var system string

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		if msg.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				return nil, "", fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, system, nil
}

func (p *AnthropicProvider) convertTools(toolSchema []models.OpenAIFunctionTool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(toolSchema))
	for _, t := range toolSchema {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Function.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", t.Function.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Function.Description)
		result = append(result, toolParam)
	}
	return result, nil
}
