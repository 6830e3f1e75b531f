package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lumenforge/agentrt/internal/agent"
	"github.com/lumenforge/agentrt/pkg/models"
)

// OpenAIConfig configures an OpenAI-backed LLMFunc.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// OpenAIProvider adapts the Chat Completions API to agent.LLMFunc.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
	retry        retrier
}

// NewOpenAIProvider builds a provider from cfg, applying defaults for
// MaxRetries (3), RetryDelay (1s), and DefaultModel ("gpt-4o").
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agent.LLMFunc.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []models.Message, toolSchema []models.OpenAIFunctionTool) (agent.LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.defaultModel,
		Messages: p.convertMessages(messages),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}
	if len(toolSchema) > 0 {
		req.Tools = p.convertTools(toolSchema)
	}

	var resp openai.ChatCompletionResponse
	runErr := p.retry.run(ctx, isRetryableMessage, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if runErr != nil {
		return agent.LLMResponse{}, fmt.Errorf("openai: %w", runErr)
	}
	if len(resp.Choices) == 0 {
		return agent.LLMResponse{}, fmt.Errorf("openai: empty response")
	}

	choice := resp.Choices[0].Message
	out := agent.LLMResponse{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (p *OpenAIProvider) convertMessages(messages []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{Content: msg.Content}

		switch msg.Role {
		case models.RoleSystem:
			oaiMsg.Role = openai.ChatMessageRoleSystem
		case models.RoleAssistant:
			oaiMsg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case models.RoleTool:
			oaiMsg.Role = openai.ChatMessageRoleTool
			oaiMsg.ToolCallID = msg.ToolCallID
		default:
			oaiMsg.Role = openai.ChatMessageRoleUser
		}

		result = append(result, oaiMsg)
	}
	return result
}

func (p *OpenAIProvider) convertTools(toolSchema []models.OpenAIFunctionTool) []openai.Tool {
	result := make([]openai.Tool, 0, len(toolSchema))
	for _, t := range toolSchema {
		var params map[string]any
		if err := json.Unmarshal(t.Function.Parameters, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}
	return result
}
