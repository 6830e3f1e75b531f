package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lumenforge/agentrt/internal/agent"
	"github.com/lumenforge/agentrt/pkg/models"
)

// BedrockConfig configures an AWS Bedrock-backed LLMFunc.
type BedrockConfig struct {
	Region       string
	DefaultModel string
	MaxTokens    int
	MaxRetries   int
	RetryDelay   time.Duration
}

// BedrockProvider adapts the Bedrock Converse API to agent.LLMFunc.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxTokens    int
	retry        retrier
}

// NewBedrockProvider builds a provider from cfg using the default AWS
// credential chain, applying defaults for Region (us-east-1),
// MaxRetries (3), RetryDelay (1s), and DefaultModel
// ("anthropic.claude-3-sonnet-20240229-v1:0").
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agent.LLMFunc.
func (p *BedrockProvider) Complete(ctx context.Context, messages []models.Message, toolSchema []models.OpenAIFunctionTool) (agent.LLMResponse, error) {
	converted, system, err := p.convertMessages(messages)
	if err != nil {
		return agent.LLMResponse{}, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(p.defaultModel),
		Messages: converted,
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if p.maxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(p.maxTokens))}
	}
	if len(toolSchema) > 0 {
		toolConfig, err := p.convertTools(toolSchema)
		if err != nil {
			return agent.LLMResponse{}, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		input.ToolConfig = toolConfig
	}

	var output *bedrockruntime.ConverseOutput
	runErr := p.retry.run(ctx, isRetryableMessage, func() error {
		var callErr error
		output, callErr = p.client.Converse(ctx, input)
		return callErr
	})
	if runErr != nil {
		return agent.LLMResponse{}, fmt.Errorf("bedrock: %w", runErr)
	}

	return p.toLLMResponse(output)
}

func (p *BedrockProvider) toLLMResponse(output *bedrockruntime.ConverseOutput) (agent.LLMResponse, error) {
	msgOutput, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return agent.LLMResponse{}, fmt.Errorf("bedrock: unexpected output shape")
	}

	var result agent.LLMResponse
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *types.ContentBlockMemberText:
			result.Content += v.Value
		case *types.ContentBlockMemberToolUse:
			data, err := json.Marshal(v.Value.Input)
			if err != nil {
				return agent.LLMResponse{}, fmt.Errorf("bedrock: marshal tool input: %w", err)
			}
			result.ToolCalls = append(result.ToolCalls, models.ToolCall{
				ID:        aws.ToString(v.Value.ToolUseId),
				Name:      aws.ToString(v.Value.Name),
				Arguments: string(data),
			})
		}
	}
	return result, nil
}

func (p *BedrockProvider) convertMessages(messages []models.Message) ([]types.Message, string, error) {
	var result []types.Message
	var system string

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += msg.Content
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}

		if msg.Role == models.RoleTool {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: msg.Content}},
				},
			})
			result = append(result, types.Message{Role: types.ConversationRoleUser, Content: content})
			continue
		}

		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
				return nil, "", fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
		}
	}

	return result, system, nil
}

func (p *BedrockProvider) convertTools(toolSchema []models.OpenAIFunctionTool) (*types.ToolConfiguration, error) {
	tools := make([]types.Tool, 0, len(toolSchema))
	for _, t := range toolSchema {
		var schema any
		if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", t.Function.Name, err)
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Function.Name),
				Description: aws.String(t.Function.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}, nil
}
