package providers

import (
	"encoding/json"
	"testing"

	"github.com/lumenforge/agentrt/pkg/models"
)

func TestBedrockConvertMessagesExtractsSystem(t *testing.T) {
	p := &BedrockProvider{}
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "be terse"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "lookup", Arguments: `{"q":"x"}`},
		}},
		{Role: models.RoleTool, Content: "found it", ToolCallID: "t1"},
	}

	converted, system, err := p.convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if system != "be terse" {
		t.Fatalf("system = %q, want %q", system, "be terse")
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 non-system messages, got %d", len(converted))
	}
}

func TestBedrockConvertMessagesRejectsBadToolArguments(t *testing.T) {
	p := &BedrockProvider{}
	messages := []models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "lookup", Arguments: "not json"},
		}},
	}
	if _, _, err := p.convertMessages(messages); err == nil {
		t.Fatal("expected an error for malformed tool call arguments")
	}
}

func TestBedrockConvertToolsRejectsBadSchema(t *testing.T) {
	p := &BedrockProvider{}
	tools := []models.OpenAIFunctionTool{
		{Function: models.OpenAIFunctionSpec{Name: "broken", Parameters: json.RawMessage(`not json`)}},
	}
	if _, err := p.convertTools(tools); err == nil {
		t.Fatal("expected an error for malformed schema")
	}
}
