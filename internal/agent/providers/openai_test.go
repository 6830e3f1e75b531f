package providers

import (
	"encoding/json"
	"testing"

	"github.com/lumenforge/agentrt/pkg/models"
)

func TestOpenAIConvertMessagesRoles(t *testing.T) {
	p := &OpenAIProvider{}
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello", ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "lookup", Arguments: `{"q":"x"}`},
		}},
		{Role: models.RoleTool, Content: "result text", ToolCallID: "call_1"},
	}

	converted := p.convertMessages(messages)
	if len(converted) != 4 {
		t.Fatalf("expected 4 converted messages, got %d", len(converted))
	}
	if converted[2].ToolCalls[0].Function.Arguments != `{"q":"x"}` {
		t.Fatalf("tool call arguments not preserved: %+v", converted[2].ToolCalls)
	}
	if converted[3].ToolCallID != "call_1" {
		t.Fatalf("expected tool_call_id preserved, got %q", converted[3].ToolCallID)
	}
}

func TestOpenAIConvertToolsFallsBackOnBadSchema(t *testing.T) {
	p := &OpenAIProvider{}
	tools := []models.OpenAIFunctionTool{
		{Function: models.OpenAIFunctionSpec{Name: "broken", Parameters: json.RawMessage(`not json`)}},
	}
	converted := p.convertTools(tools)
	if len(converted) != 1 || converted[0].Function.Name != "broken" {
		t.Fatalf("expected a fallback tool definition, got %+v", converted)
	}
}
