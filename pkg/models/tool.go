package models

import "encoding/json"

// ParamType is a JSON-Schema-compatible type tag for a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ToolParameter describes one named argument of a ToolDefinition.
type ToolParameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
}

// ToolDefinition is one entry in a ToolRegistry.
//
// RawSchema, when non-nil, is used verbatim as the "parameters" object
// of the exported JSON-Schema in place of one synthesized from
// Parameters — this is how MCP-imported tools preserve nested/oneOf
// schema fidelity (spec.md §4.7).
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
	RawSchema   json.RawMessage `json:"-"`
	Async       bool            `json:"async,omitempty"`
}

// JSONSchemaTool is one exported entry of ToolRegistry.ToJSONSchema.
type JSONSchemaTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// OpenAIFunctionTool is one exported entry of ToolRegistry.ToOpenAISchema.
type OpenAIFunctionTool struct {
	Type     string             `json:"type"`
	Function OpenAIFunctionSpec `json:"function"`
}

// OpenAIFunctionSpec is the "function" body of an OpenAIFunctionTool.
type OpenAIFunctionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCallRecord captures one tool invocation made during a TurnRecord.
type ToolCallRecord struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Args     string `json:"args"`
	Result   string `json:"result"`
	Error    string `json:"error,omitempty"`
}
