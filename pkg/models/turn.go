package models

// StoppedReason explains why an Agent Loop run ended.
type StoppedReason string

const (
	StoppedCompleted              StoppedReason = "completed"
	StoppedMaxTurns               StoppedReason = "max_turns"
	StoppedError                  StoppedReason = "error"
	StoppedInputGuardrailBlocked  StoppedReason = "input_guardrail_triggered"
	StoppedOutputGuardrailBlocked StoppedReason = "output_guardrail_triggered"
)

// TurnRecord captures one iteration of the Agent Loop's reason-act
// state machine.
type TurnRecord struct {
	// Turn is the 1-based turn number.
	Turn int `json:"turn"`

	// Output is the LLM's textual output for this turn, if any.
	Output string `json:"output,omitempty"`

	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`

	// IsFinal is true iff this turn produced the run's final output
	// (no further tool dispatch followed it).
	IsFinal bool `json:"is_final"`
}

// AgentResult is the outcome of one Agent Loop run.
type AgentResult struct {
	FinalOutput    string         `json:"final_output"`
	Turns          []TurnRecord   `json:"turns"`
	TotalToolCalls int            `json:"total_tool_calls"`
	TotalTurns     int            `json:"total_turns"`
	StoppedReason  StoppedReason  `json:"stopped_reason"`

	// Messages is the full message list as of the end of the run,
	// suitable for continuing the conversation in a subsequent call.
	Messages []Message `json:"messages"`
}
