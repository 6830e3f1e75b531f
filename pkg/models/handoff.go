package models

import "encoding/json"

// HandoffMode selects how a HandoffRequest should be executed.
type HandoffMode string

const (
	HandoffModeToolBased  HandoffMode = "tool_based"
	HandoffModeCoordinator HandoffMode = "coordinator"
	HandoffModeAuto       HandoffMode = "auto"
)

// HandoffStatus is the outcome discriminator of a HandoffResult.
type HandoffStatus string

const (
	HandoffStatusSuccess      HandoffStatus = "success"
	HandoffStatusError        HandoffStatus = "error"
	HandoffStatusTimeout      HandoffStatus = "timeout"
	HandoffStatusDenied       HandoffStatus = "denied"
	HandoffStatusLoopDetected HandoffStatus = "loop_detected"
)

// HandoffErrorCode classifies a HandoffError.
type HandoffErrorCode string

const (
	ErrNotFound     HandoffErrorCode = "NOT_FOUND"
	ErrNotAllowed   HandoffErrorCode = "NOT_ALLOWED"
	ErrSafetyBlock  HandoffErrorCode = "SAFETY_BLOCK"
	ErrTimeout      HandoffErrorCode = "TIMEOUT"
	ErrLoopDetected HandoffErrorCode = "LOOP_DETECTED"
	ErrToolError    HandoffErrorCode = "TOOL_ERROR"
	ErrModelError   HandoffErrorCode = "MODEL_ERROR"
	ErrRateLimited  HandoffErrorCode = "RATE_LIMITED"
)

// retryableCodes are HandoffErrorCodes that a caller may retry with a
// fresh request id.
var retryableCodes = map[HandoffErrorCode]bool{
	ErrTimeout:     true,
	ErrToolError:   true,
	ErrModelError:  true,
	ErrRateLimited: true,
}

// HandoffError is the structured failure detail of a HandoffResult.
type HandoffError struct {
	Code      HandoffErrorCode `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

// NewHandoffError builds a HandoffError, deriving Retryable from Code.
func NewHandoffError(code HandoffErrorCode, message string) *HandoffError {
	return &HandoffError{Code: code, Message: message, Retryable: retryableCodes[code]}
}

func (e *HandoffError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// HandoffMessage is one message carried inside a HandoffContext.
type HandoffMessage struct {
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Name        string   `json:"name,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Redactions  []string `json:"redactions,omitempty"`
}

// HandoffContext is the payload a HandoffRequest carries to its
// target agent.
type HandoffContext struct {
	Messages      []HandoffMessage `json:"messages"`
	MemorySummary string           `json:"memory_summary,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	TokenBudget   int              `json:"token_budget,omitempty"`

	// RedactionReport accumulates one entry per filter that redacted
	// content, in filter-application order (platform, target, budget).
	RedactionReport []string `json:"redaction_report,omitempty"`

	Attachments []string `json:"attachments,omitempty"`
	Locale      string   `json:"locale,omitempty"`
}

// HandoffRequest asks the Handoff Engine to delegate one turn to
// another agent.
type HandoffRequest struct {
	FromAgent string      `json:"from_agent"`
	ToAgent   string      `json:"to_agent"`
	Reason    string      `json:"reason,omitempty"`

	RequestedMode HandoffMode `json:"requested_mode"`

	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`

	DeadlineMS int64 `json:"deadline_ms,omitempty"`

	HopCount      int      `json:"hop_count"`
	VisitedAgents []string `json:"visited_agents,omitempty"`

	CallerOwnerID string `json:"caller_owner_id,omitempty"`
	CallerOrgID   string `json:"caller_org_id,omitempty"`

	Context *HandoffContext `json:"context,omitempty"`

	OriginalToolCallID string `json:"original_tool_call_id,omitempty"`

	// Metadata carries out-of-band values attached by the engine itself,
	// such as a signed identity token (key "token").
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Visited reports whether agentID already appears in VisitedAgents.
func (r *HandoffRequest) Visited(agentID string) bool {
	for _, a := range r.VisitedAgents {
		if a == agentID {
			return true
		}
	}
	return false
}

// HandoffResult is the outcome of a HandoffRequest.
type HandoffResult struct {
	Output         string            `json:"output"`
	AgentID        string            `json:"agent_id"`
	ShouldReturn   bool              `json:"should_return"`
	ReturnContext  *HandoffContext   `json:"return_context,omitempty"`
	Status         HandoffStatus     `json:"status"`
	Error          *HandoffError     `json:"error,omitempty"`
	Usage          map[string]int    `json:"usage,omitempty"`
	DurationMS     int64             `json:"duration_ms"`
	RequestID      string            `json:"request_id,omitempty"`
	CacheHit       bool              `json:"cache_hit"`
}

// handoffReturnMessageBody is the JSON content of a ToReturnMessage.
type handoffReturnMessageBody struct {
	AgentID   string         `json:"agent_id"`
	Status    HandoffStatus  `json:"status"`
	Output    string         `json:"output"`
	Usage     map[string]int `json:"usage,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CacheHit  bool           `json:"cache_hit"`
}

// ToReturnMessage serializes a HandoffResult into the tool-role
// message that gets injected back into the caller's Agent Loop
// message list (spec.md §4.10 step 11 / §6).
func (r *HandoffResult) ToReturnMessage(toolCallID string) Message {
	body := handoffReturnMessageBody{
		AgentID:   r.AgentID,
		Status:    r.Status,
		Output:    r.Output,
		Usage:     r.Usage,
		RequestID: r.RequestID,
		CacheHit:  r.CacheHit,
	}
	payload, _ := json.Marshal(body)
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Name:       "handoff_result",
		Content:    string(payload),
	}
}
