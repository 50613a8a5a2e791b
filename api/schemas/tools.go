// File: api/schemas/tools.go
package schemas

// ErrorKind classifies a failed tool call for the remote caller.
// The string values are part of the wire format.
type ErrorKind string

const (
	// ErrorKindNone is used on successful responses.
	ErrorKindNone ErrorKind = ""
	// ErrorKindValidationRejected means a workflow precondition was not met.
	// It is user-correctable and never retried.
	ErrorKindValidationRejected ErrorKind = "ValidationRejected"
	// ErrorKindCircuitOpen means the category's circuit is open; the call failed fast.
	ErrorKindCircuitOpen ErrorKind = "CircuitOpen"
	// ErrorKindTimedOut means the call exceeded its deadline.
	ErrorKindTimedOut ErrorKind = "TimedOut"
	// ErrorKindUnrecoverable means the driver reported a systemic failure (e.g. stack exhaustion).
	ErrorKindUnrecoverable ErrorKind = "Unrecoverable"
	// ErrorKindDriverFailure is a generic failure from the browser driver, after retries.
	ErrorKindDriverFailure ErrorKind = "DriverFailure"
	// ErrorKindBudgetExceeded is only used in logs and metrics; the content engine handles it locally.
	ErrorKindBudgetExceeded ErrorKind = "BudgetExceeded"
	// ErrorKindUnknownTool means the requested tool name is not registered.
	ErrorKindUnknownTool ErrorKind = "UnknownTool"
	// ErrorKindInvalidArguments means the arguments could not be decoded or failed validation.
	ErrorKindInvalidArguments ErrorKind = "InvalidArguments"
	// ErrorKindSessionNotFound means the referenced session does not exist (or was closed).
	ErrorKindSessionNotFound ErrorKind = "SessionNotFound"
	// ErrorKindSessionLimit means a new session would exceed the configured maximum.
	ErrorKindSessionLimit ErrorKind = "SessionLimitReached"
)

// ToolCall is a single invocation received from the transport.
type ToolCall struct {
	// SessionID selects the browser session. Empty means the default session.
	SessionID string                 `json:"session_id,omitempty"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolResponse is the structured reply for a ToolCall.
// Exactly one of Result or (ErrorKind, Message) is meaningful, selected by OK.
type ToolResponse struct {
	OK        bool                   `json:"ok"`
	SessionID string                 `json:"session_id,omitempty"`
	Tool      string                 `json:"tool"`
	Result    interface{}            `json:"result,omitempty"`
	ErrorKind ErrorKind              `json:"error_kind,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToolDescriptor is the public description of a registered tool.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    string                 `json:"category,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ContentEnvelope is the shape of any content-bearing tool result after it
// passed through the content budget engine.
type ContentEnvelope struct {
	Content   string      `json:"content"`
	MediaType string      `json:"media_type"`
	Strategy  string      `json:"strategy"`
	Truncated bool        `json:"truncated"`
	Units     int         `json:"units"`
	Chunk     *ChunkRef   `json:"chunk,omitempty"`
	Meta      interface{} `json:"meta,omitempty"`
}

// ChunkRef locates one segment of chunked content.
type ChunkRef struct {
	SetID string `json:"set_id"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	// Next is the index of the following chunk, or -1 when this is the last one.
	Next int `json:"next"`
}
