// File: internal/mcp/types.go
package mcp

import (
	"context"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/engine"
	"github.com/xkilldash9x/browsergate/internal/resilience"
	"github.com/xkilldash9x/browsergate/internal/tools"
)

// ToolEngine is what the transport needs from the engine (satisfied by *engine.Engine).
type ToolEngine interface {
	Call(ctx context.Context, call schemas.ToolCall) schemas.ToolResponse
	Catalogue() *tools.Catalogue
	SessionStatus(id string) (engine.SessionStatus, error)
	Sessions() []engine.SessionStatus
	CloseSession(ctx context.Context, id string) error
	Circuits() *resilience.Registry
}

// APIResponse is the envelope for every non tool-call endpoint.
type APIResponse struct {
	Status string      `json:"status"` // "success" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// wsRequest is one tool call received over a WebSocket. ID is echoed back so
// clients can correlate replies, which may arrive out of order across sessions.
type wsRequest struct {
	ID string `json:"id,omitempty"`
	schemas.ToolCall
}

// wsResponse carries the reply for a wsRequest.
type wsResponse struct {
	ID string `json:"id,omitempty"`
	schemas.ToolResponse
}

var _ ToolEngine = (*engine.Engine)(nil)
