// File: internal/mcp/handlers.go
package mcp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/engine"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxCallBodyBytes bounds a tool call request body.
const maxCallBodyBytes = 1 << 20

// Handlers manages the HTTP request handling for the tool server.
type Handlers struct {
	log    *zap.Logger
	engine ToolEngine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, eng ToolEngine) *Handlers {
	return &Handlers{
		log:    logger.Named("mcp_handlers"),
		engine: eng,
	}
}

// RegisterRoutes sets up the API routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/tools", h.HandleListTools)
		r.Post("/tools/call", h.HandleCall)

		r.Get("/sessions", h.HandleListSessions)
		r.Get("/sessions/{sessionID}", h.HandleGetSession)
		r.Delete("/sessions/{sessionID}", h.HandleDeleteSession)

		r.Get("/circuits", h.HandleListCircuits)
		r.Post("/circuits/reset", h.HandleResetCircuits)
		r.Post("/circuits/{category}/reset", h.HandleResetCircuit)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleListTools returns the tool catalogue with input schemas.
func (h *Handlers) HandleListTools(w http.ResponseWriter, r *http.Request) {
	h.respondWithSuccess(w, http.StatusOK, h.engine.Catalogue().Descriptors())
}

// HandleCall executes one tool call. The body of the reply is the tool
// response itself; the HTTP status mirrors its error kind.
func (h *Handlers) HandleCall(w http.ResponseWriter, r *http.Request) {
	var call schemas.ToolCall
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBodyBytes)).Decode(&call); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if call.Tool == "" {
		h.respondWithError(w, http.StatusBadRequest, "Field 'tool' is required.")
		return
	}

	h.log.Debug("Received tool call",
		zap.String(observability.FieldTool, call.Tool),
		zap.String(observability.FieldSession, call.SessionID))

	resp := h.engine.Call(r.Context(), call)
	h.writeJSON(w, statusForKind(resp.ErrorKind), resp)
}

// HandleListSessions lists live sessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	h.respondWithSuccess(w, http.StatusOK, h.engine.Sessions())
}

// HandleGetSession returns one session's status, workflow history included.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	st, err := h.engine.SessionStatus(id)
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	h.respondWithSuccess(w, http.StatusOK, st)
}

// HandleDeleteSession closes a session and its page.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.engine.CloseSession(r.Context(), id); err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			h.respondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("Failed to close session", zap.String(observability.FieldSession, id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondWithSuccess(w, http.StatusOK, map[string]interface{}{"session_id": id, "closed": true})
}

// HandleListCircuits returns a snapshot of every known circuit.
func (h *Handlers) HandleListCircuits(w http.ResponseWriter, r *http.Request) {
	h.respondWithSuccess(w, http.StatusOK, h.engine.Circuits().Snapshots())
}

// HandleResetCircuits closes every circuit.
func (h *Handlers) HandleResetCircuits(w http.ResponseWriter, r *http.Request) {
	h.engine.Circuits().ResetAll()
	h.log.Info("All circuits reset by operator.")
	h.respondWithSuccess(w, http.StatusOK, h.engine.Circuits().Snapshots())
}

// HandleResetCircuit closes one category's circuit.
func (h *Handlers) HandleResetCircuit(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !h.engine.Circuits().Reset(category) {
		h.respondWithError(w, http.StatusNotFound, fmt.Sprintf("Unknown circuit category: %s", category))
		return
	}
	h.log.Info("Circuit reset by operator.", zap.String(observability.FieldCategory, category))
	h.respondWithSuccess(w, http.StatusOK, h.engine.Circuits().Snapshot(category))
}

// statusForKind maps a tool error kind to an HTTP status.
func statusForKind(kind schemas.ErrorKind) int {
	switch kind {
	case schemas.ErrorKindNone:
		return http.StatusOK
	case schemas.ErrorKindUnknownTool, schemas.ErrorKindSessionNotFound:
		return http.StatusNotFound
	case schemas.ErrorKindInvalidArguments:
		return http.StatusBadRequest
	case schemas.ErrorKindValidationRejected:
		return http.StatusConflict
	case schemas.ErrorKindSessionLimit:
		return http.StatusTooManyRequests
	case schemas.ErrorKindCircuitOpen:
		return http.StatusServiceUnavailable
	case schemas.ErrorKindTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, APIResponse{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.writeJSON(w, statusCode, APIResponse{Status: "success", Data: data})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
