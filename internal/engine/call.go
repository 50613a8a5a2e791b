// internal/engine/call.go
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/content"
	"github.com/xkilldash9x/browsergate/internal/observability"
	"github.com/xkilldash9x/browsergate/internal/resilience"
	"github.com/xkilldash9x/browsergate/internal/tools"
	"github.com/xkilldash9x/browsergate/internal/workflow"
)

// Call executes one tool call and always returns a response. Errors are
// reported through the response's ErrorKind, never as a Go error.
//
// The pipeline is: tool lookup, session resolution, the per-session call
// slot, argument decoding, workflow validation, guarded execution, then
// history and effects. Rejected calls are recorded but never reach the driver.
func (e *Engine) Call(ctx context.Context, call schemas.ToolCall) schemas.ToolResponse {
	start := e.now()
	resp := schemas.ToolResponse{Tool: call.Tool}

	tool, ok := e.catalogue.Lookup(call.Tool)
	if !ok {
		return e.finish(resp, start, nil, schemas.ErrorKindUnknownTool, "unknown tool: "+call.Tool, nil)
	}

	s, err := e.session(call.SessionID)
	if err != nil {
		return e.finish(resp, start, nil, classify(err), err.Error(), nil)
	}
	resp.SessionID = s.ID
	log := s.logger.With(zap.String(observability.FieldTool, tool.Name))

	if err := s.enter(ctx); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return e.finish(resp, start, log, schemas.ErrorKindSessionNotFound, err.Error(), nil)
		}
		return e.finish(resp, start, log, schemas.ErrorKindTimedOut, "waiting for session: "+err.Error(), nil)
	}
	defer s.release()
	s.touch(start)

	run, err := e.handlers[tool.Name](call.Arguments)
	if err != nil {
		return e.finish(resp, start, log, schemas.ErrorKindInvalidArguments, err.Error(), nil)
	}

	if err := s.validator.Validate(tool.Name); err != nil {
		kind := classify(err)
		s.validator.Record(tool.Name, workflow.OutcomeRejected, string(kind))
		return e.finish(resp, start, log, kind, err.Error(), rejectionDetails(err))
	}

	result, outcome, err := run(ctx, s)
	details := outcomeDetails(tool, outcome)
	e.metrics.AddAttempts(tool.Category, outcome.Attempts)

	if err != nil {
		kind := classify(err)
		s.validator.Record(tool.Name, workflow.OutcomeFailure, string(kind))
		addErrorDetails(details, err)
		return e.finish(resp, start, log, kind, err.Error(), details)
	}

	if err := s.validator.Advance(tool.Name); err != nil {
		// The catalogue and the rule set are built together; this is a bug.
		log.Error("Failed to apply workflow effect.", zap.Error(err))
	}
	s.validator.Record(tool.Name, workflow.OutcomeSuccess, "")

	resp.OK = true
	resp.Result = result
	if len(details) > 0 {
		resp.Details = details
	}
	return e.finish(resp, start, log, schemas.ErrorKindNone, "", nil)
}

// finish fills in the error fields, logs and records metrics.
func (e *Engine) finish(resp schemas.ToolResponse, start time.Time, log *zap.Logger, kind schemas.ErrorKind, msg string, details map[string]interface{}) schemas.ToolResponse {
	elapsed := e.now().Sub(start)
	if log == nil {
		log = e.logger.With(zap.String(observability.FieldTool, resp.Tool))
	}

	outcome := "success"
	if kind != schemas.ErrorKindNone {
		resp.OK = false
		resp.ErrorKind = kind
		resp.Message = msg
		if len(details) > 0 {
			resp.Details = details
		}
		outcome = string(kind)
		log.Info("Tool call failed.", zap.String("error_kind", outcome), zap.String("message", msg), zap.Duration("elapsed", elapsed))
	} else {
		log.Debug("Tool call succeeded.", zap.Duration("elapsed", elapsed))
	}
	e.metrics.ObserveCall(resp.Tool, outcome, elapsed)
	return resp
}

// classify maps an error to its wire kind.
func classify(err error) schemas.ErrorKind {
	var rejected *workflow.RejectedError
	switch {
	case err == nil:
		return schemas.ErrorKindNone
	case errors.As(err, &rejected):
		return schemas.ErrorKindValidationRejected
	case resilience.IsCircuitOpen(err):
		return schemas.ErrorKindCircuitOpen
	case resilience.IsTimedOut(err), errors.Is(err, context.DeadlineExceeded):
		return schemas.ErrorKindTimedOut
	case resilience.IsUnrecoverable(err):
		return schemas.ErrorKindUnrecoverable
	case tools.IsArgumentError(err),
		errors.Is(err, content.ErrChunkSetNotFound),
		errors.Is(err, content.ErrChunkIndexOutOfRange):
		return schemas.ErrorKindInvalidArguments
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrEngineClosed):
		return schemas.ErrorKindSessionNotFound
	case errors.Is(err, ErrSessionLimit):
		return schemas.ErrorKindSessionLimit
	default:
		return schemas.ErrorKindDriverFailure
	}
}

func rejectionDetails(err error) map[string]interface{} {
	var rejected *workflow.RejectedError
	if !errors.As(err, &rejected) {
		return nil
	}
	d := map[string]interface{}{
		"required_state": rejected.Required.String(),
		"current_state":  rejected.Current.String(),
		"reason":         rejected.Reason,
	}
	if rejected.Prerequisite != "" {
		d["prerequisite"] = rejected.Prerequisite
	}
	return d
}

func outcomeDetails(tool tools.Tool, out resilience.Outcome) map[string]interface{} {
	if tool.Local() {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"category":   tool.Category,
		"attempts":   out.Attempts,
		"elapsed_ms": out.Elapsed.Milliseconds(),
	}
}

func addErrorDetails(d map[string]interface{}, err error) {
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) {
		d["cooldown_remaining_ms"] = open.Remaining.Milliseconds()
		d["failures"] = open.Failures
	}
	var timedOut *resilience.TimedOutError
	if errors.As(err, &timedOut) {
		d["timeout_ms"] = timedOut.Budget.Milliseconds()
	}
}
