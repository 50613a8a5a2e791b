// File: internal/resilience/guard.go
package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// GuardConfig holds the knobs for the composed resilience wrapper.
type GuardConfig struct {
	// CallTimeout bounds the whole retry loop for one call.
	CallTimeout time.Duration
	Retry       RetryPolicy
}

// DefaultGuardConfig returns a 60s call budget around the default retry policy.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{CallTimeout: 60 * time.Second, Retry: DefaultRetryPolicy()}
}

// Outcome describes how a guarded call went, independent of its result.
type Outcome struct {
	Category string
	Attempts int
	Aborted  bool
	Elapsed  time.Duration
}

// Guard composes the circuit breaker, the call timeout, the retry loop and
// the per-attempt timeout, in that order from the outside in.
type Guard struct {
	circuits *Registry
	cfg      GuardConfig
	logger   *zap.Logger
}

// NewGuard creates a Guard over a shared circuit registry.
func NewGuard(circuits *Registry, cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		circuits: circuits,
		cfg:      cfg,
		logger:   logger.Named("guard"),
	}
}

// Circuits exposes the registry for inspection and reset.
func (g *Guard) Circuits() *Registry { return g.circuits }

// Config returns the guard's configuration.
func (g *Guard) Config() GuardConfig { return g.cfg }

// Do runs op under the guard for the given category.
func (g *Guard) Do(ctx context.Context, category string, op func(ctx context.Context) error) (Outcome, error) {
	_, out, err := Call(ctx, g, category, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return out, err
}

// Call runs op under the guard and returns its value.
//
// op receives a context detached from ctx: the caller cannot cancel a call
// once it has been admitted, only the timeout races can. A circuit rejection
// never invokes op and reports zero attempts.
func Call[T any](ctx context.Context, g *Guard, category string, op func(ctx context.Context) (T, error)) (T, Outcome, error) {
	start := time.Now()
	out := Outcome{Category: category}
	var attempts atomic.Int32
	var aborted atomic.Bool
	var val T

	detached := Detach(ctx)
	err := g.circuits.Execute(detached, category, func(ctx context.Context) error {
		v, err := WithTimeout(ctx, g.cfg.CallTimeout, func(ctx context.Context) (T, error) {
			v, result, err := RetryValue(ctx, g.cfg.Retry, func(ctx context.Context, attempt int) (T, error) {
				attempts.Store(int32(attempt))
				return op(ctx)
			})
			aborted.Store(result.Aborted)
			if err != nil && result.Count() > 0 && !result.Aborted {
				g.logger.Debug("Retries exhausted.",
					zap.String("category", category),
					zap.Int("attempts", result.Count()),
					zap.Error(err))
			}
			return v, err
		})
		val = v
		return err
	})

	out.Attempts = int(attempts.Load())
	out.Aborted = aborted.Load()
	out.Elapsed = time.Since(start)

	switch {
	case err == nil:
	case IsCircuitOpen(err):
		g.logger.Warn("Call rejected by open circuit.", zap.String("category", category), zap.Error(err))
	case IsTimedOut(err):
		g.logger.Warn("Call timed out.", zap.String("category", category), zap.Int("attempts", out.Attempts), zap.Error(err))
	case IsUnrecoverable(err):
		g.logger.Error("Unrecoverable failure, circuit tripped.", zap.String("category", category), zap.Error(err))
	}
	return val, out, err
}
