// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/config"
	"github.com/xkilldash9x/browsergate/internal/content"
	"github.com/xkilldash9x/browsergate/internal/observability"
	"github.com/xkilldash9x/browsergate/internal/resilience"
	"github.com/xkilldash9x/browsergate/internal/tools"
	"github.com/xkilldash9x/browsergate/internal/workflow"
)

// Engine runs tool calls for many sessions against one browser. Each call is
// decoded, gated by the session's workflow validator, executed through the
// resilience guard and, for content-bearing tools, fitted to the response
// budget.
type Engine struct {
	cfg       config.Interface
	logger    *zap.Logger
	browser   schemas.Browser
	catalogue *tools.Catalogue
	circuits  *resilience.Registry
	guard     *resilience.Guard
	content   *content.Engine
	metrics   *observability.Metrics
	now       func() time.Time
	handlers  map[string]preparer

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option customizes an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	metrics   *observability.Metrics
	now       func() time.Time
	catalogue *tools.Catalogue
}

// WithMetrics records call metrics. Without it metrics are discarded.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithClock replaces time.Now for workflow freshness and circuit cooldowns.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithCatalogue replaces the default tool catalogue.
func WithCatalogue(c *tools.Catalogue) Option {
	return func(o *engineOptions) { o.catalogue = c }
}

// New creates an engine. No browser work happens until the first browser_init.
func New(cfg config.Interface, browser schemas.Browser, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if browser == nil {
		return nil, errors.New("browser cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalogue == nil {
		o.catalogue = tools.Default()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.Named("engine"),
		browser:   browser,
		catalogue: o.catalogue,
		metrics:   o.metrics,
		now:       o.now,
		sessions:  make(map[string]*Session),
	}

	rc := cfg.Resilience()
	overrides := make(map[string]resilience.BreakerConfig, len(rc.Circuit.Categories))
	for name := range rc.Circuit.Categories {
		c := rc.Circuit.ForCategory(name)
		overrides[name] = resilience.BreakerConfig{Threshold: c.Threshold, Cooldown: c.Cooldown}
	}
	e.circuits = resilience.NewRegistry(
		resilience.BreakerConfig{Threshold: rc.Circuit.Threshold, Cooldown: rc.Circuit.Cooldown},
		overrides,
		resilience.WithClock(o.now),
		resilience.WithStateChangeHook(e.onCircuitChange),
	)
	e.guard = resilience.NewGuard(e.circuits, resilience.GuardConfig{
		CallTimeout: rc.CallTimeout,
		Retry: resilience.RetryPolicy{
			MaxAttempts:    rc.Retry.MaxAttempts,
			BaseDelay:      rc.Retry.BaseDelay,
			MaxDelay:       rc.Retry.MaxDelay,
			AttemptTimeout: rc.Retry.AttemptTimeout,
		},
	}, e.logger)

	cc := cfg.Content()
	e.content = content.NewEngine(content.Config{BudgetUnits: cc.BudgetUnits, BytesPerUnit: cc.BytesPerUnit}, e.logger)
	e.handlers = e.buildHandlers()

	for _, name := range e.catalogue.Names() {
		if _, ok := e.handlers[name]; !ok {
			return nil, fmt.Errorf("tool %q has no handler", name)
		}
	}
	return e, nil
}

func (e *Engine) onCircuitChange(category string, from, to resilience.BreakerState) {
	e.logger.Info("Circuit state changed.",
		zap.String(observability.FieldCategory, category),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	e.metrics.SetBreakerState(category, to.String(), int(to))
}

// Catalogue returns the registered tools.
func (e *Engine) Catalogue() *tools.Catalogue { return e.catalogue }

// Circuits returns the breaker registry for inspection and operator reset.
func (e *Engine) Circuits() *resilience.Registry { return e.circuits }

// session returns the named session, creating it on first use.
func (e *Engine) session(id string) (*Session, error) {
	if id == "" {
		id = DefaultSessionID
	}
	if !validSessionID(id) {
		return nil, &tools.ArgumentError{Tool: "session", Err: fmt.Errorf("session id %q must be 1-%d characters of [A-Za-z0-9._-]", id, maxSessionIDLength)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if s, ok := e.sessions[id]; ok {
		return s, nil
	}
	ec := e.cfg.Engine()
	if len(e.sessions) >= ec.MaxSessions {
		return nil, fmt.Errorf("%w (%d)", ErrSessionLimit, ec.MaxSessions)
	}

	wc := e.cfg.Workflow()
	s := &Session{
		ID:        id,
		CreatedAt: e.now(),
		logger:    observability.ForSession(e.logger, id),
		sem:       semaphore.NewWeighted(1),
		validator: workflow.NewValidator(e.catalogue.Rules(),
			workflow.WithClock(e.now),
			workflow.WithContentMaxAge(wc.ContentMaxAge),
			workflow.WithHistoryLimit(wc.HistoryLimit),
		),
		chunks: content.NewChunkStore(e.cfg.Content().ChunkSetsPerSession),
	}
	if ec.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(ec.RateLimit), ec.RateBurst)
	}
	e.sessions[id] = s
	e.metrics.SetSessions(len(e.sessions))
	s.logger.Info("Session created.")
	return s, nil
}

// SessionStatus returns the status of a live session.
func (e *Engine) SessionStatus(id string) (SessionStatus, error) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return SessionStatus{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.Status(), nil
}

// Sessions lists every live session, sorted by id.
func (e *Engine) Sessions() []SessionStatus {
	e.mu.Lock()
	list := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	out := make([]SessionStatus, len(list))
	for i, s := range list {
		out[i] = s.Status()
	}
	return out
}

// CloseSession waits for the session's in-flight call, closes its page and
// forgets it.
func (e *Engine) CloseSession(ctx context.Context, id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
		e.metrics.SetSessions(len(e.sessions))
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.closeSession(ctx, s)
}

func (e *Engine) closeSession(ctx context.Context, s *Session) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("session %s is busy: %w", s.ID, err)
	}
	defer s.release()

	err := s.close(ctx)
	s.logger.Info("Session closed.", zap.Error(err))
	return err
}

// Shutdown closes every session and then the browser. Later calls fail with
// ErrEngineClosed.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*Session)
	e.metrics.SetSessions(0)
	e.mu.Unlock()

	e.logger.Info("Shutting down engine.", zap.Int("sessions", len(sessions)))

	var errs error
	for _, s := range sessions {
		errs = multierr.Append(errs, e.closeSession(ctx, s))
	}
	errs = multierr.Append(errs, e.browser.Shutdown(ctx))
	return errs
}
