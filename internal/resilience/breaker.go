// File: internal/resilience/breaker.go
package resilience

import (
	"context"
	"sort"
	"sync"
	"time"
)

// BreakerState is the state of one category's circuit.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen admits a single trial call.
	BreakerHalfOpen
)

// String returns a human-readable state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a circuit.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before a half-open trial.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns threshold 3 and a 15s cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 3, Cooldown: 15 * time.Second}
}

func (c BreakerConfig) normalized() BreakerConfig {
	if c.Threshold < 1 {
		c.Threshold = 1
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
	return c
}

// BreakerSnapshot is a point-in-time view of one category's circuit.
type BreakerSnapshot struct {
	Category          string        `json:"category"`
	State             string        `json:"state"`
	Failures          int           `json:"failures"`
	Threshold         int           `json:"threshold"`
	Cooldown          time.Duration `json:"cooldown"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	LastFailure       time.Time     `json:"last_failure,omitempty"`
	Rejections        int64         `json:"rejections"`
}

// breaker holds the state of one category. mu is held only for the
// read-modify-write of these fields, never across the wrapped operation.
// generation advances on every state change; a call only settles into the
// generation it was admitted in.
type breaker struct {
	mu            sync.Mutex
	cfg           BreakerConfig
	state         BreakerState
	generation    uint64
	failures      int
	lastFailure   time.Time
	trialInFlight bool
	rejections    int64
}

// moveTo changes state and starts a new generation. Callers hold b.mu.
func (b *breaker) moveTo(to BreakerState) {
	if b.state != to {
		b.state = to
		b.generation++
	}
}

// ticket identifies an admitted call.
type ticket struct {
	trial      bool
	generation uint64
}

// StateChangeFunc observes circuit transitions. It is invoked without any
// breaker lock held.
type StateChangeFunc func(category string, from, to BreakerState)

// Registry is the process-wide set of circuits, one per category.
// It is created explicitly and injected; Reset restores the initial state.
type Registry struct {
	mu        sync.Mutex
	defaults  BreakerConfig
	overrides map[string]BreakerConfig
	breakers  map[string]*breaker
	now       func() time.Time
	onChange  StateChangeFunc
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithStateChangeHook registers a transition observer (metrics, logging).
func WithStateChangeHook(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry creates a registry using defaults for every category not listed in overrides.
func NewRegistry(defaults BreakerConfig, overrides map[string]BreakerConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		defaults:  defaults.normalized(),
		overrides: make(map[string]BreakerConfig, len(overrides)),
		breakers:  make(map[string]*breaker),
		now:       time.Now,
	}
	for k, v := range overrides {
		r.overrides[k] = v.normalized()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(category string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[category]
	if !ok {
		cfg, ok := r.overrides[category]
		if !ok {
			cfg = r.defaults
		}
		b = &breaker{cfg: cfg}
		r.breakers[category] = b
	}
	return b
}

// Execute runs op under the category's circuit. While the circuit is open
// (or a half-open trial is already in flight) it returns *CircuitOpenError
// without calling op.
func (r *Registry) Execute(ctx context.Context, category string, op func(ctx context.Context) error) error {
	b := r.get(category)

	tk, err := r.admit(b, category)
	if err != nil {
		return err
	}

	opErr := op(ctx)
	r.settle(b, category, tk, opErr)
	return opErr
}

// admit decides whether a call may proceed. The ticket marks the single
// half-open probe and stamps the generation the call belongs to.
func (r *Registry) admit(b *breaker, category string) (ticket, error) {
	b.mu.Lock()
	from := b.state
	now := r.now()

	switch b.state {
	case BreakerClosed:
		tk := ticket{generation: b.generation}
		b.mu.Unlock()
		return tk, nil

	case BreakerOpen:
		elapsed := now.Sub(b.lastFailure)
		if elapsed > b.cfg.Cooldown {
			b.moveTo(BreakerHalfOpen)
			b.trialInFlight = true
			tk := ticket{trial: true, generation: b.generation}
			b.mu.Unlock()
			r.notify(category, from, BreakerHalfOpen)
			return tk, nil
		}
		b.rejections++
		rejected := &CircuitOpenError{Category: category, Remaining: b.cfg.Cooldown - elapsed, Failures: b.failures}
		b.mu.Unlock()
		return ticket{}, rejected

	case BreakerHalfOpen:
		if b.trialInFlight {
			b.rejections++
			rejected := &CircuitOpenError{Category: category, Failures: b.failures}
			b.mu.Unlock()
			return ticket{}, rejected
		}
		b.trialInFlight = true
		tk := ticket{trial: true, generation: b.generation}
		b.mu.Unlock()
		return tk, nil
	}

	b.mu.Unlock()
	return ticket{}, &CircuitOpenError{Category: category}
}

// settle records the outcome of an admitted call. Results from an earlier
// generation are dropped, so only the trial decides a half-open circuit.
func (r *Registry) settle(b *breaker, category string, tk ticket, opErr error) {
	b.mu.Lock()
	if tk.generation != b.generation {
		b.mu.Unlock()
		return
	}
	from := b.state
	if tk.trial {
		b.trialInFlight = false
	}

	if opErr == nil {
		b.failures = 0
		b.moveTo(BreakerClosed)
	} else {
		b.lastFailure = r.now()
		switch {
		case IsUnrecoverable(opErr):
			// Systemic instability trips the circuit at once.
			b.failures = max(b.failures+1, b.cfg.Threshold)
			b.moveTo(BreakerOpen)
		case tk.trial:
			// A failed probe reopens and holds the count at the threshold.
			b.failures = b.cfg.Threshold
			b.moveTo(BreakerOpen)
		default:
			b.failures++
			if b.failures >= b.cfg.Threshold {
				b.moveTo(BreakerOpen)
			}
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		r.notify(category, from, to)
	}
}

func (r *Registry) notify(category string, from, to BreakerState) {
	if r.onChange != nil {
		r.onChange(category, from, to)
	}
}

// State returns the current state of a category. Unknown categories are closed.
func (r *Registry) State(category string) BreakerState {
	return r.Snapshot(category).stateValue()
}

// Snapshot returns a view of one category's circuit.
func (r *Registry) Snapshot(category string) BreakerSnapshot {
	b := r.get(category)
	b.mu.Lock()
	defer b.mu.Unlock()
	return r.snapshotLocked(category, b)
}

func (r *Registry) snapshotLocked(category string, b *breaker) BreakerSnapshot {
	snap := BreakerSnapshot{
		Category:    category,
		State:       b.state.String(),
		Failures:    b.failures,
		Threshold:   b.cfg.Threshold,
		Cooldown:    b.cfg.Cooldown,
		LastFailure: b.lastFailure,
		Rejections:  b.rejections,
	}
	if b.state == BreakerOpen {
		if remaining := b.cfg.Cooldown - r.now().Sub(b.lastFailure); remaining > 0 {
			snap.CooldownRemaining = remaining
		}
	}
	return snap
}

func (s BreakerSnapshot) stateValue() BreakerState {
	switch s.State {
	case BreakerOpen.String():
		return BreakerOpen
	case BreakerHalfOpen.String():
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// Snapshots returns every known circuit, sorted by category.
func (r *Registry) Snapshots() []BreakerSnapshot {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]BreakerSnapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.Snapshot(name))
	}
	return out
}

// Reset closes one category's circuit and clears its counters.
// It reports false when the category has never been used.
func (r *Registry) Reset(category string) bool {
	r.mu.Lock()
	b, ok := r.breakers[category]
	r.mu.Unlock()
	if !ok {
		return false
	}

	b.mu.Lock()
	from := b.state
	b.moveTo(BreakerClosed)
	b.generation++
	b.failures = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false
	b.rejections = 0
	b.mu.Unlock()

	if from != BreakerClosed {
		r.notify(category, from, BreakerClosed)
	}
	return true
}

// ResetAll closes every circuit.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.Reset(name)
	}
}
