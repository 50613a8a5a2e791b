// File: internal/workflow/validator.go
package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoRule is returned for a tool the rule set does not know.
var ErrNoRule = errors.New("no workflow rule for tool")

// Rejection reasons.
const (
	ReasonState = "state"
	ReasonStale = "stale"
)

// RejectedError explains why a call was refused before reaching the driver.
type RejectedError struct {
	Tool     string
	Required State
	Current  State
	// Prerequisite is the tool the caller should run first.
	Prerequisite string
	Reason       string
}

func (e *RejectedError) Error() string {
	if e.Reason == ReasonStale {
		return fmt.Sprintf("%s needs fresh page content (state %s); call %s first",
			e.Tool, e.Current, e.Prerequisite)
	}
	msg := fmt.Sprintf("%s requires state %s but session is %s", e.Tool, e.Required, e.Current)
	if e.Prerequisite != "" {
		msg += "; call " + e.Prerequisite + " first"
	}
	return msg
}

// Outcome is the recorded result of a call.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRejected Outcome = "rejected"
)

// HistoryEntry is one record in the session's append-only call history.
type HistoryEntry struct {
	Seq       int       `json:"seq"`
	Tool      string    `json:"tool"`
	At        time.Time `json:"at"`
	Outcome   Outcome   `json:"outcome"`
	ErrorKind string    `json:"error_kind,omitempty"`
}

// Context is the per-session workflow record. It is owned by one Validator.
type Context struct {
	State    State
	Analyzed bool
	// AnalyzedAt is when content was last analyzed.
	AnalyzedAt time.Time
	// AnalyzedAtNav is the navigation sequence number the analysis was taken at.
	AnalyzedAtNav uint64
	NavigationSeq uint64
	History       []HistoryEntry

	nextSeq        int
	droppedEntries int
}

// Snapshot is a read-only copy of a session's workflow context.
type Snapshot struct {
	State          State          `json:"state"`
	ContentFresh   bool           `json:"content_fresh"`
	AnalyzedAt     *time.Time     `json:"analyzed_at,omitempty"`
	NavigationSeq  uint64         `json:"navigation_seq"`
	History        []HistoryEntry `json:"history"`
	DroppedHistory int            `json:"dropped_history,omitempty"`
}

// Validator gates tool calls against the session's workflow state and
// applies rule effects after successful calls. It is safe for concurrent use.
type Validator struct {
	mu           sync.Mutex
	rules        *RuleSet
	maxAge       time.Duration
	historyLimit int
	now          func() time.Time
	ctx          Context
}

// Option customizes a Validator.
type Option func(*Validator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithContentMaxAge sets how long content analysis stays fresh. Zero disables age-based staleness.
func WithContentMaxAge(d time.Duration) Option {
	return func(v *Validator) { v.maxAge = d }
}

// WithHistoryLimit bounds the retained history. Zero keeps everything.
func WithHistoryLimit(n int) Option {
	return func(v *Validator) { v.historyLimit = n }
}

// NewValidator creates a validator in the Uninitialized state.
func NewValidator(rules *RuleSet, opts ...Option) *Validator {
	v := &Validator{
		rules:  rules,
		maxAge: 60 * time.Second,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Rules returns the validator's rule set.
func (v *Validator) Rules() *RuleSet { return v.rules }

// Validate decides whether tool may run now. It returns nil, ErrNoRule, or
// a *RejectedError. It never changes state.
func (v *Validator) Validate(tool string) error {
	rule, ok := v.rules.Rule(tool)
	if !ok {
		return fmt.Errorf("%w %q", ErrNoRule, tool)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	current := v.ctx.State
	if !current.Reached(rule.Requires) {
		return &RejectedError{
			Tool:         tool,
			Required:     rule.Requires,
			Current:      current,
			Prerequisite: v.rules.Prerequisite(rule.Requires),
			Reason:       ReasonState,
		}
	}
	if rule.NeedsFreshContent && !v.freshLocked() {
		return &RejectedError{
			Tool:         tool,
			Required:     rule.Requires,
			Current:      current,
			Prerequisite: v.rules.FreshnessProducer(),
			Reason:       ReasonStale,
		}
	}
	return nil
}

// freshLocked reports whether content analysis is current. v.mu must be held.
func (v *Validator) freshLocked() bool {
	c := &v.ctx
	if !c.Analyzed || c.AnalyzedAtNav < c.NavigationSeq {
		return false
	}
	if v.maxAge > 0 && v.now().Sub(c.AnalyzedAt) > v.maxAge {
		return false
	}
	return true
}

// Record appends a call to the history. Every call is recorded, including
// failures and rejections.
func (v *Validator) Record(tool string, outcome Outcome, errorKind string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	c := &v.ctx
	c.nextSeq++
	c.History = append(c.History, HistoryEntry{
		Seq:       c.nextSeq,
		Tool:      tool,
		At:        v.now(),
		Outcome:   outcome,
		ErrorKind: errorKind,
	})
	if v.historyLimit > 0 && len(c.History) > v.historyLimit {
		drop := len(c.History) - v.historyLimit
		c.History = append(c.History[:0:0], c.History[drop:]...)
		c.droppedEntries += drop
	}
}

// Advance applies tool's effect. Call it only after a successful execution.
func (v *Validator) Advance(tool string) error {
	rule, ok := v.rules.Rule(tool)
	if !ok {
		return fmt.Errorf("%w %q", ErrNoRule, tool)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	c := &v.ctx
	switch rule.Effect.Kind {
	case EffectNone:
	case EffectAdvance:
		c.State = max(c.State, rule.Effect.Target)
	case EffectNavigate:
		c.State = max(c.State, PageLoaded)
		c.NavigationSeq++
	case EffectAnalyze:
		c.State = max(c.State, ContentAnalyzed)
		c.Analyzed = true
		c.AnalyzedAt = v.now()
		c.AnalyzedAtNav = c.NavigationSeq
	case EffectReset:
		c.State = rule.Effect.Target
		c.Analyzed = false
		c.AnalyzedAt = time.Time{}
		c.AnalyzedAtNav = 0
		c.NavigationSeq = 0
	default:
		return fmt.Errorf("tool %q has unknown effect %s", tool, rule.Effect.Kind)
	}
	return nil
}

// State returns the current state.
func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctx.State
}

// Snapshot returns a copy of the workflow context.
func (v *Validator) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	c := &v.ctx
	snap := Snapshot{
		State:          c.State,
		ContentFresh:   v.freshLocked(),
		NavigationSeq:  c.NavigationSeq,
		History:        append([]HistoryEntry(nil), c.History...),
		DroppedHistory: c.droppedEntries,
	}
	if c.Analyzed {
		at := c.AnalyzedAt
		snap.AnalyzedAt = &at
	}
	return snap
}
