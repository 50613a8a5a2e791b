// File: internal/workflow/rules.go
package workflow

import (
	"fmt"
)

// EffectKind classifies what a successful call does to the session state.
type EffectKind int

const (
	// EffectNone leaves the state unchanged.
	EffectNone EffectKind = iota
	// EffectAdvance raises the state to at least Target.
	EffectAdvance
	// EffectNavigate raises the state to at least PageLoaded and makes any
	// earlier content analysis stale.
	EffectNavigate
	// EffectAnalyze raises the state to at least ContentAnalyzed and marks
	// content fresh.
	EffectAnalyze
	// EffectReset sets the state to Target and clears content analysis.
	EffectReset
)

func (k EffectKind) String() string {
	switch k {
	case EffectNone:
		return "none"
	case EffectAdvance:
		return "advance"
	case EffectNavigate:
		return "navigate"
	case EffectAnalyze:
		return "analyze"
	case EffectReset:
		return "reset"
	default:
		return fmt.Sprintf("effect(%d)", int(k))
	}
}

// Effect is the state transition applied after a successful call.
type Effect struct {
	Kind   EffectKind
	Target State
}

var (
	NoEffect       = Effect{Kind: EffectNone}
	NavigateEffect = Effect{Kind: EffectNavigate, Target: PageLoaded}
	AnalyzeEffect  = Effect{Kind: EffectAnalyze, Target: ContentAnalyzed}
)

// AdvanceTo returns an effect that raises the state to at least s.
func AdvanceTo(s State) Effect { return Effect{Kind: EffectAdvance, Target: s} }

// ResetTo returns an effect that sets the state to s and clears analysis.
func ResetTo(s State) Effect { return Effect{Kind: EffectReset, Target: s} }

// Produces reports the state this effect guarantees after it is applied,
// and false for EffectNone.
func (e Effect) Produces() (State, bool) {
	switch e.Kind {
	case EffectNone:
		return Uninitialized, false
	case EffectAdvance, EffectReset:
		return e.Target, true
	case EffectNavigate:
		return PageLoaded, true
	case EffectAnalyze:
		return ContentAnalyzed, true
	default:
		return Uninitialized, false
	}
}

// Rule declares the sequencing contract of one tool.
type Rule struct {
	Tool string
	// Requires is the minimum state the session must have reached.
	Requires State
	// NeedsFreshContent rejects the call while content analysis is stale.
	NeedsFreshContent bool
	Effect            Effect
}

// RuleSet is an immutable, ordered collection of rules keyed by tool name.
type RuleSet struct {
	order []string
	rules map[string]Rule
}

// NewRuleSet validates and indexes rules. Declaration order decides which
// tool is named as the prerequisite when several produce the same state.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make(map[string]Rule, len(rules))}
	for _, r := range rules {
		if r.Tool == "" {
			return nil, fmt.Errorf("workflow rule has an empty tool name")
		}
		if _, dup := rs.rules[r.Tool]; dup {
			return nil, fmt.Errorf("duplicate workflow rule for tool %q", r.Tool)
		}
		if !r.Requires.Valid() {
			return nil, fmt.Errorf("workflow rule for %q requires invalid state %d", r.Tool, int(r.Requires))
		}
		if (r.Effect.Kind == EffectAdvance || r.Effect.Kind == EffectReset) && !r.Effect.Target.Valid() {
			return nil, fmt.Errorf("workflow rule for %q targets invalid state %d", r.Tool, int(r.Effect.Target))
		}
		rs.rules[r.Tool] = r
		rs.order = append(rs.order, r.Tool)
	}
	return rs, nil
}

// Rule returns the rule for a tool.
func (rs *RuleSet) Rule(tool string) (Rule, bool) {
	r, ok := rs.rules[tool]
	return r, ok
}

// Tools returns tool names in declaration order.
func (rs *RuleSet) Tools() []string {
	out := make([]string, len(rs.order))
	copy(out, rs.order)
	return out
}

// Prerequisite names the tool whose effect produces the given state. An exact
// producer wins; otherwise the producer of the nearest later state is used.
// It returns "" when no rule produces the state or anything past it.
func (rs *RuleSet) Prerequisite(target State) string {
	best := ""
	bestState := State(-1)
	for _, tool := range rs.order {
		produced, ok := rs.rules[tool].Effect.Produces()
		if !ok || produced < target {
			continue
		}
		if produced == target {
			return tool
		}
		if best == "" || produced < bestState {
			best, bestState = tool, produced
		}
	}
	return best
}

// FreshnessProducer names the first tool whose effect marks content fresh.
func (rs *RuleSet) FreshnessProducer() string {
	for _, tool := range rs.order {
		if rs.rules[tool].Effect.Kind == EffectAnalyze {
			return tool
		}
	}
	return ""
}
