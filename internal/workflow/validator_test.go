// internal/workflow/validator_test.go
package workflow

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testRules mirrors the shape of the production catalogue.
func testRules(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := NewRuleSet(
		Rule{Tool: "browser_init", Requires: Uninitialized, Effect: ResetTo(BrowserReady)},
		Rule{Tool: "browser_close", Requires: BrowserReady, Effect: ResetTo(Uninitialized)},
		Rule{Tool: "navigate", Requires: BrowserReady, Effect: NavigateEffect},
		Rule{Tool: "go_back", Requires: PageLoaded, Effect: NavigateEffect},
		Rule{Tool: "get_content", Requires: PageLoaded, Effect: AnalyzeEffect},
		Rule{Tool: "find_selector", Requires: ContentAnalyzed, NeedsFreshContent: true, Effect: AdvanceTo(SelectorAvailable)},
		Rule{Tool: "click", Requires: PageLoaded, Effect: NoEffect},
		Rule{Tool: "workflow_status", Requires: Uninitialized, Effect: NoEffect},
	)
	require.NoError(t, err)
	return rs
}

func newTestValidator(t *testing.T, opts ...Option) (*Validator, *testClock) {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewValidator(testRules(t), opts...), clock
}

// run validates, and on admission records success and advances.
func run(t *testing.T, v *Validator, tool string) error {
	t.Helper()
	if err := v.Validate(tool); err != nil {
		v.Record(tool, OutcomeRejected, "ValidationRejected")
		return err
	}
	v.Record(tool, OutcomeSuccess, "")
	require.NoError(t, v.Advance(tool))
	return nil
}

func TestStateOrdering(t *testing.T) {
	for i, s := range AllStates {
		for j, target := range AllStates {
			assert.Equal(t, i >= j, s.Reached(target), "%s reached %s", s, target)
		}
	}
}

func TestStateText(t *testing.T) {
	for _, s := range AllStates {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	_, err := State(99).MarshalText()
	assert.Error(t, err)
	_, err = ParseState("bogus")
	assert.Error(t, err)
}

func TestValidator_Gating(t *testing.T) {
	t.Run("exact required state admits", func(t *testing.T) {
		v, _ := newTestValidator(t)
		require.NoError(t, run(t, v, "browser_init"))
		assert.Equal(t, BrowserReady, v.State())
		assert.NoError(t, v.Validate("navigate"))
	})

	t.Run("missing state rejects and names the producer", func(t *testing.T) {
		v, _ := newTestValidator(t)
		err := v.Validate("navigate")
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "navigate", rej.Tool)
		assert.Equal(t, BrowserReady, rej.Required)
		assert.Equal(t, Uninitialized, rej.Current)
		assert.Equal(t, "browser_init", rej.Prerequisite)
		assert.Equal(t, ReasonState, rej.Reason)
		assert.Contains(t, rej.Error(), "call browser_init first")
	})

	t.Run("find_selector after navigate names get_content", func(t *testing.T) {
		v, _ := newTestValidator(t)
		require.NoError(t, run(t, v, "browser_init"))
		require.NoError(t, run(t, v, "navigate"))

		err := v.Validate("find_selector")
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "get_content", rej.Prerequisite)
		assert.Equal(t, ContentAnalyzed, rej.Required)
		assert.Equal(t, PageLoaded, rej.Current)
	})

	t.Run("unknown tool", func(t *testing.T) {
		v, _ := newTestValidator(t)
		assert.True(t, errors.Is(v.Validate("teleport"), ErrNoRule))
		assert.True(t, errors.Is(v.Advance("teleport"), ErrNoRule))
	})

	t.Run("always-allowed tool admits in any state", func(t *testing.T) {
		v, _ := newTestValidator(t)
		assert.NoError(t, v.Validate("workflow_status"))
	})
}

func TestValidator_Staleness(t *testing.T) {
	t.Run("navigation after analysis makes content stale", func(t *testing.T) {
		v, _ := newTestValidator(t)
		for _, tool := range []string{"browser_init", "navigate", "get_content"} {
			require.NoError(t, run(t, v, tool))
		}
		require.NoError(t, v.Validate("find_selector"))

		require.NoError(t, run(t, v, "navigate"))
		assert.Equal(t, ContentAnalyzed, v.State(), "state is monotonic across navigation")

		err := v.Validate("find_selector")
		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, ReasonStale, rej.Reason)
		assert.Equal(t, "get_content", rej.Prerequisite)

		require.NoError(t, run(t, v, "get_content"))
		assert.NoError(t, v.Validate("find_selector"))
	})

	t.Run("go_back also invalidates analysis", func(t *testing.T) {
		v, _ := newTestValidator(t)
		for _, tool := range []string{"browser_init", "navigate", "get_content", "go_back"} {
			require.NoError(t, run(t, v, tool))
		}
		assert.Error(t, v.Validate("find_selector"))
	})

	t.Run("analysis older than max age is stale", func(t *testing.T) {
		v, clock := newTestValidator(t, WithContentMaxAge(time.Minute))
		for _, tool := range []string{"browser_init", "navigate", "get_content"} {
			require.NoError(t, run(t, v, tool))
		}
		clock.Advance(59 * time.Second)
		assert.NoError(t, v.Validate("find_selector"))
		clock.Advance(2 * time.Second)
		assert.Error(t, v.Validate("find_selector"))
		assert.False(t, v.Snapshot().ContentFresh)
	})

	t.Run("zero max age disables age staleness", func(t *testing.T) {
		v, clock := newTestValidator(t, WithContentMaxAge(0))
		for _, tool := range []string{"browser_init", "navigate", "get_content"} {
			require.NoError(t, run(t, v, tool))
		}
		clock.Advance(24 * time.Hour)
		assert.NoError(t, v.Validate("find_selector"))
	})
}

func TestValidator_Effects(t *testing.T) {
	t.Run("advance never lowers state", func(t *testing.T) {
		v, _ := newTestValidator(t)
		for _, tool := range []string{"browser_init", "navigate", "get_content", "find_selector"} {
			require.NoError(t, run(t, v, tool))
		}
		assert.Equal(t, SelectorAvailable, v.State())
		require.NoError(t, run(t, v, "click"))
		require.NoError(t, run(t, v, "get_content"))
		assert.Equal(t, SelectorAvailable, v.State())
	})

	t.Run("reset effects set the state and clear analysis", func(t *testing.T) {
		v, _ := newTestValidator(t)
		for _, tool := range []string{"browser_init", "navigate", "get_content", "browser_close"} {
			require.NoError(t, run(t, v, tool))
		}
		snap := v.Snapshot()
		assert.Equal(t, Uninitialized, snap.State)
		assert.False(t, snap.ContentFresh)
		assert.Nil(t, snap.AnalyzedAt)

		require.NoError(t, run(t, v, "browser_init"))
		assert.Equal(t, BrowserReady, v.State())
	})

	t.Run("failed executions are recorded but never advance", func(t *testing.T) {
		v, _ := newTestValidator(t)
		require.NoError(t, run(t, v, "browser_init"))
		require.NoError(t, v.Validate("navigate"))
		v.Record("navigate", OutcomeFailure, "DriverFailure")
		assert.Equal(t, BrowserReady, v.State())
	})
}

func TestValidator_History(t *testing.T) {
	v, _ := newTestValidator(t)
	_ = run(t, v, "navigate")
	_ = run(t, v, "browser_init")
	v.Record("navigate", OutcomeFailure, "TimedOut")

	want := []HistoryEntry{
		{Seq: 1, Tool: "navigate", Outcome: OutcomeRejected, ErrorKind: "ValidationRejected"},
		{Seq: 2, Tool: "browser_init", Outcome: OutcomeSuccess},
		{Seq: 3, Tool: "navigate", Outcome: OutcomeFailure, ErrorKind: "TimedOut"},
	}
	got := v.Snapshot().History
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(HistoryEntry{}, "At")); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	t.Run("snapshot is a copy", func(t *testing.T) {
		snap := v.Snapshot()
		snap.History[0].Tool = "mutated"
		assert.Equal(t, "navigate", v.Snapshot().History[0].Tool)
	})

	t.Run("history limit drops oldest entries", func(t *testing.T) {
		lv, _ := newTestValidator(t, WithHistoryLimit(2))
		for i := 0; i < 5; i++ {
			lv.Record("workflow_status", OutcomeSuccess, "")
		}
		snap := lv.Snapshot()
		require.Len(t, snap.History, 2)
		assert.Equal(t, 4, snap.History[0].Seq)
		assert.Equal(t, 5, snap.History[1].Seq)
		assert.Equal(t, 3, snap.DroppedHistory)
	})
}

func TestRuleSet(t *testing.T) {
	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := NewRuleSet(Rule{Tool: "a"}, Rule{Tool: "a"})
		assert.Error(t, err)
	})

	t.Run("rejects empty names and invalid states", func(t *testing.T) {
		_, err := NewRuleSet(Rule{})
		assert.Error(t, err)
		_, err = NewRuleSet(Rule{Tool: "x", Requires: State(42)})
		assert.Error(t, err)
		_, err = NewRuleSet(Rule{Tool: "x", Effect: AdvanceTo(State(-3))})
		assert.Error(t, err)
	})

	t.Run("prerequisite lookup", func(t *testing.T) {
		rs := testRules(t)
		assert.Equal(t, "browser_init", rs.Prerequisite(BrowserReady))
		assert.Equal(t, "navigate", rs.Prerequisite(PageLoaded))
		assert.Equal(t, "get_content", rs.Prerequisite(ContentAnalyzed))
		assert.Equal(t, "find_selector", rs.Prerequisite(SelectorAvailable))
		assert.Equal(t, "get_content", rs.FreshnessProducer())
		assert.Equal(t, []string{"browser_init", "browser_close", "navigate", "go_back", "get_content", "find_selector", "click", "workflow_status"}, rs.Tools())
	})

	t.Run("falls back to the nearest later producer", func(t *testing.T) {
		rs, err := NewRuleSet(Rule{Tool: "jump", Effect: AdvanceTo(SelectorAvailable)})
		require.NoError(t, err)
		assert.Equal(t, "jump", rs.Prerequisite(PageLoaded))
		assert.Empty(t, (&RuleSet{}).Prerequisite(PageLoaded))
	})
}
