// internal/content/engine_test.go
package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T, budget int) *Engine {
	t.Helper()
	return NewEngine(Config{BudgetUnits: budget, BytesPerUnit: 4}, zaptest.NewLogger(t))
}

func TestEstimator(t *testing.T) {
	est := NewEstimator(4)
	json := jsoniter.ConfigCompatibleWithStandardLibrary

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"ascii", "hello world"},
		{"quotes and backslashes", `say "hi" \ bye`},
		{"newlines and tabs", "a\nb\r\nc\td"},
		{"html", "<div class=\"x\">a & b</div>"},
		{"multibyte", "héllo wörld 日本語 🎉"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := json.Marshal(tt.input)
			require.NoError(t, err)

			got := est.Estimate(tt.input)
			assert.Equal(t, len(encoded), got.Bytes)
			assert.Equal(t, utf8.RuneCountInString(tt.input), got.Runes)
			assert.Equal(t, (got.Bytes+3)/4, got.Units)
		})
	}

	t.Run("never underestimates escaped input", func(t *testing.T) {
		for _, input := range []string{"a\x01b\x1fc\b\f", "a\u2028b\u2029c", "a\xffb\xc3"} {
			encoded, err := json.Marshal(input)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, est.Estimate(input).Bytes, len(encoded), "%q", input)
		}
	})

	t.Run("units round up", func(t *testing.T) {
		assert.Equal(t, 1, est.UnitsFor(1))
		assert.Equal(t, 1, est.UnitsFor(4))
		assert.Equal(t, 2, est.UnitsFor(5))
		assert.Equal(t, 100, est.BytesFor(25))
	})
}

func TestEngine_Budget(t *testing.T) {
	e := newTestEngine(t, 25000)
	assert.Equal(t, 25000, e.Budget(0))
	assert.Equal(t, 25000, e.Budget(-5))
	assert.Equal(t, 25000, e.Budget(90000), "callers can never raise the ceiling")
	assert.Equal(t, 1000, e.Budget(1000))
	assert.Equal(t, minBudgetUnits, e.Budget(1))

	t.Run("small configured budgets clamp to the floor", func(t *testing.T) {
		e := NewEngine(Config{BudgetUnits: 10}, nil)
		assert.Equal(t, minBudgetUnits, e.Budget(0))

		res, err := e.Process(strings.Repeat("word ", 1000), Options{Kind: KindText})
		require.NoError(t, err)
		assert.NotEqual(t, StrategyPassthrough, res.Strategy)
		assert.LessOrEqual(t, res.Units, minBudgetUnits)
	})

	t.Run("unset budget uses the default", func(t *testing.T) {
		assert.Equal(t, DefaultConfig().BudgetUnits, NewEngine(Config{}, nil).Budget(0))
	})
}

func TestEngine_Process(t *testing.T) {
	t.Run("passthrough within budget", func(t *testing.T) {
		e := newTestEngine(t, 100)
		res, err := e.Process("short content", Options{Kind: KindText})
		require.NoError(t, err)
		assert.Equal(t, StrategyPassthrough, res.Strategy)
		assert.Equal(t, "short content", res.Content)
		assert.False(t, res.Truncated)
		assert.Nil(t, res.Chunk)
	})

	t.Run("exactly at budget passes through", func(t *testing.T) {
		e := newTestEngine(t, 100)
		raw := strings.Repeat("a", 398) // 398 + 2 quotes = 400 bytes = 100 units
		res, err := e.Process(raw, Options{Kind: KindText})
		require.NoError(t, err)
		assert.Equal(t, StrategyPassthrough, res.Strategy)
		assert.Equal(t, 100, res.Units)
	})

	t.Run("over budget text is chunked and reassembles", func(t *testing.T) {
		e := newTestEngine(t, 50)
		store := NewChunkStore(4)
		raw := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 40)

		res, err := e.Process(raw, Options{Kind: KindText, Store: store})
		require.NoError(t, err)
		assert.Equal(t, StrategyChunk, res.Strategy)
		require.NotNil(t, res.Chunk)
		assert.Equal(t, 0, res.Chunk.Index)
		assert.Greater(t, res.Chunk.Total, 1)
		assert.Equal(t, 1, res.Chunk.Next)

		var b strings.Builder
		b.WriteString(res.Content)
		next := res.Chunk.Next
		for next != -1 {
			chunk, _, err := e.Chunk(store, res.Chunk.SetID, next)
			require.NoError(t, err)
			assert.LessOrEqual(t, chunk.Units, 50)
			b.WriteString(chunk.Content)
			next = chunk.Chunk.Next
		}
		assert.Equal(t, raw, b.String())
	})

	t.Run("text chunks break at newlines", func(t *testing.T) {
		e := newTestEngine(t, 50)
		store := NewChunkStore(1)
		raw := strings.Repeat("line of text\n", 100)
		res, err := e.Process(raw, Options{Kind: KindText, Store: store})
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(res.Content, "\n"))
	})

	t.Run("html chunks end on token boundaries", func(t *testing.T) {
		e := newTestEngine(t, 64)
		store := NewChunkStore(1)
		var sb strings.Builder
		sb.WriteString("<html><body>")
		for i := 0; i < 60; i++ {
			sb.WriteString(`<p class="row">item text</p>`)
		}
		sb.WriteString("</body></html>")
		raw := sb.String()

		res, err := e.Process(raw, Options{Kind: KindHTML, Store: store})
		require.NoError(t, err)
		require.Equal(t, StrategyChunk, res.Strategy)

		set := store.sets[res.Chunk.SetID]
		require.NotNil(t, set)
		assert.Equal(t, raw, strings.Join(set.Chunks, ""))
		for i, c := range set.Chunks {
			assert.LessOrEqual(t, set.Units[i], 64)
			assert.True(t, strings.HasSuffix(c, ">") || strings.HasSuffix(c, "text"), "chunk %d ends mid-token: %q", i, c)
		}
	})

	t.Run("oversized html text token is split", func(t *testing.T) {
		e := newTestEngine(t, 20)
		store := NewChunkStore(1)
		raw := "<p>" + strings.Repeat("word ", 100) + "</p>"
		res, err := e.Process(raw, Options{Kind: KindHTML, Store: store})
		require.NoError(t, err)
		set := store.sets[res.Chunk.SetID]
		assert.Equal(t, raw, strings.Join(set.Chunks, ""))
		for _, u := range set.Units {
			assert.LessOrEqual(t, u, 20)
		}
	})

	t.Run("json is truncated at a rune boundary", func(t *testing.T) {
		e := newTestEngine(t, 20)
		raw := `{"v":"` + strings.Repeat("é", 200) + `"}`
		res, err := e.Process(raw, Options{Kind: KindJSON, Store: NewChunkStore(1)})
		require.NoError(t, err)
		assert.Equal(t, StrategyTruncate, res.Strategy)
		assert.True(t, res.Truncated)
		assert.True(t, utf8.ValidString(res.Content))
		assert.True(t, strings.HasPrefix(raw, res.Content))
		assert.LessOrEqual(t, res.Units, 20)
	})

	t.Run("truncate strategy is honored for splittable content", func(t *testing.T) {
		e := newTestEngine(t, 20)
		res, err := e.Process(strings.Repeat("abc ", 100), Options{Kind: KindText, Strategy: StrategyTruncate, Store: NewChunkStore(1)})
		require.NoError(t, err)
		assert.Equal(t, StrategyTruncate, res.Strategy)
	})

	t.Run("without a store over-budget content is truncated", func(t *testing.T) {
		e := newTestEngine(t, 20)
		res, err := e.Process(strings.Repeat("abc ", 100), Options{Kind: KindText})
		require.NoError(t, err)
		assert.Equal(t, StrategyTruncate, res.Strategy)
	})

	t.Run("caller ceiling lowers the budget", func(t *testing.T) {
		e := newTestEngine(t, 25000)
		res, err := e.Process(strings.Repeat("x", 1000), Options{Kind: KindText, MaxUnits: 100, Store: NewChunkStore(1)})
		require.NoError(t, err)
		assert.Equal(t, StrategyChunk, res.Strategy)
		assert.LessOrEqual(t, res.Units, 100)
	})
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"", "auto", "chunk", "truncate", "passthrough"} {
		_, err := ParseStrategy(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseStrategy("shrink")
	assert.Error(t, err)
}

func TestChunkStore(t *testing.T) {
	s := NewChunkStore(2)
	a := s.Put(KindText, []string{"a1", "a2"}, []int{1, 1}, nil)
	b := s.Put(KindText, []string{"b1"}, []int{1}, nil)

	chunk, ref, _, err := s.Get(a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "a2", chunk)
	assert.Equal(t, -1, ref.Next)
	assert.Equal(t, 2, ref.Total)

	_, _, _, err = s.Get(a.ID, 2)
	assert.ErrorIs(t, err, ErrChunkIndexOutOfRange)

	s.Put(KindText, []string{"c1"}, []int{1}, nil)
	_, _, _, err = s.Get(a.ID, 0)
	assert.ErrorIs(t, err, ErrChunkSetNotFound, "oldest set is evicted")
	assert.Equal(t, 2, s.Len())

	assert.True(t, s.Drop(b.ID))
	assert.False(t, s.Drop(b.ID))
	s.Clear()
	assert.Zero(t, s.Len())
}

// FuzzEngine_Process checks that chunking is lossless and every piece fits.
func FuzzEngine_Process(f *testing.F) {
	f.Add([]byte("<p>hello</p> world\n"))
	f.Add([]byte("\x00\xff<<&&\"\\ "))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		raw, err := consumer.GetString()
		if err != nil {
			return
		}
		budget, err := consumer.GetInt()
		if err != nil {
			return
		}
		kinds := []Kind{KindText, KindHTML, KindMarkdown, KindJSON, KindBase64}
		kindIdx, err := consumer.GetInt()
		if err != nil {
			return
		}
		kind := kinds[uint(kindIdx)%uint(len(kinds))]
		budget = minBudgetUnits + int(uint(budget)%64)

		e := NewEngine(Config{BudgetUnits: budget, BytesPerUnit: 4}, nil)
		store := NewChunkStore(1)
		res, err := e.Process(raw, Options{Kind: kind, Store: store})
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Units, budget)

		switch res.Strategy {
		case StrategyPassthrough:
			assert.Equal(t, raw, res.Content)
		case StrategyTruncate:
			assert.True(t, strings.HasPrefix(raw, res.Content))
		case StrategyChunk:
			set := store.sets[res.Chunk.SetID]
			assert.Equal(t, raw, strings.Join(set.Chunks, ""))
			for _, u := range set.Units {
				assert.LessOrEqual(t, u, budget)
			}
		}
	})
}
