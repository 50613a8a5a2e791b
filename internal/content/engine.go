// File: internal/content/engine.go
package content

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
)

// Kind is the media type class of a piece of content.
type Kind string

const (
	KindText     Kind = "text"
	KindHTML     Kind = "html"
	KindMarkdown Kind = "markdown"
	KindJSON     Kind = "json"
	// KindBase64 is an encoded binary payload such as a screenshot.
	KindBase64 Kind = "base64"
)

// Splittable reports whether content of this kind may be chunked.
func (k Kind) Splittable() bool {
	switch k {
	case KindText, KindHTML, KindMarkdown, KindBase64:
		return true
	case KindJSON:
		return false
	default:
		return false
	}
}

// MediaType returns the MIME type reported to callers.
func (k Kind) MediaType() string {
	switch k {
	case KindText:
		return "text/plain"
	case KindHTML:
		return "text/html"
	case KindMarkdown:
		return "text/markdown"
	case KindJSON:
		return "application/json"
	case KindBase64:
		return "application/octet-stream;base64"
	default:
		return "application/octet-stream"
	}
}

// Strategy is how the engine made content fit the budget.
type Strategy string

const (
	// StrategyAuto lets the engine choose. Only valid in requests.
	StrategyAuto        Strategy = "auto"
	StrategyPassthrough Strategy = "passthrough"
	StrategyChunk       Strategy = "chunk"
	StrategyTruncate    Strategy = "truncate"
)

// ParseStrategy accepts "", auto, chunk and truncate.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyChunk, StrategyTruncate, StrategyPassthrough:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown content strategy %q", s)
	}
}

// minBudgetUnits keeps every piece large enough to hold at least one escaped rune.
const minBudgetUnits = 16

// Config holds the engine's limits.
type Config struct {
	BudgetUnits  int
	BytesPerUnit int
}

// DefaultConfig returns a 25000 unit budget at 4 bytes per unit.
func DefaultConfig() Config {
	return Config{BudgetUnits: 25000, BytesPerUnit: 4}
}

// Options tune one Process call.
type Options struct {
	Kind Kind
	// MaxUnits lowers the ceiling for this call. Zero, negative, or larger
	// than the configured budget means the configured budget.
	MaxUnits int
	Strategy Strategy
	// Store receives chunk sets. Without a store, over-budget content is truncated.
	Store *ChunkStore
	Meta  interface{}
}

// Result is content that fits the budget.
type Result struct {
	Content   string
	Kind      Kind
	Strategy  Strategy
	Truncated bool
	Chunk     *schemas.ChunkRef
	// Estimate describes the original, unprocessed content.
	Estimate Estimate
	// Units is the size of the returned Content.
	Units int
}

// Envelope converts the result to its wire shape.
func (r Result) Envelope(meta interface{}) schemas.ContentEnvelope {
	return schemas.ContentEnvelope{
		Content:   r.Content,
		MediaType: r.Kind.MediaType(),
		Strategy:  string(r.Strategy),
		Truncated: r.Truncated,
		Units:     r.Units,
		Chunk:     r.Chunk,
		Meta:      meta,
	}
}

// Engine enforces the response content budget.
type Engine struct {
	cfg       Config
	estimator Estimator
	logger    *zap.Logger
}

// NewEngine creates an engine. Unset limits fall back to the defaults and
// budgets below the floor are raised to it.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	switch {
	case cfg.BudgetUnits <= 0:
		cfg.BudgetUnits = def.BudgetUnits
	case cfg.BudgetUnits < minBudgetUnits:
		cfg.BudgetUnits = minBudgetUnits
	}
	if cfg.BytesPerUnit < 1 {
		cfg.BytesPerUnit = def.BytesPerUnit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		estimator: NewEstimator(cfg.BytesPerUnit),
		logger:    logger.Named("content"),
	}
}

// Estimator returns the engine's size estimator.
func (e *Engine) Estimator() Estimator { return e.estimator }

// Budget returns the effective ceiling for a request. Callers may lower the
// configured budget but never raise it.
func (e *Engine) Budget(requested int) int {
	if requested <= 0 || requested >= e.cfg.BudgetUnits {
		return e.cfg.BudgetUnits
	}
	return max(requested, minBudgetUnits)
}

// Process makes raw fit the budget by passing it through, chunking it or
// truncating it.
func (e *Engine) Process(raw string, opts Options) (Result, error) {
	if opts.Kind == "" {
		opts.Kind = KindText
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}

	budget := e.Budget(opts.MaxUnits)
	est := e.estimator.Estimate(raw)
	res := Result{Kind: opts.Kind, Estimate: est}

	if est.Units <= budget {
		res.Content = raw
		res.Strategy = StrategyPassthrough
		res.Units = est.Units
		return res, nil
	}

	strategy := e.choose(opts)
	e.logger.Debug("Content exceeds budget.",
		zap.String("error_kind", string(schemas.ErrorKindBudgetExceeded)),
		zap.String("kind", string(opts.Kind)),
		zap.Int("units", est.Units),
		zap.Int("budget", budget),
		zap.String("strategy", string(strategy)))

	limit := e.estimator.BytesFor(budget)
	switch strategy {
	case StrategyChunk:
		var chunks []string
		switch opts.Kind {
		case KindHTML:
			chunks = e.estimator.splitHTML(raw, limit)
		case KindBase64:
			chunks = e.estimator.splitRaw(raw, limit)
		default:
			chunks = e.estimator.splitText(raw, limit)
		}
		if len(chunks) == 0 {
			return res, fmt.Errorf("chunking produced no segments for %d bytes", len(raw))
		}
		units := make([]int, len(chunks))
		for i, c := range chunks {
			units[i] = e.estimator.Estimate(c).Units
		}
		set := opts.Store.Put(opts.Kind, chunks, units, opts.Meta)
		ref := set.Ref(0)
		res.Content = chunks[0]
		res.Strategy = StrategyChunk
		res.Chunk = &ref
		res.Units = units[0]
		return res, nil

	case StrategyTruncate:
		n := e.estimator.cutPoint(raw, limit, false)
		res.Content = raw[:n]
		res.Strategy = StrategyTruncate
		res.Truncated = true
		res.Units = e.estimator.Estimate(res.Content).Units
		return res, nil
	}
	return res, fmt.Errorf("unhandled content strategy %q", strategy)
}

// choose picks the over-budget strategy. Passthrough cannot be honored once
// the budget is exceeded and degrades like auto.
func (e *Engine) choose(opts Options) Strategy {
	canChunk := opts.Kind.Splittable() && opts.Store != nil
	switch opts.Strategy {
	case StrategyTruncate:
		return StrategyTruncate
	case StrategyChunk, StrategyAuto, StrategyPassthrough:
		if canChunk {
			return StrategyChunk
		}
		return StrategyTruncate
	default:
		return StrategyTruncate
	}
}

// Chunk returns a stored segment as a result.
func (e *Engine) Chunk(store *ChunkStore, setID string, index int) (Result, *ChunkSet, error) {
	if store == nil {
		return Result{}, nil, fmt.Errorf("%w: %s", ErrChunkSetNotFound, setID)
	}
	chunk, ref, set, err := store.Get(setID, index)
	if err != nil {
		return Result{}, nil, err
	}
	return Result{
		Content:  chunk,
		Kind:     set.Kind,
		Strategy: StrategyChunk,
		Chunk:    &ref,
		Estimate: e.estimator.Estimate(chunk),
		Units:    set.Units[index],
	}, set, nil
}
