// internal/engine/handlers.go
package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/content"
	"github.com/xkilldash9x/browsergate/internal/resilience"
	"github.com/xkilldash9x/browsergate/internal/tools"
)

// runFunc executes a decoded call on a session whose call slot is held.
type runFunc func(ctx context.Context, s *Session) (interface{}, resilience.Outcome, error)

// preparer decodes arguments and returns the bound execution.
type preparer func(args map[string]interface{}) (runFunc, error)

// bind pairs an argument type with its execution.
func bind[T tools.Args](tool string, fn func(ctx context.Context, s *Session, args T) (interface{}, resilience.Outcome, error)) preparer {
	return func(raw map[string]interface{}) (runFunc, error) {
		args, err := tools.Decode[T](tool, raw)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *Session) (interface{}, resilience.Outcome, error) {
			return fn(ctx, s, args)
		}, nil
	}
}

// call runs op against the session's page under the guard for category.
func call[T any](ctx context.Context, e *Engine, s *Session, category string, op func(ctx context.Context, p schemas.Page) (T, error)) (T, resilience.Outcome, error) {
	page, err := s.currentPage()
	if err != nil {
		var zero T
		return zero, resilience.Outcome{Category: category}, err
	}
	return resilience.Call(ctx, e.guard, category, func(ctx context.Context) (T, error) {
		return op(ctx, page)
	})
}

var compactJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func (e *Engine) buildHandlers() map[string]preparer {
	return map[string]preparer{
		tools.BrowserInit:     bind(tools.BrowserInit, e.browserInit),
		tools.BrowserClose:    bind(tools.BrowserClose, e.browserClose),
		tools.Navigate:        bind(tools.Navigate, e.navigate),
		tools.GoBack:          bind(tools.GoBack, e.goBack),
		tools.Reload:          bind(tools.Reload, e.reload),
		tools.GetContent:      bind(tools.GetContent, e.getContent),
		tools.GetContentChunk: bind(tools.GetContentChunk, e.getContentChunk),
		tools.FindSelector:    bind(tools.FindSelector, e.findSelector),
		tools.Click:           bind(tools.Click, e.click),
		tools.Type:            bind(tools.Type, e.typeText),
		tools.WaitFor:         bind(tools.WaitFor, e.waitFor),
		tools.Scroll:          bind(tools.Scroll, e.scroll),
		tools.Evaluate:        bind(tools.Evaluate, e.evaluate),
		tools.Screenshot:      bind(tools.Screenshot, e.screenshot),
		tools.WorkflowStatus:  bind(tools.WorkflowStatus, e.workflowStatus),
	}
}

// -- session --

func (e *Engine) browserInit(ctx context.Context, s *Session, _ tools.NoArgs) (interface{}, resilience.Outcome, error) {
	page, out, err := resilience.Call(ctx, e.guard, tools.CategorySession, func(ctx context.Context) (schemas.Page, error) {
		return e.browser.Open(ctx)
	})
	if err != nil {
		// The session keeps its current page and workflow state.
		return nil, out, err
	}

	// A repeated init replaces the page; the old one is closed best effort.
	if old := s.takePage(); old != nil {
		if err := old.Close(ctx); err != nil {
			s.logger.Warn("Failed to close previous page.", zap.Error(err))
		}
	}
	s.chunks.Clear()
	s.setPage(page)
	return map[string]interface{}{"session_id": s.ID, "page_open": true}, out, nil
}

func (e *Engine) browserClose(ctx context.Context, s *Session, _ tools.NoArgs) (interface{}, resilience.Outcome, error) {
	_, out, err := call(ctx, e, s, tools.CategorySession, func(ctx context.Context, p schemas.Page) (struct{}, error) {
		return struct{}{}, p.Close(ctx)
	})
	if err != nil {
		return nil, out, err
	}
	s.setPage(nil)
	s.chunks.Clear()
	return map[string]interface{}{"session_id": s.ID, "page_open": false}, out, nil
}

// -- navigation --

func (e *Engine) navigateWith(ctx context.Context, s *Session, op func(ctx context.Context, p schemas.Page) (schemas.PageInfo, error)) (interface{}, resilience.Outcome, error) {
	info, out, err := call(ctx, e, s, tools.CategoryNavigation, op)
	if err != nil {
		return nil, out, err
	}
	s.setLocation(info)
	return info, out, nil
}

func (e *Engine) navigate(ctx context.Context, s *Session, args tools.NavigateArgs) (interface{}, resilience.Outcome, error) {
	return e.navigateWith(ctx, s, func(ctx context.Context, p schemas.Page) (schemas.PageInfo, error) {
		return p.Navigate(ctx, args.URL)
	})
}

func (e *Engine) goBack(ctx context.Context, s *Session, _ tools.NoArgs) (interface{}, resilience.Outcome, error) {
	return e.navigateWith(ctx, s, func(ctx context.Context, p schemas.Page) (schemas.PageInfo, error) {
		return p.GoBack(ctx)
	})
}

func (e *Engine) reload(ctx context.Context, s *Session, _ tools.NoArgs) (interface{}, resilience.Outcome, error) {
	return e.navigateWith(ctx, s, func(ctx context.Context, p schemas.Page) (schemas.PageInfo, error) {
		return p.Reload(ctx)
	})
}

// -- content --

// fit passes raw through the content engine and records the decision.
func (e *Engine) fit(s *Session, raw string, opts content.Options) (schemas.ContentEnvelope, error) {
	opts.Store = s.chunks
	res, err := e.content.Process(raw, opts)
	if err != nil {
		return schemas.ContentEnvelope{}, err
	}
	e.metrics.ObserveStrategy(string(res.Strategy))
	return res.Envelope(opts.Meta), nil
}

func (e *Engine) getContent(ctx context.Context, s *Session, args tools.GetContentArgs) (interface{}, resilience.Outcome, error) {
	raw, out, err := call(ctx, e, s, tools.CategoryContent, func(ctx context.Context, p schemas.Page) (string, error) {
		return p.Content(ctx, args.ContentFormat())
	})
	if err != nil {
		return nil, out, err
	}
	env, err := e.fit(s, raw, content.Options{
		Kind:     args.Kind(),
		MaxUnits: args.MaxUnits,
		Strategy: args.ContentStrategy(),
		Meta:     map[string]interface{}{"url": s.location(), "format": string(args.ContentFormat())},
	})
	return env, out, err
}

func (e *Engine) getContentChunk(_ context.Context, s *Session, args tools.ChunkArgs) (interface{}, resilience.Outcome, error) {
	res, set, err := e.content.Chunk(s.chunks, args.SetID, args.Index)
	if err != nil {
		return nil, resilience.Outcome{}, err
	}
	return res.Envelope(set.Meta), resilience.Outcome{}, nil
}

// selectorResult is the find_selector response.
type selectorResult struct {
	Query     string                 `json:"query"`
	Matches   []schemas.ElementMatch `json:"matches"`
	Total     int                    `json:"total"`
	Truncated bool                   `json:"truncated"`
}

func (e *Engine) findSelector(ctx context.Context, s *Session, args tools.FindSelectorArgs) (interface{}, resilience.Outcome, error) {
	matches, out, err := call(ctx, e, s, tools.CategoryContent, func(ctx context.Context, p schemas.Page) ([]schemas.ElementMatch, error) {
		return p.FindSelectors(ctx, schemas.SelectorQuery{Query: args.Query, Limit: args.Limit})
	})
	if err != nil {
		return nil, out, err
	}
	res, err := e.fitMatches(args.Query, matches)
	return res, out, err
}

// fitMatches drops the lowest ranked matches until the encoded result fits
// the budget. Matches arrive ranked, so the tail goes first.
func (e *Engine) fitMatches(query string, matches []schemas.ElementMatch) (selectorResult, error) {
	res := selectorResult{Query: query, Matches: []schemas.ElementMatch{}, Total: len(matches)}
	est := e.content.Estimator()
	limit := est.BytesFor(e.content.Budget(0))

	// Each match is encoded once; the result's size is the empty envelope
	// plus the matches and their separating commas.
	costs := make([]int, len(matches))
	sum := 0
	for i, m := range matches {
		encoded, err := compactJSON.MarshalToString(m)
		if err != nil {
			return selectorResult{}, fmt.Errorf("failed to encode selector match: %w", err)
		}
		costs[i] = est.Estimate(encoded).Bytes - 2
		if i > 0 {
			costs[i]++
		}
		sum += costs[i]
	}

	base, err := e.envelopeBytes(res)
	if err != nil {
		return selectorResult{}, err
	}
	if base+sum <= limit {
		if len(matches) > 0 {
			res.Matches = matches
		}
		return res, nil
	}

	res.Truncated = true
	total, err := e.envelopeBytes(res)
	if err != nil {
		return selectorResult{}, err
	}
	keep := 0
	for _, c := range costs {
		if total+c > limit {
			break
		}
		total += c
		keep++
	}
	res.Matches = matches[:keep]
	return res, nil
}

// envelopeBytes is the estimated encoded size of res without its matches.
func (e *Engine) envelopeBytes(res selectorResult) (int, error) {
	res.Matches = []schemas.ElementMatch{}
	encoded, err := compactJSON.MarshalToString(res)
	if err != nil {
		return 0, fmt.Errorf("failed to encode selector matches: %w", err)
	}
	return e.content.Estimator().Estimate(encoded).Bytes, nil
}

// -- interaction --

func (e *Engine) click(ctx context.Context, s *Session, args tools.SelectorArgs) (interface{}, resilience.Outcome, error) {
	_, out, err := call(ctx, e, s, tools.CategoryInteraction, func(ctx context.Context, p schemas.Page) (struct{}, error) {
		return struct{}{}, p.Click(ctx, args.Selector)
	})
	if err != nil {
		return nil, out, err
	}
	return map[string]interface{}{"selector": args.Selector}, out, nil
}

func (e *Engine) typeText(ctx context.Context, s *Session, args tools.TypeArgs) (interface{}, resilience.Outcome, error) {
	_, out, err := call(ctx, e, s, tools.CategoryInteraction, func(ctx context.Context, p schemas.Page) (struct{}, error) {
		return struct{}{}, p.Type(ctx, args.Selector, args.Text)
	})
	if err != nil {
		return nil, out, err
	}
	return map[string]interface{}{"selector": args.Selector, "characters": len([]rune(args.Text))}, out, nil
}

func (e *Engine) waitFor(ctx context.Context, s *Session, args tools.WaitForArgs) (interface{}, resilience.Outcome, error) {
	_, out, err := call(ctx, e, s, tools.CategoryInteraction, func(ctx context.Context, p schemas.Page) (struct{}, error) {
		if d := args.Timeout(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return struct{}{}, p.WaitFor(ctx, args.Selector)
	})
	if err != nil {
		return nil, out, err
	}
	return map[string]interface{}{"selector": args.Selector, "visible": true}, out, nil
}

func (e *Engine) scroll(ctx context.Context, s *Session, args tools.ScrollArgs) (interface{}, resilience.Outcome, error) {
	_, out, err := call(ctx, e, s, tools.CategoryInteraction, func(ctx context.Context, p schemas.Page) (struct{}, error) {
		return struct{}{}, p.Scroll(ctx, args.Direction)
	})
	if err != nil {
		return nil, out, err
	}
	return map[string]interface{}{"direction": args.Direction}, out, nil
}

// -- script & screenshot --

func (e *Engine) evaluate(ctx context.Context, s *Session, args tools.EvaluateArgs) (interface{}, resilience.Outcome, error) {
	raw, out, err := call(ctx, e, s, tools.CategoryScript, func(ctx context.Context, p schemas.Page) (json.RawMessage, error) {
		return p.Evaluate(ctx, args.Script)
	})
	if err != nil {
		return nil, out, err
	}
	env, err := e.fit(s, string(raw), content.Options{Kind: content.KindJSON})
	return env, out, err
}

func (e *Engine) screenshot(ctx context.Context, s *Session, args tools.ScreenshotArgs) (interface{}, resilience.Outcome, error) {
	opts := args.Options()
	img, out, err := call(ctx, e, s, tools.CategoryScreenshot, func(ctx context.Context, p schemas.Page) ([]byte, error) {
		return p.Screenshot(ctx, opts)
	})
	if err != nil {
		return nil, out, err
	}
	format := strings.ToLower(opts.Format)
	switch format {
	case "":
		format = "png"
	case "jpg":
		format = "jpeg"
	}
	env, err := e.fit(s, base64.StdEncoding.EncodeToString(img), content.Options{
		Kind: content.KindBase64,
		Meta: map[string]interface{}{"format": format, "bytes": len(img)},
	})
	return env, out, err
}

// -- local --

func (e *Engine) workflowStatus(_ context.Context, s *Session, _ tools.NoArgs) (interface{}, resilience.Outcome, error) {
	return s.Status(), resilience.Outcome{}, nil
}
