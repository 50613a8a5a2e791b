// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/config"
)

// ErrPageClosed is returned by every operation on a closed page.
var ErrPageClosed = errors.New("page is closed")

const defaultJPEGQuality = 80

// Page is one browser tab. It implements schemas.Page.
type Page struct {
	// ctx is the tab context; it carries the CDP target and lives until Close.
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	onClose func()

	mu     sync.Mutex
	closed bool
}

var _ schemas.Page = (*Page)(nil)

func newPage(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) *Page {
	return &Page{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger,
		onClose: onClose,
	}
}

// runActions executes actions bounded by both the tab lifetime and ctx.
func (p *Page) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if p.isClosed() {
		return ErrPageClosed
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// Report the caller's deadline rather than chromedp's wrapped cancellation.
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the document body.
func (p *Page) Navigate(ctx context.Context, url string) (schemas.PageInfo, error) {
	p.logger.Debug("Navigating.", zap.String("url", url))
	return p.navigateWith(ctx, "navigation to "+url, chromedp.Navigate(url))
}

// GoBack moves one entry back in the tab history.
func (p *Page) GoBack(ctx context.Context) (schemas.PageInfo, error) {
	return p.navigateWith(ctx, "history back", chromedp.NavigateBack())
}

// Reload reloads the current document.
func (p *Page) Reload(ctx context.Context) (schemas.PageInfo, error) {
	return p.navigateWith(ctx, "reload", chromedp.Reload())
}

func (p *Page) navigateWith(ctx context.Context, what string, action chromedp.Action) (schemas.PageInfo, error) {
	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}

	var info schemas.PageInfo
	err := p.runActions(ctx,
		action,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
	)
	if err != nil {
		return schemas.PageInfo{}, fmt.Errorf("%s failed: %w", what, err)
	}
	return info, nil
}

// Content returns the serialized DOM or the rendered text.
func (p *Page) Content(ctx context.Context, format schemas.ContentFormat) (string, error) {
	var out string
	var action chromedp.Action
	switch format {
	case schemas.ContentHTML, "":
		action = chromedp.OuterHTML("html", &out, chromedp.ByQuery)
	case schemas.ContentText:
		action = chromedp.Evaluate(textScript, &out)
	default:
		return "", fmt.Errorf("unsupported content format: %s", format)
	}
	if err := p.runActions(ctx, action); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return out, nil
}

// FindSelectors ranks elements against a free-text query.
func (p *Page) FindSelectors(ctx context.Context, query schemas.SelectorQuery) ([]schemas.ElementMatch, error) {
	script, err := selectorScript(query.Query, query.Limit)
	if err != nil {
		return nil, err
	}
	var matches []schemas.ElementMatch
	if err := p.runActions(ctx, chromedp.Evaluate(script, &matches)); err != nil {
		return nil, fmt.Errorf("selector discovery failed: %w", err)
	}
	if matches == nil {
		matches = []schemas.ElementMatch{}
	}
	return matches, nil
}

// Click waits for the element to be visible and clicks it.
func (p *Page) Click(ctx context.Context, selector string) error {
	err := p.runActions(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click on '%s' failed: %w", selector, err)
	}
	return nil
}

// Type focuses the element and sends text as key events.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	err := p.runActions(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("typing into '%s' failed: %w", selector, err)
	}
	return nil
}

// WaitFor blocks until the element is visible or ctx is done.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	if err := p.runActions(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for '%s' failed: %w", selector, err)
	}
	return nil
}

// Scroll moves the viewport.
func (p *Page) Scroll(ctx context.Context, direction string) error {
	script, err := scrollScript(direction)
	if err != nil {
		return err
	}
	if err := p.runActions(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll action failed: %w", err)
	}
	return nil
}

// Evaluate runs script in the page and returns its JSON-encoded result.
// Promises are awaited; undefined becomes null.
func (p *Page) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	wrapped, err := evaluateScript(script)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = p.runActions(ctx, chromedp.Evaluate(wrapped, &raw, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true).WithReturnByValue(true)
	}))
	if err != nil {
		var exc *runtime.ExceptionDetails
		if errors.As(err, &exc) {
			return nil, fmt.Errorf("script threw: %s", exc.Error())
		}
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return json.RawMessage(raw), nil
}

// normalizeScreenshot fills in the format and clamps the quality.
func normalizeScreenshot(opts schemas.ScreenshotOptions) (schemas.ScreenshotOptions, error) {
	opts.Format = strings.ToLower(opts.Format)
	switch opts.Format {
	case "", "png":
		opts.Format = "png"
		opts.Quality = 0
	case "jpeg", "jpg":
		opts.Format = "jpeg"
		if opts.Quality <= 0 {
			opts.Quality = defaultJPEGQuality
		}
		if opts.Quality > 100 {
			opts.Quality = 100
		}
	default:
		return opts, fmt.Errorf("unsupported screenshot format: %s", opts.Format)
	}
	return opts, nil
}

// Screenshot captures the viewport, the full page or a single element.
// Element captures are always PNG.
func (p *Page) Screenshot(ctx context.Context, opts schemas.ScreenshotOptions) ([]byte, error) {
	opts, err := normalizeScreenshot(opts)
	if err != nil {
		return nil, err
	}

	var buf []byte
	var action chromedp.Action
	if opts.Selector != "" {
		action = chromedp.Screenshot(opts.Selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)
	} else {
		action = chromedp.ActionFunc(func(ctx context.Context) error {
			capture := page.CaptureScreenshot().WithFromSurface(true)
			if opts.Format == "jpeg" {
				capture = capture.WithFormat(page.CaptureScreenshotFormatJpeg).WithQuality(int64(opts.Quality))
			} else {
				capture = capture.WithFormat(page.CaptureScreenshotFormatPng)
			}
			if opts.FullPage {
				capture = capture.WithCaptureBeyondViewport(true)
			}
			data, err := capture.Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		})
	}

	if err := p.runActions(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// URL returns the current document location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

func (p *Page) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes the tab. It is idempotent.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	start := time.Now()
	// chromedp.Cancel closes the target and waits for it; bound the wait by ctx.
	err := awaitRun(ctx, func() error { return chromedp.Cancel(p.ctx) })
	if p.cancel != nil {
		p.cancel()
	}
	if p.onClose != nil {
		p.onClose()
	}
	p.logger.Debug("Page closed.", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close page: %w", err)
	}
	return nil
}
