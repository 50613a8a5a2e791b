// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/config"
)

// ErrManagerShutdown is returned by Open after Shutdown.
var ErrManagerShutdown = errors.New("browser manager is shut down")

// Manager owns the Chrome process (or the remote DevTools connection) and
// opens one tab per session. The browser starts lazily on the first Open.
// It implements schemas.Browser.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pages         map[*Page]struct{}
	shutdown      bool
}

var _ schemas.Browser = (*Manager)(nil)

// NewManager creates a browser manager. No process is started yet.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		pages:  make(map[*Page]struct{}),
	}
	m.logger.Info("Browser manager created (initialization deferred).")
	return m
}

// start allocates the browser. Callers hold m.mu.
func (m *Manager) start(ctx context.Context) error {
	if m.browserCtx != nil {
		return nil
	}

	// The allocator outlives any single request, so it hangs off Background.
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if m.cfg.RemoteURL != "" {
		m.logger.Info("Attaching to remote browser.", zap.String("url", m.cfg.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), m.cfg.RemoteURL)
	} else {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless), zap.String("exec_path", m.cfg.ExecPath))
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
	}

	sugar := m.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Debugf),
	)

	if err := awaitRun(ctx, func() error { return chromedp.Run(browserCtx) }); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	m.allocCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.logger.Info("Browser started.")
	return nil
}

// Open creates a new tab sized to the configured viewport.
func (m *Manager) Open(ctx context.Context) (schemas.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, ErrManagerShutdown
	}
	if err := m.start(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	var actions []chromedp.Action
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}
	if err := awaitRun(ctx, func() error { return chromedp.Run(tabCtx, actions...) }); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	var p *Page
	p = newPage(tabCtx, tabCancel, m.cfg, m.logger.Named("page"), func() { m.release(p) })
	m.pages[p] = struct{}{}
	m.logger.Debug("Tab opened.", zap.Int("open_pages", len(m.pages)))
	return p, nil
}

func (m *Manager) release(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, p)
}

// Shutdown closes every open tab and then the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	pages := make([]*Page, 0, len(m.pages))
	for p := range m.pages {
		pages = append(pages, p)
	}
	browserCtx, browserCancel, allocCancel := m.browserCtx, m.browserCancel, m.allocCancel
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_pages", len(pages)))

	var errs error
	for _, p := range pages {
		errs = multierr.Append(errs, p.Close(ctx))
	}

	if browserCtx != nil {
		if err := awaitRun(ctx, func() error { return chromedp.Cancel(browserCtx) }); err != nil && !errors.Is(err, context.Canceled) {
			errs = multierr.Append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		browserCancel()
		allocCancel()
	}
	return errs
}
