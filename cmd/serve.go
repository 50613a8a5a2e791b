// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/internal/browser"
	"github.com/xkilldash9x/browsergate/internal/config"
	"github.com/xkilldash9x/browsergate/internal/engine"
	"github.com/xkilldash9x/browsergate/internal/mcp"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

// engineShutdownTimeout bounds closing every session and the browser.
const engineShutdownTimeout = 30 * time.Second

type serveFlags struct {
	listen     string
	headless   bool
	remoteURL  string
	chromePath string
}

func newServeCmd(a *app) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		Long: `Starts the HTTP and WebSocket tool server. The browser is launched lazily
on the first browser_init call, or attached to with --remote-url.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg == nil {
				return errors.New("configuration was not loaded")
			}
			applyServeFlags(cmd, a.cfg, f)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, observability.GetLogger())
		},
	}

	cmd.Flags().StringVar(&f.listen, "listen", "", "address to listen on (overrides server.listen_addr)")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run the browser headless")
	cmd.Flags().StringVar(&f.remoteURL, "remote-url", "", "attach to a running browser's DevTools websocket instead of launching one")
	cmd.Flags().StringVar(&f.chromePath, "chrome-path", "", "path to the Chrome or Chromium binary")
	return cmd
}

// applyServeFlags copies explicitly set flags over the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg config.Interface, f serveFlags) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.SetServerListenAddr(f.listen)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(f.headless)
	}
	if flags.Changed("remote-url") {
		cfg.SetBrowserRemoteURL(f.remoteURL)
	}
	if flags.Changed("chrome-path") {
		cfg.SetBrowserExecPath(f.chromePath)
	}
}

// runServe wires the browser, engine and transport, serves until ctx is done
// and then shuts everything down.
func runServe(ctx context.Context, cfg config.Interface, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	mgr := browser.NewManager(cfg.Browser(), logger)
	eng, err := engine.New(cfg, mgr, logger, engine.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	srv := mcp.NewServer(cfg.Server(), eng, metrics, logger)
	serveErr := srv.Start(ctx)

	logger.Info("Shutting down engine and browser...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
	defer cancel()
	return multierr.Combine(serveErr, eng.Shutdown(shutdownCtx))
}
