// File: internal/mcp/server.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/internal/config"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

// shutdownGrace bounds the graceful HTTP shutdown.
const shutdownGrace = 30 * time.Second

// Server exposes the tool engine over HTTP and WebSocket.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	engine   ToolEngine
	metrics  *observability.Metrics
	handlers *Handlers
	router   chi.Router

	// sockets is canceled on shutdown; every WebSocket client watches it.
	sockets       context.Context
	closeSockets  context.CancelFunc
	socketClients sync.WaitGroup
}

// NewServer wires the routes. metrics may be nil, in which case /metrics is not served.
func NewServer(cfg config.ServerConfig, eng ToolEngine, metrics *observability.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("mcp"),
		engine:   eng,
		metrics:  metrics,
		handlers: NewHandlers(logger, eng),
	}
	s.sockets, s.closeSockets = context.WithCancel(context.Background())
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer) // Catches panics

	// Long-lived connections stay outside the request timeout.
	r.Get("/ws/v1/tools", s.handleToolSocket())

	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Use(requestLogger(s.logger))

		s.handlers.RegisterRoutes(r)

		if s.metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
		}
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves until ctx is done, then
// shuts down gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeSockets)

	s.logger.Info("Tool server starting", zap.String("address", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		s.closeSockets()
		s.socketClients.Wait()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server Serve error", zap.Error(err))
			return err
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("Shutting down tool server gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
		<-serveErr
		s.socketClients.Wait()
		s.logger.Info("Tool server stopped.")
		return err
	}
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
