// ABOUTME: Gateway server that wires the HTTP router, middleware and lifecycle
// ABOUTME: Manages the HTTP listener, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/dexi-gateway/internal/agent"
	"github.com/2389/dexi-gateway/internal/audit"
	"github.com/2389/dexi-gateway/internal/auth"
	"github.com/2389/dexi-gateway/internal/config"
	"github.com/2389/dexi-gateway/internal/metrics"
	"github.com/2389/dexi-gateway/internal/stream"
	"github.com/2389/dexi-gateway/internal/tools"
)

// Store is the persistence the gateway checks for readiness and closes on shutdown.
type Store interface {
	Ping(ctx context.Context) error
	Close() error
}

// Options carries the components the gateway serves.
type Options struct {
	Config       *config.Config
	Auth         *auth.Authenticator
	Agents       *agent.Catalog
	Tools        *tools.Registry
	Orchestrator *stream.Orchestrator
	// Audit backs GET /api/audit. Nil serves an empty list.
	Audit audit.Lister
	// Store is optional; nil means readiness does not depend on storage.
	Store   Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Gateway serves the dexi HTTP API.
type Gateway struct {
	config       *config.Config
	auth         *auth.Authenticator
	agents       *agent.Catalog
	tools        *tools.Registry
	orchestrator *stream.Orchestrator
	auditLog     audit.Lister
	store        Store
	metrics      *metrics.Metrics
	httpServer   *http.Server
	logger       *slog.Logger

	bodyLimit int64
}

// New creates a gateway from opts. Config, Auth, Agents, Tools and
// Orchestrator are required.
func New(opts Options) (*Gateway, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("gateway: config is required")
	case opts.Auth == nil:
		return nil, errors.New("gateway: authenticator is required")
	case opts.Agents == nil:
		return nil, errors.New("gateway: agent catalog is required")
	case opts.Tools == nil:
		return nil, errors.New("gateway: tool registry is required")
	case opts.Orchestrator == nil:
		return nil, errors.New("gateway: orchestrator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		config:       opts.Config,
		auth:         opts.Auth,
		agents:       opts.Agents,
		tools:        opts.Tools,
		orchestrator: opts.Orchestrator,
		auditLog:     opts.Audit,
		store:        opts.Store,
		metrics:      opts.Metrics,
		logger:       logger,
		bodyLimit:    opts.Config.Server.BodyLimitBytes,
	}

	g.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Handler builds the HTTP router with all middleware and routes.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(g.logger))
	if g.metrics != nil {
		r.Use(g.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: g.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", RequestIDHeader,
			"x-dev-user", "x-dev-role", "x-dev-app",
		},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))
	if rl := g.config.RateLimit; rl.Max > 0 {
		r.Use(newClientLimiter(rl.Max, rl.Window).middleware)
	}

	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)
	if g.metrics != nil && g.config.Metrics.Enabled {
		r.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(g.auth, g.logger))

		r.Post("/chat", g.handleChat)
		r.Get("/agents", g.handleListAgents)
		r.Post("/agents/{agentId}/invoke", g.handleInvoke)
		r.Get("/tools", g.handleListTools)
		r.Post("/tools/{toolId}/execute", g.handleToolExecute)
		r.Get("/audit", g.handleListAudit)
	})

	return r
}

func (g *Gateway) corsOrigins() []string {
	if len(g.config.Server.CORSOrigins) > 0 {
		return g.config.Server.CORSOrigins
	}
	return []string{"*"}
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run listens on the configured address and serves until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.httpServer.Addr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the process is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady returns 200 OK when the audit store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if g.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := g.store.Ping(ctx); err != nil {
			g.logger.Warn("readiness check failed", "error", err)
			g.sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "store unreachable"})
			return
		}
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
