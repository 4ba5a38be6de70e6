// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesapp/internal/api"
	"github.com/starford/notesapp/internal/forms"
	"github.com/starford/notesapp/internal/localstore"
	"github.com/starford/notesapp/internal/mcpserver"
	"github.com/starford/notesapp/internal/remote"
	"github.com/starford/notesapp/internal/sse"
	"github.com/starford/notesapp/internal/workspace"
)

// backend is an opened remote store.
type backend struct {
	factory remote.Factory
	ready   func(context.Context) error
	close   func() error
}

func openBackend(cfg *Config) (*backend, error) {
	switch cfg.Backend.Kind {
	case BackendSupabase:
		hc := &http.Client{Timeout: 30 * time.Second}
		return &backend{
			factory: func() remote.Store {
				return remote.NewHTTPClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, hc)
			},
			ready: func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil

	default:
		db, err := localstore.Open(cfg.SQLite.Path,
			localstore.WithTokenSecret(cfg.SQLite.TokenSecret),
			localstore.WithTokenTTL(cfg.SQLite.TokenTTL),
		)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		return &backend{
			factory: db.Factory(),
			ready:   func(context.Context) error { return db.Ping() },
			close:   db.Close,
		}, nil
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newRootRouter wires health checks and the API under /api.
func newRootRouter(sessions *api.Sessions, broker *sse.Broker, ready func(context.Context) error, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (no session).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ready(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(sessions, broker))
	return r
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger, logCloser := newLogger(os.Stdout, cfg.App.LogFile, level)
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend", cfg.Backend.Kind),
		slog.Duration("backend_timeout", cfg.Backend.Timeout),
		slog.Duration("session_idle_ttl", cfg.Session.IdleTTL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.close()

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	publish := api.PublishTo(broker)
	sessions := api.NewSessions(func() *workspace.Workspace {
		return workspace.New(be.factory(),
			workspace.WithTimeout(cfg.Backend.Timeout),
			workspace.WithLogger(logger),
			workspace.WithObserver(publish),
		)
	}, api.SessionOptions{
		CookieName:   cfg.Session.CookieName,
		IdleTTL:      cfg.Session.IdleTTL,
		SecureCookie: cfg.Session.SecureCookie,
	})

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: newRootRouter(sessions, broker, be.ready, logger),
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Hot reload of the log level.
	if app.configPath != "" {
		g.Go(func() error {
			if err := watchConfig(gCtx, app.configPath, level, logger); err != nil {
				logger.Warn("config watcher disabled", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close SSE streams first so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once shutdown completes so the config
// watcher stops too.
var errShutdown = errors.New("shutdown")

// RunMCP signs in with the configured account and serves MCP on stdio.
// Logs go to stderr since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if err := cfg.MCP.Validate(); err != nil {
		return fmt.Errorf("mcp config: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger, logCloser := newLogger(os.Stderr, cfg.App.LogFile, level)
	defer logCloser.Close()
	slog.SetDefault(logger)

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.close()

	srv, err := newMCPServer(ctx, be.factory, cfg, app.version, logger)
	if err != nil {
		return err
	}

	logger.Info("MCP server starting", slog.String("email", cfg.MCP.Email))
	return srv.ServeStdio()
}

func newMCPServer(ctx context.Context, factory remote.Factory, cfg *Config, version string, logger *slog.Logger) (*mcpserver.Server, error) {
	ws := workspace.New(factory(),
		workspace.WithTimeout(cfg.Backend.Timeout),
		workspace.WithLogger(logger),
	)
	if _, err := ws.SignIn(ctx, forms.SignIn{Email: cfg.MCP.Email, Password: cfg.MCP.Password}); err != nil {
		n := workspace.NoticeFor(workspace.OpSignIn, err)
		if !ws.Authenticated() {
			return nil, fmt.Errorf("mcp sign in: %s: %w", n.Description, err)
		}
		// Signed in but the first load failed; reload_notes retries.
		logger.Warn("initial note load failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(ws, version), nil
}
