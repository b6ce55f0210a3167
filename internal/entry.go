// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tabula/internal/api"
	"github.com/starford/tabula/internal/editor"
	"github.com/starford/tabula/internal/index"
	"github.com/starford/tabula/internal/mcpserver"
	"github.com/starford/tabula/internal/sse"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/vault"
)

// components are the wired domain objects shared by both run modes.
type components struct {
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	ws     *editor.Store
	svc    *vault.Service
}

func newApplication(opts []Option, defaultLog io.Writer) (*application, error) {
	app := &application{logOutput: defaultLog}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// open initializes logging, storage, the index and the editor. notifier may
// be nil. The caller closes c.db.
func (a *application) open(notifier editor.Notifier) (*components, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Duration("io_timeout", cfg.Editor.IOTimeout))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	edOpts := []editor.Option{editor.WithLogger(logger)}
	if notifier != nil {
		edOpts = append(edOpts, editor.WithNotifier(notifier))
	}
	ws := editor.New(storage.NewContent(store, cfg.Editor.IOTimeout), edOpts...)

	return &components{
		logger: logger,
		store:  store,
		db:     db,
		ws:     ws,
		svc:    vault.NewService(store, db, ws, logger),
	}, nil
}

// watch keeps the index current and closes tabs of notes removed outside
// the application. publish, if non-nil, receives every index change.
func (c *components) watch(ctx context.Context, root string, publish func(kind, path string)) error {
	return index.Watch(ctx, c.db, c.store, root, c.logger, func(kind, path string) {
		if kind == index.KindDeleted {
			if n := c.svc.Removed(path); n > 0 {
				c.logger.Info("closed tabs of removed path", slog.String("path", path), slog.Int("tabs", n))
			}
		}
		if publish != nil {
			publish(kind, storage.NotePath(path))
		}
	})
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker; editor events are relayed to clients as they happen.
	broker := sse.NewBroker(cfg.Events.Throttle, sse.WithHeartbeat(cfg.Events.Heartbeat))
	defer broker.Close()

	c, err := app.open(broker)
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	apiRouter := api.NewRouter(c.ws, c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := c.watch(gCtx, cfg.Vault.Path, broker.PublishVaultEvent); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Streaming SSE handlers only return once the broker closes.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		if dirty := countDirty(c.ws); dirty > 0 {
			logger.Warn("Discarding unsaved tabs", slog.Int("tabs", dirty))
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

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP protocol on stdin/stdout until stdin is closed.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}

	c, err := app.open(nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.watch(gCtx, app.config.Vault.Path, nil); err != nil {
			c.logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		c.logger.Info("Starting MCP server on stdio")
		return mcpserver.New(c.ws, c.svc).ServeStdio()
	})

	return g.Wait()
}

func countDirty(ws *editor.Store) int {
	n := 0
	for _, t := range ws.Tabs() {
		if t.IsDirty {
			n++
		}
	}
	return n
}
