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

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/stream"
	"github.com/starford/raido/internal/workspace"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_registry", cfg.Workspace.Registry),
		slog.Int("pool_max_connections", cfg.Pool.MaxConnections),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Load the workspace registry.
	registry, err := workspace.Load(cfg.Workspace.Registry)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	// Connection pool over all registered projects.
	conns := pool.New(registry, cfg.Pool.MaxConnections, cfg.Pool.IdleTimeout.Std(), logger)
	defer func() {
		if err := conns.CloseAll(); err != nil {
			logger.Error("closing connections", slog.String("error", err.Error()))
		}
	}()

	// Core components.
	recorder := history.New()
	graph := depgraph.New(conns, recorder, logger)
	board := boardservice.NewService(conns, recorder, boardservice.Board{
		TaskStatuses:   cfg.Board.TaskStatuses,
		EpicStatuses:   cfg.Board.EpicStatuses,
		PriorityLevels: cfg.Board.PriorityLevels,
	}, logger)
	streamer := stream.New(conns, cfg.Stream.PollInterval.Std(), func() string {
		return registry.Default().ID
	}, logger)

	// Build API router.
	apiRouter := api.NewRouter(board, graph, recorder, conns, registry,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, streamer)

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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the registry file and reload projects on change.
	g.Go(func() error {
		err := registry.Watch(gCtx, logger, func() {
			logger.Info("workspace registry reloaded",
				slog.Int("projects", len(registry.Projects())))
		})
		if err != nil {
			logger.Warn("registry watcher unavailable", slog.String("error", err.Error()))
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
