package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/raido/internal/boardservice"
	"github.com/starford/raido/internal/depgraph"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/pool"
	"github.com/starford/raido/internal/workspace"
)

// RunMCP starts the MCP server on stdin/stdout. Logs go to stderr so
// the stdio transport stays clean.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	registry, err := workspace.Load(cfg.Workspace.Registry)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	conns := pool.New(registry, cfg.Pool.MaxConnections, cfg.Pool.IdleTimeout.Std(), logger)
	defer func() {
		if err := conns.CloseAll(); err != nil {
			logger.Error("closing connections", slog.String("error", err.Error()))
		}
	}()

	recorder := history.New()
	graph := depgraph.New(conns, recorder, logger)
	board := boardservice.NewService(conns, recorder, boardservice.Board{
		TaskStatuses:   cfg.Board.TaskStatuses,
		EpicStatuses:   cfg.Board.EpicStatuses,
		PriorityLevels: cfg.Board.PriorityLevels,
	}, logger)

	srv := mcpserver.New(board, graph, recorder, conns, registry)

	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
