// Package app wires the Kandel monitor together (chain reader, venue
// sampler, notifier, optional sinks and API) and runs it in the configured
// mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/alanyoungcy/kandelwatch/internal/config"
)

// App owns the configuration and the cleanup of everything Wire opened.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	closeOnce sync.Once
	cleanup   func()
}

// New returns an App that prints one-shot reports to stdout.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "app")),
		out:     os.Stdout,
		cleanup: func() {},
	}
}

// Run wires the dependencies and blocks in the configured mode until it
// finishes, fails, or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", mode),
		slog.String("ladder", a.cfg.Kandel.Address),
		slog.String("chain", a.cfg.Kandel.Chain),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire: %w", err)
	}
	a.cleanup = cleanup

	switch mode {
	case config.ModeMonitor:
		return a.MonitorMode(ctx, deps)
	case config.ModeOnce:
		return a.OnceMode(ctx, deps)
	}
	return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

// Close releases everything Wire opened. Later calls do nothing.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.logger.Info("shutting down")
		a.cleanup()
	})
}
