// Command kandelwatch watches one Kandel ladder on Mangrove: it infers fills
// between cycles, compares the ladder's best prices with an external venue and
// sends a periodic report. It loads configuration, applies command-line
// overrides, validates, wires dependencies and runs until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/kandelwatch/internal/app"
	"github.com/alanyoungcy/kandelwatch/internal/config"
	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	kandel := flag.String("kandel", "", "Kandel contract address (overrides config)")
	chain := flag.String("chain", "", "chain name from the registry (overrides config)")
	interval := flag.String("interval", "", "monitoring interval, e.g. 15m; a bare integer means minutes")
	once := flag.Bool("once", false, "run a single cycle, print the report and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if *kandel != "" {
		cfg.Kandel.Address = *kandel
	}
	if *chain != "" {
		cfg.Kandel.Chain = *chain
	}
	if *interval != "" {
		d, err := config.ParseDuration(*interval)
		if err != nil {
			logger.Error("invalid -interval", slog.String("value", *interval), slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg.SetInterval(d)
	}
	if *once {
		cfg.Mode = config.ModeOnce
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("kandel monitor starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("summary", cfg.Summary()),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("kandel monitor stopped")
	case domain.IsFatal(err):
		logger.Error("startup failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
