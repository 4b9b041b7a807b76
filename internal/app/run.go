package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/monitor"
	"github.com/alanyoungcy/kandelwatch/internal/server"
	"github.com/alanyoungcy/kandelwatch/internal/server/handler"
	"github.com/alanyoungcy/kandelwatch/internal/server/ws"
)

func (a *App) newScheduler(deps *Dependencies) *monitor.Scheduler {
	m := a.cfg.Monitor
	return monitor.New(monitor.Config{
		Ladder:        deps.Ladder,
		Chain:         a.cfg.Kandel.Chain,
		Market:        deps.Market,
		Interval:      m.Interval.Duration,
		FetchTimeout:  m.FetchTimeout.Duration,
		AlertTimeout:  m.AlertTimeout.Duration,
		SinkTimeout:   m.SinkTimeout.Duration,
		PriceDecimals: int32(m.PriceDisplayDecimals),
	}, deps.Reader, deps.Venue, deps.Notifier, deps.Sinks, a.logger)
}

// OnceMode runs a single cycle, prints the report and returns.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	out := a.newScheduler(deps).RunOnce(ctx)
	fmt.Fprintf(a.out, "%s\n\n%s\n", out.ReportTitle, out.ReportText)
	if out.FetchError != "" {
		a.logger.WarnContext(ctx, "cycle completed without ladder state", slog.String("error", out.FetchError))
	}
	return nil
}

// MonitorMode runs the scheduler loop, the lease refresher and, when enabled,
// the HTTP API until ctx is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("ladder", deps.Ladder.Hex()),
		slog.Duration("interval", a.cfg.Monitor.Interval.Duration),
	)

	sched := a.newScheduler(deps)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	if deps.Lease != nil {
		g.Go(func() error {
			return a.holdLease(ctx, deps.Lease, leaseTTL/3)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, sched)
	}

	return g.Wait()
}

// holdLease refreshes the single-instance lock until ctx ends. Losing the
// lock stops the process so two monitors never report the same ladder.
func (a *App) holdLease(ctx context.Context, lease domain.Lease, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := lease.Refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrLockHeld):
				return fmt.Errorf("app: instance lock lost: %w", err)
			case ctx.Err() != nil:
				return ctx.Err()
			default:
				a.logger.WarnContext(ctx, "instance lock refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startHTTPServer adds the API server, its shutdown watcher and (with Redis)
// the WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, sched *monitor.Scheduler) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, sched, deps.SinkNames(), deps.Notifier.Senders()),
		Report:   handler.NewReportHandler(sched),
		Cycle:    handler.NewCycleHandler(sched, a.logger),
		Outcomes: handler.NewOutcomesHandler(deps.SignalBus, a.logger),
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, func() any { return sched.Stats() }, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
