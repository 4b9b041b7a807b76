package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// Channel and stream names used on the signal bus.
const (
	ChannelReport     = "kandel:report"
	ChannelExecutions = "kandel:executions"
	ChannelArbitrage  = "kandel:arbitrage"
	ChannelPattern    = "kandel:*"
	StreamOutcomes    = "kandel:outcomes"
)

// OutcomePublisher fans finished cycles out over the signal bus. Every cycle
// goes to the report channel and the outcome stream; executions and fired
// arbitrage signals get their own channels.
type OutcomePublisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewOutcomePublisher creates an OutcomePublisher.
func NewOutcomePublisher(bus domain.SignalBus, logger *slog.Logger) *OutcomePublisher {
	return &OutcomePublisher{bus: bus, logger: logger}
}

// Name implements domain.OutcomeSink.
func (p *OutcomePublisher) Name() string { return "redis" }

// Record implements domain.OutcomeSink.
func (p *OutcomePublisher) Record(ctx context.Context, out domain.CycleOutcome) error {
	full, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("outcome_publisher: marshal outcome: %w", err)
	}

	var errs []error
	if err := p.bus.StreamAppend(ctx, StreamOutcomes, full); err != nil {
		errs = append(errs, err)
	}

	summary, _ := json.Marshal(reportEvent(out))
	if err := p.bus.Publish(ctx, ChannelReport, summary); err != nil {
		errs = append(errs, err)
	}

	if len(out.Executions) > 0 {
		evt, _ := json.Marshal(map[string]any{
			"event":      "executions",
			"cycle_id":   out.CycleID,
			"ladder":     out.Ladder.Hex(),
			"chain":      out.Chain,
			"executions": out.Executions,
		})
		if err := p.bus.Publish(ctx, ChannelExecutions, evt); err != nil {
			errs = append(errs, err)
		}
	}

	if out.Signal.Fired() {
		evt, _ := json.Marshal(map[string]any{
			"event":    "arbitrage",
			"cycle_id": out.CycleID,
			"ladder":   out.Ladder.Hex(),
			"chain":    out.Chain,
			"signal":   out.Signal,
			"venue":    out.Venue.SourceLabel,
		})
		if err := p.bus.Publish(ctx, ChannelArbitrage, evt); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("outcome_publisher: %w", errors.Join(errs...))
	}

	p.logger.DebugContext(ctx, "outcome_publisher: published cycle",
		slog.String("cycle_id", out.CycleID.String()),
		slog.Int("executions", len(out.Executions)),
		slog.Bool("arbitrage", out.Signal.Fired()),
	)
	return nil
}

func reportEvent(out domain.CycleOutcome) map[string]any {
	evt := map[string]any{
		"event":       "report",
		"cycle_id":    out.CycleID,
		"ladder":      out.Ladder.Hex(),
		"chain":       out.Chain,
		"market":      out.Market.Pair(),
		"executions":  len(out.Executions),
		"direction":   out.Signal.Direction,
		"title":       out.ReportTitle,
		"finished_at": out.FinishedAt.UTC().Format(time.RFC3339),
	}
	if out.Snapshot != nil {
		evt["status"] = out.Snapshot.Status
		evt["populated_asks"] = out.Snapshot.PopulatedAsks
		evt["populated_bids"] = out.Snapshot.PopulatedBids
	}
	if out.FetchError != "" {
		evt["fetch_error"] = out.FetchError
	}
	return evt
}

// RecentOutcomes decodes up to count of the newest outcomes from the stream.
// Entries that fail to decode are skipped.
func RecentOutcomes(ctx context.Context, bus domain.SignalBus, count int) ([]domain.CycleOutcome, error) {
	msgs, err := bus.StreamRecent(ctx, StreamOutcomes, count)
	if err != nil {
		return nil, fmt.Errorf("outcome_publisher: read recent: %w", err)
	}
	out := make([]domain.CycleOutcome, 0, len(msgs))
	for _, m := range msgs {
		var o domain.CycleOutcome
		if err := json.Unmarshal(m.Payload, &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

var _ domain.OutcomeSink = (*OutcomePublisher)(nil)
