// Package monitor drives the periodic Kandel monitoring cycle: read the
// ladder, reconcile against the previous snapshot, quote the venue, detect
// arbitrage, report, and deliver.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kandelwatch/internal/arbitrage"
	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/ladder"
	"github.com/alanyoungcy/kandelwatch/internal/notify"
	"github.com/alanyoungcy/kandelwatch/internal/reconcile"
	"github.com/alanyoungcy/kandelwatch/internal/report"
)

// VenueSampler is the venue surface the loop needs. *venue.Sampler
// implements it.
type VenueSampler interface {
	Label() string
	Err() error
	Marginal(ctx context.Context) decimal.NullDecimal
	Sized(ctx context.Context, askGives, bidGives *big.Int) (venueBid, venueAsk decimal.NullDecimal)
}

// State is the loop's position in the cycle.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateReconciling State = "reconciling"
	StateReporting   State = "reporting"
)

// Config holds the loop settings.
type Config struct {
	Ladder        common.Address
	Chain         string
	Market        domain.Market
	Interval      time.Duration
	FetchTimeout  time.Duration
	AlertTimeout  time.Duration
	SinkTimeout   time.Duration
	PriceDecimals int32
}

// Stats summarises the loop for the status endpoint.
type Stats struct {
	Ladder       string        `json:"ladder"`
	Chain        string        `json:"chain"`
	Market       string        `json:"market"`
	Interval     time.Duration `json:"interval_ns"`
	State        State         `json:"state"`
	Cycles       uint64        `json:"cycles"`
	FailedFetch  uint64        `json:"failed_fetches"`
	Executions   uint64        `json:"executions"`
	Signals      uint64        `json:"arbitrage_signals"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
	LastError    string        `json:"last_error,omitempty"`
	HasBaseline  bool          `json:"has_baseline"`
	PendingCycle bool          `json:"pending_cycle"`
}

// Scheduler runs cycles one at a time. The previous snapshot is owned by the
// goroutine running Run and never shared.
type Scheduler struct {
	cfg      Config
	reader   domain.LadderReader
	builder  *ladder.Builder
	venue    VenueSampler
	detector *arbitrage.Detector
	alerts   domain.AlertSink
	sinks    []domain.OutcomeSink
	now      func() time.Time
	trigger  chan struct{}
	logger   *slog.Logger

	prev *domain.Snapshot

	mu     sync.RWMutex
	latest *domain.CycleOutcome
	stats  Stats
}

// New creates a Scheduler. alerts may be nil.
func New(cfg Config, reader domain.LadderReader, venue VenueSampler, alerts domain.AlertSink, sinks []domain.OutcomeSink, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if cfg.AlertTimeout <= 0 {
		cfg.AlertTimeout = 15 * time.Second
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 15 * time.Second
	}
	logger = logger.With(slog.String("component", "monitor"), slog.String("ladder", cfg.Ladder.Hex()))
	return &Scheduler{
		cfg:      cfg,
		reader:   reader,
		builder:  ladder.NewBuilder(cfg.Market, logger),
		venue:    venue,
		detector: arbitrage.NewDetector(venue.Label(), logger),
		alerts:   alerts,
		sinks:    sinks,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
		stats: Stats{
			Ladder:   cfg.Ladder.Hex(),
			Chain:    cfg.Chain,
			Market:   cfg.Market.Pair(),
			Interval: cfg.Interval,
			State:    StateIdle,
		},
	}
}

// Run executes the first cycle immediately, then one per interval and one
// per Trigger, until ctx is cancelled. A tick that fires while a cycle is
// running is coalesced into the next iteration.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("monitor starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.String("market", s.cfg.Market.Pair()),
	)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.logger.Info("manual cycle triggered")
			s.RunOnce(ctx)
		}
	}
}

// Trigger requests an immediate cycle. It returns false when one is already
// pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Latest returns the most recent cycle outcome.
func (s *Scheduler) Latest() (domain.CycleOutcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.CycleOutcome{}, false
	}
	return *s.latest, true
}

// Stats returns a copy of the loop counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.PendingCycle = len(s.trigger) > 0
	return st
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.stats.State = st
	s.mu.Unlock()
}

// RunOnce executes one full cycle. It must not be called concurrently with
// Run.
func (s *Scheduler) RunOnce(ctx context.Context) domain.CycleOutcome {
	out := domain.CycleOutcome{
		CycleID:   uuid.New(),
		Ladder:    s.cfg.Ladder,
		Chain:     s.cfg.Chain,
		Market:    s.cfg.Market,
		StartedAt: s.now(),
	}
	log := s.logger.With(slog.String("cycle_id", out.CycleID.String()))

	// Fetch: the ladder read and the marginal probe are independent.
	s.setState(StateFetching)
	var (
		raw      domain.RawLadder
		fetchErr error
		marginal decimal.NullDecimal
		g        errgroup.Group
	)
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		raw, fetchErr = s.reader.ReadLadder(fctx)
		return nil
	})
	g.Go(func() error {
		marginal = s.venue.Marginal(ctx)
		return nil
	})
	_ = g.Wait()

	// Reconcile.
	s.setState(StateReconciling)
	var snap *domain.Snapshot
	if fetchErr != nil {
		ferr := &domain.StateFetchError{Ladder: s.cfg.Ladder.Hex(), Err: fetchErr}
		out.FetchError = ferr.Error()
		log.WarnContext(ctx, "ladder read failed, keeping previous snapshot",
			slog.String("error", ferr.Error()),
		)
	} else {
		built := s.builder.Build(raw, s.now())
		snap = &built
		out.Snapshot = snap
		out.Executions = reconcile.Diff(s.prev, built, s.now())
	}

	// Quote at the ladder's own best sizes, then compare.
	out.Venue = domain.VenueQuote{SourceLabel: s.venue.Label(), MarginalPrice: marginal}
	if err := s.venue.Err(); err != nil {
		out.Venue.Error = err.Error()
	}
	var in arbitrage.Inputs
	if snap != nil {
		var askGives, bidGives *big.Int
		if o, ok := ladder.BestAsk(*snap); ok {
			askGives = o.Gives
			in.LadderBestAsk = o.Price
		}
		if o, ok := ladder.BestBid(*snap); ok {
			bidGives = o.Gives
			in.LadderBestBid = o.Price
		}
		out.Venue.BidPriceForBaseQty, out.Venue.AskPriceForBaseQty = s.venue.Sized(ctx, askGives, bidGives)
	}
	in.VenueBid = out.Venue.BidPriceForBaseQty
	in.VenueAsk = out.Venue.AskPriceForBaseQty
	out.Signal = s.detector.Detect(in)

	// Report and deliver.
	s.setState(StateReporting)
	rin := report.Input{
		Ladder:        s.cfg.Ladder,
		Chain:         s.cfg.Chain,
		Market:        s.cfg.Market,
		Snapshot:      snap,
		FetchError:    out.FetchError,
		Executions:    out.Executions,
		Venue:         out.Venue,
		Signal:        out.Signal,
		At:            out.StartedAt,
		PriceDecimals: s.cfg.PriceDecimals,
	}
	rep := report.Build(rin)
	out.ReportTitle = rep.Title
	out.ReportText = rep.Text()

	event := notify.EventReport
	if fetchErr != nil {
		event = notify.EventError
	}
	s.alert(ctx, log, event, out.ReportTitle, out.ReportText)
	if title, body, ok := report.ExecutionAlert(rin); ok {
		s.alert(ctx, log, notify.EventExecution, title, body)
	}

	out.FinishedAt = s.now()
	s.record(ctx, log, out)

	if snap != nil {
		s.prev = snap
	}
	s.finish(out)

	log.InfoContext(ctx, "cycle complete",
		slog.Bool("fetched", snap != nil),
		slog.Int("executions", len(out.Executions)),
		slog.String("signal", string(out.Signal.Direction)),
		slog.Duration("took", out.FinishedAt.Sub(out.StartedAt)),
	)
	return out
}

// alert delivers one message under the alert timeout. Failures are logged
// only.
func (s *Scheduler) alert(ctx context.Context, log *slog.Logger, event, title, body string) {
	if s.alerts == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.AlertTimeout)
	defer cancel()
	if err := s.alerts.Notify(actx, event, title, body); err != nil {
		var ade *domain.AlertDeliveryError
		if !errors.As(err, &ade) {
			err = &domain.AlertDeliveryError{Event: event, Err: err}
		}
		log.WarnContext(ctx, "alert delivery failed", slog.String("error", err.Error()))
	}
}

// record hands the outcome to every sink, each under the sink timeout.
func (s *Scheduler) record(ctx context.Context, log *slog.Logger, out domain.CycleOutcome) {
	for _, sink := range s.sinks {
		sctx, cancel := context.WithTimeout(ctx, s.cfg.SinkTimeout)
		err := sink.Record(sctx, out)
		cancel()
		if err != nil {
			log.WarnContext(ctx, "outcome sink failed",
				slog.String("sink", sink.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) finish(out domain.CycleOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &out
	s.stats.State = StateIdle
	s.stats.Cycles++
	s.stats.Executions += uint64(len(out.Executions))
	if out.Signal.Fired() {
		s.stats.Signals++
	}
	s.stats.LastCycleAt = out.FinishedAt
	s.stats.LastError = out.FetchError
	if out.Snapshot == nil {
		s.stats.FailedFetch++
	}
	s.stats.HasBaseline = s.prev != nil
}
