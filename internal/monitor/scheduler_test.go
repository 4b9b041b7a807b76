package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/notify"
)

var testMarket = domain.Market{
	Base:        domain.Token{Address: common.HexToAddress("0xb"), Symbol: "BASE", Decimals: 0, DecimalsKnown: true},
	Quote:       domain.Token{Address: common.HexToAddress("0xc"), Symbol: "QUOTE", Decimals: 0, DecimalsKnown: true},
	TickSpacing: 1,
}

type readResult struct {
	raw domain.RawLadder
	err error
}

// scriptedReader returns its results in order and repeats the last one.
type scriptedReader struct {
	mu      sync.Mutex
	results []readResult
	calls   int
	block   bool
}

func (r *scriptedReader) ReadLadder(ctx context.Context) (domain.RawLadder, error) {
	if r.block {
		<-ctx.Done()
		return domain.RawLadder{}, ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := min(r.calls, len(r.results)-1)
	r.calls++
	return r.results[i].raw, r.results[i].err
}

type stubVenue struct {
	err      error
	marginal decimal.NullDecimal
	bid, ask decimal.NullDecimal

	mu        sync.Mutex
	sizedArgs [][2]*big.Int
}

func (v *stubVenue) Label() string { return "Balancer" }
func (v *stubVenue) Err() error    { return v.err }
func (v *stubVenue) Marginal(context.Context) decimal.NullDecimal {
	return v.marginal
}
func (v *stubVenue) Sized(_ context.Context, askGives, bidGives *big.Int) (decimal.NullDecimal, decimal.NullDecimal) {
	v.mu.Lock()
	v.sizedArgs = append(v.sizedArgs, [2]*big.Int{askGives, bidGives})
	v.mu.Unlock()
	return v.bid, v.ask
}

type sentAlert struct {
	event, title, body string
}

type recordingAlerts struct {
	mu   sync.Mutex
	sent []sentAlert
	err  error
}

func (a *recordingAlerts) Notify(_ context.Context, event, title, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sentAlert{event, title, body})
	return a.err
}

func (a *recordingAlerts) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.sent))
	for i, s := range a.sent {
		out[i] = s.event
	}
	return out
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []domain.CycleOutcome
}

func (s *recordingSink) Name() string { return "recording" }
func (s *recordingSink) Record(_ context.Context, o domain.CycleOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }
func (failingSink) Record(context.Context, domain.CycleOutcome) error {
	return errors.New("disk full")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offer(id uint64, tick, gives int64) domain.RawOffer {
	return domain.RawOffer{ID: id, Tick: tick, Gives: big.NewInt(gives)}
}

func ladderWith(asks, bids []domain.RawOffer) domain.RawLadder {
	return domain.RawLadder{
		Status:       "active",
		PricePoints:  uint64(max(len(asks), len(bids))),
		Asks:         asks,
		Bids:         bids,
		ReserveBase:  big.NewInt(0),
		ReserveQuote: big.NewInt(0),
	}
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newScheduler(reader domain.LadderReader, venue VenueSampler, alerts domain.AlertSink, sinks ...domain.OutcomeSink) *Scheduler {
	return New(Config{
		Ladder:       common.HexToAddress("0xaa"),
		Chain:        "base",
		Market:       testMarket,
		Interval:     time.Hour,
		FetchTimeout: time.Second,
	}, reader, venue, alerts, sinks, discard())
}

func TestRunOnce_FirstCycleHasNoExecutions(t *testing.T) {
	reader := &scriptedReader{results: []readResult{{raw: ladderWith(
		[]domain.RawOffer{offer(1, 0, 100)},
		[]domain.RawOffer{offer(2, 0, 50)},
	)}}}
	alerts := &recordingAlerts{}
	sink := &recordingSink{}
	s := newScheduler(reader, &stubVenue{}, alerts, sink)

	out := s.RunOnce(context.Background())

	require.NotNil(t, out.Snapshot)
	assert.Empty(t, out.Executions)
	assert.Empty(t, out.FetchError)
	assert.Equal(t, []string{notify.EventReport}, alerts.events())
	require.Len(t, sink.outcomes, 1)
	assert.Equal(t, out.CycleID, sink.outcomes[0].CycleID)
	assert.Contains(t, out.ReportText, "Kandel Status: active")

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.True(t, st.HasBaseline)
	assert.Equal(t, StateIdle, st.State)
}

func TestRunOnce_DetectsFillsAgainstPrevious(t *testing.T) {
	reader := &scriptedReader{results: []readResult{
		{raw: ladderWith([]domain.RawOffer{offer(1, 0, 100), offer(3, 10, 80)}, []domain.RawOffer{offer(2, 0, 50)})},
		{raw: ladderWith([]domain.RawOffer{offer(3, 10, 80)}, []domain.RawOffer{offer(2, 0, 20)})},
	}}
	alerts := &recordingAlerts{}
	s := newScheduler(reader, &stubVenue{}, alerts)
	ctx := context.Background()

	s.RunOnce(ctx)
	out := s.RunOnce(ctx)

	require.Len(t, out.Executions, 2)
	assert.Equal(t, domain.SideAsk, out.Executions[0].Side)
	assert.Equal(t, uint64(1), out.Executions[0].OfferID)
	assert.Equal(t, domain.FillFull, out.Executions[0].FillKind)
	assert.Equal(t, domain.SideBid, out.Executions[1].Side)
	assert.Equal(t, int64(30), out.Executions[1].ExecutedAmount.Int64())
	assert.Equal(t, domain.FillPartial, out.Executions[1].FillKind)

	assert.Equal(t, []string{notify.EventReport, notify.EventReport, notify.EventExecution}, alerts.events())
	assert.Equal(t, uint64(2), s.Stats().Executions)
}

func TestRunOnce_FetchFailureKeepsPrevious(t *testing.T) {
	reader := &scriptedReader{results: []readResult{
		{raw: ladderWith([]domain.RawOffer{offer(1, 0, 100)}, nil)},
		{err: errors.New("rpc unreachable")},
		{raw: ladderWith(nil, nil)},
	}}
	alerts := &recordingAlerts{}
	venue := &stubVenue{}
	s := newScheduler(reader, venue, alerts)
	ctx := context.Background()

	s.RunOnce(ctx)
	failed := s.RunOnce(ctx)
	assert.Nil(t, failed.Snapshot)
	assert.Contains(t, failed.FetchError, "rpc unreachable")
	assert.Contains(t, failed.ReportText, "Kandel State: unavailable")
	assert.False(t, failed.Signal.Fired())
	assert.Len(t, venue.sizedArgs, 1, "sized quotes need a snapshot")

	// The offer vanished while the read was failing; it is still reported.
	recovered := s.RunOnce(ctx)
	require.Len(t, recovered.Executions, 1)
	assert.Equal(t, uint64(1), recovered.Executions[0].OfferID)

	assert.Equal(t, notify.EventError, alerts.events()[1])
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Cycles)
	assert.Equal(t, uint64(1), st.FailedFetch)
	assert.Empty(t, st.LastError)
}

func TestRunOnce_FetchTimeout(t *testing.T) {
	reader := &scriptedReader{block: true}
	s := New(Config{
		Ladder:       common.HexToAddress("0xaa"),
		Chain:        "base",
		Market:       testMarket,
		FetchTimeout: 20 * time.Millisecond,
	}, reader, &stubVenue{}, nil, nil, discard())

	done := make(chan domain.CycleOutcome, 1)
	go func() { done <- s.RunOnce(context.Background()) }()

	select {
	case out := <-done:
		assert.Nil(t, out.Snapshot)
		assert.Contains(t, out.FetchError, context.DeadlineExceeded.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish within the fetch timeout")
	}
}

func TestRunOnce_VenueSizedAtBestOffers(t *testing.T) {
	reader := &scriptedReader{results: []readResult{{raw: ladderWith(
		[]domain.RawOffer{offer(1, 100, 7), offer(2, 0, 9), offer(3, -5, 0)},
		[]domain.RawOffer{offer(4, 10, 11), offer(5, 0, 13)},
	)}}}
	// Ask at tick 0 is price 1; bid at tick 0 is price 1. The venue bids 2.
	venue := &stubVenue{marginal: price("1.5"), bid: price("2"), ask: price("3")}
	s := newScheduler(reader, venue, nil)

	out := s.RunOnce(context.Background())

	require.Len(t, venue.sizedArgs, 1)
	assert.Equal(t, int64(9), venue.sizedArgs[0][0].Int64())
	assert.Equal(t, int64(13), venue.sizedArgs[0][1].Int64())
	assert.Equal(t, domain.DirectionBuyLadderSellVenue, out.Signal.Direction)
	assert.True(t, out.Venue.MarginalPrice.Decimal.Equal(decimal.RequireFromString("1.5")))
	assert.Contains(t, out.ReportText, "ARBITRAGE: Buy BASE on Kandel")
}

func TestRunOnce_VenueUnavailable(t *testing.T) {
	reader := &scriptedReader{results: []readResult{{raw: ladderWith([]domain.RawOffer{offer(1, 0, 1)}, nil)}}}
	venue := &stubVenue{err: domain.ErrPairMismatch}
	s := newScheduler(reader, venue, nil)

	out := s.RunOnce(context.Background())
	assert.Equal(t, domain.ErrPairMismatch.Error(), out.Venue.Error)
	assert.Contains(t, out.ReportText, "Balancer Data Error")
	assert.Equal(t, domain.DirectionNone, out.Signal.Direction)
	assert.True(t, out.Signal.Indeterminate)
}

func TestRunOnce_DeliveryFailuresDoNotAbort(t *testing.T) {
	reader := &scriptedReader{results: []readResult{{raw: ladderWith(nil, nil)}}}
	alerts := &recordingAlerts{err: errors.New("webhook 500")}
	sink := &recordingSink{}
	s := newScheduler(reader, &stubVenue{}, alerts, failingSink{}, sink)

	out := s.RunOnce(context.Background())
	require.NotNil(t, out.Snapshot)
	assert.Len(t, sink.outcomes, 1)
	assert.True(t, s.Stats().HasBaseline)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, out.CycleID, latest.CycleID)
}

func TestRun_FirstCycleImmediateAndTrigger(t *testing.T) {
	reader := &scriptedReader{results: []readResult{{raw: ladderWith(nil, nil)}}}
	s := newScheduler(reader, &stubVenue{}, nil)

	_, ok := s.Latest()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Stats().Cycles == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Trigger())
	require.Eventually(t, func() bool { return s.Stats().Cycles == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTrigger_Coalesces(t *testing.T) {
	s := newScheduler(&scriptedReader{results: []readResult{{}}}, &stubVenue{}, nil)
	assert.True(t, s.Trigger())
	assert.False(t, s.Trigger())
	assert.True(t, s.Stats().PendingCycle)
}
