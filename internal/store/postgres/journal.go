package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

const insertCycleSQL = `
	INSERT INTO kandel_cycles (
		cycle_id, ladder, chain, base_token, quote_token, market,
		status, price_points, populated_asks, populated_bids,
		total_base, total_quote, reserve_base, reserve_quote,
		best_ask, best_bid, fetch_error,
		venue_label, venue_marginal, venue_bid, venue_ask, venue_error,
		report_title, report_text, started_at, finished_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13, $14,
		$15, $16, $17,
		$18, $19, $20, $21, $22,
		$23, $24, $25, $26
	)
	ON CONFLICT (cycle_id) DO NOTHING`

const insertExecutionSQL = `
	INSERT INTO kandel_executions (
		id, cycle_id, side, offer_id, executed_amount, counter_amount, price, fill_kind, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

const insertSignalSQL = `
	INSERT INTO kandel_arbitrage_signals (
		cycle_id, direction, spread, ladder_best_ask, ladder_best_bid, venue_bid, venue_ask, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (cycle_id) DO NOTHING`

// Journal implements domain.OutcomeSink by writing each cycle, its fills
// and any fired arbitrage signal in a single transaction.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a new Journal.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Name implements domain.OutcomeSink.
func (j *Journal) Name() string { return "postgres" }

// Record implements domain.OutcomeSink.
func (j *Journal) Record(ctx context.Context, out domain.CycleOutcome) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := journalBatch(out)
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("postgres: journal cycle %s: statement %d: %w", out.CycleID, i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("postgres: journal cycle %s: %w", out.CycleID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit journal cycle %s: %w", out.CycleID, err)
	}
	return nil
}

func journalBatch(out domain.CycleOutcome) *pgx.Batch {
	batch := &pgx.Batch{}
	batch.Queue(insertCycleSQL, cycleArgs(out)...)
	for _, ev := range out.Executions {
		batch.Queue(insertExecutionSQL, executionArgs(out, ev)...)
	}
	if out.Signal.Fired() {
		batch.Queue(insertSignalSQL, signalArgs(out)...)
	}
	return batch
}

func cycleArgs(out domain.CycleOutcome) []any {
	var (
		status                     *string
		pricePoints                *int64
		popAsks, popBids           *int32
		totalBase, totalQuote      *string
		reserveBase, reserveQuote  *string
		bestAsk, bestBid, fetchErr *string
		venueErr                   *string
	)

	if snap := out.Snapshot; snap != nil {
		status = &snap.Status
		pp := int64(snap.PricePoints)
		pricePoints = &pp
		pa, pb := int32(snap.PopulatedAsks), int32(snap.PopulatedBids)
		popAsks, popBids = &pa, &pb
		totalBase = bigText(snap.TotalBaseInOffers)
		totalQuote = bigText(snap.TotalQuoteInOffers)
		reserveBase = bigText(snap.ReserveBase)
		reserveQuote = bigText(snap.ReserveQuote)
	}
	bestAsk = decimalText(out.Signal.LadderBestAsk)
	bestBid = decimalText(out.Signal.LadderBestBid)
	if out.FetchError != "" {
		fetchErr = &out.FetchError
	}
	if out.Venue.Error != "" {
		venueErr = &out.Venue.Error
	}

	return []any{
		out.CycleID, out.Ladder.Hex(), out.Chain,
		out.Market.Base.Address.Hex(), out.Market.Quote.Address.Hex(), out.Market.Pair(),
		status, pricePoints, popAsks, popBids,
		totalBase, totalQuote, reserveBase, reserveQuote,
		bestAsk, bestBid, fetchErr,
		out.Venue.SourceLabel,
		decimalText(out.Venue.MarginalPrice),
		decimalText(out.Venue.BidPriceForBaseQty),
		decimalText(out.Venue.AskPriceForBaseQty),
		venueErr,
		out.ReportTitle, out.ReportText,
		nonZeroTime(out.StartedAt, out.FinishedAt), out.FinishedAt,
	}
}

func executionArgs(out domain.CycleOutcome, ev domain.ExecutionEvent) []any {
	amount := bigText(ev.ExecutedAmount)
	if amount == nil {
		zero := "0"
		amount = &zero
	}
	return []any{
		ev.ID, out.CycleID, ev.Side.String(), int64(ev.OfferID), amount,
		decimalText(ev.ExecutedCounterAmount), decimalText(ev.Price),
		string(ev.FillKind), nonZeroTime(ev.DetectedAt, out.FinishedAt),
	}
}

func signalArgs(out domain.CycleOutcome) []any {
	s := out.Signal
	return []any{
		out.CycleID, string(s.Direction), decimalText(s.Spread),
		decimalText(s.LadderBestAsk), decimalText(s.LadderBestBid),
		decimalText(s.VenueBid), decimalText(s.VenueAsk),
		out.FinishedAt,
	}
}

// bigText and decimalText render numerics as text so pgx sends them in text
// format into NUMERIC columns. nil maps to NULL.
func bigText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func decimalText(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.String()
	return &s
}

func nonZeroTime(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

var _ domain.OutcomeSink = (*Journal)(nil)
