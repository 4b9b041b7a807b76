// Package ladder turns raw ladder reads into priced snapshots and selects
// best prices from them.
package ladder

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/pricing"
)

// Builder prices raw ladder reads for one market.
type Builder struct {
	market domain.Market
	calc   *pricing.Calculator
	logger *slog.Logger
}

// NewBuilder creates a Builder for market.
func NewBuilder(market domain.Market, logger *slog.Logger) *Builder {
	return &Builder{
		market: market,
		calc:   pricing.NewCalculator(pricing.ConventionFor(market)),
		logger: logger.With(slog.String("component", "snapshot_builder")),
	}
}

// Build never fails per offer: an offer whose price cannot be computed stays
// in the snapshot with an invalid price.
func (b *Builder) Build(raw domain.RawLadder, capturedAt time.Time) domain.Snapshot {
	snap := domain.Snapshot{
		Market:             b.market,
		Status:             raw.Status,
		PricePoints:        raw.PricePoints,
		TotalBaseInOffers:  new(big.Int),
		TotalQuoteInOffers: new(big.Int),
		ReserveBase:        cloneOrZero(raw.ReserveBase),
		ReserveQuote:       cloneOrZero(raw.ReserveQuote),
		CapturedAt:         capturedAt,
	}

	snap.Asks, snap.PopulatedAsks = b.priceSide(raw.Asks, domain.SideAsk, snap.TotalBaseInOffers)
	snap.Bids, snap.PopulatedBids = b.priceSide(raw.Bids, domain.SideBid, snap.TotalQuoteInOffers)
	return snap
}

func (b *Builder) priceSide(raw []domain.RawOffer, side domain.Side, total *big.Int) ([]domain.Offer, int) {
	offers := make([]domain.Offer, 0, len(raw))
	populated := 0
	failed := 0
	for i, r := range raw {
		res := b.calc.Price(r.Tick, side, r.FallbackPrice)
		o := domain.Offer{
			ID:            r.ID,
			Slot:          i,
			Tick:          r.Tick,
			Gives:         cloneOrZero(r.Gives),
			Side:          side,
			Price:         res.Price,
			PriceDegraded: res.Degraded,
			GivesBase:     side == domain.SideAsk,
		}
		if o.Live() {
			populated++
			total.Add(total, o.Gives)
		}
		if res.Err != nil {
			failed++
			b.logger.Debug("offer priced without tick conversion",
				slog.String("side", side.String()),
				slog.Uint64("offer_id", r.ID),
				slog.Bool("degraded", res.Degraded),
				slog.String("error", res.Err.Error()),
			)
		}
		offers = append(offers, o)
	}
	if failed > 0 {
		b.logger.Warn("price conversion failures",
			slog.String("side", side.String()),
			slog.Int("count", failed),
		)
	}
	return offers, populated
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
