// Package arbitrage compares the ladder's best prices with the external
// venue's size-matched execution prices.
package arbitrage

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// Inputs are the four optional prices, all in quote per base.
type Inputs struct {
	LadderBestAsk decimal.NullDecimal
	LadderBestBid decimal.NullDecimal
	VenueBid      decimal.NullDecimal
	VenueAsk      decimal.NullDecimal
}

// Detect evaluates both directions. A direction fires only on a strict
// inequality. When both fire the larger spread wins. The signal is
// indeterminate whenever a comparison lacked an input, even if the other
// direction fired.
func Detect(in Inputs) domain.ArbitrageSignal {
	sig := domain.ArbitrageSignal{
		Direction:     domain.DirectionNone,
		LadderBestAsk: in.LadderBestAsk,
		LadderBestBid: in.LadderBestBid,
		VenueBid:      in.VenueBid,
		VenueAsk:      in.VenueAsk,
	}

	buyLadder, buyLadderOK := spread(in.VenueBid, in.LadderBestAsk)
	buyVenue, buyVenueOK := spread(in.LadderBestBid, in.VenueAsk)

	buyLadderFires := buyLadderOK && buyLadder.IsPositive()
	buyVenueFires := buyVenueOK && buyVenue.IsPositive()

	sig.Indeterminate = !buyLadderOK || !buyVenueOK

	switch {
	case buyLadderFires && buyVenueFires:
		if buyVenue.GreaterThan(buyLadder) {
			sig.Direction = domain.DirectionBuyVenueSellLadder
			sig.Spread = decimal.NewNullDecimal(buyVenue)
		} else {
			sig.Direction = domain.DirectionBuyLadderSellVenue
			sig.Spread = decimal.NewNullDecimal(buyLadder)
		}
	case buyLadderFires:
		sig.Direction = domain.DirectionBuyLadderSellVenue
		sig.Spread = decimal.NewNullDecimal(buyLadder)
	case buyVenueFires:
		sig.Direction = domain.DirectionBuyVenueSellLadder
		sig.Spread = decimal.NewNullDecimal(buyVenue)
	}
	return sig
}

// spread returns sell - buy when both prices are defined.
func spread(sell, buy decimal.NullDecimal) (decimal.Decimal, bool) {
	if !sell.Valid || !buy.Valid {
		return decimal.Decimal{}, false
	}
	return sell.Decimal.Sub(buy.Decimal), true
}

// Detector wraps Detect with logging for the monitor loop.
type Detector struct {
	venue  string
	logger *slog.Logger
}

// NewDetector creates a Detector for the named venue.
func NewDetector(venue string, logger *slog.Logger) *Detector {
	return &Detector{
		venue:  venue,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// Detect runs the comparison and logs a fired or indeterminate result.
func (d *Detector) Detect(in Inputs) domain.ArbitrageSignal {
	sig := Detect(in)
	switch {
	case sig.Fired():
		d.logger.Info("arbitrage detected",
			slog.String("venue", d.venue),
			slog.String("direction", string(sig.Direction)),
			slog.String("spread", sig.Spread.Decimal.String()),
		)
	case sig.Indeterminate:
		d.logger.Debug("arbitrage check indeterminate", slog.String("venue", d.venue))
	}
	return sig
}
