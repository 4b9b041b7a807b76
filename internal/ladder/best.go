package ladder

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// BestAsk returns the live ask with the lowest defined price. On ties the
// first offer in slot order wins.
func BestAsk(s domain.Snapshot) (domain.Offer, bool) {
	return best(s.Asks, func(cand, cur decimal.Decimal) bool { return cand.LessThan(cur) })
}

// BestBid returns the live bid with the highest defined price. On ties the
// first offer in slot order wins.
func BestBid(s domain.Snapshot) (domain.Offer, bool) {
	return best(s.Bids, func(cand, cur decimal.Decimal) bool { return cand.GreaterThan(cur) })
}

func best(offers []domain.Offer, better func(cand, cur decimal.Decimal) bool) (domain.Offer, bool) {
	var (
		out   domain.Offer
		found bool
	)
	for _, o := range offers {
		if !o.Live() || !o.Price.Valid {
			continue
		}
		if !found || better(o.Price.Decimal, out.Price.Decimal) {
			out = o
			found = true
		}
	}
	return out, found
}

// BestPrices returns the best ask and bid prices, invalid when a side has no
// priced live offer.
func BestPrices(s domain.Snapshot) (ask, bid decimal.NullDecimal) {
	if o, ok := BestAsk(s); ok {
		ask = o.Price
	}
	if o, ok := BestBid(s); ok {
		bid = o.Price
	}
	return ask, bid
}
