// Package reconcile infers fills by comparing two successive ladder
// snapshots.
//
// Only offers that were live in the previous snapshot can be executed
// against. An offer that is filled and then reposted with at least its old
// gives inside one polling interval looks untouched; without an event log
// that case cannot be told apart and is not reported.
package reconcile

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// counterPrecision is the number of fractional digits kept when dividing by a
// bid price.
const counterPrecision int32 = 30

// Diff returns the executions between prev and cur: asks first, then bids,
// each in the previous snapshot's slot order. A nil prev yields no events.
func Diff(prev *domain.Snapshot, cur domain.Snapshot, detectedAt time.Time) []domain.ExecutionEvent {
	if prev == nil {
		return nil
	}
	scale := counterScale(prev.Market)

	var events []domain.ExecutionEvent
	for _, side := range []domain.Side{domain.SideAsk, domain.SideBid} {
		current := indexByID(cur.Offers(side))
		for _, p := range prev.Offers(side) {
			if !p.Live() {
				continue
			}
			ev, ok := compare(p, current, side, detectedAt)
			if !ok {
				continue
			}
			ev.ExecutedCounterAmount = counterAmount(side, ev.ExecutedAmount, p.Price, scale)
			events = append(events, ev)
		}
	}
	return events
}

func compare(p domain.Offer, current map[uint64]domain.Offer, side domain.Side, at time.Time) (domain.ExecutionEvent, bool) {
	ev := domain.ExecutionEvent{
		ID:         uuid.New(),
		Side:       side,
		OfferID:    p.ID,
		Price:      p.Price,
		DetectedAt: at,
	}
	c, present := current[p.ID]
	switch {
	case !present:
		ev.ExecutedAmount = new(big.Int).Set(p.Gives)
		ev.FillKind = domain.FillFull
	case gives(c).Cmp(p.Gives) < 0:
		ev.ExecutedAmount = new(big.Int).Sub(p.Gives, gives(c))
		ev.FillKind = domain.FillPartial
	default:
		return domain.ExecutionEvent{}, false
	}
	return ev, true
}

// counterAmount converts the executed amount into the other token's smallest
// unit using the pre-fill price. scale is 10^(quoteDecimals-baseDecimals).
func counterAmount(side domain.Side, executed *big.Int, price decimal.NullDecimal, scale decimal.Decimal) decimal.NullDecimal {
	if !price.Valid || price.Decimal.Sign() <= 0 {
		return decimal.NullDecimal{}
	}
	amount := decimal.NewFromBigInt(executed, 0)
	rawPrice := price.Decimal.Mul(scale)
	if side == domain.SideAsk {
		return decimal.NewNullDecimal(amount.Mul(rawPrice))
	}
	if rawPrice.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount.DivRound(rawPrice, counterPrecision))
}

func counterScale(m domain.Market) decimal.Decimal {
	if !m.Base.DecimalsKnown || !m.Quote.DecimalsKnown {
		return decimal.NewFromInt(1)
	}
	return decimal.New(1, m.Quote.Decimals-m.Base.Decimals)
}

func indexByID(offers []domain.Offer) map[uint64]domain.Offer {
	m := make(map[uint64]domain.Offer, len(offers))
	for _, o := range offers {
		if _, dup := m[o.ID]; !dup {
			m[o.ID] = o
		}
	}
	return m
}

func gives(o domain.Offer) *big.Int {
	if o.Gives == nil {
		return new(big.Int)
	}
	return o.Gives
}
