package mangrove

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/platform/evm"
)

const (
	StatusInactive = "inactive"
	StatusEmpty    = "empty"
	StatusActive   = "active"
)

// Reader reads the full state of one Kandel ladder.
type Reader struct {
	caller   evm.Caller
	kandel   evm.Contract
	mangrove evm.Contract
	market   domain.Market
	logger   *slog.Logger
}

var _ domain.LadderReader = (*Reader)(nil)

// NewReader creates a Reader for the ladder at addr, trading on market,
// posted on the Mangrove instance at mgv.
func NewReader(caller evm.Caller, addr, mgv common.Address, market domain.Market, logger *slog.Logger) *Reader {
	return &Reader{
		caller:   caller,
		kandel:   evm.Contract{Address: addr, ABI: kandelABI},
		mangrove: evm.Contract{Address: mgv, ABI: mangroveABI},
		market:   market,
		logger:   logger.With(slog.String("component", "mangrove_reader")),
	}
}

// ReadLadder performs three batched rounds: parameters and reserves, offer ids
// per slot, then the offers themselves. Any failed call fails the whole read
// so that a partial ladder is never mistaken for fills.
func (r *Reader) ReadLadder(ctx context.Context) (domain.RawLadder, error) {
	pricePoints, reserveBase, reserveQuote, err := r.readParams(ctx)
	if err != nil {
		return domain.RawLadder{}, err
	}

	raw := domain.RawLadder{
		PricePoints:  pricePoints,
		ReserveBase:  reserveBase,
		ReserveQuote: reserveQuote,
	}
	if pricePoints == 0 {
		raw.Status = StatusInactive
		return raw, nil
	}

	askIDs, bidIDs, err := r.readOfferIDs(ctx, pricePoints)
	if err != nil {
		return domain.RawLadder{}, err
	}
	if raw.Asks, err = r.readOffers(ctx, domain.SideAsk, askIDs); err != nil {
		return domain.RawLadder{}, err
	}
	if raw.Bids, err = r.readOffers(ctx, domain.SideBid, bidIDs); err != nil {
		return domain.RawLadder{}, err
	}

	raw.Status = StatusEmpty
	if anyLive(raw.Asks) || anyLive(raw.Bids) {
		raw.Status = StatusActive
	}

	r.logger.DebugContext(ctx, "ladder read",
		slog.Uint64("price_points", pricePoints),
		slog.Int("asks", len(raw.Asks)),
		slog.Int("bids", len(raw.Bids)),
		slog.String("status", raw.Status),
	)
	return raw, nil
}

func (r *Reader) readParams(ctx context.Context) (uint64, *big.Int, *big.Int, error) {
	params, err := r.kandel.Pack("params")
	if err != nil {
		return 0, nil, nil, err
	}
	resBase, err := r.kandel.Pack("reserveBalance", uint8(domain.SideAsk))
	if err != nil {
		return 0, nil, nil, err
	}
	resQuote, err := r.kandel.Pack("reserveBalance", uint8(domain.SideBid))
	if err != nil {
		return 0, nil, nil, err
	}

	res, err := r.caller.CallBatch(ctx, []evm.Call{params, resBase, resQuote})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("mangrove: read params: %w", err)
	}
	if err := firstErr(res); err != nil {
		return 0, nil, nil, fmt.Errorf("mangrove: read params: %w", err)
	}

	vals, err := r.kandel.Unpack("params", res[0].Data)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(vals) != 4 {
		return 0, nil, nil, fmt.Errorf("mangrove: params: unexpected result len %d", len(vals))
	}
	pp, ok := vals[3].(uint32)
	if !ok {
		return 0, nil, nil, fmt.Errorf("mangrove: params: unexpected pricePoints type %T", vals[3])
	}

	base, err := evm.Unpack1[*big.Int](r.kandel, "reserveBalance", res[1].Data)
	if err != nil {
		return 0, nil, nil, err
	}
	quote, err := evm.Unpack1[*big.Int](r.kandel, "reserveBalance", res[2].Data)
	if err != nil {
		return 0, nil, nil, err
	}
	return uint64(pp), base, quote, nil
}

// readOfferIDs returns the offer id at every slot of each side, zero where
// the slot was never posted.
func (r *Reader) readOfferIDs(ctx context.Context, pricePoints uint64) (asks, bids []*big.Int, err error) {
	calls := make([]evm.Call, 0, 2*pricePoints)
	for _, side := range []domain.Side{domain.SideAsk, domain.SideBid} {
		for i := uint64(0); i < pricePoints; i++ {
			c, err := r.kandel.Pack("offerIdOfIndex", uint8(side), new(big.Int).SetUint64(i))
			if err != nil {
				return nil, nil, err
			}
			calls = append(calls, c)
		}
	}

	res, err := r.caller.CallBatch(ctx, calls)
	if err != nil {
		return nil, nil, fmt.Errorf("mangrove: read offer ids: %w", err)
	}
	if err := firstErr(res); err != nil {
		return nil, nil, fmt.Errorf("mangrove: read offer ids: %w", err)
	}

	ids := make([]*big.Int, len(res))
	for i, out := range res {
		id, err := evm.Unpack1[*big.Int](r.kandel, "offerIdOfIndex", out.Data)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = id
	}
	return ids[:pricePoints], ids[pricePoints:], nil
}

func (r *Reader) olKey(side domain.Side) OLKey {
	spacing := new(big.Int).SetUint64(r.market.TickSpacing)
	if side == domain.SideAsk {
		return OLKey{Outbound: r.market.Base.Address, Inbound: r.market.Quote.Address, TickSpacing: spacing}
	}
	return OLKey{Outbound: r.market.Quote.Address, Inbound: r.market.Base.Address, TickSpacing: spacing}
}

func (r *Reader) readOffers(ctx context.Context, side domain.Side, ids []*big.Int) ([]domain.RawOffer, error) {
	key := r.olKey(side)
	live := make([]*big.Int, 0, len(ids))
	calls := make([]evm.Call, 0, len(ids))
	for _, id := range ids {
		if id.Sign() == 0 {
			continue
		}
		if !id.IsUint64() {
			return nil, fmt.Errorf("mangrove: %s offer id %s out of range", side, id)
		}
		c, err := r.mangrove.Pack("offers", key, id)
		if err != nil {
			return nil, err
		}
		live = append(live, id)
		calls = append(calls, c)
	}
	if len(calls) == 0 {
		return nil, nil
	}

	res, err := r.caller.CallBatch(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("mangrove: read %s offers: %w", side, err)
	}
	if err := firstErr(res); err != nil {
		return nil, fmt.Errorf("mangrove: read %s offers: %w", side, err)
	}

	offers := make([]domain.RawOffer, len(live))
	for i, out := range res {
		word, err := evm.Unpack1[*big.Int](r.mangrove, "offers", out.Data)
		if err != nil {
			return nil, err
		}
		tick, gives := DecodeOffer(word)
		offers[i] = domain.RawOffer{ID: live[i].Uint64(), Tick: tick, Gives: gives}
	}
	return offers, nil
}

func anyLive(offers []domain.RawOffer) bool {
	for _, o := range offers {
		if o.Gives.Sign() > 0 {
			return true
		}
	}
	return false
}
