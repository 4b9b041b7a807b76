// Package venue samples execution prices from an external liquidity venue,
// sized to the ladder's own resting quantities.
package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

// pricePrecision is the number of fractional digits kept in venue prices.
const pricePrecision int32 = 30

// DefaultMarginalAmount is the reference base amount, in human units, used to
// probe the marginal price.
var DefaultMarginalAmount = decimal.RequireFromString("0.000001")

// Config describes the venue pool the sampler queries.
type Config struct {
	Label          string
	Pool           common.Address
	Tokens         []common.Address
	MarginalAmount decimal.Decimal
	CallTimeout    time.Duration
}

// Sampler turns raw exact-in quotes into quote-per-base prices.
type Sampler struct {
	quoter   domain.VenueQuoter
	market   domain.Market
	cfg      Config
	disabled error
	logger   *slog.Logger
}

// NewSampler creates a Sampler. When the pool does not hold both market
// tokens, or token decimals are unknown, the sampler is permanently
// unavailable and every price it returns is invalid.
func NewSampler(quoter domain.VenueQuoter, market domain.Market, cfg Config, logger *slog.Logger) *Sampler {
	if cfg.MarginalAmount.Sign() <= 0 {
		cfg.MarginalAmount = DefaultMarginalAmount
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	s := &Sampler{
		quoter: quoter,
		market: market,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "venue_sampler"), slog.String("venue", cfg.Label)),
	}
	switch {
	case quoter == nil:
		s.disabled = errors.New("no venue configured")
	case !market.Base.DecimalsKnown || !market.Quote.DecimalsKnown:
		s.disabled = fmt.Errorf("%w: token decimals unknown", domain.ErrUnavailable)
	case len(cfg.Tokens) > 0 && !(contains(cfg.Tokens, market.Base.Address) && contains(cfg.Tokens, market.Quote.Address)):
		s.disabled = fmt.Errorf("%w: pool does not hold %s and %s", domain.ErrPairMismatch, market.BaseSymbol(), market.QuoteSymbol())
	}
	if s.disabled != nil {
		s.logger.Warn("venue unavailable", slog.String("reason", s.disabled.Error()))
	}
	return s
}

// Label returns the venue name used in reports.
func (s *Sampler) Label() string {
	return s.cfg.Label
}

// Err returns why the venue is permanently unavailable, or nil.
func (s *Sampler) Err() error {
	return s.disabled
}

// Marginal probes the venue with a tiny base amount.
func (s *Sampler) Marginal(ctx context.Context) decimal.NullDecimal {
	if s.disabled != nil {
		return decimal.NullDecimal{}
	}
	baseIn := s.cfg.MarginalAmount.Shift(s.market.Base.Decimals).Truncate(0).BigInt()
	if baseIn.Sign() <= 0 {
		return decimal.NullDecimal{}
	}
	out, ok := s.quote(ctx, "marginal", s.market.Base.Address, s.market.Quote.Address, baseIn)
	if !ok {
		return decimal.NullDecimal{}
	}
	return s.quotePerBase(out, baseIn)
}

// Sized quotes the venue at the ladder's own best sizes. askGives is the best
// ask's base amount: selling it on the venue yields the venue bid. bidGives is
// the best bid's quote amount: selling it on the venue yields the venue ask.
// Either may be nil, in which case the matching price is invalid.
func (s *Sampler) Sized(ctx context.Context, askGives, bidGives *big.Int) (venueBid, venueAsk decimal.NullDecimal) {
	if s.disabled != nil {
		return decimal.NullDecimal{}, decimal.NullDecimal{}
	}
	if askGives != nil && askGives.Sign() > 0 {
		if quoteOut, ok := s.quote(ctx, "bid", s.market.Base.Address, s.market.Quote.Address, askGives); ok {
			venueBid = s.quotePerBase(quoteOut, askGives)
		}
	}
	if bidGives != nil && bidGives.Sign() > 0 {
		if baseOut, ok := s.quote(ctx, "ask", s.market.Quote.Address, s.market.Base.Address, bidGives); ok {
			venueAsk = s.quotePerBase(bidGives, baseOut)
		}
	}
	return venueBid, venueAsk
}

// quote runs one bounded venue call. A failure, timeout, or zero output is
// reported as unavailable.
func (s *Sampler) quote(ctx context.Context, call string, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, bool) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	out, err := s.quoter.QuoteExactIn(callCtx, s.cfg.Pool, tokenIn, tokenOut, amountIn)
	if err == nil && (out == nil || out.Sign() <= 0) {
		err = fmt.Errorf("%w: zero output", domain.ErrUnavailable)
	}
	if err != nil {
		qerr := &domain.VenueQueryError{Venue: s.cfg.Label, Call: call, Err: err}
		s.logger.WarnContext(ctx, "venue quote failed",
			slog.String("call", call),
			slog.String("amount_in", amountIn.String()),
			slog.String("error", qerr.Error()),
		)
		return nil, false
	}
	return out, true
}

// quotePerBase divides human quote by human base.
func (s *Sampler) quotePerBase(quoteRaw, baseRaw *big.Int) decimal.NullDecimal {
	if quoteRaw == nil || baseRaw == nil || baseRaw.Sign() <= 0 {
		return decimal.NullDecimal{}
	}
	q := decimal.NewFromBigInt(quoteRaw, -s.market.Quote.Decimals)
	b := decimal.NewFromBigInt(baseRaw, -s.market.Base.Decimals)
	return decimal.NewNullDecimal(q.DivRound(b, pricePrecision))
}

func contains(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
