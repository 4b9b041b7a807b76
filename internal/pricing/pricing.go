// Package pricing converts on-chain ticks into exact decimal prices.
//
// A tick encodes the ratio 1.0001^tick between the inbound and outbound token
// of an offer, in raw token units. Asks give base and take quote, so the ask
// tick is already quote per base; bids give quote and take base, so the bid
// tick is inverted before the decimal shift to human units.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

const (
	// MaxTick and MinTick bound the ticks Mangrove accepts.
	MaxTick int64 = 887272
	MinTick int64 = -887272

	// DefaultPrecision is the number of fractional digits kept while raising
	// the tick base to a power.
	DefaultPrecision int32 = 40
)

var tickBase = decimal.RequireFromString("1.0001")

// Convention carries the market metadata the tick conversion needs.
type Convention struct {
	TickSpacing   uint64
	BaseDecimals  int32
	QuoteDecimals int32
	DecimalsKnown bool
	Precision     int32
}

// ConventionFor derives the conversion convention of a market.
func ConventionFor(m domain.Market) Convention {
	return Convention{
		TickSpacing:   m.TickSpacing,
		BaseDecimals:  m.Base.Decimals,
		QuoteDecimals: m.Quote.Decimals,
		DecimalsKnown: m.Base.DecimalsKnown && m.Quote.DecimalsKnown,
		Precision:     DefaultPrecision,
	}
}

// Usable reports whether tick conversion can run at all.
func (c Convention) Usable() bool {
	return c.TickSpacing > 0 && c.DecimalsKnown
}

// TickToPrice converts a tick into a quote-per-base price in human units.
func TickToPrice(tick int64, side domain.Side, conv Convention) (decimal.Decimal, error) {
	if !conv.Usable() {
		return decimal.Decimal{}, domain.ErrNoTickConvention
	}
	if tick < MinTick || tick > MaxTick {
		return decimal.Decimal{}, fmt.Errorf("%w: %d", domain.ErrTickOutOfRange, tick)
	}
	prec := conv.Precision
	if prec <= 0 {
		prec = DefaultPrecision
	}

	exp := tick
	if side == domain.SideBid {
		exp = -tick
	}
	ratio := ratioAt(exp, prec)
	return ratio.Shift(conv.BaseDecimals - conv.QuoteDecimals), nil
}

// ratioAt returns 1.0001^exp. Negative exponents are computed as the
// reciprocal of the positive power so ask(t) and bid(-t) agree exactly.
func ratioAt(exp int64, prec int32) decimal.Decimal {
	if exp == 0 {
		return decimal.NewFromInt(1)
	}
	neg := exp < 0
	if neg {
		exp = -exp
	}
	pow := powInt(tickBase, exp, prec)
	if !neg {
		return pow
	}
	intDigits := int32(len(pow.Truncate(0).String()))
	return decimal.NewFromInt(1).DivRound(pow, prec+intDigits)
}

// powInt raises b to a non-negative integer power by squaring, rounding every
// intermediate product to prec fractional digits.
func powInt(b decimal.Decimal, exp int64, prec int32) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(b).Round(prec)
		}
		exp >>= 1
		if exp > 0 {
			b = b.Mul(b).Round(prec)
		}
	}
	return result
}

// Result is the outcome of pricing one offer.
type Result struct {
	Price    decimal.NullDecimal
	Degraded bool
	// Err records why the primary conversion failed, even when the fallback
	// produced a price.
	Err error
}

// Calculator prices offers of one market.
type Calculator struct {
	conv Convention
}

// NewCalculator creates a Calculator for the given convention.
func NewCalculator(conv Convention) *Calculator {
	return &Calculator{conv: conv}
}

// Convention returns the convention the calculator was built with.
func (c *Calculator) Convention() Convention {
	return c.conv
}

// Price converts tick to quote per base for side. When the tick path is
// unavailable it falls back to the optional float price and marks the result
// degraded. With neither, the returned price is invalid.
func (c *Calculator) Price(tick int64, side domain.Side, fallback *float64) Result {
	p, err := TickToPrice(tick, side, c.conv)
	if err == nil {
		return Result{Price: decimal.NewNullDecimal(p)}
	}
	res := Result{Err: &domain.PriceConversionError{Side: side, Tick: tick, Err: err}}
	if fallback != nil {
		f := *fallback
		if !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0 {
			res.Price = decimal.NewNullDecimal(decimal.NewFromFloat(f))
			res.Degraded = true
		}
	}
	return res
}
