package pricing

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

func sameDecimals(d int32) Convention {
	return Convention{TickSpacing: 1, BaseDecimals: d, QuoteDecimals: d, DecimalsKnown: true}
}

func TestTickToPrice_Identity(t *testing.T) {
	for _, side := range []domain.Side{domain.SideAsk, domain.SideBid} {
		p, err := TickToPrice(0, side, sameDecimals(18))
		require.NoError(t, err)
		assert.True(t, p.Equal(decimal.NewFromInt(1)), side.String())
	}
}

func TestTickToPrice_SmallTicksAreExact(t *testing.T) {
	p, err := TickToPrice(2, domain.SideAsk, sameDecimals(6))
	require.NoError(t, err)
	assert.Equal(t, "1.00020001", p.String())

	p, err = TickToPrice(-2, domain.SideBid, sameDecimals(6))
	require.NoError(t, err)
	assert.Equal(t, "1.00020001", p.String())
}

func TestTickToPrice_Magnitude(t *testing.T) {
	p, err := TickToPrice(10000, domain.SideAsk, sameDecimals(18))
	require.NoError(t, err)
	want := decimal.RequireFromString("2.718145926825224864037664674913146536")
	assert.True(t, p.Sub(want).Abs().LessThan(decimal.New(1, -30)), p.String())

	p, err = TickToPrice(10000, domain.SideBid, sameDecimals(18))
	require.NoError(t, err)
	want = decimal.RequireFromString("0.367897834377123709894001772389935308")
	assert.True(t, p.Sub(want).Abs().LessThan(decimal.New(1, -30)), p.String())
}

func TestTickToPrice_DecimalShift(t *testing.T) {
	// 18-decimal base against a 6-decimal quote: raw ratio 1 is 10^12 quote per base.
	conv := Convention{TickSpacing: 1, BaseDecimals: 18, QuoteDecimals: 6, DecimalsKnown: true}
	p, err := TickToPrice(0, domain.SideAsk, conv)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.New(1, 12)))

	conv = Convention{TickSpacing: 1, BaseDecimals: 6, QuoteDecimals: 18, DecimalsKnown: true}
	p, err = TickToPrice(0, domain.SideBid, conv)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.New(1, -12)))
}

func TestTickToPrice_Extremes(t *testing.T) {
	p, err := TickToPrice(MaxTick, domain.SideAsk, sameDecimals(18))
	require.NoError(t, err)
	assert.True(t, p.GreaterThan(decimal.New(34, 37)))

	p, err = TickToPrice(MaxTick, domain.SideBid, sameDecimals(18))
	require.NoError(t, err)
	assert.True(t, p.IsPositive(), "tiny bid price must not round to zero")
	want := decimal.RequireFromString("2.938956807585584838874754864968834e-39")
	assert.True(t, p.Sub(want).Abs().LessThan(decimal.New(1, -70)), p.String())
}

func TestTickToPrice_Errors(t *testing.T) {
	_, err := TickToPrice(MaxTick+1, domain.SideAsk, sameDecimals(18))
	assert.ErrorIs(t, err, domain.ErrTickOutOfRange)

	_, err = TickToPrice(MinTick-1, domain.SideBid, sameDecimals(18))
	assert.ErrorIs(t, err, domain.ErrTickOutOfRange)

	noSpacing := sameDecimals(18)
	noSpacing.TickSpacing = 0
	_, err = TickToPrice(1, domain.SideAsk, noSpacing)
	assert.ErrorIs(t, err, domain.ErrNoTickConvention)

	unknown := sameDecimals(18)
	unknown.DecimalsKnown = false
	_, err = TickToPrice(1, domain.SideAsk, unknown)
	assert.ErrorIs(t, err, domain.ErrNoTickConvention)
}

func TestCalculator_Fallback(t *testing.T) {
	calc := NewCalculator(Convention{})
	f := 0.25

	res := calc.Price(100, domain.SideAsk, &f)
	require.True(t, res.Price.Valid)
	assert.True(t, res.Degraded)
	assert.True(t, res.Price.Decimal.Equal(decimal.RequireFromString("0.25")))
	assert.ErrorIs(t, res.Err, domain.ErrNoTickConvention)

	res = calc.Price(100, domain.SideAsk, nil)
	assert.False(t, res.Price.Valid)
	var pce *domain.PriceConversionError
	assert.ErrorAs(t, res.Err, &pce)

	for _, bad := range []float64{math.NaN(), math.Inf(1), 0, -1} {
		b := bad
		res = calc.Price(100, domain.SideBid, &b)
		assert.False(t, res.Price.Valid, "fallback %v must be rejected", bad)
	}
}

func TestCalculator_PrimaryWinsOverFallback(t *testing.T) {
	calc := NewCalculator(sameDecimals(18))
	f := 42.0
	res := calc.Price(0, domain.SideAsk, &f)
	require.True(t, res.Price.Valid)
	assert.False(t, res.Degraded)
	assert.NoError(t, res.Err)
	assert.True(t, res.Price.Decimal.Equal(decimal.NewFromInt(1)))
}

func TestTickToPrice_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	conv := Convention{TickSpacing: 1, BaseDecimals: 18, QuoteDecimals: 6, DecimalsKnown: true}

	properties.Property("ask at t equals bid at -t", prop.ForAll(
		func(tick int64) bool {
			a, errA := TickToPrice(tick, domain.SideAsk, conv)
			b, errB := TickToPrice(-tick, domain.SideBid, conv)
			return errA == nil && errB == nil && a.Equal(b)
		},
		gen.Int64Range(-200000, 200000),
	))

	properties.Property("ask price grows with tick", prop.ForAll(
		func(tick int64) bool {
			lo, _ := TickToPrice(tick, domain.SideAsk, conv)
			hi, _ := TickToPrice(tick+1, domain.SideAsk, conv)
			return hi.GreaterThan(lo)
		},
		gen.Int64Range(-200000, 200000),
	))

	properties.Property("ask and bid at the same tick multiply to the squared shift", prop.ForAll(
		func(tick int64) bool {
			a, _ := TickToPrice(tick, domain.SideAsk, sameDecimals(6))
			b, _ := TickToPrice(tick, domain.SideBid, sameDecimals(6))
			return a.Mul(b).Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.New(1, -25))
		},
		gen.Int64Range(-50000, 50000),
	))

	properties.TestingRun(t)
}
