package report

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
)

const (
	// comparisonDecimals is the fixed precision of comparison and arbitrage
	// lines.
	comparisonDecimals int32 = 8
	// DefaultPriceDecimals caps the precision of displayed prices.
	DefaultPriceDecimals int32 = 10
	// executionPriceDecimals caps the precision of prices in execution lines.
	executionPriceDecimals int32 = 6
)

// FormatAmount renders a raw token amount in human units followed by the
// token symbol. Unknown decimals fall back to the raw integer.
func FormatAmount(raw *big.Int, tok domain.Token, kind string) string {
	if raw == nil {
		raw = new(big.Int)
	}
	if !tok.DecimalsKnown {
		return raw.String() + " (raw " + kind + " units)"
	}
	return decimal.NewFromBigInt(raw, -tok.Decimals).String() + " " + tok.Symbol
}

// DisplayPrice renders a price with at most min(quote decimals, limit)
// fractional digits and trailing zeros trimmed. Unknown quote decimals use
// limit alone.
func DisplayPrice(p decimal.NullDecimal, quote domain.Token, limit int32) string {
	if !p.Valid {
		return "N/A (price format error)"
	}
	places := limit
	if quote.DecimalsKnown && quote.Decimals < places {
		places = quote.Decimals
	}
	if places < 0 {
		places = 0
	}
	return trimZeros(p.Decimal.StringFixed(places))
}

// Fixed renders a price with the fixed comparison precision, or N/A.
func Fixed(p decimal.NullDecimal) string {
	if !p.Valid {
		return "N/A"
	}
	return p.Decimal.StringFixed(comparisonDecimals)
}

// humanCounter converts a counter amount in smallest units to human units.
func humanCounter(v decimal.NullDecimal, tok domain.Token) string {
	if !v.Valid {
		return "N/A"
	}
	if !tok.DecimalsKnown {
		return v.Decimal.Truncate(0).String() + " (raw units)"
	}
	return trimZeros(v.Decimal.Shift(-tok.Decimals).StringFixed(tok.Decimals)) + " " + tok.Symbol
}

func trimZeros(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
