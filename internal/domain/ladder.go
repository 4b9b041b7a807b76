package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side identifies one half of the ladder. The numeric values match the
// on-chain OfferType enum.
type Side uint8

const (
	SideAsk Side = 0
	SideBid Side = 1
)

func (s Side) String() string {
	switch s {
	case SideAsk:
		return "ask"
	case SideBid:
		return "bid"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// MarshalText renders the side as "ask" or "bid" in JSON payloads.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "ask" or "bid".
func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "ask", "asks":
		*s = SideAsk
	case "bid", "bids":
		*s = SideBid
	default:
		return fmt.Errorf("domain: unknown side %q", string(text))
	}
	return nil
}

// Token is an ERC-20 token as seen by the monitor.
type Token struct {
	Address       common.Address `json:"address"`
	Symbol        string         `json:"symbol"`
	Decimals      int32          `json:"decimals"`
	DecimalsKnown bool           `json:"decimals_known"`
}

// Market is the (base, quote, tickSpacing) triple a ladder trades on.
type Market struct {
	Base        Token  `json:"base"`
	Quote       Token  `json:"quote"`
	TickSpacing uint64 `json:"tick_spacing"`
}

// Pair renders the market as BASE/QUOTE.
func (m Market) Pair() string {
	return m.BaseSymbol() + "/" + m.QuoteSymbol()
}

func (m Market) BaseSymbol() string {
	if m.Base.Symbol == "" {
		return "Base"
	}
	return m.Base.Symbol
}

func (m Market) QuoteSymbol() string {
	if m.Quote.Symbol == "" {
		return "Quote"
	}
	return m.Quote.Symbol
}

// RawOffer is one slot as read from chain, before pricing.
type RawOffer struct {
	ID    uint64
	Tick  int64
	Gives *big.Int
	// FallbackPrice is an optional float price supplied by the reader. It is
	// only consulted when the tick conversion is unavailable.
	FallbackPrice *float64
}

// RawLadder is the unprocessed result of one ladder read.
type RawLadder struct {
	Status       string
	PricePoints  uint64
	Asks         []RawOffer
	Bids         []RawOffer
	ReserveBase  *big.Int
	ReserveQuote *big.Int
}

// Offer is a priced ladder slot. Price is invalid when conversion failed.
type Offer struct {
	ID            uint64              `json:"id"`
	Slot          int                 `json:"slot"`
	Tick          int64               `json:"tick"`
	Gives         *big.Int            `json:"gives"`
	Side          Side                `json:"side"`
	Price         decimal.NullDecimal `json:"price"`
	PriceDegraded bool                `json:"price_degraded,omitempty"`
	GivesBase     bool                `json:"gives_base"`
}

// Live reports whether the offer currently pays out anything.
func (o Offer) Live() bool {
	return o.Gives != nil && o.Gives.Sign() > 0
}

// Snapshot is an immutable point-in-time view of the ladder.
type Snapshot struct {
	Market             Market    `json:"market"`
	Status             string    `json:"status"`
	PricePoints        uint64    `json:"price_points"`
	Asks               []Offer   `json:"asks"`
	Bids               []Offer   `json:"bids"`
	PopulatedAsks      int       `json:"populated_asks"`
	PopulatedBids      int       `json:"populated_bids"`
	TotalBaseInOffers  *big.Int  `json:"total_base_in_offers"`
	TotalQuoteInOffers *big.Int  `json:"total_quote_in_offers"`
	ReserveBase        *big.Int  `json:"reserve_base"`
	ReserveQuote       *big.Int  `json:"reserve_quote"`
	CapturedAt         time.Time `json:"captured_at"`
}

// Offers returns the offers of one side in ladder-slot order.
func (s Snapshot) Offers(side Side) []Offer {
	if side == SideAsk {
		return s.Asks
	}
	return s.Bids
}
