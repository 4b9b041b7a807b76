package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FillKind tells whether an offer disappeared or only shrank.
type FillKind string

const (
	FillFull    FillKind = "full"
	FillPartial FillKind = "partial"
)

// ExecutionEvent is a fill inferred from two successive snapshots.
//
// ExecutedAmount is in the smallest unit of the token the offer gives (base
// for asks, quote for bids). ExecutedCounterAmount is in the smallest unit of
// the other token and is invalid when the offer had no usable price.
type ExecutionEvent struct {
	ID                    uuid.UUID           `json:"id"`
	Side                  Side                `json:"side"`
	OfferID               uint64              `json:"offer_id"`
	ExecutedAmount        *big.Int            `json:"executed_amount"`
	ExecutedCounterAmount decimal.NullDecimal `json:"executed_counter_amount"`
	Price                 decimal.NullDecimal `json:"price"`
	FillKind              FillKind            `json:"fill_kind"`
	DetectedAt            time.Time           `json:"detected_at"`
}

// VenueQuote holds the external venue prices, all in quote per base.
type VenueQuote struct {
	SourceLabel        string              `json:"source_label"`
	MarginalPrice      decimal.NullDecimal `json:"marginal_price"`
	BidPriceForBaseQty decimal.NullDecimal `json:"bid_price_for_base_qty"`
	AskPriceForBaseQty decimal.NullDecimal `json:"ask_price_for_base_qty"`
	// Error is set when the venue as a whole could not be queried (for
	// example a token pair mismatch). Individual call failures only leave the
	// matching price invalid.
	Error string `json:"error,omitempty"`
}

// ArbitrageDirection names the profitable leg order, if any.
type ArbitrageDirection string

const (
	DirectionNone               ArbitrageDirection = "none"
	DirectionBuyLadderSellVenue ArbitrageDirection = "buyLadderSellVenue"
	DirectionBuyVenueSellLadder ArbitrageDirection = "buyVenueSellLadder"
)

// ArbitrageSignal is the per-cycle comparison result. The four input prices
// are echoed so the report and sinks can render them.
type ArbitrageSignal struct {
	Direction     ArbitrageDirection  `json:"direction"`
	Spread        decimal.NullDecimal `json:"spread"`
	Indeterminate bool                `json:"indeterminate"`
	LadderBestAsk decimal.NullDecimal `json:"ladder_best_ask"`
	LadderBestBid decimal.NullDecimal `json:"ladder_best_bid"`
	VenueBid      decimal.NullDecimal `json:"venue_bid"`
	VenueAsk      decimal.NullDecimal `json:"venue_ask"`
}

// Fired reports whether a direction was selected.
func (s ArbitrageSignal) Fired() bool {
	return s.Direction == DirectionBuyLadderSellVenue || s.Direction == DirectionBuyVenueSellLadder
}

// CycleOutcome is everything one monitoring cycle produced. Snapshot is nil
// when the ladder read failed.
type CycleOutcome struct {
	CycleID     uuid.UUID        `json:"cycle_id"`
	Ladder      common.Address   `json:"ladder"`
	Chain       string           `json:"chain"`
	Market      Market           `json:"market"`
	Snapshot    *Snapshot        `json:"snapshot,omitempty"`
	FetchError  string           `json:"fetch_error,omitempty"`
	Executions  []ExecutionEvent `json:"executions"`
	Venue       VenueQuote       `json:"venue"`
	Signal      ArbitrageSignal  `json:"signal"`
	ReportTitle string           `json:"report_title"`
	ReportText  string           `json:"report_text"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}
