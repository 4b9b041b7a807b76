// Package report renders monitoring cycles as human-readable text. It does no
// I/O and never fails: missing data renders as N/A or "Not available".
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/ladder"
)

const (
	ladderLabel = "Kandel"
	separator   = "------------------------------------"
)

// Input is everything one report needs.
type Input struct {
	Ladder        common.Address
	Chain         string
	Market        domain.Market
	Snapshot      *domain.Snapshot
	FetchError    string
	Executions    []domain.ExecutionEvent
	Venue         domain.VenueQuote
	Signal        domain.ArbitrageSignal
	At            time.Time
	PriceDecimals int32
}

// Report is a rendered cycle.
type Report struct {
	Title      string
	Lines      []string
	Executions []string
}

// Text joins the report lines.
func (r Report) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Build renders the periodic report.
func Build(in Input) Report {
	if in.PriceDecimals <= 0 {
		in.PriceDecimals = DefaultPriceDecimals
	}
	w := &writer{}
	m := in.Market

	w.add("%s Report for %s on chain: %s", ladderLabel, in.Ladder.Hex(), in.Chain)
	w.add("Market: %s", m.Pair())
	w.add("Timestamp: %s", in.At.UTC().Format(time.RFC3339))
	w.addLine(separator)

	if in.Snapshot == nil {
		reason := in.FetchError
		if reason == "" {
			reason = "no data"
		}
		w.add("%s State: unavailable (%s)", ladderLabel, reason)
		w.addLine(separator)
	} else {
		writeLadder(w, in)
	}

	writeVenue(w, in)
	writeInsights(w, in)

	execs := ExecutionLines(in)
	if len(execs) > 0 {
		w.add("Executions since last check: %d", len(execs))
		w.lines = append(w.lines, execs...)
		w.addLine(separator)
	}

	return Report{
		Title:      fmt.Sprintf("%s Monitor Report - %s (%s)", ladderLabel, in.Ladder.Hex(), in.Chain),
		Lines:      w.lines,
		Executions: execs,
	}
}

func writeLadder(w *writer, in Input) {
	s := in.Snapshot
	m := in.Market

	w.add("%s Status: %s", ladderLabel, s.Status)
	w.add("Configured Price Points (per side): %d", s.PricePoints)
	w.addLine(separator)
	w.add("Total Asks in state: %d", len(s.Asks))
	w.add("Total Bids in state: %d", len(s.Bids))
	w.addLine(separator)
	w.add("Populated Asks (gives > 0): %d", s.PopulatedAsks)
	w.add("Populated Bids (gives > 0): %d", s.PopulatedBids)
	w.addLine(separator)

	unit := m.QuoteSymbol() + "/" + m.BaseSymbol()
	if ask, ok := ladder.BestAsk(*s); ok {
		w.add("%s Best Ask Price: %s", ladderLabel, offerPrice(ask, m.Quote, unit, in.PriceDecimals))
		w.add("%s Best Ask Quantity (Base): %s", ladderLabel, FormatAmount(ask.Gives, m.Base, "base"))
	} else {
		w.add("%s Best Ask Price: N/A (%s)", ladderLabel, emptyReason(s.PopulatedAsks, "asks"))
		w.add("%s Best Ask Quantity (Base): N/A", ladderLabel)
	}
	if bid, ok := ladder.BestBid(*s); ok {
		w.add("%s Best Bid Price: %s", ladderLabel, offerPrice(bid, m.Quote, unit, in.PriceDecimals))
		w.add("%s Best Bid Quantity (Quote): %s", ladderLabel, FormatAmount(bid.Gives, m.Quote, "quote"))
	} else {
		w.add("%s Best Bid Price: N/A (%s)", ladderLabel, emptyReason(s.PopulatedBids, "bids"))
		w.add("%s Best Bid Quantity (Quote): N/A", ladderLabel)
	}
	w.addLine(separator)

	w.add("Total Base in Offers: %s", FormatAmount(s.TotalBaseInOffers, m.Base, "base"))
	w.add("Total Quote in Offers: %s", FormatAmount(s.TotalQuoteInOffers, m.Quote, "quote"))
	w.add("Reserve Base : %s", FormatAmount(s.ReserveBase, m.Base, "base"))
	w.add("Reserve Quote : %s", FormatAmount(s.ReserveQuote, m.Quote, "quote"))
	w.addLine(separator)
}

// offerPrice renders an offer's price with its unit, flagging prices that
// came from the fallback path.
func offerPrice(o domain.Offer, quote domain.Token, unit string, limit int32) string {
	if !o.Price.Valid {
		return DisplayPrice(o.Price, quote, limit)
	}
	out := DisplayPrice(o.Price, quote, limit) + " " + unit
	if o.PriceDegraded {
		out += " (degraded)"
	}
	return out
}

func emptyReason(populated int, side string) string {
	if populated == 0 {
		return "No populated " + side
	}
	return "prices unavailable"
}

func writeVenue(w *writer, in Input) {
	v := in.Venue
	m := in.Market
	label := venueLabel(v)

	if v.Error != "" {
		w.add("%s Data Error: %s", label, v.Error)
		w.addLine(separator)
		return
	}
	w.add("%s Information:", label)
	if v.MarginalPrice.Valid {
		w.add("  Marginal Price (%s/%s): %s", m.QuoteSymbol(), m.BaseSymbol(), DisplayPrice(v.MarginalPrice, m.Quote, in.PriceDecimals))
	} else {
		w.add("  Marginal Price: Not available")
	}
	if v.BidPriceForBaseQty.Valid {
		w.add("  %s Bid Price (for %s, in %s): %s", label, m.BaseSymbol(), m.QuoteSymbol(), DisplayPrice(v.BidPriceForBaseQty, m.Quote, in.PriceDecimals))
	} else {
		w.add("  %s Bid Price (for %s): Not available", label, m.BaseSymbol())
	}
	if v.AskPriceForBaseQty.Valid {
		w.add("  %s Ask Price (for %s, in %s): %s", label, m.BaseSymbol(), m.QuoteSymbol(), DisplayPrice(v.AskPriceForBaseQty, m.Quote, in.PriceDecimals))
	} else {
		w.add("  %s Ask Price (for %s): Not available", label, m.BaseSymbol())
	}
	w.addLine(separator)
}

func writeInsights(w *writer, in Input) {
	m := in.Market
	sig := in.Signal
	label := venueLabel(in.Venue)

	w.add("Price Comparison & Arbitrage Insights (%s):", m.Pair())
	w.add("  Buying %s:", m.BaseSymbol())
	w.addLine(comparison(sig.LadderBestAsk, ladderLabel, sig.VenueAsk, label, true))
	w.add("  Selling %s:", m.BaseSymbol())
	w.addLine(comparison(sig.LadderBestBid, ladderLabel, sig.VenueBid, label, false))

	switch {
	case sig.Direction == domain.DirectionBuyLadderSellVenue:
		w.add("    ARBITRAGE: Buy %s on %s (ask: %s) and sell on %s (bid: %s)! Spread: %s",
			m.BaseSymbol(), ladderLabel, Fixed(sig.LadderBestAsk), label, Fixed(sig.VenueBid), Fixed(sig.Spread))
	case sig.Direction == domain.DirectionBuyVenueSellLadder:
		w.add("    ARBITRAGE: Buy %s on %s (ask: %s) and sell on %s (bid: %s)! Spread: %s",
			m.BaseSymbol(), label, Fixed(sig.VenueAsk), ladderLabel, Fixed(sig.LadderBestBid), Fixed(sig.Spread))
	case sig.Indeterminate:
		w.add("    Arbitrage check indeterminate: %s.", missingInputs(sig, label))
	default:
		w.add("    No direct arbitrage opportunity detected between %s best prices and %s exec prices.", ladderLabel, label)
	}
	if sig.Fired() && sig.Indeterminate {
		w.add("    Other direction unchecked: %s.", missingInputs(sig, label))
	}
	w.addLine(separator)
}

// comparison renders one side of the price comparison. preferLower is true
// when buying (a cheaper ask is better).
func comparison(p1 decimal.NullDecimal, name1 string, p2 decimal.NullDecimal, name2 string, preferLower bool) string {
	s1, s2 := Fixed(p1), Fixed(p2)
	switch {
	case p1.Valid && p2.Valid:
		if p1.Decimal.Equal(p2.Decimal) {
			return fmt.Sprintf("    Similar price on %s & %s (%s)", name1, name2, s1)
		}
		first := p1.Decimal.LessThan(p2.Decimal)
		if !preferLower {
			first = p1.Decimal.GreaterThan(p2.Decimal)
		}
		verb := "Cheaper"
		if !preferLower {
			verb = "Better"
		}
		if first {
			return fmt.Sprintf("    %s on %s (%s) vs %s (%s)", verb, name1, s1, name2, s2)
		}
		return fmt.Sprintf("    %s on %s (%s) vs %s (%s)", verb, name2, s2, name1, s1)
	case p1.Valid:
		return fmt.Sprintf("    %s price: %s (%s price N/A)", name1, s1, name2)
	case p2.Valid:
		return fmt.Sprintf("    %s price: %s (%s price N/A)", name2, s2, name1)
	default:
		return fmt.Sprintf("    Prices not available for comparison from %s or %s.", name1, name2)
	}
}

func missingInputs(sig domain.ArbitrageSignal, venue string) string {
	var missing []string
	if !sig.LadderBestAsk.Valid {
		missing = append(missing, ladderLabel+" ask")
	}
	if !sig.VenueBid.Valid {
		missing = append(missing, venue+" bid")
	}
	if !sig.LadderBestBid.Valid {
		missing = append(missing, ladderLabel+" bid")
	}
	if !sig.VenueAsk.Valid {
		missing = append(missing, venue+" ask")
	}
	return "missing " + strings.Join(missing, ", ")
}

// ExecutionLines renders one line per execution event.
func ExecutionLines(in Input) []string {
	m := in.Market
	unit := m.QuoteSymbol() + "/" + m.BaseSymbol()
	lines := make([]string, 0, len(in.Executions))
	for _, ev := range in.Executions {
		price := "N/A"
		if ev.Price.Valid {
			price = DisplayPrice(ev.Price, m.Quote, executionPriceDecimals) + " " + unit
		}
		kind := "(Partially)"
		if ev.FillKind == domain.FillFull {
			kind = "(Fully)"
		}
		if ev.Side == domain.SideAsk {
			lines = append(lines, fmt.Sprintf("  Ask Executed (ID %d): Sold %s at ~%s. Received ~%s. %s",
				ev.OfferID, FormatAmount(ev.ExecutedAmount, m.Base, "base"), price,
				humanCounter(ev.ExecutedCounterAmount, m.Quote), kind))
			continue
		}
		lines = append(lines, fmt.Sprintf("  Bid Executed (ID %d): Bought ~%s at ~%s. Paid %s. %s",
			ev.OfferID, humanCounter(ev.ExecutedCounterAmount, m.Base), price,
			FormatAmount(ev.ExecutedAmount, m.Quote, "quote"), kind))
	}
	return lines
}

// ExecutionAlert renders the standalone execution alert. ok is false when
// there is nothing to report.
func ExecutionAlert(in Input) (title, body string, ok bool) {
	lines := ExecutionLines(in)
	if len(lines) == 0 {
		return "", "", false
	}
	title = fmt.Sprintf("%s Executions Detected - %s (%s) - %s",
		ladderLabel, in.Ladder.Hex(), in.Chain, in.At.UTC().Format(time.RFC3339))
	return title, strings.Join(lines, "\n"), true
}

func venueLabel(v domain.VenueQuote) string {
	if v.SourceLabel == "" {
		return "Venue"
	}
	return v.SourceLabel
}

type writer struct {
	lines []string
}

func (w *writer) add(format string, args ...any) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

// addLine appends text that is already formatted.
func (w *writer) addLine(line string) {
	w.lines = append(w.lines, line)
}
