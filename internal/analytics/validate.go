package analytics

import (
	"fmt"
	"time"

	"orderflow/internal/book"
)

// DefaultStaleThreshold flags books that have not been refreshed recently.
const DefaultStaleThreshold = 10 * time.Second

// Validation is the outcome of structural checks over one book. Issues
// make the book invalid; warnings flag suspect but usable data. Neither
// interrupts the pipeline.
type Validation struct {
	IsValid  bool     `json:"is_valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
	Metrics  Quote    `json:"metrics"`
}

// Validate runs structural checks against the book. A crossed book or a
// missing side map is an issue; wide spreads, one-sided books and stale
// data are warnings.
func Validate(b *book.OrderBook, now time.Time) Validation {
	var v Validation

	if b == nil {
		v.Issues = append(v.Issues, "order book is nil")
		return v
	}
	if b.Bids == nil {
		v.Issues = append(v.Issues, "bids map is missing")
	}
	if b.Asks == nil {
		v.Issues = append(v.Issues, "asks map is missing")
	}
	if len(v.Issues) > 0 {
		return v
	}

	v.Metrics = BestPrices(b)

	bestBid := b.BestBid()
	bestAsk := b.BestAsk()
	if bestBid > 0 && bestAsk > 0 && bestBid >= bestAsk {
		v.Issues = append(v.Issues, fmt.Sprintf("crossed book: best bid %.8g >= best ask %.8g", bestBid, bestAsk))
	}

	if v.Metrics.SpreadPercent > 10 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("wide spread: %.2f%%", v.Metrics.SpreadPercent))
	}
	if len(b.Bids) == 0 {
		v.Warnings = append(v.Warnings, "bid side is empty")
	}
	if len(b.Asks) == 0 {
		v.Warnings = append(v.Warnings, "ask side is empty")
	}
	if b.Stale(now, DefaultStaleThreshold) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("stale book: last update %s ago", now.Sub(b.LastUpdate).Truncate(time.Millisecond)))
	}

	v.IsValid = len(v.Issues) == 0
	return v
}
