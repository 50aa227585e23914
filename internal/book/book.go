package book

import (
	"sort"
	"time"
)

// Level is a single price level materialized for querying.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is the canonical per-symbol book state. Each feed update
// replaces the whole book; levels are never merged.
type OrderBook struct {
	Symbol     string              `json:"symbol"`
	Bids       map[float64]float64 `json:"bids"`
	Asks       map[float64]float64 `json:"asks"`
	LastUpdate time.Time           `json:"last_update"`
	Sources    []string            `json:"sources"`
	Version    string              `json:"version"`
}

// SortedBids returns bid levels ordered toward the market, best (highest)
// price first.
func (b *OrderBook) SortedBids() []Level {
	return sortedLevels(b.Bids, func(a, b float64) bool { return a > b })
}

// SortedAsks returns ask levels ordered toward the market, best (lowest)
// price first.
func (b *OrderBook) SortedAsks() []Level {
	return sortedLevels(b.Asks, func(a, b float64) bool { return a < b })
}

func sortedLevels(side map[float64]float64, less func(a, b float64) bool) []Level {
	levels := make([]Level, 0, len(side))
	for price, qty := range side {
		levels = append(levels, Level{Price: price, Quantity: qty})
	}
	sort.Slice(levels, func(i, j int) bool { return less(levels[i].Price, levels[j].Price) })
	return levels
}

// BestBid returns the highest bid price, or 0 when the side is empty.
func (b *OrderBook) BestBid() float64 {
	var best float64
	for price := range b.Bids {
		if price > best {
			best = price
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 when the side is empty.
func (b *OrderBook) BestAsk() float64 {
	var best float64
	for price := range b.Asks {
		if best == 0 || price < best {
			best = price
		}
	}
	return best
}

// Stale reports whether the book has not been refreshed within threshold.
func (b *OrderBook) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(b.LastUpdate) > threshold
}

// Clone returns a deep copy so readers never alias store-owned maps.
func (b *OrderBook) Clone() *OrderBook {
	out := &OrderBook{
		Symbol:     b.Symbol,
		Bids:       make(map[float64]float64, len(b.Bids)),
		Asks:       make(map[float64]float64, len(b.Asks)),
		LastUpdate: b.LastUpdate,
		Version:    b.Version,
	}
	for p, q := range b.Bids {
		out.Bids[p] = q
	}
	for p, q := range b.Asks {
		out.Asks[p] = q
	}
	if len(b.Sources) > 0 {
		out.Sources = append([]string(nil), b.Sources...)
	}
	return out
}
