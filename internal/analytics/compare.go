package analytics

import (
	"fmt"
	"sort"

	"orderflow/internal/book"
)

// VenueBook tags one book with the exchange it came from.
type VenueBook struct {
	Exchange string
	Book     *book.OrderBook
}

// Opportunity is a cross-venue price gap: buy on BuyExchange at its ask,
// sell on SellExchange at its bid.
type Opportunity struct {
	BuyExchange   string  `json:"buy_exchange"`
	SellExchange  string  `json:"sell_exchange"`
	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	Profit        float64 `json:"profit"`
	ProfitPercent float64 `json:"profit_percent"`
}

// ComparisonSummary aggregates the quotes across the compared venues.
type ComparisonSummary struct {
	AverageSpread   float64 `json:"average_spread"`
	AverageMidPrice float64 `json:"average_mid_price"`
	MinBestBid      float64 `json:"min_best_bid"`
	MaxBestBid      float64 `json:"max_best_bid"`
	MinBestAsk      float64 `json:"min_best_ask"`
	MaxBestAsk      float64 `json:"max_best_ask"`
}

// Comparison is the cross-venue view over two or more books.
type Comparison struct {
	Opportunities []Opportunity     `json:"opportunities"`
	BestVenue     string            `json:"best_venue"`
	Summary       ComparisonSummary `json:"summary"`
}

// Compare computes pairwise arbitrage opportunities across venues, both
// directions for every pair, sorted by descending profit percent. It also
// scores each venue's efficiency and aggregates quote statistics.
func Compare(books []VenueBook) (Comparison, error) {
	var cmp Comparison
	if len(books) < 2 {
		return cmp, fmt.Errorf("compare requires at least 2 books, got %d", len(books))
	}

	var (
		bestEfficiency float64
		quoted         int
	)

	for i, vb := range books {
		quote := BestPrices(vb.Book)
		if quote.MidPrice > 0 {
			quoted++
			cmp.Summary.AverageSpread += quote.Spread
			cmp.Summary.AverageMidPrice += quote.MidPrice
			if cmp.Summary.MinBestBid == 0 || quote.BestBid < cmp.Summary.MinBestBid {
				cmp.Summary.MinBestBid = quote.BestBid
			}
			if quote.BestBid > cmp.Summary.MaxBestBid {
				cmp.Summary.MaxBestBid = quote.BestBid
			}
			if cmp.Summary.MinBestAsk == 0 || quote.BestAsk < cmp.Summary.MinBestAsk {
				cmp.Summary.MinBestAsk = quote.BestAsk
			}
			if quote.BestAsk > cmp.Summary.MaxBestAsk {
				cmp.Summary.MaxBestAsk = quote.BestAsk
			}
		}

		if q := QualityMetrics(vb.Book); cmp.BestVenue == "" || q.Efficiency > bestEfficiency {
			cmp.BestVenue = vb.Exchange
			bestEfficiency = q.Efficiency
		}

		for j, other := range books {
			if i == j {
				continue
			}
			if opp, ok := arbitrage(vb, other); ok {
				cmp.Opportunities = append(cmp.Opportunities, opp)
			}
		}
	}

	if quoted > 0 {
		cmp.Summary.AverageSpread /= float64(quoted)
		cmp.Summary.AverageMidPrice /= float64(quoted)
	}

	sort.SliceStable(cmp.Opportunities, func(a, b int) bool {
		return cmp.Opportunities[a].ProfitPercent > cmp.Opportunities[b].ProfitPercent
	})
	return cmp, nil
}

// arbitrage checks whether buying on x and selling on y is profitable.
func arbitrage(x, y VenueBook) (Opportunity, bool) {
	if x.Book == nil || y.Book == nil {
		return Opportunity{}, false
	}
	buyAt := x.Book.BestAsk()
	sellAt := y.Book.BestBid()
	if buyAt <= 0 || sellAt <= 0 || buyAt >= sellAt {
		return Opportunity{}, false
	}
	profit := sellAt - buyAt
	return Opportunity{
		BuyExchange:   x.Exchange,
		SellExchange:  y.Exchange,
		BuyPrice:      buyAt,
		SellPrice:     sellAt,
		Profit:        profit,
		ProfitPercent: profit / buyAt * 100,
	}, true
}
