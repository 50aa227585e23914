package analytics

import (
	"math"

	"orderflow/internal/book"
)

// Side selects which half of the book a simulated market order consumes.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Quote carries the top-of-book prices derived from one snapshot.
type Quote struct {
	BestBid       float64 `json:"best_bid"`
	BestAsk       float64 `json:"best_ask"`
	Spread        float64 `json:"spread"`
	MidPrice      float64 `json:"mid_price"`
	SpreadPercent float64 `json:"spread_percent"`
}

// BestPrices computes top-of-book metrics. The result is all zero when
// either side of the book is empty.
func BestPrices(b *book.OrderBook) Quote {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return Quote{}
	}

	bid := b.BestBid()
	ask := b.BestAsk()
	spread := ask - bid
	mid := (bid + ask) / 2

	q := Quote{
		BestBid:  bid,
		BestAsk:  ask,
		Spread:   spread,
		MidPrice: mid,
	}
	if mid > 0 {
		q.SpreadPercent = spread / mid * 100
	}
	return q
}

// DepthLevel is one aggregated price level with running volume.
type DepthLevel struct {
	Price      float64 `json:"price"`
	Quantity   float64 `json:"quantity"`
	Cumulative float64 `json:"cumulative"`
}

// DepthReport summarizes resting volume near the market.
type DepthReport struct {
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	BidVolume float64      `json:"bid_volume"`
	AskVolume float64      `json:"ask_volume"`
	Imbalance float64      `json:"imbalance"`
}

// Depth takes up to levels price levels per side, ordered toward the
// market, and computes cumulative volume plus the bid/ask imbalance in
// [-1, 1]. Imbalance is 0 when both sides are empty.
func Depth(b *book.OrderBook, levels int) DepthReport {
	var report DepthReport
	if b == nil || levels <= 0 {
		return report
	}

	report.Bids, report.BidVolume = takeLevels(b.SortedBids(), levels)
	report.Asks, report.AskVolume = takeLevels(b.SortedAsks(), levels)

	if total := report.BidVolume + report.AskVolume; total > 0 {
		report.Imbalance = (report.BidVolume - report.AskVolume) / total
	}
	return report
}

func takeLevels(side []book.Level, levels int) ([]DepthLevel, float64) {
	if levels > len(side) {
		levels = len(side)
	}
	out := make([]DepthLevel, 0, levels)
	var cumulative float64
	for _, l := range side[:levels] {
		cumulative += l.Quantity
		out = append(out, DepthLevel{Price: l.Price, Quantity: l.Quantity, Cumulative: cumulative})
	}
	return out, cumulative
}

// FillReport is the outcome of simulating a market order against the
// resting side of the book.
type FillReport struct {
	FilledVolume    float64 `json:"filled_volume"`
	RemainingVolume float64 `json:"remaining_volume"`
	VWAP            float64 `json:"vwap"`
	TotalCost       float64 `json:"total_cost"`
	PriceImpact     float64 `json:"price_impact"`
}

// VWAP greedily consumes price levels on the side opposite a market order
// of the given direction (buying walks asks upward, selling walks bids
// downward) until volume is filled or the side is exhausted.
func VWAP(b *book.OrderBook, volume float64, side Side) FillReport {
	var report FillReport
	if volume > 0 && !math.IsNaN(volume) && !math.IsInf(volume, 0) {
		report.RemainingVolume = volume
	}
	if b == nil || report.RemainingVolume == 0 {
		return report
	}

	var levels []book.Level
	if side == SideBuy {
		levels = b.SortedAsks()
	} else {
		levels = b.SortedBids()
	}
	if len(levels) == 0 {
		return report
	}

	reference := levels[0].Price
	remaining := volume
	var cost float64

	for _, l := range levels {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, l.Quantity)
		cost += take * l.Price
		remaining -= take
	}

	filled := volume - remaining
	report.FilledVolume = filled
	report.RemainingVolume = remaining
	report.TotalCost = cost
	if filled > 0 {
		report.VWAP = cost / filled
		if reference > 0 {
			report.PriceImpact = (report.VWAP - reference) / reference * 100
		}
	}
	return report
}

// SlippageReport extends a fill simulation with slippage against the
// pre-fill best price.
type SlippageReport struct {
	FillReport
	Slippage        float64 `json:"slippage"`
	SlippagePercent float64 `json:"slippage_percent"`
	FullyFilled     bool    `json:"fully_filled"`
}

// Slippage reports the deviation of the achieved fill price from the best
// price on the consumed side, and whether orderSize could be filled
// completely.
func Slippage(b *book.OrderBook, orderSize float64, side Side) SlippageReport {
	fill := VWAP(b, orderSize, side)
	report := SlippageReport{
		FillReport:  fill,
		FullyFilled: orderSize > 0 && fill.RemainingVolume == 0,
	}
	if fill.FilledVolume > 0 {
		report.Slippage = math.Abs(fill.VWAP - referencePrice(b, side))
		report.SlippagePercent = math.Abs(fill.PriceImpact)
	}
	return report
}

func referencePrice(b *book.OrderBook, side Side) float64 {
	if side == SideBuy {
		return b.BestAsk()
	}
	return b.BestBid()
}

// SizingPoint is one explored candidate on the size/slippage curve.
type SizingPoint struct {
	Size            float64 `json:"size"`
	VWAP            float64 `json:"vwap"`
	SlippagePercent float64 `json:"slippage_percent"`
}

// SizingReport holds the largest order size whose slippage stays within
// the requested bound, plus the explored curve.
type SizingReport struct {
	OptimalSize float64       `json:"optimal_size"`
	Curve       []SizingPoint `json:"curve"`
}

// maxSizingSteps bounds the candidate search on pathologically deep books.
const maxSizingSteps = 1000

// OptimalSizing grows a candidate order size by a fixed step, derived from
// the smallest visible level with a floor of 0.01, while the book can
// still fill it completely within maxSlippagePct. The search stops as
// soon as the book cannot fill the candidate.
func OptimalSizing(b *book.OrderBook, maxSlippagePct float64, side Side) SizingReport {
	var report SizingReport
	if b == nil || maxSlippagePct < 0 {
		return report
	}

	var levels []book.Level
	if side == SideBuy {
		levels = b.SortedAsks()
	} else {
		levels = b.SortedBids()
	}
	if len(levels) == 0 {
		return report
	}

	step := levels[0].Quantity
	for _, l := range levels {
		if l.Quantity < step {
			step = l.Quantity
		}
	}
	if step < 0.01 {
		step = 0.01
	}

	for i := 1; i <= maxSizingSteps; i++ {
		candidate := step * float64(i)
		fill := Slippage(b, candidate, side)
		if !fill.FullyFilled {
			break
		}
		report.Curve = append(report.Curve, SizingPoint{
			Size:            candidate,
			VWAP:            fill.VWAP,
			SlippagePercent: fill.SlippagePercent,
		})
		if fill.SlippagePercent > maxSlippagePct {
			break
		}
		report.OptimalSize = candidate
	}
	return report
}

// Quality scores the structural health of one book.
type Quality struct {
	SpreadBps  float64 `json:"spread_bps"`
	Liquidity  float64 `json:"liquidity"`
	Efficiency float64 `json:"efficiency"`
	Stability  float64 `json:"stability"`
}

// QualityMetrics derives spread (in basis points), near-market liquidity,
// an efficiency score and an imbalance-based stability score from the top
// twenty levels.
func QualityMetrics(b *book.OrderBook) Quality {
	var q Quality
	quote := BestPrices(b)
	if quote.MidPrice <= 0 {
		return q
	}

	depth := Depth(b, 20)

	q.SpreadBps = quote.Spread / quote.MidPrice * 10000
	q.Liquidity = (depth.BidVolume + depth.AskVolume) / quote.MidPrice
	if q.Liquidity > 0 && q.SpreadBps > 0 {
		q.Efficiency = q.Liquidity / q.SpreadBps
	}
	q.Stability = 1 - math.Abs(depth.Imbalance)
	return q
}

// VolumeReport sums resting volume within a percentage band of the best
// prices.
type VolumeReport struct {
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
	Range     float64 `json:"range_percent"`
}

// VolumeStats sums bid volume within pctRange percent below the best bid
// and ask volume within pctRange percent above the best ask.
func VolumeStats(b *book.OrderBook, pctRange float64) VolumeReport {
	report := VolumeReport{Range: pctRange}
	if b == nil || pctRange < 0 {
		return report
	}

	if bestBid := b.BestBid(); bestBid > 0 {
		floor := bestBid * (1 - pctRange/100)
		for price, qty := range b.Bids {
			if price >= floor {
				report.BidVolume += qty
			}
		}
	}
	if bestAsk := b.BestAsk(); bestAsk > 0 {
		ceil := bestAsk * (1 + pctRange/100)
		for price, qty := range b.Asks {
			if price <= ceil {
				report.AskVolume += qty
			}
		}
	}
	return report
}
