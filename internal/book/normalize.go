package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// WireSnapshot is the order book shape both transports deliver. Bids and
// Asks arrive either as a price->quantity map or as an array of
// {Price, Quantity} pairs; both are kept raw until normalization.
type WireSnapshot struct {
	Symbol     string          `json:"Symbol"`
	Bids       json.RawMessage `json:"Bids"`
	Asks       json.RawMessage `json:"Asks"`
	LastUpdate int64           `json:"LastUpdate"`
	Sources    []string        `json:"Sources"`
	Version    string          `json:"Version"`
}

// wireNumber decodes a JSON value that may be a quoted decimal string or a
// bare number. Malformed values are tolerated during decoding and rejected
// when levels are built.
type wireNumber struct {
	dec decimal.Decimal
	ok  bool
}

func (n *wireNumber) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	d, err := decimal.NewFromString(s)
	if err != nil {
		n.ok = false
		return nil
	}
	n.dec = d
	n.ok = true
	return nil
}

// wireLevel decodes one array-form price level, accepting both the
// {Price, Quantity} object shape and the [price, quantity] pair shape.
type wireLevel struct {
	Price    wireNumber
	Quantity wireNumber
}

func (l *wireLevel) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pair []wireNumber
		if err := json.Unmarshal(trimmed, &pair); err != nil {
			return err
		}
		if len(pair) >= 2 {
			l.Price = pair[0]
			l.Quantity = pair[1]
		}
		return nil
	}
	var obj struct {
		Price    wireNumber `json:"Price"`
		Quantity wireNumber `json:"Quantity"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	l.Price = obj.Price
	l.Quantity = obj.Quantity
	return nil
}

// Normalize converts a wire snapshot into the canonical OrderBook form.
// Entries with non-numeric, non-finite or non-positive prices, or
// non-positive quantities, are dropped rather than stored.
func Normalize(snap WireSnapshot, receivedAt time.Time) (*OrderBook, error) {
	if snap.Symbol == "" {
		return nil, fmt.Errorf("order book update missing symbol")
	}

	bids, err := normalizeSide(snap.Bids)
	if err != nil {
		return nil, fmt.Errorf("normalize bids for %s: %w", snap.Symbol, err)
	}
	asks, err := normalizeSide(snap.Asks)
	if err != nil {
		return nil, fmt.Errorf("normalize asks for %s: %w", snap.Symbol, err)
	}

	lastUpdate := receivedAt
	if snap.LastUpdate > 0 {
		lastUpdate = time.UnixMilli(snap.LastUpdate)
	}

	return &OrderBook{
		Symbol:     snap.Symbol,
		Bids:       bids,
		Asks:       asks,
		LastUpdate: lastUpdate,
		Sources:    append([]string(nil), snap.Sources...),
		Version:    snap.Version,
	}, nil
}

func normalizeSide(raw json.RawMessage) (map[float64]float64, error) {
	out := make(map[float64]float64)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	switch trimmed[0] {
	case '{':
		var m map[string]wireNumber
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		for key, qty := range m {
			price, err := decimal.NewFromString(key)
			if err != nil || !qty.ok {
				continue
			}
			addLevel(out, price, qty.dec)
		}
	case '[':
		var levels []wireLevel
		if err := json.Unmarshal(trimmed, &levels); err != nil {
			return nil, err
		}
		for _, l := range levels {
			if !l.Price.ok || !l.Quantity.ok {
				continue
			}
			addLevel(out, l.Price.dec, l.Quantity.dec)
		}
	default:
		return nil, fmt.Errorf("unsupported side encoding: %s", previewJSON(trimmed))
	}

	return out, nil
}

func addLevel(out map[float64]float64, price, qty decimal.Decimal) {
	p := price.InexactFloat64()
	q := qty.InexactFloat64()
	if math.IsNaN(p) || math.IsInf(p, 0) || math.IsNaN(q) || math.IsInf(q, 0) {
		return
	}
	if p <= 0 || q <= 0 {
		return
	}
	out[p] = q
}

func previewJSON(data []byte) string {
	const max = 32
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
