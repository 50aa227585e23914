package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"orderflow/internal/book"
)

// SymbolSummary is one row of the market summary endpoint.
type SymbolSummary struct {
	Symbol   string  `json:"symbol"`
	BestBid  float64 `json:"best_bid"`
	BestAsk  float64 `json:"best_ask"`
	MidPrice float64 `json:"mid_price"`
	Spread   float64 `json:"spread"`
}

// MarketSummary is the response of GET /api/market/summary.
type MarketSummary struct {
	Symbols   []SymbolSummary `json:"symbols"`
	Timestamp int64           `json:"timestamp"`
}

// Health is the response of GET /api/health.
type Health struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ExchangeStatus describes one upstream venue connection.
type ExchangeStatus struct {
	Connected  bool  `json:"connected"`
	LastUpdate int64 `json:"last_update"`
}

// Candle is one row of the history endpoint.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Orderbook fetches a snapshot for symbol, limited to depth levels per
// side when depth > 0.
func (c *Client) Orderbook(ctx context.Context, symbol string, depth int) (book.WireSnapshot, error) {
	var snap book.WireSnapshot

	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}

	body, err := c.Request(ctx, http.MethodGet, "/api/orderbook/"+strings.ToUpper(symbol), query, nil)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("decode orderbook response: %w", err)
	}
	return snap, nil
}

func (c *Client) MarketSummary(ctx context.Context) (MarketSummary, error) {
	var summary MarketSummary
	body, err := c.Request(ctx, http.MethodGet, "/api/market/summary", nil, nil)
	if err != nil {
		return summary, err
	}
	if err := json.Unmarshal(body, &summary); err != nil {
		return summary, fmt.Errorf("decode market summary: %w", err)
	}
	return summary, nil
}

func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	body, err := c.Request(ctx, http.MethodGet, "/api/symbols", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode symbols response: %w", err)
	}
	return out.Symbols, nil
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	body, err := c.Request(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return health, err
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return health, fmt.Errorf("decode health response: %w", err)
	}
	return health, nil
}

func (c *Client) ExchangesStatus(ctx context.Context) (map[string]ExchangeStatus, error) {
	body, err := c.Request(ctx, http.MethodGet, "/api/exchanges/status", nil, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ExchangeStatus)
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode exchanges status: %w", err)
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	query := url.Values{}
	if interval != "" {
		query.Set("interval", interval)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.Request(ctx, http.MethodGet, "/api/history/"+strings.ToUpper(symbol), query, nil)
	if err != nil {
		return nil, err
	}
	var out []Candle
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode history response: %w", err)
	}
	return out, nil
}

// Subscribe registers a server-side subscription for symbol.
func (c *Client) Subscribe(ctx context.Context, symbol string) error {
	payload, err := json.Marshal(map[string]string{"symbol": strings.ToUpper(symbol)})
	if err != nil {
		return err
	}
	_, err = c.Request(ctx, http.MethodPost, "/api/subscribe", nil, payload)
	return err
}

// Unsubscribe withdraws a server-side subscription for symbol.
func (c *Client) Unsubscribe(ctx context.Context, symbol string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/api/subscribe/"+strings.ToUpper(symbol), nil, nil)
	return err
}

func (c *Client) Subscriptions(ctx context.Context) ([]string, error) {
	body, err := c.Request(ctx, http.MethodGet, "/api/subscriptions", nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptions response: %w", err)
	}
	return out.Symbols, nil
}
