package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderflow/internal/book"
	"orderflow/internal/restclient"
)

func TestPollerAppliesSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/api/orderbook/")
		if r.URL.Query().Get("depth") != "20" {
			t.Errorf("depth query = %q, want 20", r.URL.Query().Get("depth"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Symbol":     symbol,
			"Bids":       map[string]string{"100.5": "2"},
			"Asks":       map[string]string{"101.0": "1.5"},
			"LastUpdate": time.Now().UnixMilli(),
		})
	}))
	defer server.Close()

	client := restclient.New(restclient.Config{BaseURL: server.URL}, quietLogger())
	store := book.NewStore()
	registry := NewRegistry(&stubSender{}, quietLogger())
	registry.Add("BTC", "ETH")

	p := NewPoller(client, store, registry, time.Second, 20, quietLogger())
	p.PollOnce(context.Background())

	for _, symbol := range []string{"BTC", "ETH"} {
		b, ok := store.Get(symbol)
		if !ok {
			t.Fatalf("store missing %s after poll", symbol)
		}
		if best := b.BestBid(); best != 100.5 {
			t.Errorf("%s best bid = %v, want 100.5", symbol, best)
		}
	}
}

func TestPollerSkipsFailedSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"Symbol":     "BTC",
			"Bids":       map[string]string{"100": "1"},
			"Asks":       map[string]string{"101": "1"},
			"LastUpdate": time.Now().UnixMilli(),
		})
	}))
	defer server.Close()

	client := restclient.New(restclient.Config{BaseURL: server.URL}, quietLogger())
	store := book.NewStore()
	registry := NewRegistry(&stubSender{}, quietLogger())
	registry.Add("BAD", "BTC")

	p := NewPoller(client, store, registry, time.Second, 0, quietLogger())
	p.PollOnce(context.Background())

	if _, ok := store.Get("BAD"); ok {
		t.Error("failed fetch must not populate the store")
	}
	if _, ok := store.Get("BTC"); !ok {
		t.Error("healthy symbol must survive a sibling's failure")
	}
}
