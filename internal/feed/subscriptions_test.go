package feed

import (
	"reflect"
	"sync"
	"testing"
)

type stubSender struct {
	mu   sync.Mutex
	open bool
	sent []ControlMessage
}

func (s *stubSender) Send(v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := v.(ControlMessage); ok {
		s.sent = append(s.sent, msg)
	}
	return !s.open, nil
}

func (s *stubSender) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubSender) messages() []ControlMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ControlMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func TestRegistryAddSubscribesWhenOpen(t *testing.T) {
	conn := &stubSender{open: true}
	r := NewRegistry(conn, quietLogger())

	r.Add("btc", "ETH")

	if !r.Contains("BTC") || !r.Contains("eth") {
		t.Fatal("added symbols missing from desired set")
	}
	msgs := conn.messages()
	if len(msgs) != 2 {
		t.Fatalf("want 2 subscribe messages, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if msg.Type != "subscribe" {
			t.Errorf("message type = %q, want subscribe", msg.Type)
		}
	}
	if msgs[0].Symbol != "BTC" || msgs[1].Symbol != "ETH" {
		t.Errorf("symbols = %q, %q; want BTC, ETH", msgs[0].Symbol, msgs[1].Symbol)
	}
}

func TestRegistryAddWhileClosedDefersToResync(t *testing.T) {
	conn := &stubSender{open: false}
	r := NewRegistry(conn, quietLogger())

	r.Add("sol", "btc")
	if got := len(conn.messages()); got != 0 {
		t.Fatalf("closed connection must not receive control messages, got %d", got)
	}

	conn.mu.Lock()
	conn.open = true
	conn.mu.Unlock()
	r.Resync()

	msgs := conn.messages()
	if len(msgs) != 2 {
		t.Fatalf("resync sent %d messages, want 2", len(msgs))
	}
	// resync replays in sorted order
	if msgs[0].Symbol != "BTC" || msgs[1].Symbol != "SOL" {
		t.Errorf("resync order = %q, %q; want BTC, SOL", msgs[0].Symbol, msgs[1].Symbol)
	}
}

func TestRegistryRemove(t *testing.T) {
	conn := &stubSender{open: true}
	r := NewRegistry(conn, quietLogger())

	r.Add("BTC")
	r.Remove("btc")

	if r.Contains("BTC") {
		t.Fatal("removed symbol still in desired set")
	}
	msgs := conn.messages()
	if len(msgs) != 2 || msgs[1].Type != "unsubscribe" || msgs[1].Symbol != "BTC" {
		t.Fatalf("want trailing unsubscribe for BTC, got %+v", msgs)
	}

	// removing an absent symbol must stay silent
	r.Remove("DOGE")
	if got := len(conn.messages()); got != 2 {
		t.Fatalf("remove of unknown symbol sent a message, total %d", got)
	}
}

func TestRegistryRemoveHook(t *testing.T) {
	r := NewRegistry(&stubSender{}, quietLogger())

	var dropped []string
	r.OnRemoved(func(symbol string) { dropped = append(dropped, symbol) })

	r.Add("BTC", "ETH")
	r.Remove("btc", "DOGE")

	if !reflect.DeepEqual(dropped, []string{"BTC"}) {
		t.Fatalf("removal hook fired for %v, want [BTC]", dropped)
	}
}

func TestRegistrySymbolsSorted(t *testing.T) {
	r := NewRegistry(&stubSender{}, quietLogger())
	r.Add("sol", "btc", "eth", "btc")

	want := []string{"BTC", "ETH", "SOL"}
	if got := r.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Symbols() = %v, want %v", got, want)
	}
}
