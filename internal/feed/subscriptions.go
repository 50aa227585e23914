package feed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"orderflow/logger"
)

// sender is the slice of the connection manager the registry needs.
type sender interface {
	Send(v interface{}) (queued bool, err error)
	IsOpen() bool
}

// Registry tracks the desired set of symbol subscriptions. The set is the
// single source of truth for what should be subscribed, independent of
// transient connection state; it is replayed on every Open transition.
type Registry struct {
	mu        sync.Mutex
	symbols   map[string]struct{}
	conn      sender
	log       *logger.Entry
	onRemoved func(symbol string)
}

func NewRegistry(conn sender, log *logger.Log) *Registry {
	return &Registry{
		symbols: make(map[string]struct{}),
		conn:    conn,
		log:     log.WithComponent("subscriptions"),
	}
}

// OnRemoved registers a hook invoked after a symbol leaves the desired
// set, typically to drop its book from the store.
func (r *Registry) OnRemoved(fn func(symbol string)) {
	r.mu.Lock()
	r.onRemoved = fn
	r.mu.Unlock()
}

// Add records the symbols in the desired set. When the connection is open
// a subscribe message goes out immediately; otherwise the next resync
// realizes the change.
func (r *Registry) Add(symbols ...string) {
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		if symbol == "" {
			continue
		}
		r.mu.Lock()
		r.symbols[symbol] = struct{}{}
		r.mu.Unlock()

		if r.conn.IsOpen() {
			r.sendControl("subscribe", symbol)
		}
	}
}

// Remove drops the symbols from the desired set, unsubscribing
// immediately when the connection is open.
func (r *Registry) Remove(symbols ...string) {
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		r.mu.Lock()
		_, present := r.symbols[symbol]
		delete(r.symbols, symbol)
		onRemoved := r.onRemoved
		r.mu.Unlock()

		if !present {
			continue
		}
		if r.conn.IsOpen() {
			r.sendControl("unsubscribe", symbol)
		}
		if onRemoved != nil {
			onRemoved(symbol)
		}
	}
}

// Resync replays a subscribe message for every entry in the desired set.
// Subscribes are idempotent server-side, so duplicates are harmless.
func (r *Registry) Resync() {
	for _, symbol := range r.Symbols() {
		r.sendControl("subscribe", symbol)
	}
}

// Contains reports desired-set membership for an upper-cased symbol.
func (r *Registry) Contains(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.symbols[strings.ToUpper(symbol)]
	return ok
}

// Symbols returns the desired set in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.symbols))
	for symbol := range r.symbols {
		out = append(out, symbol)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}

func (r *Registry) sendControl(msgType, symbol string) {
	msg := ControlMessage{
		Type:      msgType,
		Symbol:    symbol,
		Timestamp: time.Now().UnixMilli(),
	}
	if _, err := r.conn.Send(msg); err != nil {
		r.log.WithError(err).WithFields(logger.Fields{"type": msgType, "symbol": symbol}).Warn("failed to send control message")
	}
}
