package book

import (
	"sync"
	"time"
)

// Store holds the current order book per symbol. The feed is snapshot
// style, so Apply is a last-writer-wins replace.
type Store struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

func NewStore() *Store {
	return &Store{books: make(map[string]*OrderBook)}
}

// Apply replaces the stored book for the update's symbol wholesale. The
// store takes ownership of the value.
func (s *Store) Apply(update *OrderBook) {
	if update == nil || update.Symbol == "" {
		return
	}
	s.mu.Lock()
	s.books[update.Symbol] = update
	s.mu.Unlock()
}

// Get returns a copy of the current book for symbol. The second return
// value reports whether any data is held for the symbol.
func (s *Store) Get(symbol string) (*OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// Remove drops the entry for symbol, used when its subscription is
// withdrawn.
func (s *Store) Remove(symbol string) {
	s.mu.Lock()
	delete(s.books, symbol)
	s.mu.Unlock()
}

// Symbols lists the symbols currently held.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.books))
	for symbol := range s.books {
		out = append(out, symbol)
	}
	return out
}

// Snapshot returns copies of every held book keyed by symbol.
func (s *Store) Snapshot() map[string]*OrderBook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*OrderBook, len(s.books))
	for symbol, b := range s.books {
		out[symbol] = b.Clone()
	}
	return out
}

// StaleSymbols lists symbols whose books are older than threshold. Stale
// books stay in the store; callers decide how to react.
func (s *Store) StaleSymbols(now time.Time, threshold time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for symbol, b := range s.books {
		if b.Stale(now, threshold) {
			out = append(out, symbol)
		}
	}
	return out
}
