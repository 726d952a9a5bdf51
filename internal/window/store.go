// Package window implements the shared tick and candle window store.
//
// The store keeps, per symbol, a newest-first buffer of recent raw ticks
// and, per symbol and time unit, the aggregated candle history. All state
// is guarded by independent per-symbol read-write locks that are only ever
// acquired through scoped callbacks, so a lock can never leak past an
// early return. Symbols are fully independent: no cross-symbol lock
// ordering exists, and none is required.
package window

import (
	"sync"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// DefaultTickCapacity bounds the per-symbol tick buffer. Three buckets of
// the coarsest catalog unit at a few ticks per second fit comfortably.
const DefaultTickCapacity = 4096

// symbolState is all mutable state owned by one symbol.
type symbolState struct {
	mu        sync.RWMutex
	ticks     []*model.Tick // newest-first
	histories map[model.TimeUnit]*model.History
}

// Store is the process-wide tick window and candle history store.
type Store struct {
	mu       sync.RWMutex // guards the symbols map only
	symbols  map[string]*symbolState
	capacity int
}

// NewStore creates a store with the given per-symbol tick buffer capacity.
// A non-positive capacity falls back to DefaultTickCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultTickCapacity
	}
	return &Store{
		symbols:  make(map[string]*symbolState),
		capacity: capacity,
	}
}

// state returns the symbol's state, creating it on first use.
func (s *Store) state(symbol string) *symbolState {
	s.mu.RLock()
	st, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{histories: make(map[model.TimeUnit]*model.History)}
	s.symbols[symbol] = st
	return st
}

// Push prepends a tick to its symbol's buffer, trimming the oldest entries
// beyond capacity. This is the single producer path per symbol.
func (s *Store) Push(tick *model.Tick) {
	st := s.state(tick.Symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.ticks = append(st.ticks, nil)
	copy(st.ticks[1:], st.ticks)
	st.ticks[0] = tick
	if len(st.ticks) > s.capacity {
		st.ticks = st.ticks[:s.capacity]
	}
}

// WithRead runs fn under the symbol's read lock, passing the newest-first
// tick buffer and the full unit-to-history map. fn must not retain either
// past its return.
func (s *Store) WithRead(symbol string, fn func(ticks []*model.Tick, histories map[model.TimeUnit]*model.History) error) error {
	st := s.state(symbol)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return fn(st.ticks, st.histories)
}

// WithWrite runs fn under the symbol's write lock. The history for the
// given unit is created on first use. fn mutates the history in place and
// must not block on I/O while holding the lock.
func (s *Store) WithWrite(symbol string, unit model.TimeUnit, fn func(ticks []*model.Tick, history *model.History) error) error {
	st := s.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	h, ok := st.histories[unit]
	if !ok {
		h = &model.History{Symbol: symbol, Unit: unit}
		st.histories[unit] = h
	}
	return fn(st.ticks, h)
}

// Symbols returns the symbols currently known to the store.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}
