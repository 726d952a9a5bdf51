// Package ledger holds the order ledger snapshot and durable recording.
//
// The engine consumes orders read-only: legs are created by the external
// execution path, surface here for profit reporting, and at most get
// their audit state marked when the loss-margin check fires. Durable
// history (candles, verdicts, profit reports) goes to the Recorder, whose
// sqlite implementation lives in this package.
package ledger

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// Ledger is an in-memory snapshot of order legs.
type Ledger struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*model.Order
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{orders: make(map[uuid.UUID]*model.Order)}
}

// Put inserts or replaces an order leg.
func (l *Ledger) Put(order *model.Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *order
	l.orders[order.ID] = &cp
}

// Get returns a copy of the order, or nil when unknown.
func (l *Ledger) Get(id uuid.UUID) *model.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// OpenOrders returns copies of all open legs ordered by creation time.
func (l *Ledger) OpenOrders() []*model.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Order, 0, len(l.orders))
	for _, o := range l.orders {
		if o.Status != model.OrderOpen {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ConstraintPairs groups open legs by constraint id for joint reporting.
// Unpaired legs (empty constraint id) are returned under their order id.
func (l *Ledger) ConstraintPairs() map[string][]*model.Order {
	pairs := make(map[string][]*model.Order)
	for _, o := range l.OpenOrders() {
		key := o.ConstraintID
		if key == "" {
			key = o.ID.String()
		}
		pairs[key] = append(pairs[key], o)
	}
	return pairs
}

// MarkCleared transitions a leg to cleared with the given audit state.
// Unknown ids are ignored.
func (l *Ledger) MarkCleared(id uuid.UUID, state model.AuditState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.orders[id]; ok {
		o.Status = model.OrderCleared
		o.Audit = state
	}
}
