package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

func order(symbol string, constraintID string, createdAt time.Time) *model.Order {
	return &model.Order{
		ID:           uuid.New(),
		Symbol:       symbol,
		EntryPrice:   100,
		Volume:       10,
		ConstraintID: constraintID,
		Status:       model.OrderOpen,
		CreatedAt:    createdAt,
	}
}

func Test_Ledger_PutGetReturnsCopies(t *testing.T) {
	l := NewLedger()
	o := order("TQQQ", "", time.Now())
	l.Put(o)

	// mutating the caller's struct must not leak into the ledger
	o.EntryPrice = 999

	got := l.Get(o.ID)
	require.NotNil(t, got)
	assert.Equal(t, float64(100), got.EntryPrice)

	// nor the other way around
	got.Volume = 0
	assert.Equal(t, int64(10), l.Get(o.ID).Volume)
}

func Test_Ledger_GetUnknown(t *testing.T) {
	l := NewLedger()
	assert.Nil(t, l.Get(uuid.New()))
}

func Test_Ledger_OpenOrdersSortedByCreation(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	newer := order("TQQQ", "", base.Add(time.Minute))
	older := order("SQQQ", "", base)
	cleared := order("QQQ", "", base.Add(-time.Minute))
	cleared.Status = model.OrderCleared
	l.Put(newer)
	l.Put(older)
	l.Put(cleared)

	open := l.OpenOrders()
	require.Len(t, open, 2)
	assert.Equal(t, older.ID, open[0].ID)
	assert.Equal(t, newer.ID, open[1].ID)
}

func Test_Ledger_ConstraintPairs(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	long := order("TQQQ", "hedge-1", base)
	short := order("SQQQ", "hedge-1", base.Add(time.Second))
	lone := order("QQQ", "", base)
	l.Put(long)
	l.Put(short)
	l.Put(lone)

	pairs := l.ConstraintPairs()
	require.Len(t, pairs, 2)
	require.Len(t, pairs["hedge-1"], 2)
	assert.Equal(t, long.ID, pairs["hedge-1"][0].ID)
	assert.Equal(t, short.ID, pairs["hedge-1"][1].ID)
	require.Len(t, pairs[lone.ID.String()], 1)
}

func Test_Ledger_MarkCleared(t *testing.T) {
	l := NewLedger()
	o := order("TQQQ", "", time.Now())
	l.Put(o)

	l.MarkCleared(o.ID, model.AuditLossCleared)

	got := l.Get(o.ID)
	assert.Equal(t, model.OrderCleared, got.Status)
	assert.Equal(t, model.AuditLossCleared, got.Audit)
	assert.Empty(t, l.OpenOrders())

	// unknown ids are a no-op
	l.MarkCleared(uuid.New(), model.AuditLossCleared)
}
