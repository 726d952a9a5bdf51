package ledger

import (
	"github.com/nanashi07/sminer-sub000/internal/audit"
	"github.com/nanashi07/sminer-sub000/internal/model"
)

// ProfitReport is one evaluated profit summary.
type ProfitReport struct {
	Formula    string  // the exact expression that was evaluated
	Value      float64 // aggregate profit/loss
	Legs       int     // number of order legs in the expression
	Constraint string  // hedge pair key for per-pair lines, empty on the aggregate
}

// Recorder persists engine output for later analysis.
type Recorder interface {
	RecordCandle(c *model.Candle) error
	RecordVerdict(v *audit.Verdict) error
	RecordOrder(o *model.Order) error
	RecordProfit(r *ProfitReport) error
	Close() error
}

// NoopRecorder discards everything. Used in tests and when no database
// path is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordCandle(*model.Candle) error   { return nil }
func (NoopRecorder) RecordVerdict(*audit.Verdict) error { return nil }
func (NoopRecorder) RecordOrder(*model.Order) error     { return nil }
func (NoopRecorder) RecordProfit(*ProfitReport) error   { return nil }
func (NoopRecorder) Close() error                       { return nil }
