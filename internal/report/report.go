// Package report formats engine output into durable trace lines.
//
// The engine produces content; the destination stays a collaborator. The
// default sink writes structured lines through zerolog, which the process
// routes to its configured output.
package report

import (
	"github.com/rs/zerolog"

	"github.com/nanashi07/sminer-sub000/internal/audit"
	"github.com/nanashi07/sminer-sub000/internal/ledger"
	"github.com/nanashi07/sminer-sub000/internal/model"
)

// Sink receives formatted engine output.
type Sink interface {
	// Verdict reports one rule evaluation outcome.
	Verdict(v *audit.Verdict)

	// Rebound reports a slope-trend classification for a symbol window.
	Rebound(symbol string, unit model.TimeUnit, t model.SlopeTrend)

	// Profit reports an evaluated profit summary.
	Profit(r *ledger.ProfitReport)
}

// LogSink writes trace lines through a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink on the given logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Verdict(v *audit.Verdict) {
	evt := s.logger.Info()
	if v.Err != nil {
		evt = s.logger.Warn().Err(v.Err)
	}
	evt.Str("mode", v.Mode).
		Int("rule", v.RuleIndex).
		Str("symbol", v.Symbol).
		Bool("evaluation", v.Evaluation).
		Bool("skipped", v.Skipped).
		Bool("passed", v.Passed).
		Bool("matched", v.Matched).
		Str("detail", v.Detail).
		Msg("rule verdict")
}

func (s *LogSink) Rebound(symbol string, unit model.TimeUnit, t model.SlopeTrend) {
	s.logger.Info().
		Str("symbol", symbol).
		Str("unit", unit.Name).
		Bool("upward", t.Upward).
		Int("reboundAt", t.ReboundAt).
		Int("up", t.UpCount).
		Int("down", t.DownCount).
		Msg("rebound classification")
}

func (s *LogSink) Profit(r *ledger.ProfitReport) {
	evt := s.logger.Info().
		Str("formula", r.Formula).
		Float64("value", r.Value).
		Int("legs", r.Legs)
	if r.Constraint != "" {
		evt = evt.Str("constraint", r.Constraint)
	}
	evt.Msg("profit report")
}
