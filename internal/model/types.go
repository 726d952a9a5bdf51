// Package model defines the core data types of the tick audit engine.
//
// This package contains the structures shared by the rebalancer, the rule
// engine and the reporting path: raw market ticks, aggregated candles,
// time-unit definitions, trade decision contexts and order records.
// Prices inside the hot path are plain floats; the feed layer is
// responsible for parsing upstream decimal strings precisely before
// narrowing.
package model

import (
	"time"

	"github.com/google/uuid"
)

// QuoteKind categorizes the upstream quote message that produced a tick.
type QuoteKind int

const (
	// QuoteTrade is a regular trade execution quote.
	QuoteTrade QuoteKind = iota

	// QuoteIndex is an index / derived price quote.
	QuoteIndex

	// QuoteHalt marks a trading-halt notice carrying the last price.
	QuoteHalt
)

// MarketPhase identifies the market session a tick was observed in.
type MarketPhase int

const (
	// PhasePreMarket covers the pre-open session.
	PhasePreMarket MarketPhase = iota

	// PhaseRegular covers the regular trading session.
	PhaseRegular

	// PhasePostMarket covers the after-hours session.
	PhasePostMarket

	// PhaseExtended covers extended/overnight trading.
	PhaseExtended
)

// String returns the short session label used in trace output.
func (p MarketPhase) String() string {
	switch p {
	case PhasePreMarket:
		return "pre"
	case PhaseRegular:
		return "regular"
	case PhasePostMarket:
		return "post"
	case PhaseExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// Tick is one timestamped price observation for a symbol.
//
// Ticks are immutable once produced. Time is epoch milliseconds as
// delivered by the upstream gateway; per symbol it is monotonic, across
// symbols it is not. DayVolume is the cumulative volume for the trading
// day, so bucket volume is always computed as a delta between two ticks.
type Tick struct {
	Symbol    string      // symbol identifier (e.g. "TQQQ")
	Price     float32     // observed price
	Time      int64       // event time, epoch milliseconds
	Kind      QuoteKind   // upstream quote category
	Phase     MarketPhase // market session phase
	DayVolume int64       // cumulative day volume at this tick
	Change    float32     // price change reported by the gateway
}

// TradeInfo is the decision context for one symbol at one tick event.
//
// Slopes carries, per time unit, the recent per-bucket regression slopes
// ordered oldest to newest. The map is keyed by the typed TimeUnit value;
// textual window keys from configuration are resolved once at load time.
type TradeInfo struct {
	Symbol    string
	MessageID uuid.UUID
	Time      int64   // epoch milliseconds of the triggering tick
	Price     float32 // current price at the decision point
	Slopes    map[TimeUnit][]float64
}

// OrderStatus is the lifecycle state of an order leg.
type OrderStatus int

const (
	// OrderOpen is a live position leg.
	OrderOpen OrderStatus = iota

	// OrderCleared is a leg that has been closed out.
	OrderCleared
)

// AuditState records why an order leg was cleared.
type AuditState int

const (
	// AuditNone means the leg has not been audited into a clearing.
	AuditNone AuditState = iota

	// AuditLossCleared means the leg was cleared by the loss-margin rule.
	AuditLossCleared

	// AuditProfitCleared means the leg was cleared in profit.
	AuditProfitCleared
)

// Order is one open position leg. Two legs sharing a ConstraintID form a
// hedge pair and are reported jointly. Orders are created by the execution
// path and consumed read-only by this engine.
type Order struct {
	ID           uuid.UUID
	Symbol       string
	EntryPrice   float64
	Volume       int64 // negative volume marks a short leg
	ConstraintID string
	Status       OrderStatus
	Audit        AuditState
	CreatedAt    time.Time
}

// SlopeTrend is the rebound detector output for one slope sequence.
type SlopeTrend struct {
	Upward    bool // true when the sequence opens non-downward
	ReboundAt int  // index of the single reversal bucket, -1 when none
	UpCount   int  // buckets counted on the upward side
	DownCount int  // buckets counted on the downward side
}
