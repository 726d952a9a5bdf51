// Package audit implements the layered trading rule engine.
//
// A Mode (flash, slug, revert) bundles an ordered list of rules. Each rule
// carries zero or more trend, deviation, oscillation and lower sub-rules
// that are evaluated against a symbol's candle histories and slope series.
// Rules flagged Evaluation are informational: they are still evaluated and
// traced, but their verdict never gates a trading decision.
package audit

import "fmt"

// Trend is the expected direction of a TrendRule.
type Trend int

const (
	// TrendUpward expects an upward-opening slope sequence.
	TrendUpward Trend = iota

	// TrendDownward expects a downward-opening slope sequence.
	TrendDownward
)

// String implements fmt.Stringer for trace output.
func (t Trend) String() string {
	if t == TrendDownward {
		return "downward"
	}
	return "upward"
}

// ParseTrend converts the configured direction name.
func ParseTrend(s string) (Trend, error) {
	switch s {
	case "upward", "up":
		return TrendUpward, nil
	case "downward", "down":
		return TrendDownward, nil
	default:
		return TrendUpward, fmt.Errorf("unknown trend %q", s)
	}
}

// Comparator is a configured integer comparison. Comparator semantics are
// rule parameters, not fixed by the engine.
type Comparator string

// Supported comparators.
const (
	CmpGE Comparator = ">="
	CmpGT Comparator = ">"
	CmpLE Comparator = "<="
	CmpLT Comparator = "<"
	CmpEQ Comparator = "=="
)

// ParseComparator validates a configured comparator token. An empty token
// defaults to ">=".
func ParseComparator(s string) (Comparator, error) {
	switch Comparator(s) {
	case "":
		return CmpGE, nil
	case CmpGE, CmpGT, CmpLE, CmpLT, CmpEQ:
		return Comparator(s), nil
	default:
		return "", fmt.Errorf("unknown comparator %q", s)
	}
}

// Compare applies the comparator to (actual, expected).
func (c Comparator) Compare(actual, expected int) bool {
	switch c {
	case CmpGT:
		return actual > expected
	case CmpLE:
		return actual <= expected
	case CmpLT:
		return actual < expected
	case CmpEQ:
		return actual == expected
	default:
		return actual >= expected
	}
}

// TrendRule expects a trend shape over the window [From, To) seconds back
// from the decision point, with comparator thresholds on the bucket counts
// each side of the reversal.
type TrendRule struct {
	From        int // window start offset in seconds, 0 = the decision point
	To          int // window end offset in seconds, exclusive
	Trend       Trend
	Up          int // expected magnitude on the upward side
	Down        int // expected magnitude on the downward side
	UpCompare   Comparator
	DownCompare Comparator
}

// DeviationRule tests how far the current price sits above the window
// minimum: it passes when (price - min) / min <= Threshold.
type DeviationRule struct {
	From      int
	To        int
	Threshold float64
}

// OscillationRule tests the (max - min) / max amplitude inside the window:
// it passes when the amplitude is strictly below Threshold.
type OscillationRule struct {
	From      int
	To        int
	Threshold float64
}

// LowerRule tests whether the minimum over [From, To) is still the low:
// it passes when the minimum of the narrower recent window [0, CompareTo)
// has not undercut it.
type LowerRule struct {
	From      int
	To        int
	CompareTo int // recent window end offset in seconds
}

// Rule is one ordered entry of a mode's rule list.
type Rule struct {
	// Symbols optionally restricts the rule to specific symbols. Empty
	// means the rule applies to every symbol.
	Symbols []string

	// Evaluation marks the rule informational: traced, never enforcing.
	Evaluation bool

	Trends       []TrendRule
	Deviations   []DeviationRule
	Oscillations []OscillationRule
	Lowers       []LowerRule
}

// AppliesTo reports whether the rule covers the symbol.
func (r *Rule) AppliesTo(symbol string) bool {
	if len(r.Symbols) == 0 {
		return true
	}
	for _, s := range r.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Mode is a named rule bundle.
type Mode struct {
	Name           string
	LossMarginRate float64
	Rules          []Rule
}

// ExceedsLossMargin reports whether current has fallen below the entry
// price by more than the mode's loss margin rate.
func (m *Mode) ExceedsLossMargin(entry, current float64) bool {
	if entry <= 0 {
		return false
	}
	return (entry-current)/entry > m.LossMarginRate
}
