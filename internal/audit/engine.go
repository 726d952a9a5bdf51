package audit

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/model"
	"github.com/nanashi07/sminer-sub000/internal/trend"
)

// minNormal is the smallest positive normal float64. Prices below it
// (zero, subnormals) are treated as "no data" exactly like NaN and Inf.
const minNormal = 0x1p-1022

var (
	// ErrNoWindow means no fixed catalog unit divides the rule's offsets
	// or the resolved unit has no data for the symbol.
	ErrNoWindow = errors.New("no window covers rule range")

	// ErrNoData means the resolved window holds fewer samples than the
	// rule requests.
	ErrNoData = errors.New("insufficient window data")
)

// HistoryReader is the read-side of the window store the engine consumes.
// One read acquisition spans a whole evaluation call so every sub-rule
// sees the same candle snapshot.
type HistoryReader interface {
	WithRead(symbol string, fn func(ticks []*model.Tick, histories map[model.TimeUnit]*model.History) error) error
}

// Verdict is the outcome of one rule evaluation.
type Verdict struct {
	Mode       string
	RuleIndex  int
	Symbol     string
	Evaluation bool   // rule was informational
	Skipped    bool   // rule's symbol filter excluded this symbol
	Passed     bool   // raw rule result
	Matched    bool   // Passed and enforcing: gates a decision
	Detail     string // human-readable trace of sub-rule outcomes
	Err        error  // per-rule failure (missing window etc.), isolated
}

// Engine evaluates audit modes against a symbol's candle state.
type Engine struct {
	store HistoryReader
}

// NewEngine creates an engine reading candle history from store.
func NewEngine(store HistoryReader) *Engine {
	return &Engine{store: store}
}

// Evaluate runs every rule of the mode against the trade context and
// returns one verdict per rule, in rule order.
//
// The whole evaluation happens under a single read acquisition of the
// symbol's window state, so sub-rules never observe a torn mix of old and
// new candles. A failing rule (missing window, short history) yields a
// false verdict with the error recorded and does not abort its siblings.
func (e *Engine) Evaluate(mode *Mode, info model.TradeInfo) []Verdict {
	verdicts := make([]Verdict, 0, len(mode.Rules))

	err := e.store.WithRead(info.Symbol, func(_ []*model.Tick, histories map[model.TimeUnit]*model.History) error {
		for i := range mode.Rules {
			verdicts = append(verdicts, e.evaluateRule(mode, i, info, histories))
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("mode", mode.Name).Str("symbol", info.Symbol).
			Msg("audit evaluation aborted")
	}
	return verdicts
}

func (e *Engine) evaluateRule(mode *Mode, index int, info model.TradeInfo, histories map[model.TimeUnit]*model.History) Verdict {
	rule := &mode.Rules[index]
	v := Verdict{
		Mode:       mode.Name,
		RuleIndex:  index,
		Symbol:     info.Symbol,
		Evaluation: rule.Evaluation,
	}

	if !rule.AppliesTo(info.Symbol) {
		v.Skipped = true
		v.Detail = "symbol filtered"
		return v
	}

	total := len(rule.Trends) + len(rule.Deviations) + len(rule.Oscillations) + len(rule.Lowers)
	if total == 0 {
		v.Detail = "empty rule"
		return v
	}

	passed := true
	detail := ""
	record := func(ok bool, d string, err error) {
		passed = passed && ok
		if detail != "" {
			detail += "; "
		}
		detail += d
		if err != nil && v.Err == nil {
			v.Err = err
		}
	}

	for _, r := range rule.Trends {
		ok, d, err := e.matchTrend(r, info)
		record(ok, d, err)
	}
	for _, r := range rule.Deviations {
		ok, d, err := e.matchDeviation(r, info, histories)
		record(ok, d, err)
	}
	for _, r := range rule.Oscillations {
		ok, d, err := e.matchOscillation(r, info, histories)
		record(ok, d, err)
	}
	for _, r := range rule.Lowers {
		ok, d, err := e.matchLower(r, info, histories)
		record(ok, d, err)
	}

	v.Passed = passed
	v.Matched = passed && !rule.Evaluation
	v.Detail = detail
	return v
}

// matchTrend resolves the slope window, runs the rebound detector and
// applies the configured comparators to the counts on each side of the
// reversal.
func (e *Engine) matchTrend(r TrendRule, info model.TradeInfo) (bool, string, error) {
	unit, err := resolveUnit(r.From, r.To, func(u model.TimeUnit) bool {
		return len(info.Slopes[u]) > 0
	})
	if err != nil {
		return false, fmt.Sprintf("trend[%d,%d): %v", r.From, r.To, err), err
	}

	slopes := info.Slopes[unit]
	skip := r.From / unit.Duration
	need := (r.To - r.From) / unit.Duration
	if len(slopes) < skip+need {
		return false, fmt.Sprintf("trend[%d,%d)@%s: %v", r.From, r.To, unit.Name, ErrNoData), ErrNoData
	}
	segment := slopes[len(slopes)-skip-need : len(slopes)-skip]

	st := trend.Detect(segment)
	actual := TrendUpward
	if !st.Upward {
		actual = TrendDownward
	}
	ok := actual == r.Trend &&
		r.UpCompare.Compare(st.UpCount, r.Up) &&
		r.DownCompare.Compare(st.DownCount, r.Down)

	d := fmt.Sprintf("trend[%d,%d)@%s: %s rebound=%d up=%d%s%d down=%d%s%d => %t",
		r.From, r.To, unit.Name, actual, st.ReboundAt,
		st.UpCount, r.UpCompare, r.Up,
		st.DownCount, r.DownCompare, r.Down, ok)
	return ok, d, nil
}

// matchDeviation tests the current price's deviation above the window
// minimum against the rule threshold.
func (e *Engine) matchDeviation(r DeviationRule, info model.TradeInfo, histories map[model.TimeUnit]*model.History) (bool, string, error) {
	minP, _, err := priceWindow(histories, info.Time, r.From, r.To)
	if err != nil {
		return false, fmt.Sprintf("deviation[%d,%d): %v", r.From, r.To, err), err
	}

	ok := meaningful(minP) && (float64(info.Price)-minP)/minP <= r.Threshold
	d := fmt.Sprintf("deviation[%d,%d): min=%g price=%g threshold=%g => %t",
		r.From, r.To, minP, info.Price, r.Threshold, ok)
	return ok, d, nil
}

// matchOscillation tests the window's (max-min)/max amplitude against the
// rule threshold; the rule requires the amplitude to stay below it.
func (e *Engine) matchOscillation(r OscillationRule, info model.TradeInfo, histories map[model.TimeUnit]*model.History) (bool, string, error) {
	minP, maxP, err := priceWindow(histories, info.Time, r.From, r.To)
	if err != nil {
		return false, fmt.Sprintf("oscillation[%d,%d): %v", r.From, r.To, err), err
	}

	ok := meaningful(maxP) && meaningful(minP) && (maxP-minP)/maxP < r.Threshold
	d := fmt.Sprintf("oscillation[%d,%d): max=%g min=%g threshold=%g => %t",
		r.From, r.To, maxP, minP, r.Threshold, ok)
	return ok, d, nil
}

// matchLower tests that the minimum of the wider window [From, To) has
// not been undercut by the narrower recent window [0, CompareTo): no
// fresher lower low has appeared.
func (e *Engine) matchLower(r LowerRule, info model.TradeInfo, histories map[model.TimeUnit]*model.History) (bool, string, error) {
	minP, _, err := priceWindow(histories, info.Time, r.From, r.To)
	if err != nil {
		return false, fmt.Sprintf("lower[%d,%d): %v", r.From, r.To, err), err
	}
	if !meaningful(minP) {
		return false, fmt.Sprintf("lower[%d,%d): min=%g not meaningful", r.From, r.To, minP), nil
	}

	recentMin, _, err := priceWindow(histories, info.Time, 0, r.CompareTo)
	if err != nil {
		return false, fmt.Sprintf("lower[0,%d): %v", r.CompareTo, err), err
	}

	ok := meaningful(recentMin) && minP <= recentMin
	d := fmt.Sprintf("lower[%d,%d): min=%g recent[0,%d)=%g => %t",
		r.From, r.To, minP, r.CompareTo, recentMin, ok)
	return ok, d, nil
}

// resolveUnit picks the finest fixed catalog unit whose duration divides
// both offsets and for which data is available.
func resolveUnit(from, to int, available func(model.TimeUnit) bool) (model.TimeUnit, error) {
	if to <= from || to <= 0 {
		return model.TimeUnit{}, fmt.Errorf("%w: bad range [%d,%d)", ErrNoWindow, from, to)
	}
	for _, u := range model.FixedUnits {
		if to%u.Duration != 0 || from%u.Duration != 0 {
			continue
		}
		if available(u) {
			return u, nil
		}
	}
	return model.TimeUnit{}, ErrNoWindow
}

// priceWindow folds min/max prices over candles of the window [from, to)
// seconds back from the decision time, using the finest fixed unit that
// divides the offsets and holds candles there. A window with no samples
// yields ErrNoData.
func priceWindow(histories map[model.TimeUnit]*model.History, timeMs int64, from, to int) (minP, maxP float64, err error) {
	unit, err := resolveUnit(from, to, func(u model.TimeUnit) bool {
		h := histories[u]
		return h != nil && len(h.Candles) > 0
	})
	if err != nil {
		return math.NaN(), math.NaN(), err
	}

	lo := unit.Truncate(timeMs - int64(to)*1000)
	hi := timeMs - int64(from)*1000

	minP = math.NaN()
	maxP = math.NaN()
	found := false
	for _, c := range histories[unit].Candles {
		if c.UnitTime < lo {
			break // descending order, rest is older
		}
		if c.UnitTime >= hi || c.SampleSize < 1 {
			continue
		}
		if !found {
			minP = float64(c.Min)
			maxP = float64(c.Max)
			found = true
			continue
		}
		if float64(c.Min) < minP {
			minP = float64(c.Min)
		}
		if float64(c.Max) > maxP {
			maxP = float64(c.Max)
		}
	}
	if !found {
		return math.NaN(), math.NaN(), ErrNoData
	}
	return minP, maxP, nil
}

// meaningful rejects NaN, infinite, zero and subnormal prices. A window
// with fewer samples than requested surfaces here as NaN, never as zero.
func meaningful(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) >= minNormal
}
