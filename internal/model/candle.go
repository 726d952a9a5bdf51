package model

// Candle is one bucket's aggregate for one symbol and time unit.
//
// UnitTime is the tick time truncated to the unit duration. Slope is the
// ordinary-least-squares regression coefficient of price versus time over
// the bucket's samples; HasSlope is false when fewer than two samples
// exist or the time variance is zero. Volume is the cumulative day-volume
// delta across the bucket, not a sum of trade sizes.
type Candle struct {
	Symbol     string
	Unit       TimeUnit
	UnitTime   int64 // bucket start, epoch milliseconds
	Open       float32
	Close      float32
	Max        float32
	Min        float32
	Volume     int64
	SampleSize int
	Slope      float64
	HasSlope   bool
}

// History is a symbol+unit candle series ordered by descending UnitTime:
// index 0 is the newest bucket. Only the newest one or two entries are
// ever updated in place; everything older is closed and immutable.
type History struct {
	Symbol  string
	Unit    TimeUnit
	Candles []*Candle
}

// Newest returns the most recent candle, or nil for an empty history.
func (h *History) Newest() *Candle {
	if len(h.Candles) == 0 {
		return nil
	}
	return h.Candles[0]
}

// IndexOf returns the position of the candle with the given unit time,
// or -1 when absent.
func (h *History) IndexOf(unitTime int64) int {
	for i, c := range h.Candles {
		if c.UnitTime == unitTime {
			return i
		}
		if c.UnitTime < unitTime {
			break // descending order, no match further down
		}
	}
	return -1
}

// RecentSlopes returns up to n most recent defined slopes ordered oldest
// to newest, the layout the rebound detector consumes.
func (h *History) RecentSlopes(n int) []float64 {
	if n <= 0 || len(h.Candles) == 0 {
		return nil
	}
	if n > len(h.Candles) {
		n = len(h.Candles)
	}
	slopes := make([]float64, 0, n)
	// walk newest to oldest, then reverse into oldest to newest
	for i := 0; i < n; i++ {
		c := h.Candles[i]
		if !c.HasSlope {
			continue
		}
		slopes = append(slopes, c.Slope)
	}
	for i, j := 0, len(slopes)-1; i < j; i, j = i+1, j-1 {
		slopes[i], slopes[j] = slopes[j], slopes[i]
	}
	return slopes
}
