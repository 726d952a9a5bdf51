// Package rebalance converts raw tick buffers into per-unit candle
// histories.
//
// Rebalancing is a synchronous, single-threaded computation over a
// snapshot of a symbol's tick buffer: ticks are grouped into time buckets,
// each bucket is aggregated into a candle (open/close/max/min, cumulative
// volume delta, sample count and regression slope), and only the one or
// two freshest buckets are merged back into history. Buckets older than
// that are settled and never rewritten.
package rebalance

import (
	"sort"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// lookbackBuckets is how many bucket widths of trailing ticks one
// rebalance pass considers. Three buckets bound per-call cost while still
// finishing a bucket that straddles the lookback boundary.
const lookbackBuckets = 3

// Rebalance groups the symbol's newest-first tick buffer into unit buckets
// and merges the freshest resulting candles into history.
//
// An empty buffer and a zero-duration unit are both no-ops. The merge
// touches at most the two newest buckets: a matching bucket already in
// history is updated in place, a strictly newer bucket is inserted at the
// front, and anything older is left untouched (interior gaps are not
// backfilled).
func Rebalance(unit model.TimeUnit, ticks []*model.Tick, history *model.History) error {
	if unit.Duration == 0 {
		// Reserved raw pass-through unit, nothing to bucket.
		return nil
	}
	if len(ticks) == 0 {
		return nil
	}

	durationMs := unit.DurationMs()
	scope := durationMs * lookbackBuckets
	horizon := ticks[0].Time - scope

	// The buffer is newest-first, so the lookback window is a prefix.
	end := len(ticks)
	for i, t := range ticks {
		if t.Time < horizon {
			end = i
			break
		}
	}
	recent := ticks[:end]

	groups := make(map[int64][]*model.Tick)
	for _, t := range recent {
		key := unit.Truncate(t.Time)
		groups[key] = append(groups[key], t)
	}

	candles := make([]*model.Candle, 0, len(groups))
	for unitTime, group := range groups {
		candles = append(candles, aggregate(unit, unitTime, group))
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].UnitTime > candles[j].UnitTime
	})

	merge(history, candles)
	return nil
}

// aggregate folds one newest-first tick group into a candle.
func aggregate(unit model.TimeUnit, unitTime int64, group []*model.Tick) *model.Candle {
	newest := group[0]
	oldest := group[len(group)-1]

	c := &model.Candle{
		Symbol:     newest.Symbol,
		Unit:       unit,
		UnitTime:   unitTime,
		Open:       oldest.Price,
		Close:      newest.Price,
		Max:        newest.Price,
		Min:        newest.Price,
		Volume:     oldest.DayVolume - newest.DayVolume,
		SampleSize: len(group),
	}
	for _, t := range group {
		if t.Price > c.Max {
			c.Max = t.Price
		}
		if t.Price < c.Min {
			c.Min = t.Price
		}
	}
	c.Slope, c.HasSlope = Slope(group)
	return c
}

// Slope computes the ordinary-least-squares regression coefficient of
// price versus time over the group's samples. The second return value is
// false when fewer than two samples exist or the time variance is zero
// (a degenerate fit is absent, never NaN).
func Slope(group []*model.Tick) (float64, bool) {
	n := len(group)
	if n < 2 {
		return 0, false
	}

	var sumX, sumY float64
	for _, t := range group {
		sumX += float64(t.Time)
		sumY += float64(t.Price)
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, den float64
	for _, t := range group {
		dx := float64(t.Time) - meanX
		num += dx * (float64(t.Price) - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// merge applies the two newest freshly computed candles to history.
//
// History is descending by unit time. Updating overwrites the aggregate
// fields of the existing entry so the candle's identity (and any pointer
// held by a reader snapshot taken before the write lock) is preserved.
func merge(history *model.History, candles []*model.Candle) {
	limit := 2
	if len(candles) < limit {
		limit = len(candles)
	}

	// Applied oldest-first so a cold or sparse history bootstraps both
	// live buckets: the second-newest bucket must land before the newest
	// one raises the head past it.
	for i := limit - 1; i >= 0; i-- {
		fresh := candles[i]
		if idx := history.IndexOf(fresh.UnitTime); idx >= 0 {
			update(history.Candles[idx], fresh)
			continue
		}

		head := history.Newest()
		if head == nil || fresh.UnitTime > head.UnitTime {
			history.Candles = append([]*model.Candle{fresh}, history.Candles...)
		}
		// An older, unmatched bucket behind a pre-existing head is a gap:
		// closed history is never rewritten, so it is dropped here.
	}
}

func update(dst, src *model.Candle) {
	dst.Open = src.Open
	dst.Close = src.Close
	dst.Max = src.Max
	dst.Min = src.Min
	dst.Volume = src.Volume
	dst.SampleSize = src.SampleSize
	dst.Slope = src.Slope
	dst.HasSlope = src.HasSlope
}
