package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// tick builds a test tick; the callers keep buffers newest-first.
func tick(symbol string, timeMs int64, price float32, volume int64) *model.Tick {
	return &model.Tick{
		Symbol:    symbol,
		Price:     price,
		Time:      timeMs,
		Phase:     model.PhaseRegular,
		DayVolume: volume,
	}
}

func Test_Rebalance_Bucketing(t *testing.T) {
	unit := model.UnitSec10

	// Two buckets: [20000,30000) and [10000,20000), newest-first buffer.
	ticks := []*model.Tick{
		tick("TQQQ", 25_000, 102, 1300),
		tick("TQQQ", 22_000, 104, 1200),
		tick("TQQQ", 21_000, 99, 1100),
		tick("TQQQ", 15_000, 101, 1000),
		tick("TQQQ", 12_000, 100, 900),
	}

	h := &model.History{Symbol: "TQQQ", Unit: unit}
	require.NoError(t, Rebalance(unit, ticks, h))
	require.Len(t, h.Candles, 2)

	newest, older := h.Candles[0], h.Candles[1]

	// Every unit time is a multiple of the duration and bounds its ticks.
	for _, c := range h.Candles {
		assert.Zero(t, c.UnitTime%unit.DurationMs())
	}
	assert.Equal(t, int64(20_000), newest.UnitTime)
	assert.Equal(t, int64(10_000), older.UnitTime)

	// Open is the chronologically earliest, close the latest.
	assert.Equal(t, float32(99), newest.Open)
	assert.Equal(t, float32(102), newest.Close)
	assert.Equal(t, float32(104), newest.Max)
	assert.Equal(t, float32(99), newest.Min)
	assert.Equal(t, 3, newest.SampleSize)
	assert.Equal(t, int64(1100-1300), newest.Volume)

	assert.Equal(t, float32(100), older.Open)
	assert.Equal(t, float32(101), older.Close)
	assert.Equal(t, 2, older.SampleSize)
}

func Test_Rebalance_EmptyAndPassThrough(t *testing.T) {
	h := &model.History{Symbol: "TQQQ", Unit: model.UnitSec10}

	require.NoError(t, Rebalance(model.UnitSec10, nil, h))
	assert.Empty(t, h.Candles)

	raw := model.TimeUnit{Name: "raw", Duration: 0}
	require.NoError(t, Rebalance(raw, []*model.Tick{tick("TQQQ", 1000, 1, 1)}, h))
	assert.Empty(t, h.Candles)
}

func Test_Rebalance_LookbackWindow(t *testing.T) {
	unit := model.UnitSec10

	// The tick at 5_000 is older than newest.Time - 3*duration and must
	// be ignored.
	ticks := []*model.Tick{
		tick("TQQQ", 40_000, 100, 400),
		tick("TQQQ", 35_000, 100, 300),
		tick("TQQQ", 5_000, 100, 100),
	}

	h := &model.History{Symbol: "TQQQ", Unit: unit}
	require.NoError(t, Rebalance(unit, ticks, h))
	require.Len(t, h.Candles, 2)
	assert.Equal(t, int64(40_000), h.Candles[0].UnitTime)
	assert.Equal(t, int64(30_000), h.Candles[1].UnitTime)
}

func Test_Rebalance_ColdHistoryBootstrapsBothBuckets(t *testing.T) {
	unit := model.UnitSec10

	// First rebalance on an empty history with ticks spanning two buckets:
	// both live buckets must materialize, not just the newest.
	ticks := []*model.Tick{
		tick("TQQQ", 25_000, 102, 1300),
		tick("TQQQ", 15_000, 101, 1000),
	}

	h := &model.History{Symbol: "TQQQ", Unit: unit}
	require.NoError(t, Rebalance(unit, ticks, h))
	require.Len(t, h.Candles, 2)
	assert.Equal(t, int64(20_000), h.Candles[0].UnitTime)
	assert.Equal(t, int64(10_000), h.Candles[1].UnitTime)

	// A stale batch entirely behind the head still never backfills.
	stale := &model.History{Symbol: "TQQQ", Unit: unit, Candles: []*model.Candle{
		{Symbol: "TQQQ", Unit: unit, UnitTime: 40_000, SampleSize: 1},
	}}
	require.NoError(t, Rebalance(unit, ticks, stale))
	require.Len(t, stale.Candles, 1)
	assert.Equal(t, int64(40_000), stale.Candles[0].UnitTime)
}

func Test_Rebalance_MergeUpdatesInPlace(t *testing.T) {
	unit := model.UnitSec10

	first := []*model.Tick{
		tick("TQQQ", 21_000, 99, 1100),
	}
	h := &model.History{Symbol: "TQQQ", Unit: unit}
	require.NoError(t, Rebalance(unit, first, h))
	require.Len(t, h.Candles, 1)
	held := h.Candles[0]

	// A later tick in the same bucket updates the existing candle object.
	second := []*model.Tick{
		tick("TQQQ", 25_000, 105, 1300),
		tick("TQQQ", 21_000, 99, 1100),
	}
	require.NoError(t, Rebalance(unit, second, h))
	require.Len(t, h.Candles, 1)
	assert.Same(t, held, h.Candles[0])
	assert.Equal(t, float32(105), h.Candles[0].Close)
	assert.Equal(t, 2, h.Candles[0].SampleSize)
}

func Test_Rebalance_Idempotent(t *testing.T) {
	unit := model.UnitSec10
	ticks := []*model.Tick{
		tick("TQQQ", 25_000, 102, 1300),
		tick("TQQQ", 15_000, 101, 1000),
		tick("TQQQ", 12_000, 100, 900),
	}

	h := &model.History{Symbol: "TQQQ", Unit: unit}
	require.NoError(t, Rebalance(unit, ticks, h))
	snapshot := make([]model.Candle, len(h.Candles))
	for i, c := range h.Candles {
		snapshot[i] = *c
	}

	require.NoError(t, Rebalance(unit, ticks, h))
	require.Len(t, h.Candles, len(snapshot))
	for i, c := range h.Candles {
		assert.Equal(t, snapshot[i], *c)
	}
}

func Test_Rebalance_ClosedBucketsImmutable(t *testing.T) {
	unit := model.UnitSec10

	old := &model.Candle{Symbol: "TQQQ", Unit: unit, UnitTime: 0, Open: 1, Close: 1, SampleSize: 3}
	h := &model.History{Symbol: "TQQQ", Unit: unit, Candles: []*model.Candle{
		{Symbol: "TQQQ", Unit: unit, UnitTime: 10_000, SampleSize: 1},
		old,
	}}
	was := *old

	ticks := []*model.Tick{
		tick("TQQQ", 25_000, 102, 1300),
		tick("TQQQ", 15_000, 101, 1000),
	}
	require.NoError(t, Rebalance(unit, ticks, h))

	// The settled bucket at unit time 0 is untouched.
	assert.Equal(t, was, *old)
	assert.Equal(t, int64(20_000), h.Candles[0].UnitTime)
}

func Test_Slope(t *testing.T) {
	t.Run("Perfectly linear series returns its slope", func(t *testing.T) {
		// price = 100 + 0.0001 * t
		group := []*model.Tick{
			tick("TQQQ", 2000, 100.2, 3),
			tick("TQQQ", 1000, 100.1, 2),
			tick("TQQQ", 0, 100.0, 1),
		}
		m, ok := Slope(group)
		require.True(t, ok)
		assert.InDelta(t, 0.0001, m, 1e-7)
	})

	t.Run("Constant price returns zero, not NaN", func(t *testing.T) {
		group := []*model.Tick{
			tick("TQQQ", 1000, 50, 2),
			tick("TQQQ", 0, 50, 1),
		}
		m, ok := Slope(group)
		require.True(t, ok)
		assert.Zero(t, m)
	})

	t.Run("Single sample has no slope", func(t *testing.T) {
		_, ok := Slope([]*model.Tick{tick("TQQQ", 0, 50, 1)})
		assert.False(t, ok)
	})

	t.Run("Zero time variance has no slope", func(t *testing.T) {
		group := []*model.Tick{
			tick("TQQQ", 1000, 51, 2),
			tick("TQQQ", 1000, 49, 1),
		}
		_, ok := Slope(group)
		assert.False(t, ok)
	})
}
