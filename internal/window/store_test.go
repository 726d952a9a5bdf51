package window

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

func tick(symbol string, timeMs int64, price float32) *model.Tick {
	return &model.Tick{Symbol: symbol, Time: timeMs, Price: price}
}

func Test_Store_PushNewestFirst(t *testing.T) {
	s := NewStore(10)
	s.Push(tick("TQQQ", 1000, 1))
	s.Push(tick("TQQQ", 2000, 2))
	s.Push(tick("TQQQ", 3000, 3))

	err := s.WithRead("TQQQ", func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
		require.Len(t, ticks, 3)
		assert.Equal(t, int64(3000), ticks[0].Time)
		assert.Equal(t, int64(1000), ticks[2].Time)
		return nil
	})
	require.NoError(t, err)
}

func Test_Store_CapacityTrimsOldest(t *testing.T) {
	s := NewStore(2)
	s.Push(tick("TQQQ", 1000, 1))
	s.Push(tick("TQQQ", 2000, 2))
	s.Push(tick("TQQQ", 3000, 3))

	_ = s.WithRead("TQQQ", func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
		require.Len(t, ticks, 2)
		assert.Equal(t, int64(3000), ticks[0].Time)
		assert.Equal(t, int64(2000), ticks[1].Time)
		return nil
	})
}

func Test_Store_WithWriteCreatesHistory(t *testing.T) {
	s := NewStore(10)
	s.Push(tick("TQQQ", 1000, 1))

	err := s.WithWrite("TQQQ", model.UnitSec10, func(ticks []*model.Tick, h *model.History) error {
		require.NotNil(t, h)
		assert.Equal(t, "TQQQ", h.Symbol)
		assert.Equal(t, model.UnitSec10, h.Unit)
		h.Candles = append(h.Candles, &model.Candle{UnitTime: 0, SampleSize: 1})
		return nil
	})
	require.NoError(t, err)

	_ = s.WithRead("TQQQ", func(_ []*model.Tick, histories map[model.TimeUnit]*model.History) error {
		require.Contains(t, histories, model.UnitSec10)
		assert.Len(t, histories[model.UnitSec10].Candles, 1)
		return nil
	})
}

func Test_Store_SymbolsAreIndependent(t *testing.T) {
	s := NewStore(10)
	s.Push(tick("TQQQ", 1000, 1))
	s.Push(tick("SQQQ", 2000, 2))

	_ = s.WithRead("TQQQ", func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
		require.Len(t, ticks, 1)
		assert.Equal(t, "TQQQ", ticks[0].Symbol)
		return nil
	})

	assert.ElementsMatch(t, []string{"TQQQ", "SQQQ"}, s.Symbols())
}

func Test_Store_ConcurrentAccess(t *testing.T) {
	s := NewStore(1000)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(base int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				s.Push(tick("TQQQ", base*1000+j, 1))
			}
		}(int64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.WithRead("TQQQ", func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
					return nil
				})
			}
		}()
	}
	wg.Wait()

	_ = s.WithRead("TQQQ", func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
		assert.Len(t, ticks, 400)
		return nil
	})
}
