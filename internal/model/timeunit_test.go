package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_UnitByName(t *testing.T) {
	u, err := UnitByName("sec10")
	require.NoError(t, err)
	assert.Equal(t, UnitSec10, u)

	_, err = UnitByName("m0010")
	assert.Error(t, err)
}

func Test_TimeUnit_Truncate(t *testing.T) {
	assert.Equal(t, int64(20_000), UnitSec10.Truncate(25_123))
	assert.Equal(t, int64(0), UnitMin1.Truncate(59_999))
	assert.Equal(t, int64(60_000), UnitMin1.Truncate(60_000))

	raw := TimeUnit{Name: "raw"}
	assert.Equal(t, int64(12_345), raw.Truncate(12_345))
}

func Test_TimeUnit_Catalog(t *testing.T) {
	// Every unit is resolvable by name and fixed units carry no period.
	for _, u := range Units {
		got, err := UnitByName(u.Name)
		require.NoError(t, err)
		assert.Equal(t, u, got)
	}
	for _, u := range FixedUnits {
		assert.False(t, u.Moving(), u.Name)
	}
	assert.True(t, UnitMovSec30.Moving())
}

func Test_History_RecentSlopes(t *testing.T) {
	h := &History{Symbol: "TQQQ", Unit: UnitSec10, Candles: []*Candle{
		{UnitTime: 30_000, Slope: 3, HasSlope: true},
		{UnitTime: 20_000, HasSlope: false}, // degenerate bucket skipped
		{UnitTime: 10_000, Slope: 1, HasSlope: true},
		{UnitTime: 0, Slope: 0.5, HasSlope: true},
	}}

	// Oldest to newest, undefined slopes skipped.
	assert.Equal(t, []float64{1, 3}, h.RecentSlopes(3))
	assert.Equal(t, []float64{0.5, 1, 3}, h.RecentSlopes(10))
	assert.Nil(t, h.RecentSlopes(0))
}

func Test_History_IndexOf(t *testing.T) {
	h := &History{Candles: []*Candle{
		{UnitTime: 20_000},
		{UnitTime: 10_000},
	}}
	assert.Equal(t, 0, h.IndexOf(20_000))
	assert.Equal(t, 1, h.IndexOf(10_000))
	assert.Equal(t, -1, h.IndexOf(15_000))
	assert.Equal(t, -1, h.IndexOf(30_000))
}
