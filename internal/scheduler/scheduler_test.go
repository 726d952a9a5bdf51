package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanashi07/sminer-sub000/internal/ledger"
)

type fakeEngine struct {
	sweeps  atomic.Int32
	profits atomic.Int32
	lastGot atomic.Value // map[string]float64
}

func (f *fakeEngine) RebalanceSweep() { f.sweeps.Add(1) }

func (f *fakeEngine) ProfitReport(closes map[string]float64) (*ledger.ProfitReport, error) {
	f.profits.Add(1)
	f.lastGot.Store(closes)
	return &ledger.ProfitReport{}, nil
}

type fakeCloses struct {
	prices map[string]float64
	err    error
}

func (f *fakeCloses) ClosePrices(context.Context) (map[string]float64, error) {
	return f.prices, f.err
}

func Test_Scheduler_RegisterAllRejectsBadExpressions(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeEngine{}, nil)
	assert.Error(t, s.RegisterAll("not a cron", "0 5 16 * * 1-5"))
	assert.Error(t, s.RegisterAll("*/10 * * * * *", "not a cron"))
	assert.NoError(t, s.RegisterAll("*/10 * * * * *", "0 5 16 * * 1-5"))
}

func Test_Scheduler_RunsRebalanceSweep(t *testing.T) {
	engine := &fakeEngine{}
	s := NewScheduler(context.Background(), engine, nil)
	require.NoError(t, s.RegisterAll("* * * * * *", "0 5 16 * * 1-5"))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return engine.sweeps.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func Test_Scheduler_ProfitTaskRoutesClosePrices(t *testing.T) {
	engine := &fakeEngine{}
	closes := &fakeCloses{prices: map[string]float64{"TQQQ": 51}}
	s := NewScheduler(context.Background(), engine, closes)

	s.profitTask()
	assert.Equal(t, int32(1), engine.profits.Load())
	assert.Equal(t, closes.prices, engine.lastGot.Load())
}

func Test_Scheduler_ProfitTaskSkipsWithoutSource(t *testing.T) {
	engine := &fakeEngine{}
	s := NewScheduler(context.Background(), engine, nil)

	s.profitTask()
	assert.Equal(t, int32(0), engine.profits.Load())
}

func Test_Scheduler_ProfitTaskSwallowsSourceError(t *testing.T) {
	engine := &fakeEngine{}
	s := NewScheduler(context.Background(), engine, &fakeCloses{err: errors.New("feed down")})

	s.profitTask()
	assert.Equal(t, int32(0), engine.profits.Load())
}
