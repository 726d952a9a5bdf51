// Package scheduler drives the periodic engine passes with cron.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/ledger"
)

// Engine is the subset of the engine service the scheduler drives.
type Engine interface {
	// RebalanceSweep re-aggregates every known symbol.
	RebalanceSweep()

	// ProfitReport evaluates aggregate profit with the given close prices.
	ProfitReport(closePrices map[string]float64) (*ledger.ProfitReport, error)
}

// ClosePriceSource supplies post-market close prices for profit reports.
type ClosePriceSource interface {
	ClosePrices(ctx context.Context) (map[string]float64, error)
}

// Scheduler manages the cron tasks.
type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	closes ClosePriceSource
	ctx    context.Context
}

// NewScheduler creates a scheduler with seconds-granularity cron.
func NewScheduler(ctx context.Context, engine Engine, closes ClosePriceSource) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		engine: engine,
		closes: closes,
		ctx:    ctx,
	}
}

// RegisterAll registers the rebalance sweep and the profit report tasks.
func (s *Scheduler) RegisterAll(rebalanceCron, profitCron string) error {
	if _, err := s.cron.AddFunc(rebalanceCron, s.rebalanceTask); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(profitCron, s.profitTask); err != nil {
		return err
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) rebalanceTask() {
	s.engine.RebalanceSweep()
}

func (s *Scheduler) profitTask() {
	if s.closes == nil {
		log.Debug().Msg("no close price source, skipping profit report")
		return
	}
	closes, err := s.closes.ClosePrices(s.ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch close prices failed")
		return
	}
	if _, err := s.engine.ProfitReport(closes); err != nil {
		log.Error().Err(err).Msg("profit report failed")
	}
}
