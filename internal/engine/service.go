// Package engine orchestrates the tick audit pipeline.
//
// The service wires the collaborators together: ticks from the feed are
// pushed into the window store (the single producer path per symbol) and
// fanned out to the named consumers (persistence, rebalancing, rule
// evaluation). Rebalancing and auditing stay synchronous computations; all
// concurrency lives here at the boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/audit"
	"github.com/nanashi07/sminer-sub000/internal/dispatch"
	"github.com/nanashi07/sminer-sub000/internal/formula"
	"github.com/nanashi07/sminer-sub000/internal/ledger"
	"github.com/nanashi07/sminer-sub000/internal/metrics"
	"github.com/nanashi07/sminer-sub000/internal/model"
	"github.com/nanashi07/sminer-sub000/internal/rebalance"
	"github.com/nanashi07/sminer-sub000/internal/report"
	"github.com/nanashi07/sminer-sub000/internal/trend"
	"github.com/nanashi07/sminer-sub000/internal/window"
)

// defaultSlopeDepth is how many recent slopes a TradeInfo carries for
// fixed units; moving units carry their configured period.
const defaultSlopeDepth = 6

// TickSource yields decoded ticks for a set of symbols. The returned
// channel closes when the upstream connection ends.
type TickSource interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan *model.Tick, error)
}

// Service coordinates the whole pipeline.
type Service struct {
	source     TickSource
	dispatcher *dispatch.Dispatcher
	store      *window.Store
	audit      *audit.Engine
	modes      map[string]*audit.Mode
	ledger     *ledger.Ledger
	recorder   ledger.Recorder
	sink       report.Sink

	started atomic.Bool
	cancel  context.CancelFunc
}

// NewService assembles a service from its collaborators.
func NewService(source TickSource, store *window.Store, modes map[string]*audit.Mode,
	led *ledger.Ledger, rec ledger.Recorder, sink report.Sink) *Service {
	return &Service{
		source:     source,
		dispatcher: dispatch.NewDispatcher(),
		store:      store,
		audit:      audit.NewEngine(store),
		modes:      modes,
		ledger:     led,
		recorder:   rec,
		sink:       sink,
	}
}

// Start subscribes to the tick source and launches the consumer tasks.
func (s *Service) Start(ctx context.Context, symbols []string) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("service has already started")
	}

	ctx, cancel := context.WithCancel(ctx)

	tickCh, err := s.source.Subscribe(ctx, symbols)
	if err != nil {
		cancel()
		s.started.Store(false)
		return fmt.Errorf("failed to subscribe to ticks: %w", err)
	}

	// Producer path: every tick lands in the store exactly once, then is
	// fanned out. Consumers observe the store state at or after the push.
	input := make(chan *model.Tick, 1000)
	go func() {
		defer close(input)
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-tickCh:
				if !ok {
					return
				}
				s.store.Push(tick)
				metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
				input <- tick
			}
		}
	}()

	if err := s.dispatcher.StartDispatching(ctx, input); err != nil {
		cancel()
		s.started.Store(false)
		return fmt.Errorf("failed to start dispatching: %w", err)
	}

	consumers := []struct {
		name   string
		buffer int
		run    func(*model.Tick)
	}{
		{"persistence", 500, s.newPersistTick()},
		{"rebalance", 500, s.rebalanceTick},
		{"audit", 500, s.auditTick},
	}
	for _, cdef := range consumers {
		c, err := s.dispatcher.Register(cdef.name, cdef.buffer)
		if err != nil {
			cancel()
			s.started.Store(false)
			return fmt.Errorf("failed to register consumer %s: %w", cdef.name, err)
		}
		go func(c *dispatch.Consumer, run func(*model.Tick)) {
			for tick := range c.Ticks() {
				run(tick)
			}
			log.Info().Str("consumer", c.Name()).Msg("consumer stopped")
		}(c, cdef.run)
	}

	s.cancel = cancel
	log.Info().Strs("symbols", symbols).Msg("engine started")
	return nil
}

// Stop shuts the pipeline down.
func (s *Service) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return errors.New("service not started")
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	log.Info().Msg("engine stopped")
	return nil
}

// rebalanceTick re-aggregates every catalog unit of the tick's symbol.
func (s *Service) rebalanceTick(tick *model.Tick) {
	for _, unit := range model.Units {
		err := s.store.WithWrite(tick.Symbol, unit, func(ticks []*model.Tick, history *model.History) error {
			return rebalance.Rebalance(unit, ticks, history)
		})
		if err != nil {
			log.Error().Err(err).Str("symbol", tick.Symbol).Str("unit", unit.Name).
				Msg("rebalance failed")
			continue
		}
		metrics.CandlesMerged.WithLabelValues(tick.Symbol, unit.Name).Inc()
	}
}

// newPersistTick builds the persistence consumer, which records each
// sec10 bucket once it has closed. The bucket cursor lives inside the
// closure: only the single consumer goroutine touches it, so it needs no
// locking and cannot be shared by accident.
func (s *Service) newPersistTick() func(*model.Tick) {
	lastBucket := make(map[string]int64)
	return func(tick *model.Tick) {
		var closed *model.Candle
		err := s.store.WithRead(tick.Symbol, func(_ []*model.Tick, histories map[model.TimeUnit]*model.History) error {
			h := histories[model.UnitSec10]
			if h == nil || len(h.Candles) == 0 {
				return nil
			}
			head := h.Candles[0].UnitTime
			if last, ok := lastBucket[tick.Symbol]; ok && last != head && len(h.Candles) >= 2 {
				cp := *h.Candles[1]
				closed = &cp
			}
			lastBucket[tick.Symbol] = head
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("symbol", tick.Symbol).Msg("persist read failed")
			return
		}
		if closed == nil {
			return
		}
		if err := s.recorder.RecordCandle(closed); err != nil {
			log.Error().Err(err).Str("symbol", tick.Symbol).Msg("record candle failed")
		}
	}
}

// auditTick evaluates every configured mode against the tick's symbol.
func (s *Service) auditTick(tick *model.Tick) {
	info := s.buildTradeInfo(tick)

	if slopes, ok := info.Slopes[model.UnitSec10]; ok {
		s.sink.Rebound(tick.Symbol, model.UnitSec10, trend.Detect(slopes))
	}

	for _, mode := range s.modes {
		verdicts := s.audit.Evaluate(mode, info)
		for i := range verdicts {
			v := &verdicts[i]
			metrics.RulesEvaluated.WithLabelValues(mode.Name).Inc()
			s.sink.Verdict(v)
			if err := s.recorder.RecordVerdict(v); err != nil {
				log.Error().Err(err).Msg("record verdict failed")
			}
			if v.Matched {
				metrics.RulesMatched.WithLabelValues(mode.Name).Inc()
			}
		}
		s.checkLossMargin(mode, tick)
	}
}

// buildTradeInfo snapshots the slope series of every catalog unit for the
// symbol under one read acquisition.
func (s *Service) buildTradeInfo(tick *model.Tick) model.TradeInfo {
	info := model.TradeInfo{
		Symbol:    tick.Symbol,
		MessageID: uuid.New(),
		Time:      tick.Time,
		Price:     tick.Price,
		Slopes:    make(map[model.TimeUnit][]float64, len(model.Units)),
	}

	_ = s.store.WithRead(tick.Symbol, func(_ []*model.Tick, histories map[model.TimeUnit]*model.History) error {
		for _, unit := range model.Units {
			h := histories[unit]
			if h == nil {
				continue
			}
			depth := unit.Period
			if depth == 0 {
				depth = defaultSlopeDepth
			}
			if slopes := h.RecentSlopes(depth); len(slopes) > 0 {
				info.Slopes[unit] = slopes
			}
		}
		return nil
	})
	return info
}

// checkLossMargin clears open legs that fell through the mode's loss
// margin at the current price.
func (s *Service) checkLossMargin(mode *audit.Mode, tick *model.Tick) {
	for _, o := range s.ledger.OpenOrders() {
		if o.Symbol != tick.Symbol {
			continue
		}
		if !mode.ExceedsLossMargin(o.EntryPrice, float64(tick.Price)) {
			continue
		}
		s.ledger.MarkCleared(o.ID, model.AuditLossCleared)
		if cleared := s.ledger.Get(o.ID); cleared != nil {
			if err := s.recorder.RecordOrder(cleared); err != nil {
				log.Error().Err(err).Str("order", o.ID.String()).Msg("record order failed")
			}
		}
		log.Warn().Str("mode", mode.Name).Str("symbol", o.Symbol).
			Str("order", o.ID.String()).
			Float64("entry", o.EntryPrice).
			Float32("price", tick.Price).
			Msg("order cleared by loss margin")
	}
}

// RebalanceSweep re-aggregates every known symbol across the catalog.
// The scheduler drives this periodically so sparsely ticking symbols
// still close their buckets.
func (s *Service) RebalanceSweep() {
	for _, symbol := range s.store.Symbols() {
		for _, unit := range model.Units {
			err := s.store.WithWrite(symbol, unit, func(ticks []*model.Tick, history *model.History) error {
				return rebalance.Rebalance(unit, ticks, history)
			})
			if err != nil {
				log.Error().Err(err).Str("symbol", symbol).Str("unit", unit.Name).
					Msg("sweep rebalance failed")
			}
		}
	}
}

// ClosePrices returns the latest observed price per known symbol,
// preferring the newest post-market tick when one exists. This backs the
// scheduled profit report when no external close source is configured.
func (s *Service) ClosePrices(ctx context.Context) (map[string]float64, error) {
	closes := make(map[string]float64)
	for _, symbol := range s.store.Symbols() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = s.store.WithRead(symbol, func(ticks []*model.Tick, _ map[model.TimeUnit]*model.History) error {
			for _, t := range ticks {
				if t.Phase == model.PhasePostMarket {
					closes[symbol] = float64(t.Price)
					return nil
				}
			}
			if len(ticks) > 0 {
				closes[symbol] = float64(ticks[0].Price)
			}
			return nil
		})
	}
	return closes, nil
}

// ProfitReport evaluates aggregate profit over all open legs with the
// given close prices and routes the result to the sink and recorder.
// A symbol missing from closePrices fails the evaluation.
func (s *Service) ProfitReport(closePrices map[string]float64) (*ledger.ProfitReport, error) {
	orders := s.ledger.OpenOrders()
	value, expr, err := formula.Profit(orders, closePrices)
	if err != nil {
		return nil, fmt.Errorf("evaluate profit: %w", err)
	}

	rep := &ledger.ProfitReport{Formula: expr, Value: value, Legs: len(orders)}
	s.sink.Profit(rep)
	metrics.ProfitValue.Set(value)
	if err := s.recorder.RecordProfit(rep); err != nil {
		log.Error().Err(err).Msg("record profit failed")
	}

	// Hedged legs are also reported jointly, one sink line per
	// constraint pair. Keys are sorted so the lines come out in a
	// stable order; lone legs already show up in the aggregate.
	pairs := s.ledger.ConstraintPairs()
	keys := make([]string, 0, len(pairs))
	for k, legs := range pairs {
		if legs[0].ConstraintID == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		legs := pairs[k]
		pv, pe, err := formula.Profit(legs, closePrices)
		if err != nil {
			log.Error().Err(err).Str("constraint", k).Msg("pair profit evaluation failed")
			continue
		}
		s.sink.Profit(&ledger.ProfitReport{Formula: pe, Value: pv, Legs: len(legs), Constraint: k})
	}
	return rep, nil
}
