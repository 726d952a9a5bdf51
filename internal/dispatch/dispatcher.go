// Package dispatch fans the tick stream out to named consumer tasks.
//
// The producer (the feed) writes ticks into StartDispatching's input
// channel; each consumer (persistence, rebalancer, rule engine) owns a
// subscription with its own buffered channel. A single goroutine owns the
// consumer map, so the hot path needs no mutex, and slow consumers lose
// their oldest buffered tick rather than stalling the stream.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/model"
)

// Consumer is one named subscription to the tick stream.
type Consumer struct {
	name string
	ch   chan *model.Tick
}

// Name returns the consumer's registered name.
func (c *Consumer) Name() string { return c.name }

// Ticks is the consumer's receive channel. It closes on shutdown or after
// Unregister.
func (c *Consumer) Ticks() <-chan *model.Tick { return c.ch }

// Dispatcher distributes ticks to registered consumers.
type Dispatcher struct {
	consumers    map[string]*Consumer
	registerCh   chan *Consumer
	unregisterCh chan *Consumer
	started      atomic.Bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		consumers:    make(map[string]*Consumer),
		registerCh:   make(chan *Consumer, 10),
		unregisterCh: make(chan *Consumer, 10),
	}
}

// Register creates a named consumer with the given channel buffer. It may
// be called before or after StartDispatching; duplicate names replace the
// previous subscription (whose channel is closed).
func (d *Dispatcher) Register(name string, buffer int) (*Consumer, error) {
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	if buffer <= 0 {
		buffer = 100
	}
	c := &Consumer{name: name, ch: make(chan *model.Tick, buffer)}

	select {
	case d.registerCh <- c:
		return c, nil
	default:
		return nil, fmt.Errorf("register channel is full")
	}
}

// Unregister removes a consumer and closes its channel.
func (d *Dispatcher) Unregister(c *Consumer) error {
	select {
	case d.unregisterCh <- c:
		return nil
	default:
		return fmt.Errorf("unregister channel is full")
	}
}

// StartDispatching starts the owner goroutine. It consumes ticks from
// input until the context is cancelled or input closes; on exit every
// consumer channel is closed so downstream tasks observe shutdown.
func (d *Dispatcher) StartDispatching(ctx context.Context, input <-chan *model.Tick) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}

	go func() {
		defer func() {
			for _, c := range d.consumers {
				close(c.ch)
			}
			d.consumers = make(map[string]*Consumer)
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("dispatcher stopped")
				return
			case c := <-d.registerCh:
				d.applyRegister(c)
			case c := <-d.unregisterCh:
				d.applyUnregister(c)
			case tick, ok := <-input:
				if !ok {
					log.Info().Msg("tick input closed, dispatcher stopping")
					return
				}
				// The select picks randomly among ready cases, so queued
				// registrations must be applied before this tick goes out:
				// a consumer registered before the tick was produced must
				// not miss it.
				d.drainControl()
				d.dispatch(tick)
			}
		}
	}()
	return nil
}

// applyRegister and applyUnregister mutate the consumer map. Only ever
// called from the owner goroutine.
func (d *Dispatcher) applyRegister(c *Consumer) {
	if prev, ok := d.consumers[c.name]; ok {
		close(prev.ch)
	}
	d.consumers[c.name] = c
}

func (d *Dispatcher) applyUnregister(c *Consumer) {
	if cur, ok := d.consumers[c.name]; ok && cur == c {
		delete(d.consumers, c.name)
		close(c.ch)
	}
}

// drainControl applies every queued register/unregister request without
// blocking. Only ever called from the owner goroutine.
func (d *Dispatcher) drainControl() {
	for {
		select {
		case c := <-d.registerCh:
			d.applyRegister(c)
		case c := <-d.unregisterCh:
			d.applyUnregister(c)
		default:
			return
		}
	}
}

// dispatch delivers one tick to every consumer. Only ever called from the
// owner goroutine.
func (d *Dispatcher) dispatch(tick *model.Tick) {
	for _, c := range d.consumers {
		select {
		case c.ch <- tick:
		default:
			// channel full: drop the oldest tick for this slow consumer
			log.Debug().Str("consumer", c.name).Str("symbol", tick.Symbol).
				Msg("consumer too slow, dropping oldest buffered tick")
			select {
			case <-c.ch:
			default:
			}
			select {
			case c.ch <- tick:
			default:
			}
		}
	}
}
