/*
Package main runs the tick audit daemon.

The daemon connects to the upstream quote gateway, maintains multi
resolution candle histories for the configured symbols, evaluates the
configured audit rule bundles on every tick and records candles, rule
verdicts, orders and profit reports to SQLite. Prometheus metrics are
served on the configured address.

Usage:

	sminer -config=config.yaml
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nanashi07/sminer-sub000/internal/config"
	"github.com/nanashi07/sminer-sub000/internal/engine"
	"github.com/nanashi07/sminer-sub000/internal/feed"
	"github.com/nanashi07/sminer-sub000/internal/ledger"
	"github.com/nanashi07/sminer-sub000/internal/metrics"
	"github.com/nanashi07/sminer-sub000/internal/report"
	"github.com/nanashi07/sminer-sub000/internal/scheduler"
	"github.com/nanashi07/sminer-sub000/internal/window"
)

var configPath = flag.String("config", "config.yaml", "Path to the configuration file")

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if lvl, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder ledger.Recorder = ledger.NoopRecorder{}
	if cfg.Database.Path != "" {
		rec, err := ledger.NewSQLiteRecorder(cfg.Database.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open recorder")
		}
		defer rec.Close()
		recorder = rec
	}

	gateway, err := feed.NewGateway(&feed.GatewayConfig{
		Endpoint:   cfg.Feed.Endpoint,
		MaxSymbols: cfg.Feed.MaxSymbols,
		PingPeriod: cfg.Feed.PingPeriod,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway")
	}

	store := window.NewStore(window.DefaultTickCapacity)
	orders := ledger.NewLedger()
	sink := report.NewLogSink(log.Logger)

	svc := engine.NewService(gateway, store, cfg.Modes(), orders, recorder, sink)
	if err := svc.Start(ctx, cfg.Feed.Symbols); err != nil {
		log.Fatal().Err(err).Msg("failed to start engine")
	}
	defer svc.Stop()

	sched := scheduler.NewScheduler(ctx, svc, svc)
	if err := sched.RegisterAll(cfg.Schedule.RebalanceCron, cfg.Schedule.ProfitCron); err != nil {
		log.Fatal().Err(err).Msg("failed to register schedules")
	}
	sched.Start()
	defer sched.Stop()

	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint up")
	}

	log.Info().
		Str("endpoint", cfg.Feed.Endpoint).
		Strs("symbols", cfg.Feed.Symbols).
		Msg("sminer started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("initiating graceful shutdown")
	cancel()
}
