// Package metrics exposes prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts market ticks ingested per symbol.
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sminer_ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)

	// CandlesMerged counts candle merges per symbol and unit.
	CandlesMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sminer_candles_merged_total", Help: "Candle buckets merged into history"},
		[]string{"symbol", "unit"},
	)

	// RulesEvaluated counts rule evaluations per mode.
	RulesEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sminer_rules_evaluated_total", Help: "Audit rules evaluated"},
		[]string{"mode"},
	)

	// RulesMatched counts enforcing rule matches per mode.
	RulesMatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sminer_rules_matched_total", Help: "Enforcing audit rules matched"},
		[]string{"mode"},
	)

	// ProfitValue is the last evaluated aggregate profit.
	ProfitValue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sminer_profit_value", Help: "Last evaluated aggregate profit"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, CandlesMerged, RulesEvaluated, RulesMatched, ProfitValue)
}

// Serve starts the /metrics endpoint on addr and returns the server for
// shutdown.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
