// Package telemetry exposes Prometheus metrics and the monitor HTTP
// endpoint for the engine.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the engine emits.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CycleDuration *prometheus.HistogramVec
	CycleErrors   *prometheus.CounterVec

	// Signal metrics
	SnapshotsComputed prometheus.Counter
	SnapshotsSkipped  *prometheus.CounterVec

	// Scoring metrics
	OpportunitiesEmitted prometheus.Gauge
	TopConfidence        prometheus.Gauge

	// Execution metrics
	TradesExecuted *prometheus.CounterVec
	GateRejections *prometheus.CounterVec
	ExitSignals    *prometheus.CounterVec

	// Portfolio metrics
	OpenPositions  prometheus.Gauge
	CashBalance    prometheus.Gauge
	PortfolioValue prometheus.Gauge

	// Feed metrics
	FeedRequests *prometheus.CounterVec
	FeedLatency  prometheus.Histogram
}

// NewMetrics registers the metric set on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equityrun_cycle_duration_seconds",
				Help:    "Duration of each pipeline cycle in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"cycle"},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_cycle_errors_total",
				Help: "Total pipeline cycle errors by cycle",
			},
			[]string{"cycle"},
		),

		SnapshotsComputed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "equityrun_snapshots_computed_total",
				Help: "Total technical snapshots computed",
			},
		),

		SnapshotsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_snapshots_skipped_total",
				Help: "Snapshots skipped by reason",
			},
			[]string{"reason"},
		),

		OpportunitiesEmitted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_opportunities_emitted",
				Help: "Opportunities above the confidence threshold in the last scan",
			},
		),

		TopConfidence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_top_confidence",
				Help: "Confidence of the best opportunity in the last scan",
			},
		),

		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_trades_executed_total",
				Help: "Executed trades by action",
			},
			[]string{"action"},
		),

		GateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_gate_rejections_total",
				Help: "Risk gate rejections by rule",
			},
			[]string{"rule"},
		),

		ExitSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_exit_signals_total",
				Help: "Exit signals by reason",
			},
			[]string{"reason"},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_open_positions",
				Help: "Number of open positions",
			},
		),

		CashBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_cash_balance",
				Help: "Current cash balance",
			},
		),

		PortfolioValue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "equityrun_portfolio_value",
				Help: "Marked portfolio value including cash",
			},
		),

		FeedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equityrun_feed_requests_total",
				Help: "Market data feed requests by result",
			},
			[]string{"result"},
		),

		FeedLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "equityrun_feed_latency_seconds",
				Help:    "Market data feed request latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}

	m.registry.MustRegister(
		m.CycleDuration, m.CycleErrors,
		m.SnapshotsComputed, m.SnapshotsSkipped,
		m.OpportunitiesEmitted, m.TopConfidence,
		m.TradesExecuted, m.GateRejections, m.ExitSignals,
		m.OpenPositions, m.CashBalance, m.PortfolioValue,
		m.FeedRequests, m.FeedLatency,
	)

	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
