// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reason label values for orders_rejected_total.
const (
	ReasonValidation          = "validation"
	ReasonInsufficientCapital = "insufficient_capital"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backtest metrics
	RunsTotal      *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	SignalsTotal   *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	BarsProcessed  prometheus.Histogram
	LastRunEquity  prometheus.Gauge

	// Storage metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Feed metrics
	KlinesFetched   prometheus.Counter
	KlineRetries    prometheus.Counter
	StreamedCandles prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered on reg.
// A nil reg falls back to the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	const namespace = "chartlab"

	return &Metrics{
		// Backtest metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by strategy and terminal state",
		}, []string{"strategy", "state"}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_total",
			Help:      "Total number of closed trades by strategy and direction",
		}, []string{"strategy", "direction"}),
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_total",
			Help:      "Total number of entry signals emitted by strategy",
		}, []string{"strategy"}),
		OrdersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "orders_rejected_total",
			Help:      "Total number of orders rejected or dropped by reason",
		}, []string{"reason"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		BarsProcessed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "bars_processed",
			Help:      "Number of bars processed per backtest run",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
		LastRunEquity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "last_run_equity",
			Help:      "Final equity of the most recent backtest run",
		}),

		// Storage metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Store query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total number of store query errors",
		}, []string{"store", "operation"}),

		// Feed metrics
		KlinesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "klines_fetched_total",
			Help:      "Total number of klines fetched over REST",
		}),
		KlineRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "kline_retries_total",
			Help:      "Total number of kline request retries",
		}),
		StreamedCandles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "streamed_candles_total",
			Help:      "Total number of closed candles received over websocket",
		}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns the process-wide metrics registered on the default
// Prometheus registerer. Initialized lazily so binaries that never record
// anything register no collectors.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(nil)
	})
	return defaultMetrics
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRun records a terminal backtest run. Safe on a nil receiver so the
// core never checks for absent metrics.
func (m *Metrics) RecordRun(strategyID, state string, duration time.Duration, bars int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(strategyID, state).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.BarsProcessed.Observe(float64(bars))
}

// RecordTrade records a closed trade. Safe on a nil receiver.
func (m *Metrics) RecordTrade(strategyID, direction string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(strategyID, direction).Inc()
}

// RecordSignals adds n emitted signals for the strategy. Safe on a nil
// receiver.
func (m *Metrics) RecordSignals(strategyID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SignalsTotal.WithLabelValues(strategyID).Add(float64(n))
}

// RecordOrderRejected records a rejected or dropped order. Safe on a nil
// receiver.
func (m *Metrics) RecordOrderRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

// SetLastRunEquity updates the final-equity gauge. Safe on a nil receiver.
func (m *Metrics) SetLastRunEquity(equity float64) {
	if m == nil {
		return
	}
	m.LastRunEquity.Set(equity)
}

// RecordDBQuery records a store query. Safe on a nil receiver.
func (m *Metrics) RecordDBQuery(store, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
	}
}

// RecordKlines adds n fetched klines. Safe on a nil receiver.
func (m *Metrics) RecordKlines(n int) {
	if m == nil || n == 0 {
		return
	}
	m.KlinesFetched.Add(float64(n))
}

// RecordKlineRetry records one kline request retry. Safe on a nil receiver.
func (m *Metrics) RecordKlineRetry() {
	if m == nil {
		return
	}
	m.KlineRetries.Inc()
}

// RecordStreamedCandle records one closed candle from the websocket stream.
// Safe on a nil receiver.
func (m *Metrics) RecordStreamedCandle() {
	if m == nil {
		return
	}
	m.StreamedCandles.Inc()
}
