package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 指标收集器
type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	lastSuccess        prometheus.Gauge
	sourceFetch        *prometheus.CounterVec
	sourceRecords      *prometheus.GaugeVec
	fillsNormalized    *prometheus.CounterVec
	tradesAggregated   *prometheus.CounterVec
	rowsWritten        *prometheus.CounterVec
	portfolioValue     *prometheus.GaugeVec
	websocketConnected prometheus.Gauge
	natsConnected      prometheus.Gauge
	wsTriggers         prometheus.Counter
}

// NewMetrics 创建并注册到默认 registry
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of sync runs",
			},
			[]string{"status"}, // ok, partial, failed
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "同步耗时分布",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run that was not failed",
			},
		),
		sourceFetch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Total number of source fetches",
			},
			[]string{"source", "status"}, // success, error
		),
		sourceRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_records",
				Help:      "Records fetched from each source in the last run",
			},
			[]string{"source"},
		),
		fillsNormalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_total",
				Help:      "Total number of raw fills by normalization result",
			},
			[]string{"result"}, // normalized, skipped, dropped
		),
		tradesAggregated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_aggregated_total",
				Help:      "Total number of trades emitted by the aggregation engine",
			},
			[]string{"kind"}, // matched, standalone
		),
		rowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of rows handed to the store",
			},
			[]string{"table", "result"}, // written, duplicate, failed
		),
		portfolioValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_value_usd",
				Help:      "Portfolio value per source in USD",
			},
			[]string{"source"},
		),
		websocketConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connected",
				Help:      "WebSocket connection status (1=connected, 0=disconnected)",
			},
		),
		natsConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nats_connected",
				Help:      "NATS connection status (1=connected, 0=disconnected)",
			},
		),
		wsTriggers: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_triggers_total",
				Help:      "Sync runs triggered by websocket fills",
			},
		),
	}

	prometheus.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.lastSuccess,
		m.sourceFetch,
		m.sourceRecords,
		m.fillsNormalized,
		m.tradesAggregated,
		m.rowsWritten,
		m.portfolioValue,
		m.websocketConnected,
		m.natsConnected,
		m.wsTriggers,
	)

	return m
}

func (m *Metrics) ObserveRun(status string, seconds float64, unixNow int64) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
	if status != "failed" {
		m.lastSuccess.Set(float64(unixNow))
	}
}

func (m *Metrics) IncSourceFetch(source string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	m.sourceFetch.WithLabelValues(source, status).Inc()
}

func (m *Metrics) SetSourceRecords(source string, n int) {
	m.sourceRecords.WithLabelValues(source).Set(float64(n))
}

func (m *Metrics) AddFills(normalized, skipped, dropped int) {
	m.fillsNormalized.WithLabelValues("normalized").Add(float64(normalized))
	m.fillsNormalized.WithLabelValues("skipped").Add(float64(skipped))
	m.fillsNormalized.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) AddTrades(matched, standalone int) {
	m.tradesAggregated.WithLabelValues("matched").Add(float64(matched))
	m.tradesAggregated.WithLabelValues("standalone").Add(float64(standalone))
}

func (m *Metrics) AddRows(table string, written, duplicates, failed int) {
	m.rowsWritten.WithLabelValues(table, "written").Add(float64(written))
	m.rowsWritten.WithLabelValues(table, "duplicate").Add(float64(duplicates))
	m.rowsWritten.WithLabelValues(table, "failed").Add(float64(failed))
}

func (m *Metrics) SetPortfolioValue(source string, usd float64) {
	m.portfolioValue.WithLabelValues(source).Set(usd)
}

// SetWebSocketConnected 设置WebSocket连接状态
func (m *Metrics) SetWebSocketConnected(connected bool) {
	if connected {
		m.websocketConnected.Set(1)
	} else {
		m.websocketConnected.Set(0)
	}
}

// SetNATSConnected 设置NATS连接状态
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.natsConnected.Set(1)
	} else {
		m.natsConnected.Set(0)
	}
}

func (m *Metrics) IncWSTriggers() {
	m.wsTriggers.Inc()
}

var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics 获取全局指标收集器
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics("portfolio_sync")
	})
	return globalMetrics
}
