package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the analysis pipeline.
type Metrics struct {
	AnalysisDur     *prometheus.HistogramVec
	HTTPDur         *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec // labels: operation, outcome
	CacheLookups    *prometheus.CounterVec // labels: result=hit|miss|error
	FeedFallbacks   prometheus.Counter
	ArchiveWrites   prometheus.Counter
	PatternFailures *prometheus.CounterVec // labels: pattern
	Suggestions     *prometheus.CounterVec // labels: type

	gatherer prometheus.Gatherer
}

// New registers every collector with reg. A nil reg means the default
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		AnalysisDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signaldesk_analysis_duration_seconds",
			Help:    "Time spent computing indicators and signals per request",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"operation"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldesk_requests_total",
			Help: "Analysis requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldesk_kline_cache_lookups_total",
			Help: "Redis kline cache lookups by result",
		}, []string{"result"}),
		FeedFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaldesk_archive_fallbacks_total",
			Help: "Requests served from the Postgres archive because the exchange was unavailable",
		}),
		ArchiveWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaldesk_archive_writes_total",
			Help: "Kline batches written to the archive",
		}),
		PatternFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldesk_pattern_failures_total",
			Help: "Candlestick detectors that panicked and were skipped",
		}, []string{"pattern"}),
		Suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaldesk_suggestions_total",
			Help: "Trade suggestions emitted by type",
		}, []string{"type"}),
		HTTPDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signaldesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route template and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.AnalysisDur,
		m.RequestsTotal,
		m.CacheLookups,
		m.FeedFallbacks,
		m.ArchiveWrites,
		m.PatternFailures,
		m.Suggestions,
		m.HTTPDur,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the registry the collectors were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Outcome(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
}
