// Package metrics exports Prometheus collectors for the evidence pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procminer"

// Outcome label values
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeConflict = "conflict"
	OutcomeDegraded = "degraded"
)

// Metrics holds the pipeline collectors
type Metrics struct {
	UnitsRunning    prometheus.Gauge
	UnitsTotal      *prometheus.CounterVec
	UnitDuration    *prometheus.HistogramVec
	ReadinessWait   *prometheus.HistogramVec
	ReductionsTotal *prometheus.CounterVec
	RouterDecisions *prometheus.CounterVec
	StoreSaves      *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UnitsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units_running",
			Help:      "Analysis units currently holding a pool slot",
		}),
		UnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Analysis units finished by kind and outcome",
		}, []string{"kind", "outcome"}),
		UnitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time of one analysis unit including upload and generation",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"kind"}),
		ReadinessWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readiness_wait_seconds",
			Help:      "Time from upload until an artifact reached a terminal state",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		ReductionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reductions_total",
			Help:      "Merge calls by kind (merge, update) and outcome",
		}, []string{"kind", "outcome"}),
		RouterDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_decisions_total",
			Help:      "Routing decisions by action; fallback counts absorbed parse failures",
		}, []string{"action"}),
		StoreSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_saves_total",
			Help:      "Knowledge store writes by backend and outcome",
		}, []string{"backend", "outcome"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Pipeline requests by mode and status",
		}, []string{"mode", "status"}),
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End to end pipeline duration",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return OutcomeOK
	}
	return OutcomeFailed
}

// UnitStarted marks a unit as holding a pool slot
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.UnitsRunning.Inc()
}

// UnitFinished records a unit leaving the pool
func (m *Metrics) UnitFinished(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UnitsRunning.Dec()
	m.UnitsTotal.WithLabelValues(kind, outcome(ok)).Inc()
	m.UnitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) ReadinessWaited(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ReadinessWait.WithLabelValues(outcome(ok)).Observe(elapsed.Seconds())
}

func (m *Metrics) Reduced(kind string, ok bool) {
	if m == nil {
		return
	}
	m.ReductionsTotal.WithLabelValues(kind, outcome(ok)).Inc()
}

func (m *Metrics) Routed(action string) {
	if m == nil {
		return
	}
	m.RouterDecisions.WithLabelValues(action).Inc()
}

func (m *Metrics) Saved(backend, result string) {
	if m == nil {
		return
	}
	m.StoreSaves.WithLabelValues(backend, result).Inc()
}

// RequestFinished records one pipeline run; status is created, updated or failed.
func (m *Metrics) RequestFinished(mode, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(mode, status).Inc()
	m.RequestDuration.Observe(elapsed.Seconds())
}

// Handler serves the exposition format for g
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
