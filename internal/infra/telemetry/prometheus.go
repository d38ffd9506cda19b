// Package telemetry exposes engine observations over Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolmesh/internal/domain"
)

type PrometheusMetrics struct {
	healthCheckDuration *prometheus.HistogramVec
	discoveryDuration   *prometheus.HistogramVec
	discoveredTools     *prometheus.GaugeVec
	executionDuration   *prometheus.HistogramVec
	executionAttempts   *prometheus.HistogramVec
	executionCacheHits  *prometheus.CounterVec
	selectionConfidence prometheus.Histogram
	selectionCandidates prometheus.Histogram
	inflightExecutions  prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		healthCheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_health_check_duration_seconds",
				Help:    "Duration of server health probes in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"endpoint", "status"},
		),
		discoveryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_discovery_duration_seconds",
				Help:    "Duration of per-endpoint tool discovery in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "status"},
		),
		discoveredTools: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolmesh_discovered_tools",
				Help: "Number of tools discovered per endpoint",
			},
			[]string{"endpoint"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint", "tool", "status"},
		),
		executionAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_execution_attempts",
				Help:    "Attempts consumed per tool execution including retries",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"endpoint", "tool"},
		),
		executionCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_execution_cache_hits_total",
				Help: "Total executions served from the result cache",
			},
			[]string{"endpoint", "tool"},
		),
		selectionConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolmesh_selection_confidence",
				Help:    "Confidence of the top-ranked tool per selection",
				Buckets: []float64{.1, .25, .5, .75, .9, 1},
			},
		),
		selectionCandidates: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolmesh_selection_candidates",
				Help:    "Number of candidate tools above the confidence cutoff per selection",
				Buckets: []float64{1, 2, 5, 10, 25, 50},
			},
		),
		inflightExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolmesh_inflight_executions",
				Help: "Executions currently holding a concurrency slot",
			},
		),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *PrometheusMetrics) ObserveHealthCheck(endpoint string, duration time.Duration, err error) {
	p.healthCheckDuration.WithLabelValues(endpoint, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveDiscovery(endpoint string, duration time.Duration, toolCount int, err error) {
	p.discoveryDuration.WithLabelValues(endpoint, statusLabel(err)).Observe(duration.Seconds())
	if err == nil {
		p.discoveredTools.WithLabelValues(endpoint).Set(float64(toolCount))
	}
}

func (p *PrometheusMetrics) ObserveExecution(endpoint, tool string, duration time.Duration, attempts int, err error) {
	p.executionDuration.WithLabelValues(endpoint, tool, statusLabel(err)).Observe(duration.Seconds())
	p.executionAttempts.WithLabelValues(endpoint, tool).Observe(float64(attempts))
}

func (p *PrometheusMetrics) ObserveExecutionCacheHit(endpoint, tool string) {
	p.executionCacheHits.WithLabelValues(endpoint, tool).Inc()
}

func (p *PrometheusMetrics) ObserveSelection(confidence float64, candidates int) {
	p.selectionConfidence.Observe(confidence)
	p.selectionCandidates.Observe(float64(candidates))
}

func (p *PrometheusMetrics) IncInflight() {
	p.inflightExecutions.Inc()
}

func (p *PrometheusMetrics) DecInflight() {
	p.inflightExecutions.Dec()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
