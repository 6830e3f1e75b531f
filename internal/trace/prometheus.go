package trace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lumenforge/agentrt/pkg/models"
)

// PrometheusExporter records span counts and durations as Prometheus
// metrics on every root span close, composing with (not replacing)
// the console/callback exporters spec.md §4.6 requires — wrap it
// together with another Exporter via MultiExporter to keep both.
type PrometheusExporter struct {
	spanCount    *prometheus.CounterVec
	spanDuration *prometheus.HistogramVec
}

// NewPrometheusExporter registers its metrics with reg. A nil reg
// leaves the metrics unregistered (promauto.With(nil)).
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		spanCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_spans_total",
				Help: "Total number of root spans exported, by kind and status.",
			},
			[]string{"kind", "status"},
		),
		spanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_span_duration_seconds",
				Help:    "Duration of root spans in seconds, by kind.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
	}
}

// Export implements Exporter.
func (p *PrometheusExporter) Export(span *models.Span) {
	p.spanCount.WithLabelValues(string(span.Kind), string(span.Status)).Inc()
	p.spanDuration.WithLabelValues(string(span.Kind)).Observe(span.Duration().Seconds())
}

// MultiExporter fans a span out to every underlying Exporter.
type MultiExporter []Exporter

// Export implements Exporter.
func (m MultiExporter) Export(span *models.Span) {
	for _, e := range m {
		e.Export(span)
	}
}
