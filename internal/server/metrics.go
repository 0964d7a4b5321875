package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// counters
	CounterRequests *prometheus.CounterVec
	CounterExports  *prometheus.CounterVec
	CounterPreviews prometheus.Counter

	// gauges
	GaugeExportsInFlight prometheus.Gauge

	// histograms
	HistRequestDuration prometheus.Histogram
	HistExportDuration  *prometheus.HistogramVec
}

func NewTestMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMetrics("swimprogress", "test_server", reg), reg
}

func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming requests",
		}, []string{"method", "status"}),
		CounterExports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "export",
			Help:      "The total number of export attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		CounterPreviews: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "preview",
			Help:      "The total number of preview updates served",
		}),
		GaugeExportsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exports_in_flight",
			Help:      "Exports currently rendering or encoding",
		}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60},
		}),
		HistExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "export_duration_seconds",
			Help:      "Duration of successful exports in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
	}
}
