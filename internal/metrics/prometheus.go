package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the translation service
type Metrics struct {
	// Pipeline metrics
	PipelineRequests *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageFailures    *prometheus.CounterVec
	AudioConversions prometheus.Counter

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PipelineRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canto_pipeline_requests_total",
			Help: "Total number of uploads processed, by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canto_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canto_pipeline_failures_total",
			Help: "Total number of pipeline failures, by stage",
		}, []string{"stage"}),
		AudioConversions: factory.NewCounter(prometheus.CounterOpts{
			Name: "canto_audio_conversions_total",
			Help: "Total number of uploads that needed transcoding",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "canto_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}
