package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records engine-level counters. A noop implementation backs
// deployments that run with metrics disabled.
type Metrics interface {
	IncPipelineRun(status string)
	IncProviderCall(provider, outcome string)
	ObserveProviderLatency(provider string, d time.Duration)
	IncNotification(outcome string)
}

type promMetrics struct {
	pipelineRuns    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
}

func NewMetrics(enabled bool) Metrics {
	if !enabled {
		return &noopMetrics{}
	}

	return &promMetrics{
		pipelineRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_pipeline_runs_total",
			Help: "Generation pipeline runs by final status",
		}, []string{"status"}),

		providerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_provider_calls_total",
			Help: "AI provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),

		providerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radio_provider_latency_seconds",
			Help:    "AI provider call latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),

		notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "radio_notifications_total",
			Help: "Notifier sends by outcome",
		}, []string{"outcome"}),
	}
}

func (m *promMetrics) IncPipelineRun(status string) {
	m.pipelineRuns.WithLabelValues(status).Inc()
}

func (m *promMetrics) IncProviderCall(provider, outcome string) {
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *promMetrics) ObserveProviderLatency(provider string, d time.Duration) {
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *promMetrics) IncNotification(outcome string) {
	m.notifications.WithLabelValues(outcome).Inc()
}

type noopMetrics struct{}

func (*noopMetrics) IncPipelineRun(string)                         {}
func (*noopMetrics) IncProviderCall(string, string)                {}
func (*noopMetrics) ObserveProviderLatency(string, time.Duration)  {}
func (*noopMetrics) IncNotification(string)                        {}
