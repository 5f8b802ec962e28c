package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rivwidthcloud/internal/domain"
)

// Metrics holds the Prometheus metrics of a dispatch run
type Metrics struct {
	registry *prometheus.Registry

	TaskOutcomes    *prometheus.CounterVec
	TaskRetries     *prometheus.CounterVec
	SubmitDuration  *prometheus.HistogramVec
	SessionRenewals prometheus.Counter
}

// New creates a Metrics instance on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		TaskOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwc_task_outcomes_total",
				Help: "Total number of task outcomes by mode and status",
			},
			[]string{"mode", "status"},
		),
		TaskRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rwc_task_retries_total",
				Help: "Total number of tasks retried after a session renewal",
			},
			[]string{"mode"},
		),
		SubmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rwc_submit_duration_seconds",
				Help:    "Time spent submitting one task, retries included",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"mode", "status"},
		),
		SessionRenewals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rwc_session_renewals_total",
				Help: "Total number of remote session renewals",
			},
		),
	}
}

// Record implements domain.OutcomeRecorder
func (m *Metrics) Record(outcome domain.TaskOutcome) {
	mode := outcome.Task.Mode.String()
	status := outcome.Status.String()

	m.TaskOutcomes.WithLabelValues(mode, status).Inc()
	if outcome.Attempts > 1 {
		m.TaskRetries.WithLabelValues(mode).Inc()
	}
	if outcome.Attempts > 0 {
		m.SubmitDuration.WithLabelValues(mode, status).Observe(outcome.Duration.Seconds())
	}
}

// WriteTextfile writes all metrics in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
