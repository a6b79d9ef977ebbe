// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. One instance is
// constructed at process start and shared by reference.
type Metrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	ProviderCalls *prometheus.CounterVec
	LeadsSeen     prometheus.Counter
	LeadsWritten  prometheus.Counter
	PagesFetched  prometheus.Counter
	QueueDepth    *prometheus.GaugeVec
	TasksConsumed *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_jobs_started_total",
			Help: "Campaign jobs claimed by a runner.",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_completed_total",
			Help: "Campaign jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_provider_calls_total",
			Help: "Lead provider page fetches, by outcome.",
		}, []string{"outcome"}),
		LeadsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_leads_processed_total",
			Help: "Provider records seen, including rejected and duplicate ones.",
		}),
		LeadsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_leads_written_total",
			Help: "Leads persisted and appended to the sheet.",
		}),
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_pages_fetched_total",
			Help: "Provider result pages processed.",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Tasks currently in a queue, by queue and state.",
		}, []string{"queue", "state"}),
		TasksConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_tasks_consumed_total",
			Help: "Queue tasks consumed by workers, by queue and outcome.",
		}, []string{"queue", "outcome"}),

		registry: reg,
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
