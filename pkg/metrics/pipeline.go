package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Decision groups collapsed into wide rows, by pipeline stage
	GroupsCollapsed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mimic_groups_collapsed_total",
		Help: "Decision groups collapsed into fixed-width rows",
	}, []string{"stage"})

	// Decision groups rejected by a data-quality check
	GroupErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mimic_group_errors_total",
		Help: "Decision groups rejected, by stage and error kind",
	}, []string{"stage", "kind"})

	RecordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mimic_records_written_total",
		Help: "Fixed-width records written to record files",
	})

	PredictionsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mimic_predictions_written_total",
		Help: "Prediction rows written back to the warehouse",
	})

	PartitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mimic_partition_duration_seconds",
		Help:    "Wall time of one partition invocation",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"stage", "split"})

	JobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mimic_jobs_submitted_total",
		Help: "Partition jobs submitted to the job queue",
	}, []string{"definition"})

	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mimic_dispatch_latency_seconds",
		Help:    "Latency of dispatch API handlers",
		Buckets: prometheus.DefBuckets,
	})
)

func Init() {
	prometheus.MustRegister(
		GroupsCollapsed,
		GroupErrors,
		RecordsWritten,
		PredictionsWritten,
		PartitionDuration,
		JobsSubmitted,
		DispatchLatency,
	)
}
