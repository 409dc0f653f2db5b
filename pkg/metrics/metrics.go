package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coursebay", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coursebay", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coursebay", Subsystem: "tasks", Name: "processed_total", Help: "Task attempts by task type and outcome."},
		[]string{"task_type", "outcome"},
	)
	TaskLockContended = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "coursebay", Subsystem: "tasks", Name: "lock_contended_total", Help: "Task runs skipped because another worker held the lock."},
	)
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "coursebay", Subsystem: "tasks", Name: "duration_seconds", Help: "Duration of a single task attempt.", Buckets: prometheus.DefBuckets},
		[]string{"task_type"},
	)
	BatchesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "coursebay", Subsystem: "tasks", Name: "batches_completed_total", Help: "Completed batches by batch type."},
		[]string{"batch_type"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TasksProcessed)
	reg.MustRegister(TaskLockContended)
	reg.MustRegister(TaskDuration)
	reg.MustRegister(BatchesCompleted)
}
