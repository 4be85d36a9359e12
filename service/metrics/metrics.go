package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess             = "success"
	ResultClassificationError = "classification_error"

	StepTake     = "take"
	StepFetch    = "fetch"
	StepComplete = "complete"
)

var (
	once sync.Once

	// TasksProcessed counts completed cycles by classification outcome.
	TasksProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskworker",
		Subsystem: "imageclassifier",
		Name:      "tasks_processed_total",
		Help:      "Total number of tasks reported to the task bridge, labeled by result.",
	}, []string{"result"})

	TaskDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskworker",
		Subsystem: "imageclassifier",
		Name:      "task_processing_duration_seconds",
		Help:      "Time from taking a task to reporting it.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	TakeEmptyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskworker",
		Subsystem: "imageclassifier",
		Name:      "take_empty_total",
		Help:      "Total number of take requests that returned no task.",
	})

	CycleErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskworker",
		Subsystem: "imageclassifier",
		Name:      "cycle_errors_total",
		Help:      "Total number of cycles aborted by a task bridge failure, labeled by step.",
	}, []string{"step"})

	LastTaskSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskworker",
		Subsystem: "imageclassifier",
		Name:      "last_task_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last task taken.",
	})
)

// Register registers the worker metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			TasksProcessed,
			TaskDurationSeconds,
			TakeEmptyTotal,
			CycleErrorsTotal,
			LastTaskSeconds,
		)
	})
}
