package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

var (
	workerLaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniframe_worker_launches_total",
			Help: "Total number of worker launches accepted by a backend.",
		},
		[]string{"task_type", "backend"},
	)

	workerLaunchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniframe_worker_launch_failures_total",
			Help: "Total number of worker launches the platform rejected.",
		},
		[]string{"task_type", "backend"},
	)
)

func init() {
	prometheus.MustRegister(workerLaunchesTotal)
	prometheus.MustRegister(workerLaunchFailuresTotal)
}

func recordLaunch(taskType models.TaskType, backend string) {
	workerLaunchesTotal.WithLabelValues(string(taskType), backend).Inc()
}

func recordLaunchFailure(taskType models.TaskType, backend string) {
	workerLaunchFailuresTotal.WithLabelValues(string(taskType), backend).Inc()
}
