package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

var supervisedExitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "uniframe_supervised_exits_total",
		Help: "Total number of supervised workers by the terminal status written.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(supervisedExitsTotal)
}

func recordExit(status models.TaskStatus) {
	supervisedExitsTotal.WithLabelValues(string(status)).Inc()
}
