package workqueue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	readTotal      *prometheus.CounterVec
	processTotal   *prometheus.CounterVec
	publishTotal   *prometheus.CounterVec
	deadTotal      *prometheus.CounterVec
	reclaimedTotal *prometheus.CounterVec

	processLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		readTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "read_total",
			Help:      "Total number of queue reads broken down by result.",
		}, []string{"group", "result"}),
		processTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "process_total",
			Help:      "Total number of processed work items broken down by kind and outcome.",
		}, []string{"kind", "outcome"}),
		publishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "publish_total",
			Help:      "Total number of published work items broken down by kind and reason.",
		}, []string{"kind", "reason"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "dead_total",
			Help:      "Total number of work items abandoned without further retries.",
		}, []string{"kind", "reason"}),
		reclaimedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "reclaimed_total",
			Help:      "Total number of stale claims returned to the queue.",
		}, []string{"group"}),
		processLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "onboarding",
			Subsystem: "queue",
			Name:      "process_latency_seconds",
			Help:      "Latency distribution for work item processing.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"kind", "outcome"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
