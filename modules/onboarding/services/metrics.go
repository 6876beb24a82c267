package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheMetrics struct {
	requests    *prometheus.CounterVec
	invalidated *prometheus.CounterVec
	persisted   *prometheus.CounterVec
}

var getCacheMetrics = sync.OnceValue(func() *cacheMetrics {
	return &cacheMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of onboarding cache lookups broken down by cache and result.",
		}, []string{"cache", "result"}),
		invalidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "cache",
			Name:      "invalidate_total",
			Help:      "Total number of onboarding cache invalidations broken down by reason.",
		}, []string{"reason"}),
		persisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Subsystem: "entities",
			Name:      "persisted_total",
			Help:      "Total number of entities persisted broken down by kind.",
		}, []string{"kind"}),
	}
})

// result is one of hit, miss, negative or error.
func recordCacheRequest(cache, result string) {
	getCacheMetrics().requests.WithLabelValues(cache, result).Inc()
}

func recordCacheInvalidate(reason string) {
	if reason == "" {
		reason = "manual"
	}
	getCacheMetrics().invalidated.WithLabelValues(reason).Inc()
}

func recordPersisted(kind string) {
	getCacheMetrics().persisted.WithLabelValues(kind).Inc()
}
