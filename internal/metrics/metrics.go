// Package metrics exposes Prometheus collectors for the roll-up service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	storeReadsTotal            *prometheus.CounterVec
	leaseContentionTotal       *prometheus.CounterVec
	groupsResolvedTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		storeReadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollup_store_reads_total",
				Help: "Total number of work item snapshot reads, labeled by mode.",
			},
			[]string{"mode"},
		)

		leaseContentionTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollup_lease_contention_total",
				Help: "Publish requests rejected because the group lease was held.",
			},
			[]string{"track"},
		)

		groupsResolvedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollup_groups_resolved_total",
				Help: "Groups resolved by the aggregator, labeled by resolved status.",
			},
			[]string{"status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveStoreRead counts one snapshot read. Mode is "list" or "stream".
func ObserveStoreRead(mode string) {
	storeReadsTotal.WithLabelValues(mode).Inc()
}

// ObserveLeaseContention counts a publish rejected by a held lease.
func ObserveLeaseContention(track string) {
	leaseContentionTotal.WithLabelValues(track).Inc()
}

// ObserveGroupResolved counts a resolved group by status.
func ObserveGroupResolved(status string) {
	groupsResolvedTotal.WithLabelValues(status).Inc()
}
