// Package metrics holds the Prometheus collectors shared by the gateway and the processor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsp_jobs_processed_total",
		Help: "Jobs handled by the processor, by resulting outcome",
	}, []string{"queue", "provider", "outcome"})

	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsp_provider_call_duration_seconds",
		Help:    "Latency of outbound provider calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"provider", "operation"})

	ReconciliationRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsp_reconciliation_rows_total",
		Help: "Rows checked by the reconciliation sweep",
	}, []string{"provider", "result"})

	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsp_callbacks_total",
		Help: "Provider callbacks received, by result",
	}, []string{"provider", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fsp_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	QueuePurges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fsp_queue_purges_total",
		Help: "Completed purge-all-queues operations",
	})
)

// ObserveProviderCall records the latency of one provider call started at start
func ObserveProviderCall(provider, operation string, start time.Time) {
	ProviderCallDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// ObserveHTTPRequest counts one served request
func ObserveHTTPRequest(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
