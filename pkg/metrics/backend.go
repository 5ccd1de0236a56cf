package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics records calls the API client makes against the storefront backend.
type BackendMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewBackendMetrics registers the backend client metrics on the provided registerer.
func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	if reg == nil {
		return &BackendMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_backend_request_duration_seconds",
		Help:    "Duration of backend API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_backend_requests_total",
		Help: "Backend API calls by operation and response status.",
	}, []string{"operation", "status"})
	reg.MustRegister(duration, requests)
	return &BackendMetrics{
		duration: duration,
		requests: requests,
	}
}

// Observe records one finished call. status 0 means the request never got a response.
func (m *BackendMetrics) Observe(operation string, status int, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(op, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}

func normalizeLabel(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
