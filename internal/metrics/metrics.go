package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// metricsOnce ensures metrics are registered only once
	metricsOnce sync.Once

	// vendorRequestsTotal tracks outbound vendor calls by vendor and HTTP status
	vendorRequestsTotal *prometheus.CounterVec

	// vendorRequestDuration tracks latency of outbound vendor calls
	vendorRequestDuration *prometheus.HistogramVec

	// actionInvocationsTotal tracks action invocations by outcome
	actionInvocationsTotal *prometheus.CounterVec

	// actionDuration tracks end-to-end action latency
	actionDuration *prometheus.HistogramVec

	// tokenRefreshTotal tracks bearer token regenerations
	tokenRefreshTotal *prometheus.CounterVec
)

// InitMetrics registers all Prometheus metrics.
// This should be called once at application startup
func InitMetrics() {
	metricsOnce.Do(func() {
		vendorRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soar_vendor_requests_total",
				Help: "Total number of vendor API calls by vendor and HTTP status",
			},
			[]string{"vendor", "status"},
		)

		vendorRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soar_vendor_request_duration_seconds",
				Help:    "Duration of vendor API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"vendor"},
		)

		actionInvocationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soar_action_invocations_total",
				Help: "Total number of action invocations by integration, action and outcome",
			},
			[]string{"integration", "action", "outcome"},
		)

		actionDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "soar_action_duration_seconds",
				Help:    "Duration of action invocations in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 900.0},
			},
			[]string{"integration"},
		)

		tokenRefreshTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "soar_token_refresh_total",
				Help: "Total number of cached token regenerations by vendor and result",
			},
			[]string{"vendor", "result"},
		)
	})
}

// RecordVendorRequest records one outbound call.
// status is the HTTP status code, or 0 when no response was received
func RecordVendorRequest(vendor string, status int, duration time.Duration) {
	if vendorRequestsTotal != nil {
		label := "error"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		vendorRequestsTotal.WithLabelValues(vendor, label).Inc()
	}
	if vendorRequestDuration != nil {
		vendorRequestDuration.WithLabelValues(vendor).Observe(duration.Seconds())
	}
}

// RecordAction records an action invocation
// outcome: "success", "soft_error", "error"
func RecordAction(integration, action, outcome string, duration time.Duration) {
	if actionInvocationsTotal != nil {
		actionInvocationsTotal.WithLabelValues(integration, action, outcome).Inc()
	}
	if actionDuration != nil {
		actionDuration.WithLabelValues(integration).Observe(duration.Seconds())
	}
}

// RecordTokenRefresh records a token regeneration
// result: "success", "error"
func RecordTokenRefresh(vendor, result string) {
	if tokenRefreshTotal != nil {
		tokenRefreshTotal.WithLabelValues(vendor, result).Inc()
	}
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.start)
}
