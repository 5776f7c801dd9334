package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetrics(t *testing.T) {
	// Should not panic when called
	InitMetrics()

	// Should be idempotent (safe to call multiple times)
	InitMetrics()
	InitMetrics()
}

func TestRecordVendorRequest(t *testing.T) {
	InitMetrics()

	before := testutil.ToFloat64(vendorRequestsTotal.WithLabelValues("metrics-test", "502"))
	RecordVendorRequest("metrics-test", 502, 10*time.Millisecond)
	after := testutil.ToFloat64(vendorRequestsTotal.WithLabelValues("metrics-test", "502"))

	if after-before != 1 {
		t.Errorf("Expected counter to increase by 1, got %v", after-before)
	}

	// No response received
	RecordVendorRequest("metrics-test", 0, time.Second)
	if v := testutil.ToFloat64(vendorRequestsTotal.WithLabelValues("metrics-test", "error")); v < 1 {
		t.Errorf("Expected error label to be recorded, got %v", v)
	}
}

func TestRecordAction(t *testing.T) {
	InitMetrics()

	tests := []struct {
		integration string
		action      string
		outcome     string
	}{
		{"regex", "find_keywords", "success"},
		{"logrhythm", "get_alarm", "soft_error"},
		{"twinwave", "wait_for_job_completion", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.integration+"_"+tt.outcome, func(t *testing.T) {
			RecordAction(tt.integration, tt.action, tt.outcome, 100*time.Millisecond)
			v := testutil.ToFloat64(actionInvocationsTotal.WithLabelValues(tt.integration, tt.action, tt.outcome))
			if v < 1 {
				t.Errorf("Expected invocation to be counted, got %v", v)
			}
		})
	}
}

func TestRecordTokenRefresh(t *testing.T) {
	InitMetrics()

	// Should not panic
	RecordTokenRefresh("securonix", "success")
	RecordTokenRefresh("securonix", "error")
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(5 * time.Millisecond)
	if timer.Elapsed() < 5*time.Millisecond {
		t.Errorf("Expected elapsed >= 5ms, got %v", timer.Elapsed())
	}

	var nilTimer *Timer
	if nilTimer.Elapsed() != 0 {
		t.Error("Expected nil timer to report zero")
	}
}
