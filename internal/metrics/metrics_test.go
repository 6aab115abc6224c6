package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestAuditCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(unitsTotal.WithLabelValues("heading", "ok"))
	ObserveUnit("heading", "ok")
	if got := testutil.ToFloat64(unitsTotal.WithLabelValues("heading", "ok")); got != before+1 {
		t.Errorf("auditor_units_total = %f, want %f", got, before+1)
	}

	gauge := testutil.ToFloat64(activeSessions)
	IncActiveSessions()
	DecActiveSessions()
	if got := testutil.ToFloat64(activeSessions); got != gauge {
		t.Errorf("auditor_active_sessions = %f, want %f", got, gauge)
	}

	ObserveSession("static", "completed")
	ObserveGateWait("video", 20*time.Millisecond)
	ObserveVideoEncode(time.Second)
	if testutil.CollectAndCount(gateWaitSeconds, "auditor_gate_wait_seconds") == 0 {
		t.Error("expected gate wait observation")
	}
	if testutil.CollectAndCount(videoEncodeSeconds, "auditor_video_encode_seconds") != 1 {
		t.Error("expected video encode observation")
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
