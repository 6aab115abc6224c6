// Package metrics exposes Prometheus collectors for the auditor service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	unitsTotal                 *prometheus.CounterVec
	sessionsTotal              *prometheus.CounterVec
	activeSessions             prometheus.Gauge
	gateWaitSeconds            *prometheus.HistogramVec
	videoEncodeSeconds         prometheus.Histogram
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		unitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_units_total",
				Help: "Total number of attempted units, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		sessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditor_sessions_total",
				Help: "Total number of finished sessions, labeled by kind and final status.",
			},
			[]string{"kind", "status"},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "auditor_active_sessions",
				Help: "Number of sessions currently being processed by a worker.",
			},
		)

		gateWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditor_gate_wait_seconds",
				Help:    "Time units spent waiting for a concurrency permit.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"kind"},
		)

		videoEncodeSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auditor_video_encode_seconds",
				Help:    "Time spent normalizing frames and encoding a video.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditor_rate_limit_delays_seconds",
				Help:    "Histogram of per-host navigation throttling waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

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
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit counts one attempted unit.
func ObserveUnit(kind, outcome string) {
	Init()
	unitsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSession counts a finished session.
func ObserveSession(kind, status string) {
	Init()
	sessionsTotal.WithLabelValues(kind, status).Inc()
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObserveGateWait records how long a unit waited for its permit.
func ObserveGateWait(kind string, d time.Duration) {
	Init()
	gateWaitSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveVideoEncode records one frame assembly.
func ObserveVideoEncode(d time.Duration) {
	Init()
	videoEncodeSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, d time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}
