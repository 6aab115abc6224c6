package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/realtime-site-auditor/internal/progress"
)

// PrometheusSink exports session lifecycle and unit counters.
type PrometheusSink struct {
	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionsRunning  prometheus.Gauge
	sessionRuntime   *prometheus.HistogramVec
	units            *prometheus.CounterVec
	unitDuration     *prometheus.HistogramVec

	running *runningSet
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_progress_sessions_started_total",
			Help: "Sessions that have started, by kind.",
		}, []string{"kind"}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_progress_sessions_finished_total",
			Help: "Sessions that reached a terminal status.",
		}, []string{"kind", "status"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_progress_sessions_running",
			Help: "Sessions currently running.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_progress_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind", "status"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_progress_units_total",
			Help: "Finished units by kind and outcome.",
		}, []string{"kind", "outcome"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditor_progress_unit_duration_seconds",
			Help:    "Unit latency by kind.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 180},
		}, []string{"kind"}),
		running: &runningSet{ids: make(map[string]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsFinished,
		s.sessionsRunning,
		s.sessionRuntime,
		s.units,
		s.unitDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		kind := string(evt.Kind)
		if kind == "" {
			kind = "unknown"
		}
		switch {
		case evt.Stage == progress.StageSessionStart:
			s.sessionsStarted.WithLabelValues(kind).Inc()
			if s.running.add(evt.SessionID) {
				s.sessionsRunning.Inc()
			}
		case evt.Stage == progress.StageUnitDone:
			s.units.WithLabelValues(kind, string(evt.Outcome)).Inc()
			if evt.Dur > 0 {
				s.unitDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
			}
		case evt.Terminal():
			status := statusLabel(evt.Stage)
			s.sessionsFinished.WithLabelValues(kind, status).Inc()
			if evt.Dur > 0 {
				s.sessionRuntime.WithLabelValues(kind, status).Observe(evt.Dur.Seconds())
			}
			if s.running.remove(evt.SessionID) {
				s.sessionsRunning.Dec()
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func statusLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageSessionDone:
		return "completed"
	case progress.StageSessionStopped:
		return "stopped"
	default:
		return "error"
	}
}

type runningSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (r *runningSet) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runningSet) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
