// Package runner executes audit sessions. Each job kind has a Runner that
// expands the session into units, drives browser pages under a concurrency
// gate and persists one result per attempted unit.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/frames"
	"github.com/JakeFAU/realtime-site-auditor/internal/gate"
	"github.com/JakeFAU/realtime-site-auditor/internal/metrics"
	"github.com/JakeFAU/realtime-site-auditor/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-site-auditor/internal/postprocess"
	"github.com/JakeFAU/realtime-site-auditor/internal/progress"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
	"github.com/JakeFAU/realtime-site-auditor/internal/tracker"
)

// Runner executes every unit of a session of one kind.
type Runner interface {
	Kind() audit.Kind
	// Run returns a non-nil error only for session-fatal failures. Unit
	// failures are recorded as error results.
	Run(ctx context.Context, job *Job) error
}

// Set maps kinds to runners.
type Set struct {
	runners map[audit.Kind]Runner
}

// NewSet registers runners by their kind. Later entries win.
func NewSet(runners ...Runner) *Set {
	s := &Set{runners: make(map[audit.Kind]Runner, len(runners))}
	for _, r := range runners {
		s.runners[r.Kind()] = r
	}
	return s
}

// DefaultSet registers a runner for every supported kind.
func DefaultSet() *Set {
	inspections := []Runner{
		NewHeadingRunner(),
		NewPhoneRunner(),
		NewAccessibilityRunner(),
		NewPerformanceRunner(),
	}
	all := append([]Runner{StaticRunner{}, VideoRunner{}, VisualDiffRunner{}}, inspections...)
	return NewSet(append(all, NewUnifiedRunner(inspections...))...)
}

// Lookup returns the runner for kind.
func (s *Set) Lookup(kind audit.Kind) (Runner, error) {
	r, ok := s.runners[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no runner for kind %q", audit.ErrInvalidSpec, kind)
	}
	return r, nil
}

// Kinds lists the registered kinds.
func (s *Set) Kinds() []audit.Kind {
	out := make([]audit.Kind, 0, len(s.runners))
	for k := range s.runners {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Timings collects the navigation bounds and pacing pauses of the runners.
type Timings struct {
	StaticNavigation time.Duration
	StaticIdle       time.Duration
	ScrollStep       int
	ScrollPause      time.Duration
	BottomPause      time.Duration
	TopPause         time.Duration

	VideoNavigation time.Duration
	VideoIdle       time.Duration
	VideoSettle     time.Duration
	VideoStepPause  time.Duration

	InspectionNavigation time.Duration
	InspectionIdle       time.Duration
	InspectionSettle     time.Duration
}

// DefaultTimings are the production pacing values.
var DefaultTimings = Timings{
	StaticNavigation: 45 * time.Second,
	StaticIdle:       5 * time.Second,
	ScrollStep:       1000,
	ScrollPause:      50 * time.Millisecond,
	BottomPause:      time.Second,
	TopPause:         500 * time.Millisecond,

	VideoNavigation: 60 * time.Second,
	VideoIdle:       10 * time.Second,
	VideoSettle:     time.Second,
	VideoStepPause:  200 * time.Millisecond,

	InspectionNavigation: 90 * time.Second,
	InspectionIdle:       10 * time.Second,
	InspectionSettle:     2 * time.Second,
}

// InstantTimings keeps the navigation bounds but drops every pause.
var InstantTimings = Timings{
	StaticNavigation:     5 * time.Second,
	ScrollStep:           1000,
	VideoNavigation:      5 * time.Second,
	InspectionNavigation: 5 * time.Second,
}

// Env holds the collaborators shared by every session.
type Env struct {
	Engine    browser.Engine
	Results   store.ResultRepository
	Blobs     audit.BlobStore
	Pool      *postprocess.Pool
	Assembler *frames.Assembler
	Limiter   *ratelimit.Limiter
	Emitter   progress.Emitter
	Clock     audit.Clock
	IDs       audit.IDGenerator
	Hasher    audit.Hasher
	Tracer    trace.Tracer
	Logger    *zap.Logger

	Limits      gate.Limits
	Timings     Timings
	WebPQuality int
	FramesDir   string
}

// Validate checks the required collaborators and fills optional ones.
func (e *Env) Validate() error {
	switch {
	case e.Engine == nil:
		return fmt.Errorf("browser engine is required")
	case e.Results == nil:
		return fmt.Errorf("result repository is required")
	case e.Blobs == nil:
		return fmt.Errorf("blob store is required")
	case e.Pool == nil:
		return fmt.Errorf("post-process pool is required")
	case e.Clock == nil:
		return fmt.Errorf("clock is required")
	case e.IDs == nil:
		return fmt.Errorf("id generator is required")
	case e.Hasher == nil:
		return fmt.Errorf("hasher is required")
	}
	if e.Emitter == nil {
		e.Emitter = progress.Discard
	}
	if e.Tracer == nil {
		e.Tracer = noop.NewTracerProvider().Tracer("runner")
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Timings == (Timings{}) {
		e.Timings = DefaultTimings
	}
	if e.Timings.ScrollStep <= 0 {
		e.Timings.ScrollStep = DefaultTimings.ScrollStep
	}
	if e.WebPQuality <= 0 {
		e.WebPQuality = 80
	}
	return nil
}

// Job is one session as seen by a runner.
type Job struct {
	*Env
	SessionID string
	Spec      audit.JobSpec
	Handle    *tracker.Handle
	Gate      *gate.Gate
	logger    *zap.Logger
}

// NewJob binds a session handle to the environment with a gate sized for
// the session kind.
func (e *Env) NewJob(spec audit.JobSpec, handle *tracker.Handle) *Job {
	return e.newJob(spec, handle)
}

func (e *Env) newJob(spec audit.JobSpec, handle *tracker.Handle) *Job {
	kind := string(spec.Kind)
	g := gate.NewForKind(spec.Kind, e.Limits).WithObserver(func(wait time.Duration) {
		metrics.ObserveGateWait(kind, wait)
	})
	return &Job{
		Env:       e,
		SessionID: handle.ID(),
		Spec:      spec,
		Handle:    handle,
		Gate:      g,
		logger:    e.Logger.With(zap.String("session_id", handle.ID()), zap.String("kind", kind)),
	}
}

// ForKind derives a job for one inspection kind of a unified session. It
// shares the handle and gets a gate of its own.
func (j *Job) ForKind(kind audit.Kind) *Job {
	spec := j.Spec
	spec.Kind = kind
	return j.Env.newJob(spec, j.Handle)
}

// Logger returns the session scoped logger.
func (j *Job) Logger() *zap.Logger {
	return j.logger
}

// sessionConfig is the body of the config.json artifact.
type sessionConfig struct {
	SessionID     string        `json:"session_id"`
	Kind          audit.Kind    `json:"kind"`
	Spec          audit.JobSpec `json:"spec"`
	TotalExpected int           `json:"total_expected"`
	Browsers      []string      `json:"browsers"`
	CreatedAt     time.Time     `json:"created_at"`
}

// WriteConfig stores configs/{session}/config.json describing the session.
func WriteConfig(ctx context.Context, job *Job) (string, error) {
	browsers := make([]string, 0, len(job.Spec.Browsers))
	for _, b := range job.Spec.ApplicableBrowsers() {
		browsers = append(browsers, string(b))
	}
	body, err := json.MarshalIndent(sessionConfig{
		SessionID:     job.SessionID,
		Kind:          job.Spec.Kind,
		Spec:          job.Spec,
		TotalExpected: job.Handle.Total(),
		Browsers:      browsers,
		CreatedAt:     job.Handle.StartedAt(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session config: %w", err)
	}
	key := audit.ArtifactKey(audit.AreaConfigs, job.SessionID, "", "config.json")
	uri, err := job.Blobs.PutObject(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store session config: %w", err)
	}
	return uri, nil
}
