// Package orchestrator accepts audit sessions, hands them to the worker pool
// and answers progress, result and lifecycle queries about them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/dispatcher"
	"github.com/JakeFAU/realtime-site-auditor/internal/queue"
	"github.com/JakeFAU/realtime-site-auditor/internal/queue/memory"
	"github.com/JakeFAU/realtime-site-auditor/internal/runner"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
	"github.com/JakeFAU/realtime-site-auditor/internal/tracker"
	"github.com/JakeFAU/realtime-site-auditor/internal/worker"
)

// ErrShuttingDown is returned by Submit once Shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Config sizes the worker pool.
type Config struct {
	// MaxConcurrentAudits bounds how many sessions run at once.
	MaxConcurrentAudits int
	// QueueDepth bounds how many sessions may wait for a worker.
	QueueDepth int
	// Topic receives one notification per finished session.
	Topic string
}

// Orchestrator owns the session registry and the worker pool.
type Orchestrator struct {
	env        *runner.Env
	sessions   store.SessionRepository
	tracker    *tracker.Tracker
	queue      *memory.Queue
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*Task
	closing bool
	started bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New wires a tracker, queue and workers around env. Call Start before
// submitting sessions.
func New(
	cfg Config,
	runners *runner.Set,
	env *runner.Env,
	sessions store.SessionRepository,
	publisher audit.Publisher,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if runners == nil {
		return nil, fmt.Errorf("runner set is required")
	}
	if env == nil {
		return nil, fmt.Errorf("runner env is required")
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("runner env: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentAudits <= 0 {
		cfg.MaxConcurrentAudits = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	tr, err := tracker.New(sessions, env.Clock, logger.Named("tracker"))
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}

	q := memory.NewQueue(cfg.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.MaxConcurrentAudits)
	for i := 0; i < cfg.MaxConcurrentAudits; i++ {
		workers = append(workers, worker.New(
			q,
			runners,
			env,
			tr,
			publisher,
			worker.Config{Topic: cfg.Topic},
			logger.With(zap.Int("worker", i)),
		))
	}
	return &Orchestrator{
		env:        env,
		sessions:   sessions,
		tracker:    tr,
		queue:      q,
		dispatcher: dispatcher.New(q, workers),
		logger:     logger.Named("orchestrator"),
		tasks:      make(map[string]*Task),
		stopped:    make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Canceling ctx interrupts running sessions;
// use Shutdown for an orderly stop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	go func() {
		defer close(o.stopped)
		o.logger.Info("worker pool started", zap.Int("workers", o.dispatcher.Size()))
		o.dispatcher.Run(runCtx)
		o.logger.Info("worker pool stopped")
	}()
}

// Submit validates spec, registers a running session and queues it.
func (o *Orchestrator) Submit(ctx context.Context, spec audit.JobSpec) (*Task, error) {
	o.mu.Lock()
	closing := o.closing
	o.mu.Unlock()
	if closing {
		return nil, ErrShuttingDown
	}

	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	id, err := o.env.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	h, err := o.tracker.Start(ctx, spec, id)
	if err != nil {
		return nil, err
	}

	task := newTask(id, h.Total())
	o.mu.Lock()
	o.tasks[id] = task
	o.mu.Unlock()

	item := queue.Item{
		SessionID:  id,
		Spec:       spec,
		Handle:     h,
		EnqueuedAt: o.env.Clock.Now(),
		Done: func(status audit.Status, err error) {
			o.mu.Lock()
			delete(o.tasks, id)
			o.mu.Unlock()
			task.resolve(status, err)
		},
	}
	if err := o.dispatcher.Enqueue(ctx, item); err != nil {
		status, ferr := o.tracker.Finish(ctx, h, err)
		if ferr != nil {
			o.logger.Warn("finish unqueued session failed", zap.String("session_id", id), zap.Error(ferr))
		}
		item.Resolve(status, err)
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrShuttingDown
		}
		return nil, err
	}
	o.logger.Info("session submitted",
		zap.String("session_id", id),
		zap.String("kind", string(spec.Kind)),
		zap.Int("total_expected", h.Total()),
		zap.Int("queued", o.queue.Len()),
	)
	return task, nil
}

// Progress never fails for unknown ids; they get the not_found sentinel.
func (o *Orchestrator) Progress(ctx context.Context, id string) (audit.Progress, error) {
	return o.tracker.Progress(ctx, id)
}

// Stop halts a live session and persists the stopped status. Terminal
// sessions are left alone; unknown ids yield store.ErrNotFound.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	return o.tracker.Stop(ctx, id)
}

// Results returns every result record of a session in creation order.
func (o *Orchestrator) Results(ctx context.Context, id string) ([]audit.Result, error) {
	if _, err := o.sessions.GetSession(ctx, id); err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	results, err := o.env.Results.ListResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list results %s: %w", id, err)
	}
	return results, nil
}

// Session loads the persisted session row.
func (o *Orchestrator) Session(ctx context.Context, id string) (audit.Session, error) {
	session, err := o.sessions.GetSession(ctx, id)
	if err != nil {
		return audit.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return session, nil
}

// List returns sessions newest first.
func (o *Orchestrator) List(ctx context.Context, filter audit.SessionFilter) ([]audit.Session, error) {
	sessions, err := o.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session with its results and artifacts. A running
// session is stopped and awaited first.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if _, err := o.sessions.GetSession(ctx, id); err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if err := o.tracker.Stop(ctx, id); err != nil {
		return err
	}
	if task, ok := o.task(id); ok {
		if err := task.Wait(ctx); err != nil && ctx.Err() != nil {
			return fmt.Errorf("await session %s: %w", id, ctx.Err())
		}
	}
	if err := o.env.Results.DeleteResults(ctx, id); err != nil {
		return fmt.Errorf("delete results %s: %w", id, err)
	}
	if err := o.sessions.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	var errs []error
	for _, prefix := range audit.SessionPrefixes(id) {
		if err := o.env.Blobs.DeletePrefix(ctx, prefix); err != nil {
			errs = append(errs, fmt.Errorf("delete artifacts %s: %w", prefix, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	o.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Active lists the ids of sessions that have not resolved yet.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	ids := make([]string, 0, len(o.tasks))
	for id := range o.tasks {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Shutdown stops accepting sessions, signals every live session to stop and
// waits for the workers to drain. When ctx ends first the workers are
// interrupted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return nil
	}
	o.closing = true
	started := o.started
	o.mu.Unlock()

	start := time.Now()
	o.queue.Close()
	o.tracker.StopAll()
	if !started {
		o.drainUnstarted(ctx)
		return nil
	}
	select {
	case <-o.stopped:
		o.logger.Info("orchestrator drained", zap.Duration("dur", time.Since(start)))
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// drainUnstarted finishes queued sessions when no worker ever ran.
func (o *Orchestrator) drainUnstarted(ctx context.Context) {
	for {
		item, err := o.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		status, ferr := o.tracker.Finish(ctx, item.Handle, nil)
		if ferr != nil {
			o.logger.Warn("finish queued session failed", zap.String("session_id", item.SessionID), zap.Error(ferr))
		}
		item.Resolve(status, nil)
	}
}

func (o *Orchestrator) task(id string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[id]
	return t, ok
}
