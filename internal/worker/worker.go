// Package worker implements the session execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/metrics"
	"github.com/JakeFAU/realtime-site-auditor/internal/progress"
	"github.com/JakeFAU/realtime-site-auditor/internal/queue"
	"github.com/JakeFAU/realtime-site-auditor/internal/runner"
	"github.com/JakeFAU/realtime-site-auditor/internal/tracker"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives one notification per finished session. Empty disables
	// publishing.
	Topic string
}

// Worker consumes queued sessions and runs them to a terminal status.
type Worker struct {
	queue     queue.Queue
	runners   *runner.Set
	env       *runner.Env
	tracker   *tracker.Tracker
	publisher audit.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	q queue.Queue,
	runners *runner.Set,
	env *runner.Env,
	tr *tracker.Tracker,
	publisher audit.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     q,
		runners:   runners,
		env:       env,
		tracker:   tr,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Run blocks, consuming sessions until ctx finishes or the queue is closed
// and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued session", zap.String("session_id", item.SessionID))
		w.process(ctx, item)
	}
}

// process runs one session. The item is resolved on every path.
func (w *Worker) process(ctx context.Context, item queue.Item) {
	h := item.Handle
	spec := item.Spec
	kind := string(spec.Kind)
	logger := w.logger.With(zap.String("session_id", item.SessionID), zap.String("kind", kind))
	start := time.Now()

	resolved := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session bookkeeping panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			if !resolved {
				item.Resolve(audit.StatusError, fmt.Errorf("session panic: %v", r))
			}
		}
	}()

	metrics.IncActiveSessions()
	defer metrics.DecActiveSessions()

	w.env.Emitter.Emit(progress.Event{
		SessionID: item.SessionID,
		TS:        w.env.Clock.Now(),
		Stage:     progress.StageSessionStart,
		Kind:      spec.Kind,
		Total:     h.Total(),
	})

	runErr := w.execute(ctx, item, logger)
	if ctx.Err() != nil {
		// Interrupted sessions are recorded as stopped.
		h.Stop()
	}

	status, err := w.tracker.Finish(ctx, h, runErr)
	if err != nil {
		logger.Error("finish session failed", zap.Error(err))
	}
	snap := h.Snapshot()
	dur := time.Since(start)
	note := ""
	if runErr != nil {
		note = runErr.Error()
	}
	w.env.Emitter.Emit(progress.Event{
		SessionID: item.SessionID,
		TS:        w.env.Clock.Now(),
		Stage:     progress.TerminalStage(status),
		Kind:      spec.Kind,
		Completed: snap.Completed,
		Total:     snap.Total,
		Dur:       dur,
		Note:      note,
	})
	metrics.ObserveSession(kind, string(status))
	w.publishResult(ctx, item.SessionID, spec.Kind, status, snap, logger)

	logger.Info("session finished",
		zap.String("status", string(status)),
		zap.Int("completed", snap.Completed),
		zap.Int("total", snap.Total),
		zap.Duration("dur", dur),
		zap.Error(runErr),
	)
	resolved = true
	item.Resolve(status, runErr)
}

// execute runs the session's runner and converts a panic into a
// session-fatal error.
func (w *Worker) execute(ctx context.Context, item queue.Item, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("session panic: %v", r)
		}
	}()
	if item.Handle.Stopped() {
		return nil
	}

	ctx, span := w.env.Tracer.Start(ctx, "audit.session",
		trace.WithAttributes(
			attribute.String("session.id", item.SessionID),
			attribute.String("audit.kind", string(item.Spec.Kind)),
			attribute.Int("audit.total", item.Handle.Total()),
		),
	)
	defer span.End()

	r, err := w.runners.Lookup(item.Spec.Kind)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	job := w.env.NewJob(item.Spec, item.Handle)
	if _, err := runner.WriteConfig(ctx, job); err != nil {
		logger.Warn("session config not stored", zap.Error(err))
	}
	if err := r.Run(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (w *Worker) publishResult(
	ctx context.Context,
	sessionID string,
	kind audit.Kind,
	status audit.Status,
	snap audit.Progress,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"session_id":  sessionID,
		"kind":        string(kind),
		"status":      string(status),
		"completed":   snap.Completed,
		"total":       snap.Total,
		"finished_at": w.env.Clock.Now().UTC().Format(time.RFC3339),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := w.publisher.Publish(pctx, w.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish session result failed", zap.Error(err))
		return
	}
	logger.Debug("session result published", zap.String("message_id", id))
}
