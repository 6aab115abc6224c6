package runner

import (
	"context"
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
)

// unitFunc performs one unit. It may return a partially filled result
// together with an error.
type unitFunc func(ctx context.Context) (audit.Result, error)

// runUnit wraps fn with the per-unit lifecycle: stop checks, a gate permit,
// a span, panic recovery, result persistence and exactly one Advance. It
// reports false when the unit was skipped.
func (j *Job) runUnit(ctx context.Context, item audit.WorkItem, fn unitFunc) bool {
	if j.Handle.Stopped() {
		return false
	}
	release, err := j.Gate.Acquire(ctx)
	if err != nil {
		j.logger.Debug("unit not started", zap.String("url", item.URL), zap.Error(err))
		return false
	}
	defer release()
	if j.Handle.Stopped() {
		return false
	}

	start := time.Now()
	ctx, span := j.Tracer.Start(ctx, "audit.unit",
		trace.WithAttributes(
			attribute.String("session.id", j.SessionID),
			attribute.String("audit.kind", string(j.Spec.Kind)),
			attribute.String("audit.url", item.URL),
			attribute.String("audit.browser", string(item.Browser)),
			attribute.Int("audit.index", item.Index),
		),
	)
	result, err := j.safeCall(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	result = j.complete(result, item, err)
	if saveErr := j.Results.SaveResult(context.WithoutCancel(ctx), result); saveErr != nil {
		j.logger.Error("persist result failed",
			zap.String("url", item.URL),
			zap.String("browser", string(item.Browser)),
			zap.Error(saveErr),
		)
	}
	completed := j.Handle.Advance(ctx)
	outcome := progress.OutcomeOf(err)
	metrics.ObserveUnit(string(j.Spec.Kind), string(outcome))
	dur := time.Since(start)
	j.Emitter.Emit(progress.Event{
		SessionID: j.SessionID,
		TS:        j.Clock.Now(),
		Stage:     progress.StageUnitDone,
		Kind:      j.Spec.Kind,
		URL:       item.URL,
		Browser:   item.Browser,
		Outcome:   outcome,
		Completed: completed,
		Total:     j.Handle.Total(),
		Dur:       dur,
		Note:      result.Error,
	})
	if err != nil {
		j.logger.Warn("unit failed",
			zap.String("url", item.URL),
			zap.String("browser", string(item.Browser)),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
	} else {
		j.logger.Debug("unit done", zap.String("url", item.URL), zap.Duration("dur", dur))
	}
	return true
}

// complete fills the common fields of a unit result.
func (j *Job) complete(result audit.Result, item audit.WorkItem, err error) audit.Result {
	if result.ID == "" {
		id, idErr := j.IDs.NewID()
		if idErr != nil {
			id = fmt.Sprintf("%s-%d-%d", j.SessionID, item.Index, j.Clock.Now().UnixNano())
		}
		result.ID = id
	}
	result.SessionID = j.SessionID
	if result.Kind == "" {
		result.Kind = j.Spec.Kind
	}
	result.URL = item.URL
	result.Browser = item.Browser
	result.Viewport = item.Viewport
	if err != nil {
		result.Error = err.Error()
	}
	result.CreatedAt = j.Clock.Now()
	return result
}

func (j *Job) safeCall(ctx context.Context, fn unitFunc) (result audit.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("unit panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("unit panic: %v", r)
		}
	}()
	return fn(ctx)
}
