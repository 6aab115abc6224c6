package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Report is the final state of a session run to completion in the
// foreground.
type Report struct {
	Session  audit.Session  `json:"session"`
	Progress audit.Progress `json:"progress"`
	Results  []audit.Result `json:"results"`
	Error    string         `json:"error,omitempty"`
}

// RunAndWait submits spec and blocks until the session is terminal. When
// ctx ends first the session is stopped and still drained, so the report
// always reflects a terminal status. The orchestrator must be started.
func (o *Orchestrator) RunAndWait(ctx context.Context, spec audit.JobSpec) (Report, error) {
	task, err := o.Submit(ctx, spec)
	if err != nil {
		return Report{}, err
	}
	if err := task.Wait(ctx); err != nil && ctx.Err() != nil {
		stopCtx := context.WithoutCancel(ctx)
		if serr := o.Stop(stopCtx, task.ID()); serr != nil {
			o.logger.Warn("stop interrupted session failed", zap.String("session_id", task.ID()), zap.Error(serr))
		}
		<-task.Done()
	}
	return o.report(context.WithoutCancel(ctx), task)
}

func (o *Orchestrator) report(ctx context.Context, task *Task) (Report, error) {
	session, err := o.Session(ctx, task.ID())
	if err != nil {
		return Report{}, err
	}
	prog, err := o.Progress(ctx, task.ID())
	if err != nil {
		return Report{}, fmt.Errorf("load progress: %w", err)
	}
	results, err := o.Results(ctx, task.ID())
	if err != nil {
		return Report{}, err
	}
	rep := Report{Session: session, Progress: prog, Results: results}
	if terr := task.Err(); terr != nil {
		rep.Error = terr.Error()
	}
	return rep, nil
}
