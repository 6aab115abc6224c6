package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// headingIssuePenalty is subtracted from the SEO score per heading issue.
const headingIssuePenalty = 25

// UnifiedRunner runs the inspection runners side by side and then writes
// one aggregate score per URL.
type UnifiedRunner struct {
	runners []Runner
}

// NewUnifiedRunner combines the given inspection runners.
func NewUnifiedRunner(runners ...Runner) *UnifiedRunner {
	return &UnifiedRunner{runners: runners}
}

// Kind implements Runner.
func (*UnifiedRunner) Kind() audit.Kind { return audit.KindUnified }

// Run implements Runner. Every sub-runner advances the shared handle; the
// aggregate records do not.
func (u *UnifiedRunner) Run(ctx context.Context, job *Job) error {
	// A plain group: one failing inspection must not cancel the others.
	var g errgroup.Group
	for _, r := range u.runners {
		sub := job.ForKind(r.Kind())
		g.Go(func() error {
			if err := r.Run(ctx, sub); err != nil {
				return fmt.Errorf("%s: %w", r.Kind(), err)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if job.Handle.Stopped() {
		return runErr
	}
	if err := u.aggregate(ctx, job); err != nil {
		job.Logger().Error("aggregate scores failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func (u *UnifiedRunner) aggregate(ctx context.Context, job *Job) error {
	results, err := job.Results.ListResults(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	type key struct {
		kind audit.Kind
		url  string
	}
	// Results are in creation order, so later entries win.
	latest := make(map[key]audit.Result, len(results))
	for _, r := range results {
		latest[key{r.Kind, r.URL}] = r
	}
	for _, url := range job.Spec.URLs {
		lookup := func(kind audit.Kind) (audit.Result, bool) {
			r, ok := latest[key{kind, url}]
			return r, ok && !r.Failed()
		}
		score := Score(lookup)
		id, err := job.IDs.NewID()
		if err != nil {
			return fmt.Errorf("aggregate id: %w", err)
		}
		record := audit.Result{
			ID:        id,
			SessionID: job.SessionID,
			Kind:      audit.KindUnified,
			URL:       url,
			CreatedAt: job.Clock.Now(),
			Unified:   &score,
		}
		if err := job.Results.SaveResult(context.WithoutCancel(ctx), record); err != nil {
			return fmt.Errorf("save aggregate for %s: %w", url, err)
		}
	}
	return nil
}

// Score combines the sub-results of one URL. lookup reports false for a
// missing or failed sub-result, which contributes zero.
func Score(lookup func(audit.Kind) (audit.Result, bool)) audit.UnifiedScore {
	var s audit.UnifiedScore
	if r, ok := lookup(audit.KindPerformance); ok && r.Performance != nil {
		s.Performance = r.Performance.Score
	}
	if r, ok := lookup(audit.KindAccessibility); ok && r.Accessibility != nil {
		s.Accessibility = r.Accessibility.Score
	}
	if r, ok := lookup(audit.KindHeading); ok && r.Heading != nil {
		s.SEO = max(0, 100-headingIssuePenalty*len(r.Heading.Issues))
	}
	if r, ok := lookup(audit.KindPhone); ok && r.Phone != nil && r.Phone.PhoneCount > 0 {
		s.Content = 100
	}
	s.Overall = (s.Performance + s.Accessibility + s.SEO + s.Content) / 4
	return s
}
