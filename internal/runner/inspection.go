package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/inspect"
	"github.com/JakeFAU/realtime-site-auditor/internal/store"
)

// inspector analyses the page already loaded for item.
type inspector func(ctx context.Context, job *Job, page browser.Page, item audit.WorkItem) (audit.Result, error)

// InspectionRunner loads each URL in one shared Chrome page, strictly in
// submission order, and applies an inspector to it.
type InspectionRunner struct {
	kind    audit.Kind
	inspect inspector
}

// NewHeadingRunner audits the h1 structure of each URL.
func NewHeadingRunner() *InspectionRunner {
	return &InspectionRunner{kind: audit.KindHeading, inspect: inspectHeading}
}

// NewPhoneRunner detects phone numbers on each URL.
func NewPhoneRunner() *InspectionRunner {
	return &InspectionRunner{kind: audit.KindPhone, inspect: inspectPhone}
}

// NewAccessibilityRunner runs axe-core against each URL.
func NewAccessibilityRunner() *InspectionRunner {
	return &InspectionRunner{kind: audit.KindAccessibility, inspect: inspectAccessibility}
}

// NewPerformanceRunner collects navigation timing for each URL.
func NewPerformanceRunner() *InspectionRunner {
	return &InspectionRunner{kind: audit.KindPerformance, inspect: inspectPerformance}
}

// Kind implements Runner.
func (r *InspectionRunner) Kind() audit.Kind { return r.kind }

// Run implements Runner. Units never overlap: the phone consistency check
// compares each URL with the one before it.
func (r *InspectionRunner) Run(ctx context.Context, job *Job) error {
	bctx, err := job.Engine.Launch(ctx, audit.BrowserChrome)
	if err != nil {
		return fmt.Errorf("launch %s: %w", audit.BrowserChrome, err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			job.Logger().Warn("browser close failed", zap.Error(err))
		}
	}()
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	t := job.Timings
	opts := browser.NavigateOptions{
		Timeout:  t.InspectionNavigation,
		IdleWait: t.InspectionIdle,
		Settle:   t.InspectionSettle,
	}
	for _, item := range job.Spec.Units(audit.BrowserChrome) {
		if job.Handle.Stopped() || ctx.Err() != nil {
			return nil
		}
		// Inspection results are per URL, not per browser.
		item.Browser = ""
		job.runUnit(ctx, item, func(ctx context.Context) (audit.Result, error) {
			if err := job.navigate(ctx, page, item.URL, opts); err != nil {
				return failure(r.kind, err), err
			}
			return r.inspect(ctx, job, page, item)
		})
	}
	return nil
}

// failure is the result recorded for a unit that ended in err. Heading and
// phone results carry the error as their only issue.
func failure(kind audit.Kind, err error) audit.Result {
	issues := []string{inspect.ErrorIssue(err)}
	switch kind {
	case audit.KindHeading:
		return audit.Result{Heading: &audit.HeadingReport{Issues: issues}}
	case audit.KindPhone:
		return audit.Result{Phone: &audit.PhoneReport{Issues: issues}}
	default:
		return audit.Result{}
	}
}

func inspectHeading(ctx context.Context, _ *Job, page browser.Page, _ audit.WorkItem) (audit.Result, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return failure(audit.KindHeading, err), err
	}
	report, err := inspect.InspectHeadings(html)
	if err != nil {
		return failure(audit.KindHeading, err), err
	}
	return audit.Result{Heading: &report}, nil
}

func inspectPhone(ctx context.Context, job *Job, page browser.Page, item audit.WorkItem) (audit.Result, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return failure(audit.KindPhone, err), err
	}
	var previous *audit.PhoneReport
	if item.Index > 0 && job.Spec.Phone.Enabled(audit.PhoneCheckConsistency) {
		// Only the most recently persisted phone result is compared.
		last, err := job.Results.LatestResult(ctx, job.SessionID, audit.KindPhone)
		switch {
		case err == nil:
			previous = last.Phone
		case !errors.Is(err, store.ErrNotFound):
			job.Logger().Warn("load previous phone result failed", zap.String("url", item.URL), zap.Error(err))
		}
	}
	report, err := inspect.InspectPhones(html, job.Spec.Phone, previous)
	if err != nil {
		return failure(audit.KindPhone, err), err
	}
	return audit.Result{Phone: &report}, nil
}

func inspectAccessibility(ctx context.Context, _ *Job, page browser.Page, _ audit.WorkItem) (audit.Result, error) {
	var results inspect.AxeResults
	if err := page.Evaluate(ctx, inspect.AccessibilityScript, &results); err != nil {
		return audit.Result{}, fmt.Errorf("run axe: %w", err)
	}
	report, err := inspect.ScoreAccessibility(results)
	if err != nil {
		return audit.Result{}, err
	}
	return audit.Result{Accessibility: &report}, nil
}

func inspectPerformance(ctx context.Context, _ *Job, page browser.Page, _ audit.WorkItem) (audit.Result, error) {
	var timing inspect.Timing
	if err := page.Evaluate(ctx, inspect.PerformanceScript, &timing); err != nil {
		return audit.Result{}, fmt.Errorf("read timing: %w", err)
	}
	report := inspect.ScorePerformance(timing)
	return audit.Result{Performance: &report}, nil
}
