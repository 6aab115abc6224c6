package runner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/imageproc"
)

// StaticRunner captures a full-page screenshot per URL, browser and
// viewport.
type StaticRunner struct{}

// Kind implements Runner.
func (StaticRunner) Kind() audit.Kind { return audit.KindStatic }

// Run launches every browser at once and captures their units under the
// shared job gate. A browser that cannot be launched fails the session.
func (StaticRunner) Run(ctx context.Context, job *Job) error {
	return runBrowsers(ctx, job, staticUnit)
}

type captureFunc func(ctx context.Context, job *Job, bctx browser.Context, item audit.WorkItem) (audit.Result, error)

// runBrowsers runs each applicable browser concurrently. Units from all
// browsers compete for the same gate permits. A launch failure does not
// cancel the other browsers; the first error is returned once they drain.
func runBrowsers(ctx context.Context, job *Job, capture captureFunc) error {
	var g errgroup.Group
	for _, b := range job.Spec.ApplicableBrowsers() {
		if job.Handle.Stopped() {
			break
		}
		g.Go(func() error {
			if job.Handle.Stopped() {
				return nil
			}
			return runBrowser(ctx, job, b, capture)
		})
	}
	return g.Wait()
}

// runBrowser launches b and runs every unit of b concurrently under the
// job gate.
func runBrowser(ctx context.Context, job *Job, b audit.Browser, capture captureFunc) error {
	bctx, err := job.Engine.Launch(ctx, b)
	if err != nil {
		return fmt.Errorf("launch %s: %w", b, err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			job.Logger().Warn("browser close failed", zap.String("browser", string(b)), zap.Error(err))
		}
	}()

	var wg sync.WaitGroup
	for _, item := range job.Spec.Units(b) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.runUnit(ctx, item, func(ctx context.Context) (audit.Result, error) {
				return capture(ctx, job, bctx, item)
			})
		}()
	}
	wg.Wait()
	return nil
}

func staticUnit(ctx context.Context, job *Job, bctx browser.Context, item audit.WorkItem) (audit.Result, error) {
	t := job.Timings
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return audit.Result{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(ctx, item.Viewport); err != nil {
		return audit.Result{}, fmt.Errorf("set viewport: %w", err)
	}
	if err := job.navigate(ctx, page, item.URL, browser.NavigateOptions{
		Timeout:  t.StaticNavigation,
		IdleWait: t.StaticIdle,
	}); err != nil {
		return audit.Result{}, err
	}
	// Scrolling through the page triggers lazy loaded content.
	height, err := scrollHeight(ctx, page)
	if err != nil {
		return audit.Result{}, err
	}
	for y := 0; y < height; y += t.ScrollStep {
		if err := page.ScrollTo(ctx, y); err != nil {
			return audit.Result{}, fmt.Errorf("scroll: %w", err)
		}
		if err := browser.Sleep(ctx, t.ScrollPause); err != nil {
			return audit.Result{}, err
		}
	}
	if err := browser.Sleep(ctx, t.BottomPause); err != nil {
		return audit.Result{}, err
	}
	if err := page.ScrollTo(ctx, 0); err != nil {
		return audit.Result{}, fmt.Errorf("scroll: %w", err)
	}
	if err := browser.Sleep(ctx, t.TopPause); err != nil {
		return audit.Result{}, err
	}

	shot, err := page.Screenshot(ctx, browser.ScreenshotOptions{FullPage: true})
	if err != nil {
		return audit.Result{}, fmt.Errorf("screenshot: %w", err)
	}

	var (
		data   []byte
		format string
	)
	err = job.Pool.Do(ctx, func(context.Context) error {
		var presentErr error
		data, format, presentErr = imageproc.Present(shot, item.URL, job.WebPQuality)
		if presentErr != nil {
			job.Logger().Warn("screenshot post-processing degraded",
				zap.String("url", item.URL),
				zap.String("format", format),
				zap.Error(presentErr),
			)
		}
		return nil
	})
	if err != nil {
		return audit.Result{}, fmt.Errorf("post-process: %w", err)
	}

	key := audit.ArtifactKey(audit.AreaScreenshots, job.SessionID, item.Browser, audit.ArtifactName(item.URL, item.Viewport, format))
	capture, err := job.storeArtifact(ctx, key, format, data)
	if err != nil {
		return audit.Result{}, err
	}
	return audit.Result{Capture: capture}, nil
}
