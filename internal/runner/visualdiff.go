package runner

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/imageproc"
)

// DiffViewport is the size both pages are rendered at for comparison.
var DiffViewport = audit.Viewport{Width: 1280, Height: 800}

// VisualDiffRunner renders a base and a compare URL and stores a heat map
// of the changed pixels.
type VisualDiffRunner struct{}

// Kind implements Runner.
func (VisualDiffRunner) Kind() audit.Kind { return audit.KindVisualDiff }

// Run implements Runner. The session has exactly one unit.
func (VisualDiffRunner) Run(ctx context.Context, job *Job) error {
	if len(job.Spec.URLs) != 2 {
		return fmt.Errorf("%w: visual diff needs a base and a compare URL", audit.ErrInvalidSpec)
	}
	bctx, err := job.Engine.Launch(ctx, audit.BrowserChrome)
	if err != nil {
		return fmt.Errorf("launch %s: %w", audit.BrowserChrome, err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			job.Logger().Warn("browser close failed", zap.Error(err))
		}
	}()

	base, compare := job.Spec.URLs[0], job.Spec.URLs[1]
	item := audit.WorkItem{URL: base, Viewport: DiffViewport}
	job.runUnit(ctx, item, func(ctx context.Context) (audit.Result, error) {
		report := &audit.VisualDiffReport{BaseURL: base, CompareURL: compare}
		result := audit.Result{VisualDiff: report}

		baseShot, err := renderPage(ctx, job, bctx, base)
		if err != nil {
			return result, err
		}
		compareShot, err := renderPage(ctx, job, bctx, compare)
		if err != nil {
			return result, err
		}

		var diff []byte
		err = job.Pool.Do(ctx, func(context.Context) error {
			a, err := imageproc.Decode(baseShot)
			if err != nil {
				return err
			}
			b, err := imageproc.Decode(compareShot)
			if err != nil {
				return err
			}
			var img image.Image
			img, report.DiffScore = imageproc.Diff(a, b)
			diff, err = imageproc.EncodePNG(img)
			return err
		})
		if err != nil {
			return result, fmt.Errorf("diff renders: %w", err)
		}

		key := audit.ArtifactKey(audit.AreaDiffs, job.SessionID, "", "diff.png")
		capture, err := job.storeArtifact(ctx, key, imageproc.FormatPNG, diff)
		if err != nil {
			return result, err
		}
		report.DiffPath = capture.Path
		report.DiffURI = capture.URI
		return result, nil
	})
	return nil
}

func renderPage(ctx context.Context, job *Job, bctx browser.Context, url string) ([]byte, error) {
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	if err := page.SetViewport(ctx, DiffViewport); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := job.navigate(ctx, page, url, browser.NavigateOptions{
		Timeout:  job.Timings.StaticNavigation,
		IdleWait: job.Timings.StaticIdle,
	}); err != nil {
		return nil, err
	}
	shot, err := page.Screenshot(ctx, browser.ScreenshotOptions{FullPage: true})
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", url, err)
	}
	return shot, nil
}
