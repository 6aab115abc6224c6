package runner

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/frames"
)

// pointerMargin keeps simulated pointer moves away from the viewport edges.
const pointerMargin = 100

// VideoRunner records a scroll-through video per URL, browser and viewport.
// Browsers that cannot record are skipped.
type VideoRunner struct{}

// Kind implements Runner.
func (VideoRunner) Kind() audit.Kind { return audit.KindVideo }

// Run records the units of every capable browser concurrently.
func (VideoRunner) Run(ctx context.Context, job *Job) error {
	if job.Assembler == nil {
		return fmt.Errorf("video sessions need a frame assembler")
	}
	return runBrowsers(ctx, job, videoUnit)
}

func videoUnit(ctx context.Context, job *Job, bctx browser.Context, item audit.WorkItem) (audit.Result, error) {
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
		Timeout:  t.VideoNavigation,
		IdleWait: t.VideoIdle,
		Settle:   t.VideoSettle,
	}); err != nil {
		return audit.Result{}, err
	}
	height, err := scrollHeight(ctx, page)
	if err != nil {
		return audit.Result{}, err
	}

	unique := audit.UniqueName(item.URL)
	seq, err := frames.NewSequence(job.FramesDir, fmt.Sprintf("%s_%s_%s_%s", job.SessionID, unique, item.Browser, item.Viewport))
	if err != nil {
		return audit.Result{}, err
	}
	// Assemble removes the sequence; this covers the early returns.
	defer func() { _ = seq.Remove() }()

	frame := func() error {
		png, err := page.Screenshot(ctx, browser.ScreenshotOptions{})
		if err != nil {
			return fmt.Errorf("capture frame %d: %w", seq.Len(), err)
		}
		return seq.Add(png)
	}

	if err := frame(); err != nil {
		return audit.Result{}, err
	}
	step := max(1, int(float64(item.Viewport.Height)*0.9))
	rng := pointerRand(job.SessionID, item)
	// The last step is clamped to the page height so the bottom is recorded.
	for y := 0; y < height; {
		y = min(y+step, height)
		if err := page.ScrollTo(ctx, y); err != nil {
			return audit.Result{}, fmt.Errorf("scroll: %w", err)
		}
		if err := browser.Sleep(ctx, t.VideoStepPause); err != nil {
			return audit.Result{}, err
		}
		x, py := pointerTarget(rng, item.Viewport)
		if err := page.MoveMouse(ctx, x, py); err != nil {
			job.Logger().Debug("pointer move failed", zap.String("url", item.URL), zap.Error(err))
		}
		if err := frame(); err != nil {
			return audit.Result{}, err
		}
	}
	if err := page.ScrollTo(ctx, 0); err != nil {
		return audit.Result{}, fmt.Errorf("scroll: %w", err)
	}
	if err := browser.Sleep(ctx, t.TopPause); err != nil {
		return audit.Result{}, err
	}
	if err := frame(); err != nil {
		return audit.Result{}, err
	}
	count := seq.Len()

	name := fmt.Sprintf("%s__%s.mp4", unique, item.Viewport)
	outDir, err := os.MkdirTemp(job.FramesDir, "video-*")
	if err != nil {
		return audit.Result{}, fmt.Errorf("create video dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()
	out := filepath.Join(outDir, name)
	if err := job.Pool.Do(ctx, func(ctx context.Context) error {
		return job.Assembler.Assemble(ctx, seq, out)
	}); err != nil {
		return audit.Result{}, fmt.Errorf("assemble video: %w", err)
	}
	data, err := os.ReadFile(out) // #nosec G304 -- path built from sanitized names.
	if err != nil {
		return audit.Result{}, fmt.Errorf("read video: %w", err)
	}

	key := audit.ArtifactKey(audit.AreaVideos, job.SessionID, item.Browser, name)
	capture, err := job.storeArtifact(ctx, key, "mp4", data)
	if err != nil {
		return audit.Result{}, err
	}
	capture.Frames = count
	return audit.Result{Capture: capture}, nil
}

// pointerRand is seeded from the unit so a rerun replays the same moves.
func pointerRand(sessionID string, item audit.WorkItem) *rand.Rand {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%s|%s", sessionID, item.URL, item.Browser, item.Viewport)
	return rand.New(rand.NewPCG(h.Sum64(), uint64(item.Index)))
}

func pointerTarget(rng *rand.Rand, v audit.Viewport) (float64, float64) {
	return float64(within(rng, v.Width)), float64(within(rng, v.Height))
}

func within(rng *rand.Rand, size int) int {
	hi := size - pointerMargin
	if hi <= pointerMargin {
		return size / 2
	}
	return pointerMargin + rng.IntN(hi-pointerMargin+1)
}
