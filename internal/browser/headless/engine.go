// Package headless drives Chromium through chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultActionTimeout     = 30 * time.Second
	idleQuietPeriod          = 500 * time.Millisecond
	idlePollInterval         = 100 * time.Millisecond
)

// Config controls the Chromium allocator.
type Config struct {
	ExecPath          string
	Headless          bool
	NoSandbox         bool
	UserAgents        map[string]string
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// Engine implements browser.Engine. Every browser profile is emulated on
// Chromium by swapping the user agent.
type Engine struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates an engine with its own exec allocator. Chromium is started
// lazily on the first Launch.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout < 0 || cfg.ActionTimeout < 0 {
		return nil, fmt.Errorf("browser timeouts must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Engine{
		cfg:         cfg,
		logger:      logger.Named("headless"),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Close shuts down every browser started by the engine.
func (e *Engine) Close() error {
	e.allocCancel()
	return nil
}

// Launch starts an isolated browser context for the profile.
func (e *Engine) Launch(ctx context.Context, b audit.Browser) (browser.Context, error) {
	ua, err := browser.UserAgent(b, e.cfg.UserAgents)
	if err != nil {
		return nil, fmt.Errorf("launch %s: %w", b, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, cancel := chromedp.NewContext(e.allocator)
	if err := chromedp.Run(bctx); err != nil {
		cancel()
		return nil, fmt.Errorf("launch %s: %w", b, err)
	}
	e.logger.Debug("browser context launched", zap.String("browser", string(b)))
	return &browserContext{engine: e, ctx: bctx, cancel: cancel, userAgent: ua}, nil
}

type browserContext struct {
	engine    *Engine
	ctx       context.Context
	cancel    context.CancelFunc
	userAgent string
}

func (c *browserContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(c.ctx)
	idle := newIdleTracker()
	chromedp.ListenTarget(tabCtx, idle.captureEvent)
	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(c.userAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
	// The first Run allocates the tab, so it must not carry a deadline.
	if err := chromedp.Run(tabCtx, setup); err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return &page{ctx: tabCtx, cancel: cancel, idle: idle, cfg: c.engine.cfg}, nil
}

func (c *browserContext) Close() error {
	c.cancel()
	return nil
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
	idle   *idleTracker
	cfg    Config
}

// run executes actions on the tab, aborting when either the caller's ctx
// ends or timeout expires. Aborting a run does not close the tab.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *page) SetViewport(ctx context.Context, v audit.Viewport) error {
	err := p.run(ctx, p.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(v.Width), int64(v.Height), 1, false).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set viewport %s: %w", v, err)
	}
	return nil
}

func (p *page) Navigate(ctx context.Context, url string, opts browser.NavigateOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.cfg.NavigationTimeout
	}
	if err := p.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if opts.IdleWait > 0 {
		p.idle.wait(ctx, opts.IdleWait)
	}
	return browser.Sleep(ctx, opts.Settle)
}

func (p *page) Evaluate(ctx context.Context, script string, out any) error {
	awaitPromise := func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Evaluate(script, out, awaitPromise)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *page) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if opts.FullPage {
		// Quality 100 keeps the capture lossless PNG.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := p.run(ctx, p.cfg.ActionTimeout, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

func (p *page) ScrollTo(ctx context.Context, y int) error {
	return p.Evaluate(ctx, fmt.Sprintf("window.scrollTo(0, %d)", y), nil)
}

func (p *page) MoveMouse(ctx context.Context, x, y float64) error {
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.MouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("move mouse: %w", err)
	}
	return nil
}

func (p *page) Close() error {
	p.cancel()
	return nil
}

// idleTracker counts in-flight requests on a tab.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{inflight: make(map[network.RequestID]struct{}), last: time.Now()}
}

func (t *idleTracker) captureEvent(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(t.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(t.inflight, e.RequestID)
	default:
		return
	}
	t.last = time.Now()
}

func (t *idleTracker) quiet(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && now.Sub(t.last) >= idleQuietPeriod
}

// wait blocks until the network has been quiet for idleQuietPeriod, max
// elapses or ctx ends. It never fails.
func (t *idleTracker) wait(ctx context.Context, maxWait time.Duration) {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	tick := time.NewTicker(idlePollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case now := <-tick.C:
			if t.quiet(now) {
				return
			}
		}
	}
}
