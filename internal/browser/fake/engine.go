// Package fake provides a scripted browser engine for tests.
package fake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
)

const defaultScrollHeight = 2000

// Page scripts what the engine serves for one URL.
type Page struct {
	HTML         string
	ScrollHeight int
	// Evaluate maps a substring of a script to the value it returns.
	Evaluate    map[string]any
	Screenshot  []byte
	NavigateErr error
	// ScreenshotErr fails every screenshot after ScreenshotsBeforeErr
	// successful ones.
	ScreenshotErr        error
	ScreenshotsBeforeErr int
	Delay                time.Duration
}

// Navigation records one Navigate call.
type Navigation struct {
	Browser  audit.Browser
	URL      string
	Viewport audit.Viewport
}

// Engine implements browser.Engine without a browser.
type Engine struct {
	mu          sync.Mutex
	pages       map[string]Page
	launchErr   map[audit.Browser]error
	onNavigate  func(url string)
	navigations []Navigation
	launches    []audit.Browser
	screenshots int
	open        int
	maxOpen     int
	closed      bool
}

// New returns an empty engine. Unknown URLs serve a blank page.
func New() *Engine {
	return &Engine{pages: make(map[string]Page), launchErr: make(map[audit.Browser]error)}
}

// SetPage scripts the page served for url.
func (e *Engine) SetPage(url string, p Page) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages[url] = p
	return e
}

// FailLaunch makes Launch fail for b.
func (e *Engine) FailLaunch(b audit.Browser, err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchErr[b] = err
	return e
}

// OnNavigate registers a hook run at the start of every navigation.
func (e *Engine) OnNavigate(fn func(url string)) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNavigate = fn
	return e
}

// Navigations returns the recorded navigations in call order.
func (e *Engine) Navigations() []Navigation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Navigation(nil), e.navigations...)
}

// Launches returns the browsers launched so far.
func (e *Engine) Launches() []audit.Browser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audit.Browser(nil), e.launches...)
}

// Screenshots returns how many screenshots were taken.
func (e *Engine) Screenshots() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.screenshots
}

// MaxOpenPages is the highest number of simultaneously open pages observed.
func (e *Engine) MaxOpenPages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxOpen
}

// OpenPages is the number of pages not yet closed.
func (e *Engine) OpenPages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Launch implements browser.Engine.
func (e *Engine) Launch(ctx context.Context, b audit.Browser) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("engine closed")
	}
	if err := e.launchErr[b]; err != nil {
		return nil, fmt.Errorf("launch %s: %w", b, err)
	}
	if _, ok := browser.DefaultUserAgents[b]; !ok {
		return nil, fmt.Errorf("launch %s: %w", b, browser.ErrUnsupportedBrowser)
	}
	e.launches = append(e.launches, b)
	return &browserContext{engine: e, browser: b}, nil
}

func (e *Engine) page(url string) Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pages[url]
}

type browserContext struct {
	engine  *Engine
	browser audit.Browser
}

func (c *browserContext) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := c.engine
	e.mu.Lock()
	e.open++
	if e.open > e.maxOpen {
		e.maxOpen = e.open
	}
	e.mu.Unlock()
	return &page{engine: e, browser: c.browser, viewport: audit.DefaultViewport}, nil
}

func (c *browserContext) Close() error { return nil }

type page struct {
	engine   *Engine
	browser  audit.Browser
	viewport audit.Viewport
	url      string
	scrollY  int
	shots    int
	closed   sync.Once
}

func (p *page) SetViewport(_ context.Context, v audit.Viewport) error {
	p.viewport = v
	return nil
}

func (p *page) Navigate(ctx context.Context, url string, _ browser.NavigateOptions) error {
	e := p.engine
	e.mu.Lock()
	e.navigations = append(e.navigations, Navigation{Browser: p.browser, URL: url, Viewport: p.viewport})
	hook := e.onNavigate
	e.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	script := e.page(url)
	if err := browser.Sleep(ctx, script.Delay); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if script.NavigateErr != nil {
		return fmt.Errorf("navigate %s: %w", url, script.NavigateErr)
	}
	p.url = url
	p.scrollY = 0
	return nil
}

func (p *page) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	scripted := p.engine.page(p.url)
	for marker, value := range scripted.Evaluate {
		if strings.Contains(script, marker) {
			return decodeInto(value, out)
		}
	}
	if strings.Contains(script, "scrollHeight") {
		height := scripted.ScrollHeight
		if height == 0 {
			height = defaultScrollHeight
		}
		return decodeInto(height, out)
	}
	return fmt.Errorf("evaluate: no scripted result for %q", truncate(script, 40))
}

func (p *page) Screenshot(ctx context.Context, _ browser.ScreenshotOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.engine.mu.Lock()
	p.engine.screenshots++
	p.engine.mu.Unlock()
	script := p.engine.page(p.url)
	if script.ScreenshotErr != nil {
		if p.shots >= script.ScreenshotsBeforeErr {
			return nil, script.ScreenshotErr
		}
		p.shots++
	}
	if shot := script.Screenshot; len(shot) > 0 {
		return append([]byte(nil), shot...), nil
	}
	return SolidPNG(p.viewport.Width/8, p.viewport.Height/8, color.RGBA{R: 200, G: 200, B: 200, A: 255})
}

func (p *page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if html := p.engine.page(p.url).HTML; html != "" {
		return html, nil
	}
	return "<html><head></head><body></body></html>", nil
}

func (p *page) ScrollTo(ctx context.Context, y int) error {
	p.scrollY = y
	return ctx.Err()
}

func (p *page) MoveMouse(ctx context.Context, _, _ float64) error {
	return ctx.Err()
}

func (p *page) Close() error {
	p.closed.Do(func() {
		p.engine.mu.Lock()
		p.engine.open--
		p.engine.mu.Unlock()
	})
	return nil
}

// SolidPNG encodes a w x h image filled with c.
func SolidPNG(w, h int, c color.Color) ([]byte, error) {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeInto(value, out any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
