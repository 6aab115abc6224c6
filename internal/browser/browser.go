// Package browser defines the contract the audit runners use to drive pages.
package browser

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// ErrUnsupportedBrowser is returned when an engine cannot emulate a browser.
var ErrUnsupportedBrowser = errors.New("unsupported browser")

// NavigateOptions bounds a navigation.
type NavigateOptions struct {
	// Timeout covers the load until the body is ready.
	Timeout time.Duration
	// IdleWait is the best-effort wait for network quiet after load. Expiry is not an error.
	IdleWait time.Duration
	// Settle is a fixed pause after the page is considered loaded.
	Settle time.Duration
}

// ScreenshotOptions selects the capture area.
type ScreenshotOptions struct {
	FullPage bool
}

// Engine launches isolated browsing contexts.
type Engine interface {
	Launch(ctx context.Context, b audit.Browser) (Context, error)
	Close() error
}

// Context is an isolated browsing context (cookies, cache, user agent).
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab.
type Page interface {
	SetViewport(ctx context.Context, v audit.Viewport) error
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	// Evaluate runs script and decodes its result into out. A nil out discards the result.
	Evaluate(ctx context.Context, script string, out any) error
	// Screenshot returns PNG bytes.
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	ScrollTo(ctx context.Context, y int) error
	MoveMouse(ctx context.Context, x, y float64) error
	Close() error
}

// DefaultUserAgents are the user agent strings sent for each browser profile.
var DefaultUserAgents = map[audit.Browser]string{
	audit.BrowserChrome:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	audit.BrowserEdge:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
	audit.BrowserFirefox: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	audit.BrowserSafari:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// UserAgent resolves the user agent for b, preferring overrides.
func UserAgent(b audit.Browser, overrides map[string]string) (string, error) {
	if ua := overrides[string(b)]; ua != "" {
		return ua, nil
	}
	if ua, ok := DefaultUserAgents[b]; ok {
		return ua, nil
	}
	return "", ErrUnsupportedBrowser
}

// Sleep pauses for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
