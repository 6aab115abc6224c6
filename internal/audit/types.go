// Package audit defines the core types shared across the audit subsystems.
package audit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSpec is returned when a JobSpec fails validation.
var ErrInvalidSpec = errors.New("invalid job spec")

// Kind selects the pipeline used for a session.
type Kind string

// Supported job kinds.
const (
	KindStatic        Kind = "static"
	KindVideo         Kind = "video"
	KindHeading       Kind = "heading"
	KindPhone         Kind = "phone"
	KindAccessibility Kind = "accessibility"
	KindPerformance   Kind = "performance"
	KindVisualDiff    Kind = "visual_diff"
	KindUnified       Kind = "unified"
)

var kinds = []Kind{
	KindStatic,
	KindVideo,
	KindHeading,
	KindPhone,
	KindAccessibility,
	KindPerformance,
	KindVisualDiff,
	KindUnified,
}

// UnifiedKinds lists the inspection kinds combined by the unified kind.
var UnifiedKinds = []Kind{KindPerformance, KindAccessibility, KindHeading, KindPhone}

// Kinds returns every supported job kind.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

// ParseKind resolves a kind name, accepting a few legacy aliases.
func ParseKind(raw string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "dynamic":
		return KindVideo, nil
	case "h1":
		return KindHeading, nil
	case "visual", "visual-diff":
		return KindVisualDiff, nil
	}
	for _, k := range kinds {
		if string(k) == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, raw)
}

// IsInspection reports whether the kind runs sequentially on a single shared page.
func (k Kind) IsInspection() bool {
	switch k {
	case KindHeading, KindPhone, KindAccessibility, KindPerformance:
		return true
	default:
		return false
	}
}

// IsCapture reports whether the kind fans out over browsers and viewports.
func (k Kind) IsCapture() bool {
	return k == KindStatic || k == KindVideo
}

// Browser identifies one of the supported browser profiles.
type Browser string

// Supported browsers.
const (
	BrowserChrome  Browser = "Chrome"
	BrowserEdge    Browser = "Edge"
	BrowserFirefox Browser = "Firefox"
	BrowserSafari  Browser = "Safari"
)

var browsers = []Browser{BrowserChrome, BrowserEdge, BrowserFirefox, BrowserSafari}

// ParseBrowser resolves a browser name case-insensitively.
func ParseBrowser(raw string) (Browser, error) {
	v := strings.TrimSpace(raw)
	for _, b := range browsers {
		if strings.EqualFold(string(b), v) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: unknown browser %q", ErrInvalidSpec, raw)
}

// SupportsVideo reports whether scroll recordings can be produced for the browser.
func (b Browser) SupportsVideo() bool {
	return b == BrowserChrome || b == BrowserEdge
}

// Viewport is a width x height pair in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ParseViewport parses "1280x720" style sizes.
func ParseViewport(raw string) (Viewport, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(raw)), "x")
	if len(parts) != 2 {
		return Viewport{}, fmt.Errorf("%w: viewport %q must be WIDTHxHEIGHT", ErrInvalidSpec, raw)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Viewport{}, fmt.Errorf("%w: viewport %q must have positive integer sides", ErrInvalidSpec, raw)
	}
	return Viewport{Width: w, Height: h}, nil
}

// String renders the viewport as WIDTHxHEIGHT.
func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// IsZero reports whether the viewport is unset.
func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// Status represents the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
	// StatusNotFound only appears in progress replies for unknown sessions.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusError:
		return true
	default:
		return false
	}
}

// ParseStatus validates persisted or user-supplied status names.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusRunning, StatusCompleted, StatusStopped, StatusError:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// Session is the persistent record of one job run.
type Session struct {
	ID            string     `json:"session_id"`
	Owner         string     `json:"owner,omitempty"`
	Name          string     `json:"name"`
	Kind          Kind       `json:"kind"`
	Spec          JobSpec    `json:"spec"`
	Status        Status     `json:"status"`
	TotalExpected int        `json:"total_expected"`
	Completed     int        `json:"completed"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Progress is the advisory view returned to pollers.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Status    Status `json:"status"`
}

// NotFoundProgress is the sentinel reply for unknown session ids.
func NotFoundProgress() Progress {
	return Progress{Status: StatusNotFound}
}

// Progress projects the session onto a progress reply.
func (s Session) Progress() Progress {
	return Progress{Completed: s.Completed, Total: s.TotalExpected, Status: s.Status}
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	Status *Status
	Owner  string
	Limit  int
	Offset int
}
