package audit

import (
	"fmt"
	"slices"
	"strings"
)

// Phone audit checks that may be toggled per job.
const (
	PhoneCheckClickable   = "clickable"
	PhoneCheckSchema      = "schema"
	PhoneCheckValidate    = "validate"
	PhoneCheckConsistency = "consistency"
)

// DefaultViewport is used by capture kinds when no size was requested.
var DefaultViewport = Viewport{Width: 1920, Height: 1080}

// PhoneOptions tunes the phone audit.
type PhoneOptions struct {
	Countries []string `json:"countries,omitempty"`
	Checks    []string `json:"checks,omitempty"`
	Target    string   `json:"target,omitempty"`
}

// Enabled reports whether the named check was requested.
func (o PhoneOptions) Enabled(check string) bool {
	return slices.Contains(o.Checks, check)
}

// JobSpec is the request accepted by the orchestrator.
type JobSpec struct {
	Name      string       `json:"name"`
	Kind      Kind         `json:"kind"`
	Owner     string       `json:"owner,omitempty"`
	URLs      []string     `json:"urls"`
	Browsers  []Browser    `json:"browsers,omitempty"`
	Viewports []Viewport   `json:"viewports,omitempty"`
	Phone     PhoneOptions `json:"phone,omitzero"`
}

// WorkItem is one unit of work inside a job.
type WorkItem struct {
	Index    int
	URL      string
	Browser  Browser
	Viewport Viewport
}

// NormalizeURL trims the URL and prefixes https:// when no scheme is present.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u
}

// Normalize returns a copy with URLs normalized and defaults applied.
func (s JobSpec) Normalize() JobSpec {
	out := s
	out.Name = strings.TrimSpace(s.Name)
	out.URLs = make([]string, 0, len(s.URLs))
	for _, raw := range s.URLs {
		if u := NormalizeURL(raw); u != "" {
			out.URLs = append(out.URLs, u)
		}
	}
	out.Browsers = uniqueBrowsers(s.Browsers)
	out.Viewports = append([]Viewport(nil), s.Viewports...)
	if s.Kind.IsCapture() {
		if len(out.Browsers) == 0 {
			out.Browsers = []Browser{BrowserChrome}
		}
		if len(out.Viewports) == 0 {
			out.Viewports = []Viewport{DefaultViewport}
		}
	}
	out.Phone.Countries = upperAll(s.Phone.Countries)
	if len(out.Phone.Countries) == 0 {
		out.Phone.Countries = []string{"US"}
	}
	out.Phone.Checks = append([]string(nil), s.Phone.Checks...)
	out.Phone.Target = strings.TrimSpace(s.Phone.Target)
	if out.Name == "" {
		out.Name = fmt.Sprintf("%s audit", out.Kind)
	}
	return out
}

// Validate enforces the invariants a runnable spec must satisfy.
func (s JobSpec) Validate() error {
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if len(s.URLs) == 0 {
		return fmt.Errorf("%w: at least one URL required", ErrInvalidSpec)
	}
	for _, v := range s.Viewports {
		if v.Width <= 0 || v.Height <= 0 {
			return fmt.Errorf("%w: viewport %s must have positive sides", ErrInvalidSpec, v)
		}
	}
	switch s.Kind {
	case KindVisualDiff:
		if len(s.URLs) != 2 {
			return fmt.Errorf("%w: visual diff needs a base and a compare URL", ErrInvalidSpec)
		}
	case KindVideo:
		if len(s.ApplicableBrowsers()) == 0 {
			return fmt.Errorf("%w: none of the requested browsers can record video", ErrInvalidSpec)
		}
	}
	return nil
}

// ApplicableBrowsers filters the requested browsers to those supporting the kind.
func (s JobSpec) ApplicableBrowsers() []Browser {
	switch s.Kind {
	case KindStatic:
		return append([]Browser(nil), s.Browsers...)
	case KindVideo:
		var out []Browser
		for _, b := range s.Browsers {
			if b.SupportsVideo() {
				out = append(out, b)
			}
		}
		return out
	default:
		return []Browser{BrowserChrome}
	}
}

// ExpectedUnits is the number of results the session must eventually account for.
func (s JobSpec) ExpectedUnits() int {
	switch s.Kind {
	case KindStatic, KindVideo:
		return len(s.URLs) * len(s.ApplicableBrowsers()) * len(s.Viewports)
	case KindVisualDiff:
		return 1
	case KindUnified:
		return len(s.URLs) * len(UnifiedKinds)
	default:
		return len(s.URLs)
	}
}

// Units expands the job into work items for one browser, in submission order.
func (s JobSpec) Units(browser Browser) []WorkItem {
	var items []WorkItem
	if s.Kind.IsCapture() {
		for _, u := range s.URLs {
			for _, v := range s.Viewports {
				items = append(items, WorkItem{Index: len(items), URL: u, Browser: browser, Viewport: v})
			}
		}
		return items
	}
	for i, u := range s.URLs {
		items = append(items, WorkItem{Index: i, URL: u, Browser: browser})
	}
	return items
}

func uniqueBrowsers(in []Browser) []Browser {
	var out []Browser
	for _, b := range in {
		if !slices.Contains(out, b) {
			out = append(out, b)
		}
	}
	return out
}

func upperAll(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
