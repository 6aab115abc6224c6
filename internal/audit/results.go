package audit

import (
	"encoding/json"
	"time"
)

// Result is the per-unit outcome persisted for a session. Exactly one of the
// payload pointers is set for a successful unit; Error is set on failure and
// the payload may still carry partial data (for example an issues list).
type Result struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      Kind      `json:"kind"`
	URL       string    `json:"url"`
	Browser   Browser   `json:"browser,omitempty"`
	Viewport  Viewport  `json:"viewport,omitzero"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Capture       *Capture             `json:"capture,omitempty"`
	Heading       *HeadingReport       `json:"heading,omitempty"`
	Phone         *PhoneReport         `json:"phone,omitempty"`
	Accessibility *AccessibilityReport `json:"accessibility,omitempty"`
	Performance   *PerformanceReport   `json:"performance,omitempty"`
	VisualDiff    *VisualDiffReport    `json:"visual_diff,omitempty"`
	Unified       *UnifiedScore        `json:"unified,omitempty"`
}

// Failed reports whether the unit ended in error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Capture describes a screenshot or video artifact.
type Capture struct {
	Path     string `json:"path"`
	URI      string `json:"uri"`
	Filename string `json:"filename"`
	Format   string `json:"format"`
	SHA256   string `json:"sha256,omitempty"`
	Bytes    int    `json:"bytes"`
	Frames   int    `json:"frames,omitempty"`
}

// HeadingReport is the outcome of the heading audit for one URL.
type HeadingReport struct {
	H1Count   int      `json:"h1_count"`
	H1Texts   []string `json:"h1_texts"`
	H1Lengths []int    `json:"h1_lengths"`
	Issues    []string `json:"issues"`
}

// PhoneNumber is a detected number and the page region it was attributed to.
type PhoneNumber struct {
	Number   string `json:"number"`
	Location string `json:"location"`
}

// PhoneReport is the outcome of the phone audit for one URL.
type PhoneReport struct {
	PhoneCount      int           `json:"phone_count"`
	PhoneNumbers    []PhoneNumber `json:"phone_numbers"`
	FormatsDetected []string      `json:"formats_detected"`
	Issues          []string      `json:"issues"`
}

// Numbers returns the detected numbers without locations.
func (p PhoneReport) Numbers() []string {
	out := make([]string, 0, len(p.PhoneNumbers))
	for _, n := range p.PhoneNumbers {
		out = append(out, n.Number)
	}
	return out
}

// AccessibilityReport summarizes rule-engine violations for one URL.
type AccessibilityReport struct {
	Score           int             `json:"score"`
	ViolationsCount int             `json:"violations_count"`
	Critical        int             `json:"critical_count"`
	Serious         int             `json:"serious_count"`
	Moderate        int             `json:"moderate_count"`
	Minor           int             `json:"minor_count"`
	Report          json.RawMessage `json:"report_json,omitempty"`
}

// PerformanceReport holds navigation-timing derived metrics for one URL.
type PerformanceReport struct {
	TTFBMs        int64  `json:"ttfb_ms"`
	DOMLoadMs     int64  `json:"dom_load_ms"`
	PageLoadMs    int64  `json:"page_load_ms"`
	FCPMs         int64  `json:"fcp_ms"`
	ResourceCount int    `json:"resource_count"`
	Score         int    `json:"score"`
	DevicePreset  string `json:"device_preset"`
}

// VisualDiffReport compares two page renders.
type VisualDiffReport struct {
	BaseURL    string `json:"base_url"`
	CompareURL string `json:"compare_url"`
	DiffScore  int    `json:"diff_score"`
	DiffPath   string `json:"diff_path"`
	DiffURI    string `json:"diff_uri"`
}

// UnifiedScore is the aggregate of the four inspection scores for one URL.
type UnifiedScore struct {
	Performance   int `json:"performance_score"`
	Accessibility int `json:"accessibility_score"`
	SEO           int `json:"seo_score"`
	Content       int `json:"content_score"`
	Overall       int `json:"overall_score"`
}
