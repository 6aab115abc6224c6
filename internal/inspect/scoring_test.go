package inspect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAccessibility(t *testing.T) {
	t.Parallel()

	results := AxeResults{Violations: []AxeViolation{
		{ID: "color-contrast", Impact: "serious"},
		{ID: "image-alt", Impact: "critical"},
		{ID: "region", Impact: "moderate"},
		{ID: "landmark-one-main"},
	}}
	report, err := ScoreAccessibility(results)
	require.NoError(t, err)
	assert.Equal(t, 80, report.Score)
	assert.Equal(t, 4, report.ViolationsCount)
	assert.Equal(t, [4]int{1, 1, 1, 1}, [4]int{report.Critical, report.Serious, report.Moderate, report.Minor})
	assert.Contains(t, string(report.Report), "color-contrast")

	many := AxeResults{Violations: make([]AxeViolation, 30)}
	report, err = ScoreAccessibility(many)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, 30, report.Minor)

	report, err = ScoreAccessibility(AxeResults{})
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.JSONEq(t, `[]`, string(report.Report))
}

func TestAccessibilityScriptInjectsAxe(t *testing.T) {
	t.Parallel()

	require.True(t, strings.Contains(AccessibilityScript, AxeCoreURL))
	require.Contains(t, AccessibilityScript, "axe.run()")
}

func TestScorePerformance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		timing Timing
		score  int
	}{
		{"fast", Timing{NavigationStart: 1000, ResponseStart: 1100, DOMContentLoadedEventEnd: 1800, LoadEventEnd: 2500}, 100},
		{"slow load", Timing{NavigationStart: 0, ResponseStart: 200, LoadEventEnd: 4000}, 90},
		{"very slow and slow ttfb", Timing{NavigationStart: 0, ResponseStart: 900, LoadEventEnd: 6000}, 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.score, ScorePerformance(tc.timing).Score)
		})
	}

	report := ScorePerformance(Timing{
		NavigationStart:          1000,
		ResponseStart:            1150,
		DOMContentLoadedEventEnd: 1900,
		LoadEventEnd:             0,
		FirstContentfulPaint:     420.7,
		ResourceCount:            17,
	})
	assert.Equal(t, int64(150), report.TTFBMs)
	assert.Equal(t, int64(900), report.DOMLoadMs)
	assert.Equal(t, int64(0), report.PageLoadMs)
	assert.Equal(t, int64(420), report.FCPMs)
	assert.Equal(t, 17, report.ResourceCount)
	assert.Equal(t, DevicePreset, report.DevicePreset)
}
