package inspect

import (
	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// DevicePreset is the only device profile performance audits run under.
const DevicePreset = "Desktop"

// PerformanceScript resolves to navigation timing, first contentful paint
// and the resource count.
const PerformanceScript = `(() => {
	const t = window.performance.timing;
	const paint = performance.getEntriesByType('paint').find(e => e.name === 'first-contentful-paint');
	return {
		navigationStart: t.navigationStart,
		responseStart: t.responseStart,
		domContentLoadedEventEnd: t.domContentLoadedEventEnd,
		loadEventEnd: t.loadEventEnd,
		firstContentfulPaint: paint ? paint.startTime : 0,
		resourceCount: performance.getEntriesByType('resource').length,
	};
})()`

// Timing is the decoded result of PerformanceScript, in epoch milliseconds
// except FirstContentfulPaint which is relative to navigation start.
type Timing struct {
	NavigationStart          float64 `json:"navigationStart"`
	ResponseStart            float64 `json:"responseStart"`
	DOMContentLoadedEventEnd float64 `json:"domContentLoadedEventEnd"`
	LoadEventEnd             float64 `json:"loadEventEnd"`
	FirstContentfulPaint     float64 `json:"firstContentfulPaint"`
	ResourceCount            int     `json:"resourceCount"`
}

// ScorePerformance derives the timing metrics and a 0-100 score.
func ScorePerformance(t Timing) audit.PerformanceReport {
	report := audit.PerformanceReport{
		TTFBMs:        since(t.ResponseStart, t.NavigationStart),
		DOMLoadMs:     since(t.DOMContentLoadedEventEnd, t.NavigationStart),
		PageLoadMs:    since(t.LoadEventEnd, t.NavigationStart),
		FCPMs:         int64(max(0, t.FirstContentfulPaint)),
		ResourceCount: t.ResourceCount,
		DevicePreset:  DevicePreset,
	}
	score := 100
	if report.PageLoadMs > 3000 {
		score -= 10
	}
	if report.PageLoadMs > 5000 {
		score -= 20
	}
	if report.TTFBMs > 500 {
		score -= 10
	}
	report.Score = max(0, score)
	return report
}

func since(ts, start float64) int64 {
	return int64(max(0, ts-start))
}
