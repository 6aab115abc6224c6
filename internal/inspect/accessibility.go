package inspect

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// AxeCoreURL is the rule engine injected into audited pages.
const AxeCoreURL = "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.7.2/axe.min.js"

// ViolationPenalty is subtracted from 100 per violation.
const ViolationPenalty = 5

// AccessibilityScript loads axe-core when missing and resolves to the
// violations of axe.run().
var AccessibilityScript = fmt.Sprintf(`(async () => {
	if (typeof axe === 'undefined') {
		await new Promise((resolve, reject) => {
			const s = document.createElement('script');
			s.src = %q;
			s.onload = resolve;
			s.onerror = () => reject(new Error('axe-core failed to load'));
			document.head.appendChild(s);
		});
	}
	const results = await axe.run();
	return {
		violations: results.violations.map(v => ({
			id: v.id,
			impact: v.impact || '',
			description: v.description,
			help: v.help,
			nodes: v.nodes.length,
		})),
	};
})()`, AxeCoreURL)

// AxeViolation is one failed accessibility rule.
type AxeViolation struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Help        string `json:"help"`
	Nodes       int    `json:"nodes"`
}

// AxeResults is the decoded result of AccessibilityScript.
type AxeResults struct {
	Violations []AxeViolation `json:"violations"`
}

// ScoreAccessibility buckets violations by impact and scores the page.
// Violations without a known impact count as minor.
func ScoreAccessibility(results AxeResults) (audit.AccessibilityReport, error) {
	report := audit.AccessibilityReport{ViolationsCount: len(results.Violations)}
	for _, v := range results.Violations {
		switch v.Impact {
		case "critical":
			report.Critical++
		case "serious":
			report.Serious++
		case "moderate":
			report.Moderate++
		default:
			report.Minor++
		}
	}
	report.Score = max(0, 100-ViolationPenalty*len(results.Violations))
	violations := results.Violations
	if violations == nil {
		violations = []AxeViolation{}
	}
	raw, err := json.Marshal(violations)
	if err != nil {
		return report, fmt.Errorf("encode violations: %w", err)
	}
	report.Report = raw
	return report, nil
}
