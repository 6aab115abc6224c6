// Package inspect holds the per-kind analysis strategies run against a
// loaded page: heading structure, phone numbers, accessibility and
// performance.
package inspect

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Heading length bounds, in characters.
const (
	MaxHeadingLength = 70
	MinHeadingLength = 20
)

// InspectHeadings audits the h1 elements of an HTML document.
func InspectHeadings(html string) (audit.HeadingReport, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return audit.HeadingReport{}, fmt.Errorf("parse html: %w", err)
	}
	report := audit.HeadingReport{H1Texts: []string{}, H1Lengths: []int{}, Issues: []string{}}
	var texts []string
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	report.H1Count = len(texts)
	switch {
	case report.H1Count == 0:
		report.Issues = append(report.Issues, "No H1 tag found")
	case report.H1Count > 1:
		report.Issues = append(report.Issues, fmt.Sprintf("Multiple H1 tags found (%d)", report.H1Count))
	}
	for _, text := range texts {
		if text == "" {
			report.Issues = append(report.Issues, "Empty H1 tag text")
			continue
		}
		n := utf8.RuneCountInString(text)
		report.H1Texts = append(report.H1Texts, text)
		report.H1Lengths = append(report.H1Lengths, n)
		if n > MaxHeadingLength {
			report.Issues = append(report.Issues, fmt.Sprintf("H1 too long (%d chars): '%s...'", n, prefix(text, 50)))
		}
		if n < MinHeadingLength {
			report.Issues = append(report.Issues, fmt.Sprintf("H1 too short (%d chars): '%s'", n, text))
		}
	}
	return report, nil
}

// ErrorIssue renders a unit failure as an issue line, truncated to 100 characters.
func ErrorIssue(err error) string {
	return "Error: " + prefix(err.Error(), 100)
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
