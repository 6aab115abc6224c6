package inspect

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/html"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Page regions a number can be attributed to.
const (
	LocationHeader = "Header"
	LocationFooter = "Footer"
	LocationBody   = "Body"
	LocationSchema = "Schema"
)

var countryPatterns = map[string][]*regexp.Regexp{
	"US": {
		regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}`),
	},
	"UK": {
		regexp.MustCompile(`\+44\s?\d{4}\s?\d{6}`),
		regexp.MustCompile(`0\d{4}\s?\d{6}`),
		regexp.MustCompile(`\(0\d{4}\)\s?\d{6}`),
	},
	"CA": {regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)},
	"AU": {
		regexp.MustCompile(`\+61\s?\d\s?\d{4}\s?\d{4}`),
		regexp.MustCompile(`0\d\s?\d{4}\s?\d{4}`),
	},
	"DE": {
		regexp.MustCompile(`\+49\s?\d{5,15}`),
		regexp.MustCompile(`0\d{5,15}`),
	},
	"FR": {
		regexp.MustCompile(`\+33\s?\d{9}`),
		regexp.MustCompile(`0\d{9}`),
	},
	"JP": {regexp.MustCompile(`\+81\s?\d{1,4}[-.\s]?\d{1,4}[-.\s]?\d{4}`)},
	"IN": {
		regexp.MustCompile(`\+91\s?\d{5}\s?\d{5}`),
		regexp.MustCompile(`0\d{5}\s?\d{5}`),
	},
}

// SupportedCountries lists the country codes with number patterns.
func SupportedCountries() []string {
	out := make([]string, 0, len(countryPatterns))
	for c := range countryPatterns {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

var nonDigit = regexp.MustCompile(`[^0-9]`)

type phoneCollector struct {
	report  audit.PhoneReport
	seen    map[string]int
	formats map[string]bool
}

func newPhoneCollector() *phoneCollector {
	return &phoneCollector{
		report: audit.PhoneReport{
			PhoneNumbers:    []audit.PhoneNumber{},
			FormatsDetected: []string{},
			Issues:          []string{},
		},
		seen:    make(map[string]int),
		formats: make(map[string]bool),
	}
}

// add records number once. A number first attributed to the body moves to
// the header or footer when it is later seen there. It reports whether the
// number was new.
func (c *phoneCollector) add(number, location string) bool {
	if idx, ok := c.seen[number]; ok {
		if (location == LocationHeader || location == LocationFooter) && c.report.PhoneNumbers[idx].Location == LocationBody {
			c.report.PhoneNumbers[idx].Location = location
		}
		return false
	}
	c.seen[number] = len(c.report.PhoneNumbers)
	c.report.PhoneNumbers = append(c.report.PhoneNumbers, audit.PhoneNumber{Number: number, Location: location})
	return true
}

func (c *phoneCollector) format(name string) {
	if !c.formats[name] {
		c.formats[name] = true
		c.report.FormatsDetected = append(c.report.FormatsDetected, name)
	}
}

func (c *phoneCollector) issue(msg string) {
	c.report.Issues = append(c.report.Issues, msg)
}

// InspectPhones finds phone numbers in an HTML document. previous is the
// phone result persisted just before this one in the same session, or nil;
// it is only consulted by the consistency check.
func InspectPhones(doc string, opts audit.PhoneOptions, previous *audit.PhoneReport) (audit.PhoneReport, error) {
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return audit.PhoneReport{}, fmt.Errorf("parse html: %w", err)
	}
	c := newPhoneCollector()
	if opts.Target != "" {
		searchTarget(c, root, opts.Target)
		return c.finish(), nil
	}

	regions := []struct {
		location string
		text     string
	}{
		{LocationHeader, visibleText(root.Find("header"))},
		{LocationFooter, visibleText(root.Find("footer"))},
		{LocationBody, visibleText(root.Find("body"))},
	}
	countries := opts.Countries
	if len(countries) == 0 {
		countries = []string{"US"}
	}
	for _, region := range regions {
		if region.text == "" {
			continue
		}
		for _, country := range countries {
			for _, pattern := range countryPatterns[country] {
				for _, match := range pattern.FindAllString(region.text, -1) {
					if c.add(strings.TrimSpace(match), region.location) {
						c.format(country)
					}
				}
			}
		}
	}

	if opts.Enabled(audit.PhoneCheckClickable) {
		root.Find(`a[href^="tel:"]`).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			number := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
			if number != "" && c.add(number, selectionLocation(s)) {
				c.issue("Click-to-call link found")
			}
		})
	}

	if opts.Enabled(audit.PhoneCheckSchema) {
		root.Find(`[itemtype*="Organization"], [itemtype*="LocalBusiness"]`).Each(func(_ int, s *goquery.Selection) {
			phone := strings.TrimSpace(s.Find(`[itemprop="telephone"]`).First().Text())
			if phone != "" && c.add(phone, LocationSchema) {
				c.format("schema")
			}
		})
	}

	if opts.Enabled(audit.PhoneCheckValidate) {
		for _, n := range c.report.PhoneNumbers {
			parsed, err := phonenumbers.Parse(n.Number, "")
			switch {
			case err != nil:
				c.issue("Poorly formatted phone number: " + n.Number)
			case !phonenumbers.IsValidNumber(parsed):
				c.issue("Invalid phone number format: " + n.Number)
			}
		}
	}

	// Only the single preceding result is compared, so drift is caught
	// between adjacent pages only.
	if opts.Enabled(audit.PhoneCheckConsistency) && previous != nil {
		if !sameSet(previous.Numbers(), c.report.Numbers()) {
			c.issue("Phone numbers differ from other pages")
		}
	}
	return c.finish(), nil
}

func (c *phoneCollector) finish() audit.PhoneReport {
	c.report.PhoneCount = len(c.report.PhoneNumbers)
	return c.report
}

// searchTarget records where a specific number appears, matching either the
// literal text or its digits.
func searchTarget(c *phoneCollector, root *goquery.Document, target string) {
	digits := nonDigit.ReplaceAllString(target, "")
	found := map[string]bool{}
	for _, body := range root.Find("body").Nodes {
		walkText(body, func(n *html.Node, text string) {
			if !strings.Contains(text, target) && (digits == "" || !strings.Contains(nonDigit.ReplaceAllString(text, ""), digits)) {
				return
			}
			loc := nodeLocation(n)
			if !found[loc] {
				found[loc] = true
				c.report.PhoneNumbers = append(c.report.PhoneNumbers, audit.PhoneNumber{Number: target, Location: loc})
			}
		})
	}
	if len(c.report.PhoneNumbers) == 0 {
		c.issue(fmt.Sprintf("Target number '%s' not found on page.", target))
	}
}

func visibleText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		walkText(n, func(_ *html.Node, text string) {
			parts = append(parts, text)
		})
	}
	return strings.Join(parts, " ")
}

// walkText calls fn for every non-blank text node under n, skipping
// non-rendered elements.
func walkText(n *html.Node, fn func(*html.Node, string)) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			fn(n, text)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walkText(child, fn)
	}
}

func nodeLocation(n *html.Node) string {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.Data {
		case "header":
			return LocationHeader
		case "footer":
			return LocationFooter
		}
	}
	return LocationBody
}

func selectionLocation(s *goquery.Selection) string {
	location := LocationBody
	if s.Closest("header").Length() > 0 {
		location = LocationHeader
	}
	if s.Closest("footer").Length() > 0 {
		location = LocationFooter
	}
	return location
}

func sameSet(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	other := make(map[string]bool, len(b))
	for _, v := range b {
		if !set[v] {
			return false
		}
		other[v] = true
	}
	return len(set) == len(other)
}
