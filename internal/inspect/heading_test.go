package inspect

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectHeadings(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 75)
	cases := []struct {
		name   string
		html   string
		count  int
		issues []string
	}{
		{
			name:   "no heading",
			html:   "<html><body><h2>Sub</h2></body></html>",
			count:  0,
			issues: []string{"No H1 tag found"},
		},
		{
			name:   "single good heading",
			html:   "<h1>  A perfectly sized page heading  </h1>",
			count:  1,
			issues: []string{},
		},
		{
			name:  "multiple with short and empty",
			html:  "<h1>Short</h1><h1> </h1>",
			count: 2,
			issues: []string{
				"Multiple H1 tags found (2)",
				"H1 too short (5 chars): 'Short'",
				"Empty H1 tag text",
			},
		},
		{
			name:   "too long",
			html:   "<h1>" + long + "</h1>",
			count:  1,
			issues: []string{"H1 too long (75 chars): '" + strings.Repeat("a", 50) + "...'"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report, err := InspectHeadings(tc.html)
			require.NoError(t, err)
			assert.Equal(t, tc.count, report.H1Count)
			assert.Equal(t, tc.issues, report.Issues)
		})
	}
}

func TestInspectHeadingsCollectsTexts(t *testing.T) {
	t.Parallel()

	report, err := InspectHeadings("<h1>First heading on the page</h1><h1></h1>")
	require.NoError(t, err)
	require.Equal(t, []string{"First heading on the page"}, report.H1Texts)
	require.Equal(t, []int{25}, report.H1Lengths)
}

func TestErrorIssueTruncates(t *testing.T) {
	t.Parallel()

	issue := ErrorIssue(errors.New(strings.Repeat("x", 150)))
	require.Equal(t, "Error: "+strings.Repeat("x", 100), issue)
}
