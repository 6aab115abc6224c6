package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddsSchemeAndDefaults(t *testing.T) {
	t.Parallel()

	spec := JobSpec{
		Kind: KindStatic,
		URLs: []string{" example.com/pricing ", "", "http://a.test"},
	}.Normalize()

	require.Equal(t, []string{"https://example.com/pricing", "http://a.test"}, spec.URLs)
	require.Equal(t, []Browser{BrowserChrome}, spec.Browsers)
	require.Equal(t, []Viewport{DefaultViewport}, spec.Viewports)
	require.Equal(t, []string{"US"}, spec.Phone.Countries)
	require.Equal(t, "static audit", spec.Name)
}

func TestExpectedUnits(t *testing.T) {
	t.Parallel()

	urls := []string{"http://a.test", "http://b.test", "http://c.test"}
	sizes := []Viewport{{1280, 720}, {375, 812}}
	all := []Browser{BrowserChrome, BrowserEdge, BrowserFirefox, BrowserSafari}

	cases := []struct {
		name string
		spec JobSpec
		want int
	}{
		{"static fans out", JobSpec{Kind: KindStatic, URLs: urls, Browsers: all[:2], Viewports: sizes}, 12},
		{"video drops non recording browsers", JobSpec{Kind: KindVideo, URLs: urls, Browsers: all, Viewports: sizes}, 12},
		{"heading is per url", JobSpec{Kind: KindHeading, URLs: urls, Browsers: all, Viewports: sizes}, 3},
		{"unified counts four sub audits", JobSpec{Kind: KindUnified, URLs: urls[:2]}, 8},
		{"visual diff is one unit", JobSpec{Kind: KindVisualDiff, URLs: urls[:2]}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.spec.ExpectedUnits())
		})
	}
}

func TestUnitsMatchExpected(t *testing.T) {
	t.Parallel()

	spec := JobSpec{
		Kind:      KindStatic,
		URLs:      []string{"http://a.test", "http://b.test"},
		Browsers:  []Browser{BrowserChrome, BrowserFirefox},
		Viewports: []Viewport{{1280, 720}, {800, 600}},
	}
	total := 0
	for _, b := range spec.ApplicableBrowsers() {
		units := spec.Units(b)
		for i, u := range units {
			require.Equal(t, i, u.Index)
			require.Equal(t, b, u.Browser)
		}
		total += len(units)
	}
	require.Equal(t, spec.ExpectedUnits(), total)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, JobSpec{Kind: KindStatic}.Validate(), ErrInvalidSpec)
	require.ErrorIs(t, JobSpec{Kind: "bogus", URLs: []string{"x"}}.Validate(), ErrInvalidSpec)
	require.ErrorIs(t, JobSpec{Kind: KindVisualDiff, URLs: []string{"a"}}.Validate(), ErrInvalidSpec)
	require.ErrorIs(t, JobSpec{
		Kind:     KindVideo,
		URLs:     []string{"a"},
		Browsers: []Browser{BrowserSafari},
	}.Validate(), ErrInvalidSpec)
	require.NoError(t, JobSpec{Kind: KindPhone, URLs: []string{"https://a.test"}}.Validate())
}

func TestParsers(t *testing.T) {
	t.Parallel()

	k, err := ParseKind("dynamic")
	require.NoError(t, err)
	require.Equal(t, KindVideo, k)

	b, err := ParseBrowser("safari")
	require.NoError(t, err)
	require.Equal(t, BrowserSafari, b)
	require.False(t, b.SupportsVideo())

	v, err := ParseViewport("1280x720")
	require.NoError(t, err)
	require.Equal(t, Viewport{Width: 1280, Height: 720}, v)
	require.Equal(t, "1280x720", v.String())

	_, err = ParseViewport("1280")
	require.Error(t, err)
	_, err = ParseViewport("0x10")
	require.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusRunning.Terminal())
	for _, s := range []Status{StatusCompleted, StatusStopped, StatusError} {
		require.True(t, s.Terminal(), s)
	}
	require.Equal(t, Progress{Status: StatusNotFound}, NotFoundProgress())
}
