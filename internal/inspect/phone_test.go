package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

func TestInspectPhonesPrefersFooterOverBody(t *testing.T) {
	t.Parallel()

	doc := `<html><body>
		<main><p>Call 555-123-4567 today</p></main>
		<footer>Phone 555-123-4567</footer>
	</body></html>`
	report, err := InspectPhones(doc, audit.PhoneOptions{Countries: []string{"US"}}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.PhoneCount)
	require.Equal(t, []audit.PhoneNumber{{Number: "555-123-4567", Location: LocationFooter}}, report.PhoneNumbers)
	require.Equal(t, []string{"US"}, report.FormatsDetected)
	require.Empty(t, report.Issues)
}

func TestInspectPhonesClickableMovesBodyNumberToHeader(t *testing.T) {
	t.Parallel()

	doc := `<body>
		<header><a href="tel:555-987-6543">Call us</a></header>
		<p>Reach us at 555-987-6543</p>
		<footer><a href="tel:+18005550199">Sales</a></footer>
	</body>`
	opts := audit.PhoneOptions{Countries: []string{"US"}, Checks: []string{audit.PhoneCheckClickable}}
	report, err := InspectPhones(doc, opts, nil)
	require.NoError(t, err)
	require.Equal(t, []audit.PhoneNumber{
		{Number: "555-987-6543", Location: LocationHeader},
		{Number: "+18005550199", Location: LocationFooter},
	}, report.PhoneNumbers)
	require.Equal(t, []string{"Click-to-call link found"}, report.Issues)
}

func TestInspectPhonesSchemaAndValidation(t *testing.T) {
	t.Parallel()

	doc := `<body>
		<div itemscope itemtype="https://schema.org/Organization">
			<span itemprop="telephone">+1 650-253-0000</span>
		</div>
	</body>`
	opts := audit.PhoneOptions{
		Countries: []string{"US"},
		Checks:    []string{audit.PhoneCheckSchema, audit.PhoneCheckValidate},
	}
	report, err := InspectPhones(doc, opts, nil)
	require.NoError(t, err)
	require.Equal(t, []audit.PhoneNumber{
		{Number: "650-253-0000", Location: LocationBody},
		{Number: "+1 650-253-0000", Location: LocationSchema},
	}, report.PhoneNumbers)
	require.Equal(t, []string{"US", "schema"}, report.FormatsDetected)
	require.Equal(t, []string{"Poorly formatted phone number: 650-253-0000"}, report.Issues)
}

func TestInspectPhonesConsistencyComparesPrevious(t *testing.T) {
	t.Parallel()

	doc := `<body><p>555-123-4567</p></body>`
	opts := audit.PhoneOptions{Countries: []string{"US"}, Checks: []string{audit.PhoneCheckConsistency}}

	report, err := InspectPhones(doc, opts, nil)
	require.NoError(t, err)
	require.Empty(t, report.Issues)

	same := &audit.PhoneReport{PhoneNumbers: []audit.PhoneNumber{{Number: "555-123-4567", Location: LocationFooter}}}
	report, err = InspectPhones(doc, opts, same)
	require.NoError(t, err)
	require.Empty(t, report.Issues)

	different := &audit.PhoneReport{PhoneNumbers: []audit.PhoneNumber{{Number: "555-000-1111"}}}
	report, err = InspectPhones(doc, opts, different)
	require.NoError(t, err)
	require.Equal(t, []string{"Phone numbers differ from other pages"}, report.Issues)
}

func TestInspectPhonesCountryPatterns(t *testing.T) {
	t.Parallel()

	doc := `<body><p>London office +44 2071 234567, US 555-123-4567</p></body>`
	report, err := InspectPhones(doc, audit.PhoneOptions{Countries: []string{"UK"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"+44 2071 234567"}, report.Numbers())
	assert.Equal(t, []string{"UK"}, report.FormatsDetected)
}

func TestInspectPhonesTargetSearch(t *testing.T) {
	t.Parallel()

	doc := `<body>
		<header>Call +1 (555) 111-2222</header>
		<p>Or dial 5551112222</p>
		<script>var tel = "555-111-2222";</script>
	</body>`
	report, err := InspectPhones(doc, audit.PhoneOptions{Target: "555-111-2222"}, nil)
	require.NoError(t, err)
	require.Equal(t, []audit.PhoneNumber{
		{Number: "555-111-2222", Location: LocationHeader},
		{Number: "555-111-2222", Location: LocationBody},
	}, report.PhoneNumbers)
	require.Empty(t, report.Issues)

	report, err = InspectPhones(`<body><p>nothing</p></body>`, audit.PhoneOptions{Target: "555-111-2222"}, nil)
	require.NoError(t, err)
	require.Zero(t, report.PhoneCount)
	require.Equal(t, []string{"Target number '555-111-2222' not found on page."}, report.Issues)
}

func TestSupportedCountriesSorted(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"AU", "CA", "DE", "FR", "IN", "JP", "UK", "US"}, SupportedCountries())
}
