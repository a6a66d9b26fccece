package response

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const feePage = `
<html><body>
	<fieldset>
		<legend>Vehicle</legend>
		<dl><dt>Not a fee</dt><dd>ignored</dd></dl>
	</fieldset>
	<fieldset class="fees">
		<legend> Fees </legend>
		<dl>
			<dt>Registration Fee</dt><dd>$50</dd>
			<dt>Vehicle License Fee</dt><dd> $ <strong>125</strong> </dd>
			<dt>Use Tax</dt><dd>$1,210</dd>
		</dl>
	</fieldset>
	<table class="table table--secondary">
		<thead><tr><th>Description</th><th>Amount</th></tr></thead>
		<tbody>
			<tr><td>California Highway Patrol</td><td>$32</td></tr>
			<tr><td colspan="2">Subtotal</td></tr>
			<tr><td>Transportation Improvement Fee</td><td>$25</td><td>extra</td></tr>
		</tbody>
	</table>
	<table class="table--secondary"><tbody><tr><td>Second table</td><td>$1</td></tr></tbody></table>
</body></html>`

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Verdict
	}{
		{name: "not verified", body: "<p>Session Not Verified</p>", want: NotVerified},
		{name: "not verified upper", body: "SESSION NOT VERIFIED", want: NotVerified},
		{
			name: "validation error",
			body: `<div class="alert alert--error">Bad</div><fieldset><legend>Calculate New Resident Fees</legend></fieldset>`,
			want: ValidationError,
		},
		{
			name: "alert markup is case sensitive",
			body: `<DIV CLASS="ALERT ALERT--ERROR">Bad</DIV><legend>Calculate New Resident Fees</legend>`,
			want: Verified,
		},
		{name: "alert without form legend", body: `<div class="alert alert--error">Bad</div>`, want: Verified},
		{name: "legend without alert", body: `<legend>Calculate New Resident Fees</legend>`, want: Verified},
		{
			name: "not verified wins",
			body: `session not verified <div class="alert alert--error"><legend>calculate new resident fees</legend>`,
			want: NotVerified,
		},
		{name: "plain results", body: feePage, want: Verified},
		{name: "empty", body: "", want: Verified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.body))
		})
	}
}

func TestVerdict_Rejected(t *testing.T) {
	assert.True(t, NotVerified.Rejected())
	assert.True(t, ValidationError.Rejected())
	assert.False(t, Verified.Rejected())
	assert.False(t, Unknown.Rejected())
}

func TestExtractSummary_Scenario(t *testing.T) {
	doc := docFrom(t, `<fieldset><legend>Fees</legend><dl><dt>Reg Fee</dt><dd>$50</dd></dl></fieldset>`)
	got := ExtractSummary(doc, zap.NewNop())
	assert.Equal(t, []SummaryRecord{{Item: "Reg Fee", Fee: "$50"}}, got)
}

func TestExtractSummary_DocumentOrderAndStrippedText(t *testing.T) {
	got := ExtractSummary(docFrom(t, feePage), zap.NewNop())
	want := []SummaryRecord{
		{Item: "Registration Fee", Fee: "$50"},
		{Item: "Vehicle License Fee", Fee: "$125"},
		{Item: "Use Tax", Fee: "$1,210"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSummary_MismatchedCounts(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	doc := docFrom(t, `<fieldset><legend>Fees</legend>
		<dt>A</dt><dd>$1</dd>
		<dt>B</dt><dd>$2</dd>
		<dt>C</dt>
	</fieldset>`)

	got := ExtractSummary(doc, zap.New(core))
	assert.Equal(t, []SummaryRecord{{Item: "A", Fee: "$1"}, {Item: "B", Fee: "$2"}}, got)
	assert.Equal(t, 1, logs.FilterMessage("mismatched summary term and value counts").Len())
}

func TestExtractSummary_LegendMissing(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	got := ExtractSummary(docFrom(t, `<fieldset><legend>Fee Totals</legend><dt>A</dt><dd>1</dd></fieldset>`), zap.New(core))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 1, logs.Len())
}

func TestExtractDetail_SkipsShortRows(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	got := ExtractDetail(docFrom(t, feePage), zap.New(core))

	want := []DetailRecord{
		{Description: "California Highway Patrol", Fee: "$32"},
		{Description: "Transportation Improvement Fee", Fee: "$25"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("detail mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, logs.FilterMessage("skipped fee row").Len())
}

func TestExtractDetail_ImplicitTbody(t *testing.T) {
	got := ExtractDetail(docFrom(t, `<table class="table--secondary">
		<tr><th>Description</th><th>Fee</th></tr>
		<tr><td>Smog</td><td>$8.25</td></tr>
	</table>`), zap.NewNop())

	assert.Equal(t, []DetailRecord{{Description: "Smog", Fee: "$8.25"}}, got)
}

func TestExtractDetail_TableMissing(t *testing.T) {
	got := ExtractDetail(docFrom(t, `<table class="table--primary"><tr><td>a</td><td>b</td></tr></table>`), zap.NewNop())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractFees_PassesAreIndependent(t *testing.T) {
	fees, err := ExtractFees(`<table class="table--secondary"><tbody><tr><td>Only detail</td><td>$5</td></tr></tbody></table>`, nil)
	require.NoError(t, err)
	assert.Empty(t, fees.Summary)
	assert.Len(t, fees.Detail, 1)
	assert.False(t, fees.Empty())
}

func TestExtractFees_Empty(t *testing.T) {
	fees, err := ExtractFees("<html><body><p>Nothing here</p></body></html>", nil)
	require.NoError(t, err)
	assert.True(t, fees.Empty())
}

func TestFees_Rows(t *testing.T) {
	fees := &Fees{
		Summary: []SummaryRecord{{Item: "Reg Fee", Fee: "$50"}},
		Detail:  []DetailRecord{{Description: "CHP", Fee: "$32"}},
	}
	assert.Equal(t, [][]string{{"Reg Fee", "$50"}}, fees.SummaryRows())
	assert.Equal(t, [][]string{{"CHP", "$32"}}, fees.DetailRows())
}
