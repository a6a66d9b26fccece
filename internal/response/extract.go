package response

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// SummaryRecord is one item of the summary fee list.
type SummaryRecord struct {
	Item string `json:"Item"`
	Fee  string `json:"Fee"`
}

// DetailRecord is one row of the detailed fee table.
type DetailRecord struct {
	Description string `json:"Description"`
	Fee         string `json:"Fee"`
}

// Fees holds both record sets in document order.
type Fees struct {
	Summary []SummaryRecord
	Detail  []DetailRecord
}

// Empty reports whether neither pass produced a record.
func (f *Fees) Empty() bool {
	return f == nil || (len(f.Summary) == 0 && len(f.Detail) == 0)
}

// SummaryHeader and DetailHeader are the CSV column names.
var (
	SummaryHeader = []string{"Item", "Fee"}
	DetailHeader  = []string{"Description", "Fee"}
)

// SummaryRows renders the summary records as CSV rows without a header.
func (f *Fees) SummaryRows() [][]string {
	rows := make([][]string, 0, len(f.Summary))
	for _, r := range f.Summary {
		rows = append(rows, []string{r.Item, r.Fee})
	}
	return rows
}

// DetailRows renders the detail records as CSV rows without a header.
func (f *Fees) DetailRows() [][]string {
	rows := make([][]string, 0, len(f.Detail))
	for _, r := range f.Detail {
		rows = append(rows, []string{r.Description, r.Fee})
	}
	return rows
}

// ExtractError is returned when the response cannot be parsed as HTML at all.
type ExtractError struct {
	Message string
	Cause   error
}

func (e *ExtractError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extract error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("extract error: %s", e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Cause
}

// ExtractFees runs the summary and detail passes over body. The passes are independent:
// a missing anchor leaves its set empty without affecting the other.
func ExtractFees(body string, logger *zap.Logger) (*Fees, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &ExtractError{Message: "failed to parse response HTML", Cause: err}
	}

	fees := &Fees{
		Summary: ExtractSummary(doc, logger),
		Detail:  ExtractDetail(doc, logger),
	}
	logger.Info("fees extracted",
		zap.Int("summary_records", len(fees.Summary)),
		zap.Int("detail_records", len(fees.Detail)))
	return fees, nil
}

// ExtractSummary pairs the dt and dd elements of the fieldset whose legend reads "Fees".
// Pairing is positional and stops at the shorter list.
func ExtractSummary(doc *goquery.Document, logger *zap.Logger) []SummaryRecord {
	var fieldset *goquery.Selection
	doc.Find("legend").EachWithBreak(func(_ int, legend *goquery.Selection) bool {
		if strippedText(legend) != "Fees" {
			return true
		}
		fieldset = legend.Closest("fieldset")
		return false
	})
	if fieldset == nil || fieldset.Length() == 0 {
		logger.Warn("summary fees legend not found")
		return []SummaryRecord{}
	}

	terms := fieldset.Find("dt")
	defs := fieldset.Find("dd")
	if terms.Length() != defs.Length() {
		logger.Warn("mismatched summary term and value counts",
			zap.Int("dt", terms.Length()),
			zap.Int("dd", defs.Length()))
	}

	n := min(terms.Length(), defs.Length())
	records := make([]SummaryRecord, 0, n)
	for i := range n {
		records = append(records, SummaryRecord{
			Item: strippedText(terms.Eq(i)),
			Fee:  strippedText(defs.Eq(i)),
		})
	}
	return records
}

// ExtractDetail reads body rows of the first secondary fee table. Rows with fewer than two
// data cells are skipped.
func ExtractDetail(doc *goquery.Document, logger *zap.Logger) []DetailRecord {
	table := doc.Find("table.table--secondary").First()
	if table.Length() == 0 {
		logger.Warn("detailed fees table not found")
		return []DetailRecord{}
	}

	records := []DetailRecord{}
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			logger.Debug("skipped fee row", zap.Int("row", i), zap.Int("cells", cells.Length()))
			return
		}
		records = append(records, DetailRecord{
			Description: strippedText(cells.Eq(0)),
			Fee:         strippedText(cells.Eq(1)),
		})
	})
	return records
}

// strippedText joins the trimmed text nodes under s, so markup between words contributes no
// whitespace of its own.
func strippedText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return b.String()
}
