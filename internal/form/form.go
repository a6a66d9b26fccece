package form

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jonathan/fee-agent/internal/fetch"
)

// FormID is the id attribute of the fee request form.
const FormID = "FeeRequestForm"

// Snapshot is the form page as captured by one GET. It is not modified after Fetch returns.
type Snapshot struct {
	URL          string
	HTML         string
	StatusCode   int
	HiddenFields map[string]string
	FormFound    bool
	FetchedAt    time.Time
}

// Getter is the part of a session FormFetcher needs.
type Getter interface {
	Get(ctx context.Context, urlStr string) (*fetch.Response, error)
}

// Fetch retrieves the form page and collects its hidden fields.
// A page without the form yields an empty field map and a warning, not an error.
func Fetch(ctx context.Context, getter Getter, urlStr string, logger *zap.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	resp, err := getter.Get(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	hidden, found := ExtractHiddenFields(resp.Body)
	if !found {
		logger.Warn("form not found in HTML", zap.String("form_id", FormID))
	} else {
		logger.Info("extracted hidden fields",
			zap.Int("count", len(hidden)),
			zap.Strings("names", sortedNames(hidden)))
	}

	return &Snapshot{
		URL:          urlStr,
		HTML:         resp.Body,
		StatusCode:   resp.StatusCode,
		HiddenFields: hidden,
		FormFound:    found,
		FetchedAt:    time.Now(),
	}, nil
}

// ExtractHiddenFields returns name→value for every hidden input under the fee request form.
// Inputs without a name are ignored; a missing value attribute yields "".
// The bool reports whether the form element was present at all.
func ExtractHiddenFields(html string) (map[string]string, bool) {
	hidden := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return hidden, false
	}

	form := doc.Find("form#" + FormID).First()
	if form.Length() == 0 {
		return hidden, false
	}

	form.Find("input[type='hidden']").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := s.Attr("value")
		hidden[name] = value
	})

	return hidden, true
}
