package form

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LoaderMarker identifies the challenge loader script by its src.
const LoaderMarker = "recaptchav3.js"

// ChallengeConfig holds the loader parameters needed to request a token.
type ChallengeConfig struct {
	SiteKey string `json:"sitekey"`
	Action  string `json:"action"`
	Src     string `json:"src"`
}

// ExtractChallengeConfig parses the first loader script reference in html for its
// sitekey and action query parameters. A missing script or empty site key is a ConfigError.
func ExtractChallengeConfig(html string) (*ChallengeConfig, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ConfigError{Message: "failed to parse HTML", Cause: err}
	}

	var src string
	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value, _ := s.Attr("src")
		if strings.Contains(value, LoaderMarker) {
			src = value
			return false
		}
		return true
	})
	if src == "" {
		return nil, &ConfigError{Message: "challenge loader script not found in page HTML"}
	}

	_, rawQuery, _ := strings.Cut(src, "?")
	// ParseQuery keeps every pair it could decode even when it reports an error.
	params, _ := url.ParseQuery(rawQuery)

	cfg := &ChallengeConfig{
		SiteKey: params.Get("sitekey"),
		Action:  params.Get("action"),
		Src:     src,
	}
	if cfg.SiteKey == "" {
		return nil, &ConfigError{Message: "loader script found but sitekey is empty", Src: src}
	}
	return cfg, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
