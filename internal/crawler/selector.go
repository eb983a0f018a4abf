package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkSelector extracts links from HTML content.
type LinkSelector struct {
	CSSSelector string         // CSS selector for links to follow
	URLPattern  *regexp.Regexp // Regex pattern for URLs to match
}

// NewLinkSelector creates a link selector.
func NewLinkSelector(cssSelector string, urlPattern string) (*LinkSelector, error) {
	ls := &LinkSelector{
		CSSSelector: cssSelector,
	}

	if urlPattern != "" {
		pattern, err := regexp.Compile(urlPattern)
		if err != nil {
			return nil, err
		}
		ls.URLPattern = pattern
	}

	return ls, nil
}

// ExtractLinks extracts matching links from HTML content in document order.
func (ls *LinkSelector) ExtractLinks(html string, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]bool)

	selector := ls.CSSSelector
	if selector == "" {
		selector = "a[href]"
	}

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		fullURL, ok := resolveHref(s, base)
		if !ok {
			return
		}

		if ls.URLPattern != nil && !ls.URLPattern.MatchString(fullURL) {
			return
		}

		if seen[fullURL] {
			return
		}
		seen[fullURL] = true

		links = append(links, fullURL)
	})

	return links, nil
}

// PaginationSelector finds the next page link.
type PaginationSelector struct {
	NextSelector string // CSS selector for "next" link
}

// NewPaginationSelector creates a pagination selector.
func NewPaginationSelector(nextSelector string) *PaginationSelector {
	return &PaginationSelector{
		NextSelector: nextSelector,
	}
}

// FindNextPage finds the URL of the next page. Disabled controls (a
// "disabled" class on the link or its list item, or aria-disabled) do not
// count.
func (ps *PaginationSelector) FindNextPage(html string, baseURL string) (string, bool) {
	if ps.NextSelector == "" {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return "", false
	}

	var nextURL string
	doc.Find(ps.NextSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if disabled(s) {
			return true
		}
		if u, ok := resolveHref(s, base); ok {
			nextURL = u
			return false
		}
		return true
	})

	return nextURL, nextURL != ""
}

// HasMarker reports whether selector matches anything in html.
func HasMarker(html, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func disabled(s *goquery.Selection) bool {
	if s.HasClass("disabled") || s.Parent().HasClass("disabled") {
		return true
	}
	if v, ok := s.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	_, ok := s.Attr("disabled")
	return ok
}

// resolveHref returns the absolute, fragment-free URL of s's href.
func resolveHref(s *goquery.Selection, base *url.URL) (string, bool) {
	href, exists := s.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "", false
	}

	// Skip fragments and javascript links
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}

	linkURL, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if !linkURL.IsAbs() {
		linkURL = base.ResolveReference(linkURL)
	}
	linkURL.Fragment = ""
	return linkURL.String(), true
}
