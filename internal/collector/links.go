package collector

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lettercast/internal/filter"
)

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"')\]]+`)

// ExtractURLs returns the article links in an HTML newsletter body, in order of
// appearance and without repeats. Anchor hrefs come first, then bare URLs found
// in the visible text. Text URLs are held to the stricter filter.AllowText.
func ExtractURLs(html string, rules []filter.Rule) []string {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var urls []string
	seen := make(map[string]bool)
	add := func(u string, allow func(string, []filter.Rule) bool) {
		if u == "" || seen[u] || !allow(u, rules) {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(strings.ToLower(href), "http") {
			return
		}
		add(href, filter.Allow)
	})

	for _, m := range urlPattern.FindAllString(doc.Text(), -1) {
		add(strings.TrimRight(m, ".,;:!?)"), filter.AllowText)
	}
	return urls
}

// ExtractFirstLink finds the first element matching selector and returns its
// link resolved against baseURL, plus its trimmed text. When the element has no
// href its first descendant anchor is used.
func ExtractFirstLink(html, selector, baseURL string) (link, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", "", fmt.Errorf("no element matches %q", selector)
	}

	href, ok := sel.Attr("href")
	if !ok {
		a := sel.Find("a[href]").First()
		href, ok = a.Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", "", fmt.Errorf("element %q has no href", selector)
	}

	resolved, err := resolveURL(baseURL, href)
	if err != nil {
		return "", "", err
	}
	return resolved, strings.Join(strings.Fields(sel.Text()), " "), nil
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}
