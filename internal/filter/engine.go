// Package filter decides which links found in newsletters are worth collecting.
package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind defines the type of a link rule.
type Kind string

// Supported rule kinds.
const (
	ExcludeDomain Kind = "exclude_domain"
	ExcludeRe     Kind = "exclude_re"
	IncludeRe     Kind = "include_re"
)

// Rule is a single link filtering rule. Build regex rules with NewRule so
// the pattern is compiled once.
type Rule struct {
	Kind  Kind
	Value string
	re    *regexp.Regexp
}

// NewRule validates and prepares a rule. Patterns match case-insensitively.
func NewRule(kind Kind, value string) (Rule, error) {
	switch kind {
	case ExcludeDomain:
		return Rule{Kind: kind, Value: strings.ToLower(strings.TrimSpace(value))}, nil
	case ExcludeRe, IncludeRe:
		re, err := compile(value)
		if err != nil {
			return Rule{}, err
		}
		return Rule{Kind: kind, Value: value, re: re}, nil
	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", kind)
	}
}

func mustRule(kind Kind, value string) Rule {
	r, err := NewRule(kind, value)
	if err != nil {
		panic(err)
	}
	return r
}

// defaultDomains are asset, schema and redirect hosts that never point at an article.
var defaultDomains = []string{
	"fonts.googleapis.com",
	"fonts.gstatic.com",
	"www.w3.org",
	"schemas.microsoft.com",
	"aka.ms",
}

// listManagement matches unsubscribe and subscription-settings pages without
// catching articles that merely mention management or preferences.
var listManagement = mustRule(ExcludeRe,
	`unsubscribe|opt[-_]?out|manage[-_]?(your[-_]?)?(subscriptions?|preferences|emails?)|`+
		`(email|subscription|notification|communication)[-_]?preferences|preferences?[-_/]?cent(er|re)`)

// textKeywords is the broader denylist for bare URLs found in message text,
// where there is no anchor markup to tell navigation from content.
var textKeywords = mustRule(ExcludeRe, `unsubscribe|mailto|manage|preferences|opt-out`)

// DefaultRules returns the built-in denylist plus rules for extra domains.
func DefaultRules(extraDomains ...string) []Rule {
	rules := make([]Rule, 0, len(defaultDomains)+len(extraDomains)+1)
	for _, d := range defaultDomains {
		rules = append(rules, mustRule(ExcludeDomain, d))
	}
	for _, d := range extraDomains {
		if r := mustRule(ExcludeDomain, d); r.Value != "" {
			rules = append(rules, r)
		}
	}
	return append(rules, listManagement)
}

// NewRules returns DefaultRules(extraDomains...) followed by the given
// include and exclude patterns.
func NewRules(extraDomains, include, exclude []string) ([]Rule, error) {
	rules := DefaultRules(extraDomains...)
	for _, p := range include {
		r, err := NewRule(IncludeRe, p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	for _, p := range exclude {
		r, err := NewRule(ExcludeRe, p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Allow checks whether a link passes the given set of rules.
// Only absolute http(s) links pass. Include rules use OR logic (at least one
// must match when any is present). Exclude rules use AND logic (none may match).
func Allow(link string, rules []Rule) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())

	hasIncludes := false
	anyIncludeMatched := false

	for _, r := range rules {
		switch r.Kind {
		case ExcludeDomain:
			if matchesDomain(host, r.Value) {
				return false
			}
		case ExcludeRe:
			if r.matches(link) {
				return false
			}
		case IncludeRe:
			hasIncludes = true
			if r.matches(link) {
				anyIncludeMatched = true
			}
		}
	}

	return !hasIncludes || anyIncludeMatched
}

// AllowText is Allow for URLs found in plain text. It also rejects anything
// that looks like list navigation.
func AllowText(link string, rules []Rule) bool {
	return Allow(link, rules) && !textKeywords.matches(link)
}

func matchesDomain(host, domain string) bool {
	return domain != "" && (host == domain || strings.HasSuffix(host, "."+domain))
}

func (r Rule) matches(link string) bool {
	return r.re != nil && r.re.MatchString(link)
}

func compile(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return re, nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := compile(pattern)
	return err
}
