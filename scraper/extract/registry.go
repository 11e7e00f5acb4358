// Package extract turns rendered search-result markup into listing records.
//
// Each supported portal has a Rule; unmatched domains fall back to a generic
// heuristic. The domain table is built once and never mutated.
package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"imobot/models"
)

// Candidate is a raw record as read from the page, before finalisation.
type Candidate struct {
	ID    string
	Title string
	URL   string
	Price string
}

// Rule extracts candidates for one portal.
type Rule struct {
	// Domain is matched against the target host (exact or sub-domain).
	Domain string
	// Site is the label stored with every record.
	Site  string
	Parse func(doc *goquery.Document, origin *url.URL) []Candidate
}

// Extractor is the extraction port handed to fetch workers.
type Extractor interface {
	Name() string
	Extract(markup, originURL string) ([]*models.Listing, error)
}

// Registry resolves a target URL to its Extractor.
type Registry struct {
	rules   []Rule
	generic Extractor
}

// NewRegistry builds an immutable registry. Longer (more specific) domains
// are tried first.
func NewRegistry(rules ...Rule) *Registry {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Domain) > len(sorted[j].Domain)
	})
	return &Registry{rules: sorted, generic: genericExtractor{}}
}

// DefaultRegistry returns the registry with every built-in portal rule.
func DefaultRegistry() *Registry {
	return NewRegistry(BuiltinRules()...)
}

// Resolve picks the most specific rule whose domain matches targetURL, or the
// generic extractor.
func (r *Registry) Resolve(targetURL string) Extractor {
	u, err := url.Parse(targetURL)
	if err != nil {
		return r.generic
	}
	host := strings.ToLower(u.Hostname())
	for _, rule := range r.rules {
		if host == rule.Domain || strings.HasSuffix(host, "."+rule.Domain) {
			return ruleExtractor{rule: rule}
		}
	}
	return r.generic
}

type ruleExtractor struct {
	rule Rule
}

func (e ruleExtractor) Name() string { return "parse_" + e.rule.Site }

func (e ruleExtractor) Extract(markup, originURL string) ([]*models.Listing, error) {
	doc, origin, err := parse(markup, originURL)
	if err != nil {
		return nil, err
	}
	return finalize(e.rule.Parse(doc, origin), e.rule.Site, origin), nil
}

func parse(markup, originURL string) (*goquery.Document, *url.URL, error) {
	origin, err := url.Parse(originURL)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: origin %q: %w", originURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, nil, fmt.Errorf("extract: parse markup: %w", err)
	}
	return doc, origin, nil
}
