package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"imobot/models"
)

const (
	// minRepetitions is how many matching containers a pattern needs before
	// it is trusted as a listing grid.
	minRepetitions = 3
	// strictAbove requires a currency-marked price once a page yields more
	// candidate containers than this.
	strictAbove  = 20
	minTitleLen  = 5
	minURLLen    = 10
	genericTitle = "Imóvel"
)

var (
	socialBlacklist = []string{
		"facebook.com", "whatsapp.com", "twitter.com", "pinterest.com",
		"linkedin.com", "share", "messenger", "mailto:", "tel:",
		"instagram.com", "youtube.com",
	}

	cardPatterns = []struct {
		tag string
		re  *regexp.Regexp
	}{
		{"article", regexp.MustCompile(`(?i)item|property|listing|card`)},
		{"div", regexp.MustCompile(`(?i)item|property|listing|card|product`)},
		{"li", regexp.MustCompile(`(?i)item|property|listing|card`)},
	}

	titleClassRe = regexp.MustCompile(`(?i)title|name|header`)
	currencyRe   = regexp.MustCompile(`(?i)€|EUR|\d+[.,]\d+\s?€`)
)

// IsSocialLink reports whether href points at a social network or share action.
func IsSocialLink(href string) bool {
	lower := strings.ToLower(href)
	for _, kw := range socialBlacklist {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type genericExtractor struct{}

func (genericExtractor) Name() string { return "parse_generic" }

func (genericExtractor) Extract(markup, originURL string) ([]*models.Listing, error) {
	doc, origin, err := parse(markup, originURL)
	if err != nil {
		return nil, err
	}
	return finalize(genericCandidates(doc, origin), origin.Host, origin), nil
}

func genericCandidates(doc *goquery.Document, origin *url.URL) []Candidate {
	var items *goquery.Selection
	for _, p := range cardPatterns {
		found := byClass(doc, p.tag, p.re)
		if found.Length() >= minRepetitions {
			items = found
			break
		}
	}
	if items == nil {
		return nil
	}
	strict := items.Length() > strictAbove

	var out []Candidate
	items.Each(func(_ int, item *goquery.Selection) {
		link := firstLink(item)
		href, _ := link.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || IsSocialLink(href) || len(href) < minURLLen || strings.HasPrefix(href, "#") {
			return
		}
		if _, ok := resolveURL(origin, href); !ok {
			return
		}

		title := text(byClass(item, "h2, h3, h4, span", titleClassRe).First())
		if title == "" {
			title = text(item.Find("h2, h3, h4").First())
		}
		title = orDefault(title, genericTitle)
		if len([]rune(title)) < minTitleLen {
			return
		}

		price, ok := textMatching(item, currencyRe)
		if !ok {
			if strict {
				return
			}
			price = priceOnRequest
		}

		out = append(out, Candidate{
			ID:    firstAttr(item, "id", "data-id", "data-ad-id"),
			Title: title,
			URL:   href,
			Price: price,
		})
	})
	return out
}
