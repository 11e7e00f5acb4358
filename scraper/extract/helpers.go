package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type finder interface {
	Find(selector string) *goquery.Selection
}

// byClass returns the elements matching tags whose class attribute matches re.
func byClass(s finder, tags string, re *regexp.Regexp) *goquery.Selection {
	return s.Find(tags).FilterFunction(func(_ int, el *goquery.Selection) bool {
		class, _ := el.Attr("class")
		return re.MatchString(class)
	})
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// firstLink returns the first anchor with an href inside s, or s itself when
// it is such an anchor.
func firstLink(s *goquery.Selection) *goquery.Selection {
	if goquery.NodeName(s) == "a" {
		if _, ok := s.Attr("href"); ok {
			return s
		}
	}
	return s.Find("a[href]").First()
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// ownText concatenates the direct text children of the first node in s.
func ownText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for c := s.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// textMatching returns the full text of the first element inside s whose own
// text matches re. found is false when nothing matches.
func textMatching(s *goquery.Selection, re *regexp.Regexp) (string, bool) {
	var out string
	var found bool
	s.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if re.MatchString(ownText(el)) {
			out, found = text(el), true
			return false
		}
		return true
	})
	return out, found
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
