package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const priceOnRequest = "Preço sob consulta"

var (
	euroRe         = regexp.MustCompile(`€`)
	anyPriceRe     = regexp.MustCompile(`(?i)€|\d+[.,]\d+`)
	idealistaIDRe  = regexp.MustCompile(`/imovel/(\d+)`)
	remaxIDRe      = regexp.MustCompile(`/(\d+-\d+)`)
	trailingIDRe   = regexp.MustCompile(`/(\d+)$`)
	itemClassRe    = regexp.MustCompile(`item`)
	remaxCardRe    = regexp.MustCompile(`(?i)listing-item|gallery-item|result-card|card`)
	zomeCardRe     = regexp.MustCompile(`(?i)property-card|property-item|card`)
	eraCardRe      = regexp.MustCompile(`(?i)property-item|card-property|listing-item`)
	eraLinkRe      = regexp.MustCompile(`/imovel/|/p/`)
	priceClassRe   = regexp.MustCompile(`(?i)price|valor`)
	searchItemRe   = regexp.MustCompile(`searchItem`)
	custoCardRe    = regexp.MustCompile(`itemCard_link`)
	factorItemRe   = regexp.MustCompile(`(?i)propertyItem`)
	factorWrapRe   = regexp.MustCompile(`(?i)propertyItemWrap`)
	itemPriceClass = regexp.MustCompile(`item-price`)
)

// BuiltinRules returns the rules for every supported portal.
func BuiltinRules() []Rule {
	return []Rule{
		{Domain: "imovirtual.com", Site: "imovirtual", Parse: parseImovirtual},
		{Domain: "idealista.pt", Site: "idealista", Parse: parseIdealista},
		{Domain: "olx.pt", Site: "olx", Parse: parseOLX},
		{Domain: "custojusto.pt", Site: "custojusto", Parse: parseCustoJusto},
		{Domain: "casa.sapo.pt", Site: "casasapo", Parse: parseCasaSapo},
		{Domain: "remax.pt", Site: "remax", Parse: parseRemax},
		{Domain: "zome.pt", Site: "zome", Parse: parseZome},
		{Domain: "era.pt", Site: "era", Parse: parseERA},
		{Domain: "franciscofaria.pt", Site: "franciscofaria", Parse: parseFranciscoFaria},
		{Domain: "factorvalor.pt", Site: "factorvalor", Parse: parseFactorValor},
	}
}

func parseImovirtual(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	doc.Find(`article[data-testid="listing-item"]`).Each(func(_ int, item *goquery.Selection) {
		href, _ := firstLink(item).Attr("href")

		price := text(item.Find(`span[data-testid="listing-item-price"]`).First())
		if price == "" {
			price, _ = textMatching(item, euroRe)
		}

		out = append(out, Candidate{
			ID:    firstAttr(item, "id", "data-item-id"),
			Title: orDefault(text(item.Find("h3").First()), "Sem título"),
			URL:   href,
			Price: orDefault(price, priceOnRequest),
		})
	})
	return out
}

func parseIdealista(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	byClass(doc, "article", itemClassRe).Each(func(_ int, item *goquery.Selection) {
		if item.HasClass("item-ad") {
			return
		}

		link := item.Find("a.item-link").First()
		if link.Length() == 0 {
			link = item.Find("a[href]").First()
		}
		href, _ := link.Attr("href")
		title := firstAttr(link, "title")
		if title == "" {
			title = text(link)
		}

		id := firstAttr(item, "data-ad-id", "data-element-id")
		if id == "" {
			if m := idealistaIDRe.FindStringSubmatch(href); m != nil {
				id = m[1]
			}
		}

		out = append(out, Candidate{
			ID:    id,
			Title: orDefault(title, "Sem título"),
			URL:   href,
			Price: orDefault(text(byClass(item, "*", itemPriceClass).First()), priceOnRequest),
		})
	})
	return out
}

func parseOLX(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	doc.Find(`div[data-testid="l-card"]`).Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Find("a[href]").First().Attr("href")
		out = append(out, Candidate{
			ID:    firstAttr(item, "id"),
			Title: orDefault(text(item.Find("h6, h4").First()), "Sem título"),
			URL:   href,
			Price: orDefault(text(item.Find(`p[data-testid="ad-price"]`).First()), "Preço não disponível"),
		})
	})
	return out
}

func parseCustoJusto(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	byClass(doc, "a", custoCardRe).Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Attr("href")
		out = append(out, Candidate{
			ID:    firstAttr(item, "id"),
			Title: orDefault(firstAttr(item, "title"), "Sem título"),
			URL:   href,
			Price: orDefault(text(item.Find("h5").First()), "Preço não disponível"),
		})
	})
	return out
}

func parseCasaSapo(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	byClass(doc, "div", searchItemRe).Each(func(_ int, item *goquery.Selection) {
		href, _ := item.Find("a[href]").First().Attr("href")
		if href == "" {
			return
		}
		out = append(out, Candidate{
			ID:    firstAttr(item, "data-id"),
			Title: orDefault(text(item.Find("span.searchItemTitle").First()), "Sem título"),
			URL:   href,
			Price: orDefault(text(item.Find("span.searchItemValue").First()), "Preço não disponível"),
		})
	})
	return out
}

type remaxNextData struct {
	Props struct {
		PageProps struct {
			Results []struct {
				ListingID any    `json:"listingId"`
				Title     string `json:"title"`
				URL       string `json:"url"`
				Price     any    `json:"price"`
			} `json:"results"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parseRemax(doc *goquery.Document, _ *url.URL) []Candidate {
	if raw := doc.Find("script#__NEXT_DATA__").First().Text(); raw != "" {
		var data remaxNextData
		if err := json.Unmarshal([]byte(raw), &data); err == nil && len(data.Props.PageProps.Results) > 0 {
			var out []Candidate
			for _, r := range data.Props.PageProps.Results {
				out = append(out, Candidate{
					ID:    scalar(r.ListingID),
					Title: orDefault(r.Title, "Remax Property"),
					URL:   r.URL,
					Price: orDefault(scalar(r.Price), "N/A"),
				})
			}
			return out
		}
	}

	var out []Candidate
	byClass(doc, "div, article", remaxCardRe).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		price, _ := textMatching(item, anyPriceRe)

		var id string
		if m := remaxIDRe.FindStringSubmatch(href); m != nil {
			id = m[1]
		}
		out = append(out, Candidate{
			ID:    id,
			Title: orDefault(text(item.Find("h2, h3, h4").First()), "Remax Property"),
			URL:   href,
			Price: orDefault(price, "N/A"),
		})
	})
	return out
}

func parseZome(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	byClass(doc, "div, article", zomeCardRe).Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		out = append(out, Candidate{
			ID:    firstAttr(item, "data-id", "data-property-id"),
			Title: orDefault(text(item.Find("h2, h3, h4").First()), "Zome Property"),
			URL:   href,
			Price: orDefault(classOrEuroPrice(item), "N/A"),
		})
	})
	return out
}

func parseERA(doc *goquery.Document, _ *url.URL) []Candidate {
	items := byClass(doc, "div, article", eraCardRe)
	if items.Length() == 0 {
		items = uniqueParents(doc, eraLinkRe)
	}

	var out []Candidate
	items.Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}

		id := firstAttr(item, "data-id")
		if id == "" {
			if m := trailingIDRe.FindStringSubmatch(strings.SplitN(href, "?", 2)[0]); m != nil {
				id = m[1]
			}
		}
		out = append(out, Candidate{
			ID:    id,
			Title: orDefault(text(item.Find("h2, h3, h4").First()), "ERA Property"),
			URL:   href,
			Price: orDefault(classOrEuroPrice(item), "N/A"),
		})
	})
	return out
}

// uniqueParents returns the closest div/article parent of every link whose
// href matches re, each parent at most once.
func uniqueParents(doc *goquery.Document, re *regexp.Regexp) *goquery.Selection {
	var nodes []*html.Node
	seen := make(map[*html.Node]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !re.MatchString(href) {
			return
		}
		p := a.Closest("div, article")
		if p.Length() == 0 {
			return
		}
		if _, dup := seen[p.Nodes[0]]; dup {
			return
		}
		seen[p.Nodes[0]] = struct{}{}
		nodes = append(nodes, p.Nodes[0])
	})
	return doc.Selection.Slice(0, 0).AddNodes(nodes...)
}

func parseFranciscoFaria(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	doc.Find("div.item-listing-wrap").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("h2.item-title a, h3.item-title a").First()
		if link.Length() == 0 {
			link = item.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		price := text(item.Find("li.item-price").First())
		if price == "" {
			price = text(item.Find(".item-price").First())
		}
		out = append(out, Candidate{
			ID:    firstAttr(item, "data-hz-id"),
			Title: orDefault(text(link), "Sem título"),
			URL:   href,
			Price: orDefault(price, priceOnRequest),
		})
	})
	return out
}

func parseFactorValor(doc *goquery.Document, _ *url.URL) []Candidate {
	var out []Candidate
	byClass(doc, "div", factorItemRe).Each(func(_ int, item *goquery.Selection) {
		href, _ := byClass(item, "a", factorWrapRe).First().Attr("href")
		if href == "" {
			return
		}

		title := text(item.Find("span.box-title").First())
		if title == "" {
			title = text(item.Find("h2.propertyTitle").First())
		}
		price := text(item.Find("div.propertyPrice").First())
		if price == "" {
			price = text(byClass(item, "*", priceClassRe).First())
		}

		id := firstAttr(item, "data-stickeridentifier")
		if id == "" {
			if m := trailingIDRe.FindStringSubmatch(strings.SplitN(href, "?", 2)[0]); m != nil {
				id = m[1]
			}
		}
		out = append(out, Candidate{
			ID:    id,
			Title: orDefault(title, "Imóvel FactorValor"),
			URL:   href,
			Price: orDefault(price, priceOnRequest),
		})
	})
	return out
}

func classOrEuroPrice(item *goquery.Selection) string {
	if p := text(byClass(item, "*", priceClassRe).First()); p != "" {
		return p
	}
	p, _ := textMatching(item, euroRe)
	return p
}

// scalar renders a JSON number or string field as text.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
