package extract

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(
		Rule{Domain: "sapo.pt", Site: "sapo"},
		Rule{Domain: "casa.sapo.pt", Site: "casasapo"},
		Rule{Domain: "olx.pt", Site: "olx"},
	)

	tests := []struct {
		url  string
		want string
	}{
		{"https://casa.sapo.pt/comprar", "parse_casasapo"},
		{"https://www.sapo.pt/", "parse_sapo"},
		{"https://www.olx.pt/imoveis/", "parse_olx"},
		{"https://OLX.PT/imoveis/", "parse_olx"},
		{"https://notolx.pt/", "parse_generic"},
		{"https://www.imobiliaria-local.pt/", "parse_generic"},
		{"::bad url", "parse_generic"},
	}

	for _, tt := range tests {
		if got := r.Resolve(tt.url).Name(); got != tt.want {
			t.Errorf("Resolve(%q) = %s; want %s", tt.url, got, tt.want)
		}
	}
}

func TestDefaultRegistryCoversPortals(t *testing.T) {
	r := DefaultRegistry()
	for _, rule := range BuiltinRules() {
		u := "https://www." + rule.Domain + "/search"
		if got := r.Resolve(u).Name(); got != "parse_"+rule.Site {
			t.Errorf("Resolve(%q) = %s; want parse_%s", u, got, rule.Site)
		}
	}
}

func TestIdealistaRule(t *testing.T) {
	markup := `<html><body>
	<article class="item" data-ad-id="111">
		<a class="item-link" href="/imovel/111/" title="Apartamento T2 em Alvalade">T2</a>
		<span class="item-price h2-simulated">240.000€</span>
	</article>
	<article class="item item-ad"><a class="item-link" href="/ad">Publicidade</a></article>
	<article class="item">
		<a class="item-link" href="/imovel/222/">Moradia T4</a>
	</article>
	</body></html>`

	got, err := DefaultRegistry().Resolve("https://www.idealista.pt/comprar-casas/lisboa/").
		Extract(markup, "https://www.idealista.pt/comprar-casas/lisboa/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2 (ad skipped)", len(got))
	}

	first := got[0]
	if first.ID != "111" || first.Title != "Apartamento T2 em Alvalade" || first.Price != "240.000€" {
		t.Errorf("first listing: %+v", first)
	}
	if first.URL != "https://www.idealista.pt/imovel/111/" {
		t.Errorf("URL not resolved against origin: %q", first.URL)
	}
	if first.Site != "idealista" {
		t.Errorf("Site: got %q", first.Site)
	}

	second := got[1]
	if second.ID != "222" {
		t.Errorf("id from URL token: got %q, want 222", second.ID)
	}
	if second.Price != priceOnRequest {
		t.Errorf("missing price: got %q", second.Price)
	}
}

func TestOLXRuleFallsBackToHashID(t *testing.T) {
	markup := `<div data-testid="l-card">
		<a href="/d/anuncio/t3-porto-IDabc.html"><h6>T3 Porto</h6></a>
		<p data-testid="ad-price">350 000 €</p>
	</div>`

	got, err := DefaultRegistry().Resolve("https://www.olx.pt/imoveis/").Extract(markup, "https://www.olx.pt/imoveis/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	want := HashID("https://www.olx.pt/d/anuncio/t3-porto-IDabc.html")
	if got[0].ID != want {
		t.Errorf("ID: got %q, want %q", got[0].ID, want)
	}
}

func TestRemaxNextData(t *testing.T) {
	markup := `<html><head><script id="__NEXT_DATA__" type="application/json">
	{"props":{"pageProps":{"results":[
		{"listingId":123456,"title":"Apartamento T1","url":"/imoveis/venda/123-456","price":"199 000 €"},
		{"listingId":"789","title":"Loja","url":"https://www.remax.pt/imoveis/789","price":450000}
	]}}}</script></head><body></body></html>`

	got, err := DefaultRegistry().Resolve("https://www.remax.pt/comprar").Extract(markup, "https://www.remax.pt/comprar")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	if got[0].ID != "123456" || got[0].URL != "https://www.remax.pt/imoveis/venda/123-456" {
		t.Errorf("first: %+v", got[0])
	}
	if got[1].Price != "450000" {
		t.Errorf("numeric price: got %q", got[1].Price)
	}
}

func TestFactorValorRule(t *testing.T) {
	markup := `<div class="propertyItem" data-stickeridentifier="FV-9">
		<a class="propertyItemWrap" href="/imovel/moradia-t5/9876">
			<span class="box-title">Moradia T5 Cascais</span>
			<div class="propertyPrice">1.250.000 €</div>
		</a>
	</div>
	<div class="propertyItem">
		<a class="propertyItemWrap" href="/imovel/t2/5555?ref=x"><h2 class="propertyTitle">T2 Oeiras</h2></a>
	</div>`

	got, err := DefaultRegistry().Resolve("https://www.factorvalor.pt/imoveis").Extract(markup, "https://www.factorvalor.pt/imoveis")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	if got[0].ID != "FV-9" || got[0].Price != "1.250.000 €" {
		t.Errorf("first: %+v", got[0])
	}
	if got[1].ID != "5555" || got[1].Price != priceOnRequest {
		t.Errorf("second: %+v", got[1])
	}
}

func genericCard(i int, href, price string) string {
	p := ""
	if price != "" {
		p = `<div class="meta"><span>` + price + `</span></div>`
	}
	return fmt.Sprintf(`<article class="property-card" data-id="p%d">
		<a href="%s"><h3 class="card-title">Apartamento T%d com vista</h3></a>%s
	</article>`, i, href, i, p)
}

func TestGenericExtractor(t *testing.T) {
	markup := "<html><body>" +
		genericCard(1, "/imovel/1-apartamento", "240.000 €") +
		genericCard(2, "https://www.facebook.com/share?u=x", "1 €") +
		genericCard(3, "#", "") +
		genericCard(4, "/imovel/4-apartamento", "") +
		"</body></html>"

	ex := DefaultRegistry().Resolve("https://www.imobiliaria-local.pt/venda")
	got, err := ex.Extract(markup, "https://www.imobiliaria-local.pt/venda")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2 (social and anchor links dropped)", len(got))
	}
	if got[0].ID != "p1" || got[0].Price != "240.000 €" || got[0].URL != "https://www.imobiliaria-local.pt/imovel/1-apartamento" {
		t.Errorf("first: %+v", got[0])
	}
	if got[0].Site != "www.imobiliaria-local.pt" {
		t.Errorf("generic site should be the origin host, got %q", got[0].Site)
	}
	if got[1].Price != priceOnRequest {
		t.Errorf("priceless card on a small page: got %q", got[1].Price)
	}
}

func TestGenericRequiresRepetition(t *testing.T) {
	markup := genericCard(1, "/imovel/1-apartamento", "240.000 €") + genericCard(2, "/imovel/2-apartamento", "1 €")
	got, _ := DefaultRegistry().Resolve("https://x.pt/").Extract(markup, "https://x.pt/")
	if len(got) != 0 {
		t.Errorf("two containers should not be trusted, got %d listings", len(got))
	}
}

func TestGenericStrictModeRequiresPrice(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 25; i++ {
		price := ""
		if i%5 == 0 {
			price = "100.000 €"
		}
		b.WriteString(genericCard(i, fmt.Sprintf("/imovel/%d-apartamento", i), price))
	}

	got, _ := DefaultRegistry().Resolve("https://x.pt/").Extract(b.String(), "https://x.pt/")
	if len(got) != 5 {
		t.Errorf("with >20 containers only priced cards survive: got %d, want 5", len(got))
	}
}

func TestHashIDIsStableAndCanonical(t *testing.T) {
	a := HashID("https://WWW.Example.pt/imovel/1/")
	b := HashID("https://www.example.pt/imovel/1")
	if a != b {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "gen_") || len(a) != len("gen_")+32 {
		t.Errorf("unexpected id shape %q", a)
	}
	if HashID("https://www.example.pt/imovel/2") == a {
		t.Error("different paths must hash differently")
	}
}

func TestIsSocialLink(t *testing.T) {
	for _, href := range []string{"https://facebook.com/x", "mailto:a@b.pt", "tel:+351", "/share/123"} {
		if !IsSocialLink(href) {
			t.Errorf("IsSocialLink(%q) = false", href)
		}
	}
	if IsSocialLink("https://www.era.pt/imovel/123") {
		t.Error("listing link flagged as social")
	}
}

func TestSourcesAreFormatted(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range files {
		src, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		formatted, err := format.Source(src)
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if !bytes.Equal(src, formatted) {
			t.Errorf("%s is not gofmt-formatted", name)
		}
	}
}
