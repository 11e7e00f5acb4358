package extract

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"

	"imobot/models"
)

// finalize resolves URLs, fills missing ids and drops malformed candidates
// one by one. Duplicate ids within a page keep the first occurrence.
func finalize(cands []Candidate, site string, origin *url.URL) []*models.Listing {
	out := make([]*models.Listing, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))

	for _, c := range cands {
		abs, ok := resolveURL(origin, c.URL)
		if !ok {
			continue
		}
		id := strings.TrimSpace(c.ID)
		if id == "" {
			id = HashID(abs)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, &models.Listing{
			ID:    id,
			Title: collapse(c.Title),
			URL:   abs,
			Price: collapse(c.Price),
			Site:  site,
		})
	}
	return out
}

func resolveURL(origin *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	abs := origin.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" || abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}

// HashID derives a run-stable id from the canonical form of a listing URL:
// scheme, lower-cased host and path without trailing slash.
func HashID(rawURL string) string {
	canonical := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		canonical = u.Scheme + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.EscapedPath(), "/")
	}
	sum := md5.Sum([]byte(canonical))
	return "gen_" + hex.EncodeToString(sum[:])
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
