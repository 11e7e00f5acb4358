package services

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// digitRegexp captures every run of digits in a raw price
	digitRegexp = regexp.MustCompile(`\d+`)
	// onRequestMarker appears in "Preço sob consulta" and similar labels
	onRequestMarker = "consulta"
)

// NormalizePrice turns a raw display price into an integer. Empty prices and
// "price on request" labels are 0. Otherwise every digit in the string is
// concatenated in order, which drops thousands separators and currency
// symbols alike: "240.000 €" → 240000.
func NormalizePrice(raw string) int64 {
	if raw == "" || strings.Contains(strings.ToLower(raw), onRequestMarker) {
		return 0
	}

	digits := strings.Join(digitRegexp.FindAllString(raw, -1), "")
	if digits == "" {
		return 0
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		// Too long for int64 but still a price above any threshold.
		return math.MaxInt64
	}
	if err != nil {
		return 0
	}
	return n
}
