package models

import (
	"fmt"
	"time"
)

// Listing is a single property record produced by an extraction rule.
// Records are created per fetch and never mutated once they leave the
// extraction boundary: ID is non-empty and URL is absolute.
type Listing struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	// Price is kept in its raw display form, e.g. "240.000 €".
	Price string `json:"price"`
	Site  string `json:"site"`

	// FoundAt is set by the store when the listing is first persisted.
	FoundAt time.Time `json:"found_at,omitempty"`
}

// Target is one configured search-result URL and its position in the list.
type Target struct {
	URL   string
	Index int
	Total int
}

// Counter renders the "[3/10]" progress prefix used in worker logs.
func (t Target) Counter() string {
	return fmt.Sprintf("[%d/%d]", t.Index+1, t.Total)
}
