package woonnet

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Listing is one published rental offer.
type Listing struct {
	ID        string  `json:"id"`
	Address   string  `json:"address,omitempty"`
	City      string  `json:"city,omitempty"`
	PriceText string  `json:"price_text,omitempty"`
	Price     float64 `json:"price"`
	URL       string  `json:"url,omitempty"`
	// Priority marks listings the account has priority for.
	Priority bool `json:"priority,omitempty"`
}

var (
	reNotPrice = regexp.MustCompile(`[^\d,]`)
	reTrailID  = regexp.MustCompile(`/(\d+)/?$`)
)

// ParsePrice reads a Dutch-formatted amount such as "€ 1.234,56".
// Everything except digits and the decimal comma is dropped.
func ParsePrice(s string) (float64, error) {
	clean := reNotPrice.ReplaceAllString(s, "")
	return strconv.ParseFloat(strings.Replace(clean, ",", ".", 1), 64)
}

// ListingIDFromURL returns the trailing numeric path segment of a listing
// URL, or "" when there is none.
func ListingIDFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	m := reTrailID.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}

// SortByPrice orders listings cheapest first. Equal prices are ordered by
// numeric id so the result is deterministic.
func SortByPrice(ls []Listing) {
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].Price != ls[j].Price {
			return ls[i].Price < ls[j].Price
		}
		return idLess(ls[i].ID, ls[j].ID)
	})
}

func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
