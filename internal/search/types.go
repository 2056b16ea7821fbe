// Package search executes product queries against the KV indexes written by
// the indexer. Retrieval reads the inverted index for every query token,
// widens through keyboard-layout variants and the n-gram index when the
// primary pass comes up short, then hydrates, filters, sorts and paginates.
// The same engine serves autocomplete from the suggest index.
package search

import "github.com/vitrina-search/vitrina/internal/catalog"

const (
	// DefaultLimit is the page size when the request does not set one.
	DefaultLimit = 10

	// MaxLimit caps the page size.
	MaxLimit = 100

	// DefaultSuggestLimit is the suggestion count when the request does
	// not set one.
	DefaultSuggestLimit = 5

	// MaxSuggestLimit caps the suggestion count.
	MaxSuggestLimit = 20

	// SuggestQueryCap is the widget-facing ceiling on returned query
	// suggestions, applied at the HTTP surface.
	SuggestQueryCap = 3

	// SuggestSearchLimit is the page size used for the product block of a
	// suggest response.
	SuggestSearchLimit = 8
)

// layoutPenalty discounts matches recovered through a keyboard-layout
// variant so they rank below direct hits of equal weight.
const layoutPenalty = 0.9

// relatedExcludeTop is how many leading result ids are withheld from the
// related-items scan.
const relatedExcludeTop = 5

// Sort selects the result ordering.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortPopular   Sort = "popular"
)

// Valid reports whether s is one of the supported orderings.
func (s Sort) Valid() bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortPopular:
		return true
	}
	return false
}

// Filters restricts hydrated results. Zero values mean "no constraint":
// InStock false leaves out-of-stock products in, nil price bounds are open,
// an empty Category matches everything.
type Filters struct {
	InStock  bool
	MinPrice *float64
	MaxPrice *float64
	Category string
}

func (f Filters) matches(p catalog.Product) bool {
	if f.InStock && !p.InStock {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	return true
}

// Request is one search call.
type Request struct {
	// Query is the raw user query.
	Query string

	// Limit is the page size, defaulted to DefaultLimit and capped at
	// MaxLimit.
	Limit int

	// Offset is the zero-based pagination offset.
	Offset int

	// Filters restrict the hydrated result set.
	Filters Filters

	// Sort selects the ordering; empty means SortRelevance.
	Sort Sort
}

// Item is one result: the stored product plus its accumulated retrieval
// score rounded to two decimals.
type Item struct {
	catalog.Product

	Score float64 `json:"score"`

	// HighlightedName is the product name with matched query tokens
	// wrapped in <em> tags.
	HighlightedName string `json:"highlighted_name,omitempty"`
}

// Related is the related-items block attached when the project's search
// settings designate a related field.
type Related struct {
	Items []catalog.Product `json:"items"`
	Field string            `json:"field"`
	Value string            `json:"value"`
}

// Response is the outcome of one search call. Total counts all matches
// after filtering, not just the returned page.
type Response struct {
	Query   string   `json:"query"`
	Total   int      `json:"total"`
	Items   []Item   `json:"items"`
	TookMs  int64    `json:"took_ms"`
	Related *Related `json:"related,omitempty"`
}

// Suggestion is one autocomplete entry. Count is how many products
// contribute the phrase; Highlight wraps the matched prefix in <em> tags.
type Suggestion struct {
	Text      string `json:"text"`
	Count     int    `json:"count"`
	Highlight string `json:"highlight"`
}

// Suggestions is the outcome of one suggest call. Categories is reserved
// and currently always empty.
type Suggestions struct {
	Queries    []Suggestion `json:"queries"`
	Categories []string     `json:"categories"`
	Products   []Item       `json:"products"`
}
