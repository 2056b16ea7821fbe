// Package catalog holds the entities shared across the feed pipeline,
// the indexer and the search engine.
package catalog

import (
	"encoding/json"
	"math"
)

// Product is one indexed item within a project. The JSON shape is the
// record stored in the key-value store and returned by the API.
type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Image       string            `json:"image"`
	Images      []string          `json:"images,omitempty"`
	Price       float64           `json:"price"`
	OldPrice    *float64          `json:"old_price"`
	Currency    string            `json:"currency,omitempty"`
	InStock     bool              `json:"in_stock"`
	Quantity    *int              `json:"quantity,omitempty"`
	Category    string            `json:"category"`
	Brand       string            `json:"brand"`
	VendorCode  string            `json:"vendor_code"`
	Params      map[string]string `json:"params"`
	Discount    *int              `json:"discount_percent"`
	Popularity  float64           `json:"popularity,omitempty"`
}

// RecomputeDiscount derives discount_percent from the price pair. The
// field is null unless 0 < price < old_price.
func (p *Product) RecomputeDiscount() {
	p.Discount = nil
	if p.OldPrice == nil || p.Price <= 0 || *p.OldPrice <= p.Price {
		return
	}
	d := int(math.Round((1 - p.Price / *p.OldPrice) * 100))
	p.Discount = &d
}

// MarshalString serializes the product for storage.
func (p Product) MarshalString() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// UnmarshalProduct parses a stored product record.
func UnmarshalProduct(raw string) (Product, error) {
	var p Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// StockUpdate is one row of a delta feed. Nil fields are left untouched
// on the stored product.
type StockUpdate struct {
	ID       string
	Price    *float64
	OldPrice *float64
	InStock  *bool
	Quantity *int
}
