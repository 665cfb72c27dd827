package domain

import (
	"math"
	"slices"
)

// CategoryAll is the pseudo category that disables category filtering.
const CategoryAll = "all"

// TagNew marks products surfaced as new arrivals and ranked first by the "newest" sort.
const TagNew = "new"

// TagBestseller marks products rendered with a bestseller badge.
const TagBestseller = "bestseller"

// Product is the canonical catalog entry every source is normalised into.
type Product struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Price         float64  `json:"price" yaml:"price"`
	OriginalPrice *float64 `json:"originalPrice,omitempty" yaml:"originalPrice,omitempty"`
	Category      string   `json:"category" yaml:"category"`
	Images        []string `json:"images" yaml:"images"`
	Colors        []string `json:"colors" yaml:"colors"`
	Sizes         []string `json:"sizes" yaml:"sizes"`
	Rating        float64  `json:"rating" yaml:"rating"`
	ReviewCount   int      `json:"reviewCount" yaml:"reviewCount"`
	InStock       bool     `json:"inStock" yaml:"inStock"`
	Featured      bool     `json:"featured" yaml:"featured"`
	Sustainable   bool     `json:"sustainable" yaml:"sustainable"`
	Tags          []string `json:"tags" yaml:"tags"`
}

// Thumbnail returns the canonical thumbnail (first image) or an empty string.
func (p Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// HasTag reports whether the product carries exactly this tag.
func (p Product) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// DiscountPercent derives the rounded discount from OriginalPrice; zero when there is none.
func (p Product) DiscountPercent() int {
	if p.OriginalPrice == nil {
		return 0
	}
	original := *p.OriginalPrice
	if original <= 0 || original <= p.Price {
		return 0
	}
	return int(math.Round((original - p.Price) / original * 100))
}

// DefaultSize is the size pre-selected on the detail page.
func (p Product) DefaultSize() string {
	if len(p.Sizes) == 0 {
		return ""
	}
	return p.Sizes[0]
}

// Clone returns a deep copy so callers can never mutate shared catalog state.
func (p Product) Clone() Product {
	dup := p
	if p.OriginalPrice != nil {
		original := *p.OriginalPrice
		dup.OriginalPrice = &original
	}
	dup.Images = cloneStrings(p.Images)
	dup.Colors = cloneStrings(p.Colors)
	dup.Sizes = cloneStrings(p.Sizes)
	dup.Tags = cloneStrings(p.Tags)
	return dup
}

// CloneProducts deep-copies a product slice.
func CloneProducts(products []Product) []Product {
	if products == nil {
		return nil
	}
	out := make([]Product, len(products))
	for i, product := range products {
		out[i] = product.Clone()
	}
	return out
}

// Category describes one sidebar filter entry.
type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Icon string `json:"icon" yaml:"icon"`
}

// LineKey identifies a cart line: the same product in a different size or colour is a distinct line.
type LineKey struct {
	ID    string
	Size  string
	Color string
}

// CartLineItem is one distinct purchasable unit in the cart.
type CartLineItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Size     string  `json:"size,omitempty"`
	Color    string  `json:"color,omitempty"`
	Quantity int     `json:"quantity"`
}

// Key returns the identity tuple of the line.
func (i CartLineItem) Key() LineKey {
	return LineKey{ID: i.ID, Size: i.Size, Color: i.Color}
}

// ProductCatalogState is the observable state of the catalog store.
type ProductCatalogState struct {
	Products     []Product
	IsLoading    bool
	Error        string
	Loaded       bool
	SourceErrors map[string]string
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
