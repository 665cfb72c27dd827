package services

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ecoshop/storefront/internal/domain"
)

// ErrQueryInvalidInput indicates a malformed filter or sort parameter.
var ErrQueryInvalidInput = errors.New("product query: invalid input")

// SortMode orders a product listing.
type SortMode string

const (
	SortFeatured  SortMode = "featured"
	SortPriceAsc  SortMode = "price-asc"
	SortPriceDesc SortMode = "price-desc"
	SortRating    SortMode = "rating"
	SortNewest    SortMode = "newest"
)

const (
	FeaturedLimit    = 8
	NewArrivalsLimit = 4
	RelatedLimit     = 4
)

// SortOption is one entry of the sort dropdown.
type SortOption struct {
	Value SortMode `json:"value"`
	Label string   `json:"label"`
}

// SortOptions lists the supported sort modes in display order.
func SortOptions() []SortOption {
	return []SortOption{
		{Value: SortFeatured, Label: "Featured"},
		{Value: SortPriceAsc, Label: "Price: Low to High"},
		{Value: SortPriceDesc, Label: "Price: High to Low"},
		{Value: SortRating, Label: "Highest Rated"},
		{Value: SortNewest, Label: "Newest"},
	}
}

// PriceRange bounds a listing by price, both ends inclusive. A nil Max is unbounded.
type PriceRange struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether price lies in the range.
func (r PriceRange) Contains(price float64) bool {
	if price < r.Min {
		return false
	}
	return r.Max == nil || price <= *r.Max
}

// String renders the range in its query form, e.g. "50-100" or "150-".
func (r PriceRange) String() string {
	lo := strconv.FormatFloat(r.Min, 'f', -1, 64)
	if r.Max == nil {
		return lo + "-"
	}
	return lo + "-" + strconv.FormatFloat(*r.Max, 'f', -1, 64)
}

// PricePreset is one entry of the price filter.
type PricePreset struct {
	Value string     `json:"value"`
	Label string     `json:"label"`
	Range PriceRange `json:"range"`
}

// PricePresets lists the price filter presets.
func PricePresets() []PricePreset {
	bound := func(v float64) *float64 { return &v }
	return []PricePreset{
		{Value: "0-50", Label: "Under $50", Range: PriceRange{Min: 0, Max: bound(50)}},
		{Value: "50-100", Label: "$50 - $100", Range: PriceRange{Min: 50, Max: bound(100)}},
		{Value: "100-150", Label: "$100 - $150", Range: PriceRange{Min: 100, Max: bound(150)}},
		{Value: "150-", Label: "$150+", Range: PriceRange{Min: 150}},
	}
}

// Query is a product listing request. Zero values disable each filter.
type Query struct {
	Category string
	Search   string
	Price    *PriceRange
	Sort     SortMode
}

// Key is a canonical form of the query, equal for equivalent queries.
func (q Query) Key() string {
	category := strings.TrimSpace(q.Category)
	if category == domain.CategoryAll {
		category = ""
	}
	price := ""
	if q.Price != nil {
		price = q.Price.String()
	}
	return strings.Join([]string{
		category,
		strings.ToLower(strings.TrimSpace(q.Search)),
		price,
		string(normalizeSort(q.Sort)),
	}, "\x1f")
}

// ParseSortMode accepts the known sort values; anything else falls back to featured.
func ParseSortMode(raw string) SortMode {
	return normalizeSort(SortMode(strings.ToLower(strings.TrimSpace(raw))))
}

func normalizeSort(mode SortMode) SortMode {
	switch mode {
	case SortFeatured, SortPriceAsc, SortPriceDesc, SortRating, SortNewest:
		return mode
	default:
		return SortFeatured
	}
}

// ParsePriceRange parses "min-max". An empty max, "Infinity" or "inf" leaves the range
// unbounded above.
func ParsePriceRange(raw string) (PriceRange, error) {
	raw = strings.TrimSpace(raw)
	lo, hi, found := strings.Cut(raw, "-")
	if !found {
		return PriceRange{}, fmt.Errorf("%w: price range %q must be min-max", ErrQueryInvalidInput, raw)
	}
	lower, err := parseBound(lo)
	if err != nil || lower == nil {
		return PriceRange{}, fmt.Errorf("%w: price range %q has an invalid minimum", ErrQueryInvalidInput, raw)
	}
	upper, err := parseBound(hi)
	if err != nil {
		return PriceRange{}, fmt.Errorf("%w: price range %q has an invalid maximum", ErrQueryInvalidInput, raw)
	}
	if upper != nil && *upper < *lower {
		return PriceRange{}, fmt.Errorf("%w: price range %q is inverted", ErrQueryInvalidInput, raw)
	}
	return PriceRange{Min: *lower, Max: upper}, nil
}

func parseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "infinity", "inf":
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil, errors.New("invalid bound")
	}
	return &value, nil
}

// ParseQuery reads category, q, price and sort from URL parameters.
func ParseQuery(values url.Values) (Query, error) {
	query := Query{
		Category: strings.TrimSpace(values.Get("category")),
		Search:   strings.TrimSpace(values.Get("q")),
		Sort:     ParseSortMode(values.Get("sort")),
	}
	if raw := strings.TrimSpace(values.Get("price")); raw != "" && !strings.EqualFold(raw, "all") {
		price, err := ParsePriceRange(raw)
		if err != nil {
			return Query{}, err
		}
		query.Price = &price
	}
	return query, nil
}

// ApplyQuery filters by category, search text and price, then stable-sorts. The input is
// not modified.
func ApplyQuery(products []domain.Product, q Query) []domain.Product {
	category := strings.TrimSpace(q.Category)
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if category != "" && category != domain.CategoryAll && product.Category != category {
			continue
		}
		if search != "" && !matchesSearch(product, search) {
			continue
		}
		if q.Price != nil && !q.Price.Contains(product.Price) {
			continue
		}
		out = append(out, product.Clone())
	}

	switch normalizeSort(q.Sort) {
	case SortFeatured:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Featured && !out[j].Featured })
	case SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	case SortRating:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].HasTag(domain.TagNew) && !out[j].HasTag(domain.TagNew)
		})
	}
	return out
}

func matchesSearch(product domain.Product, needle string) bool {
	if strings.Contains(strings.ToLower(product.Name), needle) ||
		strings.Contains(strings.ToLower(product.Description), needle) {
		return true
	}
	for _, tag := range product.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// FeaturedProducts returns up to FeaturedLimit featured products in catalog order.
func FeaturedProducts(products []domain.Product) []domain.Product {
	return takeMatching(products, FeaturedLimit, func(p domain.Product) bool { return p.Featured })
}

// NewArrivals returns up to NewArrivalsLimit products tagged new.
func NewArrivals(products []domain.Product) []domain.Product {
	return takeMatching(products, NewArrivalsLimit, func(p domain.Product) bool { return p.HasTag(domain.TagNew) })
}

// RelatedProducts returns up to RelatedLimit other products of the same category.
func RelatedProducts(products []domain.Product, product domain.Product) []domain.Product {
	return takeMatching(products, RelatedLimit, func(p domain.Product) bool {
		return p.Category == product.Category && p.ID != product.ID
	})
}

// CategoryCount pairs a category with the number of products in it.
type CategoryCount struct {
	domain.Category
	Count int `json:"count"`
}

// CountCategories counts products per known category; "all" counts everything.
func CountCategories(categories []domain.Category, products []domain.Product) []CategoryCount {
	counts := make(map[string]int, len(categories))
	for _, product := range products {
		counts[product.Category]++
	}
	out := make([]CategoryCount, 0, len(categories))
	for _, category := range categories {
		count := counts[category.ID]
		if category.ID == domain.CategoryAll {
			count = len(products)
		}
		out = append(out, CategoryCount{Category: category, Count: count})
	}
	return out
}

func takeMatching(products []domain.Product, limit int, keep func(domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0, limit)
	for _, product := range products {
		if len(out) == limit {
			break
		}
		if keep(product) {
			out = append(out, product.Clone())
		}
	}
	return out
}
