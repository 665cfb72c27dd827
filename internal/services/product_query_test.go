package services

import (
	"errors"
	"net/url"
	"testing"

	"github.com/ecoshop/storefront/internal/domain"
)

func queryFixture() []domain.Product {
	return []domain.Product{
		{ID: "tee", Name: "Organic Tee", Description: "soft cotton", Price: 45, Category: "tees", Rating: 4.8, Featured: true, Tags: []string{"organic"}},
		{ID: "hoodie", Name: "Hemp Hoodie", Description: "warm", Price: 89, Category: "hoodies", Rating: 4.9, Featured: true, Tags: []string{"new", "hemp"}},
		{ID: "joggers", Name: "Ocean Joggers", Description: "Recycled plastics", Price: 75, Category: "pants", Rating: 4.7, Tags: []string{"recycled"}},
		{ID: "crew", Name: "Bamboo Crew", Description: "bamboo", Price: 52, Category: "tees", Rating: 4.6, Tags: []string{"new"}},
		{ID: "runner", Name: "Trail Runner", Description: "grip", Price: 150, Category: "footwear", Rating: 4.9},
		{ID: "cap", Name: "Hemp Cap", Description: "cap", Price: 32, Category: "accessories", Rating: 4.5, Tags: []string{"hemp"}},
	}
}

func ids(products []domain.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func equalIDs(t *testing.T, got []domain.Product, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected %v, got %v", want, gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, gotIDs)
		}
	}
}

func priceRange(t *testing.T, raw string) *PriceRange {
	t.Helper()
	r, err := ParsePriceRange(raw)
	if err != nil {
		t.Fatalf("ParsePriceRange(%q): %v", raw, err)
	}
	return &r
}

func TestApplyQueryFilters(t *testing.T) {
	products := queryFixture()
	cases := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "no filters keeps catalog order", query: Query{}, want: []string{"tee", "hoodie", "joggers", "crew", "runner", "cap"}},
		{name: "all category", query: Query{Category: "all"}, want: []string{"tee", "hoodie", "joggers", "crew", "runner", "cap"}},
		{name: "category exact", query: Query{Category: "tees"}, want: []string{"tee", "crew"}},
		{name: "unknown category", query: Query{Category: "panjabi"}, want: []string{}},
		{name: "search name case-insensitive", query: Query{Search: "HEMP"}, want: []string{"hoodie", "cap"}},
		{name: "search description", query: Query{Search: "plastics"}, want: []string{"joggers"}},
		{name: "search tag", query: Query{Search: "organic"}, want: []string{"tee"}},
		{name: "price inclusive bounds", query: Query{Price: priceRange(t, "45-75")}, want: []string{"tee", "joggers", "crew"}},
		{name: "price unbounded", query: Query{Price: priceRange(t, "150-")}, want: []string{"runner"}},
		{name: "composed", query: Query{Category: "tees", Search: "bamboo", Price: priceRange(t, "50-100")}, want: []string{"crew"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			equalIDs(t, ApplyQuery(products, tc.query), tc.want...)
		})
	}
}

func TestApplyQuerySorts(t *testing.T) {
	products := queryFixture()
	cases := []struct {
		sort SortMode
		want []string
	}{
		{sort: SortFeatured, want: []string{"tee", "hoodie", "joggers", "crew", "runner", "cap"}},
		{sort: "bogus", want: []string{"tee", "hoodie", "joggers", "crew", "runner", "cap"}},
		{sort: SortPriceAsc, want: []string{"cap", "tee", "crew", "joggers", "hoodie", "runner"}},
		{sort: SortPriceDesc, want: []string{"runner", "hoodie", "joggers", "crew", "tee", "cap"}},
		{sort: SortRating, want: []string{"hoodie", "runner", "tee", "joggers", "crew", "cap"}},
		{sort: SortNewest, want: []string{"hoodie", "crew", "tee", "joggers", "runner", "cap"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.sort), func(t *testing.T) {
			equalIDs(t, ApplyQuery(products, Query{Sort: tc.sort}), tc.want...)
		})
	}
}

func TestApplyQuerySortsAreStable(t *testing.T) {
	products := []domain.Product{
		{ID: "plain-1", Price: 20, Rating: 4, Tags: []string{"new"}},
		{ID: "feat-1", Price: 10, Rating: 5, Featured: true},
		{ID: "plain-2", Price: 10, Rating: 4},
		{ID: "feat-2", Price: 20, Rating: 5, Featured: true, Tags: []string{"new"}},
		{ID: "plain-3", Price: 10, Rating: 4, Tags: []string{"NEW"}},
	}
	cases := []struct {
		sort SortMode
		want []string
	}{
		{sort: SortFeatured, want: []string{"feat-1", "feat-2", "plain-1", "plain-2", "plain-3"}},
		{sort: "", want: []string{"feat-1", "feat-2", "plain-1", "plain-2", "plain-3"}},
		{sort: SortNewest, want: []string{"plain-1", "feat-2", "feat-1", "plain-2", "plain-3"}},
		{sort: SortPriceAsc, want: []string{"feat-1", "plain-2", "plain-3", "plain-1", "feat-2"}},
		{sort: SortPriceDesc, want: []string{"plain-1", "feat-2", "feat-1", "plain-2", "plain-3"}},
		{sort: SortRating, want: []string{"feat-1", "feat-2", "plain-1", "plain-2", "plain-3"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run("sort "+string(tc.sort), func(t *testing.T) {
			equalIDs(t, ApplyQuery(products, Query{Sort: tc.sort}), tc.want...)
		})
	}
}

func TestApplyQueryDoesNotMutateInput(t *testing.T) {
	products := queryFixture()
	out := ApplyQuery(products, Query{Sort: SortPriceAsc})
	out[0].Name = "changed"
	if products[0].ID != "tee" || products[5].Name != "Hemp Cap" {
		t.Fatalf("input was modified")
	}
}

func TestParsePriceRange(t *testing.T) {
	r, err := ParsePriceRange("50-100")
	if err != nil || r.Min != 50 || r.Max == nil || *r.Max != 100 {
		t.Fatalf("unexpected range %+v (%v)", r, err)
	}
	for _, raw := range []string{"150-", "150-Infinity", "150-inf"} {
		r, err := ParsePriceRange(raw)
		if err != nil || r.Min != 150 || r.Max != nil {
			t.Fatalf("%s: unexpected range %+v (%v)", raw, r, err)
		}
		if r.String() != "150-" {
			t.Fatalf("unexpected canonical form %q", r.String())
		}
	}
	for _, raw := range []string{"", "abc", "-50", "100-50", "x-10", "10-y", "NaN-1"} {
		if _, err := ParsePriceRange(raw); !errors.Is(err, ErrQueryInvalidInput) {
			t.Fatalf("%q: expected ErrQueryInvalidInput, got %v", raw, err)
		}
	}
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(url.Values{"category": {"tees"}, "q": {" Tee "}, "price": {"0-50"}, "sort": {"PRICE-ASC"}})
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.Category != "tees" || q.Search != "Tee" || q.Sort != SortPriceAsc || q.Price == nil || *q.Price.Max != 50 {
		t.Fatalf("unexpected query %+v", q)
	}

	q, err = ParseQuery(url.Values{"price": {"all"}})
	if err != nil || q.Price != nil || q.Sort != SortFeatured {
		t.Fatalf("unexpected query %+v (%v)", q, err)
	}

	if _, err := ParseQuery(url.Values{"price": {"cheap"}}); !errors.Is(err, ErrQueryInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryKeyNormalises(t *testing.T) {
	a := Query{Category: "all", Search: " Hemp ", Sort: "nope"}
	b := Query{Search: "hemp", Sort: SortFeatured}
	if a.Key() != b.Key() {
		t.Fatalf("expected equivalent keys, got %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == (Query{Search: "hemp", Sort: SortRating}).Key() {
		t.Fatalf("expected sort to change the key")
	}
}

func TestLandingSelections(t *testing.T) {
	products := queryFixture()
	equalIDs(t, FeaturedProducts(products), "tee", "hoodie")
	equalIDs(t, NewArrivals(products), "hoodie", "crew")
	equalIDs(t, RelatedProducts(products, products[0]), "crew")

	many := make([]domain.Product, 0, 12)
	for i := 0; i < 12; i++ {
		many = append(many, domain.Product{ID: string(rune('a' + i)), Category: "tees", Featured: true, Tags: []string{"new"}})
	}
	if got := len(FeaturedProducts(many)); got != FeaturedLimit {
		t.Fatalf("expected %d featured, got %d", FeaturedLimit, got)
	}
	if got := len(NewArrivals(many)); got != NewArrivalsLimit {
		t.Fatalf("expected %d new arrivals, got %d", NewArrivalsLimit, got)
	}
	if got := RelatedProducts(many, many[0]); len(got) != RelatedLimit || got[0].ID != "b" {
		t.Fatalf("unexpected related products %v", ids(got))
	}
}

func TestCountCategories(t *testing.T) {
	categories := []domain.Category{{ID: "all", Name: "All Products"}, {ID: "tees", Name: "T-Shirts"}, {ID: "panjabi", Name: "Panjabi"}}
	counts := CountCategories(categories, queryFixture())
	if len(counts) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(counts))
	}
	if counts[0].Count != 6 || counts[1].Count != 2 || counts[2].Count != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestFilterOptions(t *testing.T) {
	if options := SortOptions(); len(options) != 5 || options[0].Value != SortFeatured || options[1].Label != "Price: Low to High" {
		t.Fatalf("unexpected sort options %+v", options)
	}
	presets := PricePresets()
	if len(presets) != 4 || presets[3].Range.Max != nil || presets[0].Range.String() != "0-50" {
		t.Fatalf("unexpected presets %+v", presets)
	}
	for _, preset := range presets {
		parsed, err := ParsePriceRange(preset.Value)
		if err != nil || parsed.String() != preset.Range.String() {
			t.Fatalf("preset %s does not round trip: %v", preset.Value, err)
		}
	}
}
