package sources

import (
	"context"
	"math"
	"net/url"
	"strconv"

	"github.com/ecoshop/storefront/internal/domain"
)

const dummyListingLimit = 100

// dummyCategories is the clothing allow-list applied to the dummy listing.
var dummyCategories = map[string]struct{}{
	"mens-shirts":    {},
	"womens-dresses": {},
	"tops":           {},
	"mens-shoes":     {},
	"womens-shoes":   {},
	"womens-bags":    {},
	"mens-watches":   {},
	"womens-watches": {},
	"sunglasses":     {},
}

var (
	dummyColors = []string{"#1a1a1a", "#f5f5f5"}
	dummySizes  = []string{"S", "M", "L", "XL"}
)

// DummyJSON adapts the dummyjson product listing.
type DummyJSON struct {
	fetcher *jsonFetcher
	logger  Logger
}

// NewDummyJSON constructs the adapter for the listing rooted at baseURL.
func NewDummyJSON(baseURL string, opts ...Option) *DummyJSON {
	cfg := buildOptions(opts)
	return &DummyJSON{
		fetcher: newJSONFetcher(NameDummy, baseURL, cfg),
		logger:  cfg.logger,
	}
}

func (s *DummyJSON) Name() string { return NameDummy }

func (s *DummyJSON) Remote() bool { return true }

// Fetch loads one page of the listing and maps the allow-listed records.
func (s *DummyJSON) Fetch(ctx context.Context) ([]domain.Product, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(dummyListingLimit))

	var payload dummyListing
	if err := s.fetcher.getJSON(ctx, "products", query, &payload); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(payload.Products))
	skipped := 0
	for _, record := range payload.Products {
		if _, ok := dummyCategories[record.Category]; !ok {
			continue
		}
		product, ok := record.toProduct()
		if !ok {
			skipped++
			continue
		}
		products = append(products, product)
	}
	if skipped > 0 {
		logEvent(ctx, s.logger, "sources.records_skipped", map[string]any{"source": NameDummy, "skipped": skipped})
	}
	return products, nil
}

type dummyListing struct {
	Products []dummyRecord `json:"products"`
}

type dummyRecord struct {
	ID                 int      `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Price              float64  `json:"price"`
	DiscountPercentage float64  `json:"discountPercentage"`
	Category           string   `json:"category"`
	Images             []string `json:"images"`
	Thumbnail          string   `json:"thumbnail"`
	Rating             float64  `json:"rating"`
	Stock              int      `json:"stock"`
	Tags               []string `json:"tags"`
}

func (r dummyRecord) toProduct() (domain.Product, bool) {
	name := cleanText(r.Title)
	if r.ID <= 0 || name == "" || r.Price < 0 {
		return domain.Product{}, false
	}
	images := cleanStrings(r.Images)
	if len(images) == 0 {
		if thumb := cleanText(r.Thumbnail); thumb != "" {
			images = []string{thumb}
		} else {
			return domain.Product{}, false
		}
	}

	id := "dummy-" + strconv.Itoa(r.ID)
	rating := clampRating(r.Rating)
	return domain.Product{
		ID:            id,
		Name:          name,
		Description:   cleanText(r.Description),
		Price:         r.Price,
		OriginalPrice: dummyOriginalPrice(r.Price, r.DiscountPercentage),
		Category:      dummyCategory(r.Category),
		Images:        images,
		Colors:        append([]string(nil), dummyColors...),
		Sizes:         append([]string(nil), dummySizes...),
		Rating:        rating,
		ReviewCount:   placeholderInt(id, 50, 250),
		InStock:       r.Stock > 0,
		Featured:      rating > 4.5,
		Sustainable:   placeholderBool(id),
		Tags:          cleanStrings(r.Tags),
	}, true
}

func dummyCategory(category string) string {
	switch category {
	case "tops", "mens-shirts":
		return "tees"
	default:
		return "clothing"
	}
}

// dummyOriginalPrice reverses the listed discount; it is omitted when no sane pre-discount
// price can be derived.
func dummyOriginalPrice(price, discountPercent float64) *float64 {
	if discountPercent <= 0 {
		return nil
	}
	divisor := 1 - discountPercent/100
	if divisor <= 0 {
		return nil
	}
	original := math.Round(price / divisor)
	if original < price {
		return nil
	}
	return &original
}
