package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/ecoshop/storefront/internal/domain"
)

var (
	fakeDefaultColors = []string{"#1a1a1a"}
	fakeDefaultSizes  = []string{"M", "L"}
)

// FakeStore adapts the fake store API listing.
type FakeStore struct {
	fetcher *jsonFetcher
	logger  Logger
}

// NewFakeStore constructs the adapter for the listing rooted at baseURL.
func NewFakeStore(baseURL string, opts ...Option) *FakeStore {
	cfg := buildOptions(opts)
	return &FakeStore{
		fetcher: newJSONFetcher(NameFake, baseURL, cfg),
		logger:  cfg.logger,
	}
}

func (s *FakeStore) Name() string { return NameFake }

func (s *FakeStore) Remote() bool { return true }

// Fetch loads the first listing page and maps the men, women and kids records.
func (s *FakeStore) Fetch(ctx context.Context) ([]domain.Product, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("perPage", "200")

	var payload fakeListing
	if err := s.fetcher.getJSON(ctx, "api/products", query, &payload); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(payload.Data))
	skipped := 0
	for _, record := range payload.Data {
		switch strings.ToLower(strings.TrimSpace(record.Category)) {
		case "men", "women", "kids":
		default:
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
		logEvent(ctx, s.logger, "sources.records_skipped", map[string]any{"source": NameFake, "skipped": skipped})
	}
	return products, nil
}

type fakeListing struct {
	Data []fakeRecord `json:"data"`
}

type fakeRecord struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Price       flexNumber `json:"price"`
	OldPrice    flexNumber `json:"oldPrice"`
	Category    string     `json:"category"`
	Image       string     `json:"image"`
	Colors      []string   `json:"colors"`
	Size        []string   `json:"size"`
	Rating      flexNumber `json:"rating"`
	Stock       flexNumber `json:"stock"`
	IsNew       bool       `json:"isNew"`
	Type        string     `json:"type"`
}

func (r fakeRecord) toProduct() (domain.Product, bool) {
	rawID := strings.TrimSpace(r.ID)
	name := cleanText(r.Title)
	image := cleanText(r.Image)
	if rawID == "" || name == "" || !r.Price.Valid || r.Price.Value < 0 || image == "" {
		return domain.Product{}, false
	}

	id := "fake-" + rawID
	var original *float64
	if r.OldPrice.Valid && r.OldPrice.Value > 0 {
		value := r.OldPrice.Value
		original = &value
	}

	colors := cleanStrings(r.Colors)
	if len(colors) == 0 {
		colors = append([]string(nil), fakeDefaultColors...)
	}
	sizes := cleanStrings(r.Size)
	if len(sizes) == 0 {
		sizes = append([]string(nil), fakeDefaultSizes...)
	}
	tags := []string{}
	if kind := cleanText(r.Type); kind != "" {
		tags = append(tags, kind)
	}

	category := "clothing"
	if strings.EqualFold(strings.TrimSpace(r.Category), "men") {
		category = "tees"
	}

	return domain.Product{
		ID:            id,
		Name:          name,
		Description:   cleanText(r.Description),
		Price:         r.Price.Value,
		OriginalPrice: original,
		Category:      category,
		Images:        []string{image},
		Colors:        colors,
		Sizes:         sizes,
		Rating:        clampRating(r.Rating.Value),
		ReviewCount:   placeholderInt(id, 20, 120),
		InStock:       r.Stock.Value > 0,
		Featured:      r.IsNew,
		Sustainable:   true,
		Tags:          tags,
	}, true
}

// flexNumber accepts a JSON number, a numeric string, or null.
type flexNumber struct {
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = flexNumber{}
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			*n = flexNumber{}
			return nil
		}
		*n = flexNumber{Value: value, Valid: true}
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		*n = flexNumber{}
		return nil
	}
	*n = flexNumber{Value: value, Valid: true}
	return nil
}
