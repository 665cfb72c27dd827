package sources

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ecoshop/storefront/internal/domain"
)

//go:embed data/local_catalog.yaml
var localCatalogYAML []byte

// ErrInvalidBundle is returned when the bundled catalog cannot be used.
var ErrInvalidBundle = errors.New("sources: invalid bundled catalog")

// Local serves the bundled catalog. It is the baseline every load starts from.
type Local struct {
	products   []domain.Product
	categories []domain.Category
}

type localBundle struct {
	Categories []domain.Category `yaml:"categories"`
	Products   []domain.Product  `yaml:"products"`
}

// NewLocal parses the embedded catalog.
func NewLocal() (*Local, error) {
	return NewLocalFromYAML(localCatalogYAML)
}

// NewLocalFromYAML parses a catalog bundle. Every product must carry an id, a name, a
// non-negative price and at least one image; ids must be unique.
func NewLocalFromYAML(data []byte) (*Local, error) {
	var bundle localBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	seen := make(map[string]struct{}, len(bundle.Products))
	for i, product := range bundle.Products {
		id := strings.TrimSpace(product.ID)
		switch {
		case id == "":
			return nil, fmt.Errorf("%w: product %d has no id", ErrInvalidBundle, i)
		case strings.TrimSpace(product.Name) == "":
			return nil, fmt.Errorf("%w: product %s has no name", ErrInvalidBundle, id)
		case product.Price < 0:
			return nil, fmt.Errorf("%w: product %s has a negative price", ErrInvalidBundle, id)
		case len(product.Images) == 0:
			return nil, fmt.Errorf("%w: product %s has no images", ErrInvalidBundle, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %s", ErrInvalidBundle, id)
		}
		seen[id] = struct{}{}
		bundle.Products[i].ID = id
		bundle.Products[i].Description = strings.TrimSpace(product.Description)
		bundle.Products[i].Rating = clampRating(product.Rating)
		if bundle.Products[i].Tags == nil {
			bundle.Products[i].Tags = []string{}
		}
	}

	return &Local{products: bundle.Products, categories: bundle.Categories}, nil
}

func (l *Local) Name() string { return NameLocal }

func (l *Local) Remote() bool { return false }

// Fetch returns a copy of the bundled products. It never fails.
func (l *Local) Fetch(context.Context) ([]domain.Product, error) {
	return l.Products(), nil
}

// Products returns a copy of the bundled products.
func (l *Local) Products() []domain.Product {
	return domain.CloneProducts(l.products)
}

// Categories returns the known sidebar categories, "all" first.
func (l *Local) Categories() []domain.Category {
	out := make([]domain.Category, len(l.categories))
	copy(out, l.categories)
	return out
}
