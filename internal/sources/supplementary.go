package sources

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/ecoshop/storefront/internal/domain"
)

//go:embed data/supplementary.b64
var supplementaryEncoded string

// Supplementary serves the bundled base64 encoded product list. The encoding is plain
// obfuscation. A bundle that fails to decode contributes nothing.
type Supplementary struct {
	products []domain.Product
}

// NewSupplementary decodes the embedded bundle.
func NewSupplementary(ctx context.Context, logger Logger) *Supplementary {
	return NewSupplementaryFromEncoded(ctx, supplementaryEncoded, logger)
}

// NewSupplementaryFromEncoded decodes an encoded bundle, logging and discarding it when
// malformed.
func NewSupplementaryFromEncoded(ctx context.Context, encoded string, logger Logger) *Supplementary {
	products, err := decodeSupplementary(encoded)
	if err != nil {
		logEvent(ctx, logger, "sources.supplementary_decode_failed", map[string]any{"error": err.Error()})
		return &Supplementary{}
	}

	kept := make([]domain.Product, 0, len(products))
	for _, product := range products {
		product.ID = strings.TrimSpace(product.ID)
		if product.ID == "" || strings.TrimSpace(product.Name) == "" || product.Price < 0 || len(product.Images) == 0 {
			continue
		}
		product.Rating = clampRating(product.Rating)
		kept = append(kept, product)
	}
	if dropped := len(products) - len(kept); dropped > 0 {
		logEvent(ctx, logger, "sources.records_skipped", map[string]any{"source": NameSupplementary, "skipped": dropped})
	}
	return &Supplementary{products: kept}
}

func decodeSupplementary(encoded string) ([]domain.Product, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Supplementary) Name() string { return NameSupplementary }

func (s *Supplementary) Remote() bool { return false }

// Fetch returns a copy of the decoded products.
func (s *Supplementary) Fetch(context.Context) ([]domain.Product, error) {
	return domain.CloneProducts(s.products), nil
}
