// Package sources adapts the bundled and remote product listings into canonical catalog
// products.
package sources

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"html"
	"math"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ecoshop/storefront/internal/domain"
)

// Source names in catalog merge order.
const (
	NameLocal         = "local"
	NameDummy         = "dummy"
	NameFake          = "fake"
	NameSupplementary = "supplementary"
)

var (
	// ErrUnexpectedStatus is wrapped by FetchError when a listing answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("sources: unexpected status")
	// ErrMalformedPayload is wrapped by FetchError when a listing body cannot be decoded.
	ErrMalformedPayload = errors.New("sources: malformed payload")
)

// Source yields canonical products for the catalog store.
type Source interface {
	Name() string
	// Remote reports whether the source depends on the network. Only remote failures count
	// towards a failed catalog load.
	Remote() bool
	Fetch(ctx context.Context) ([]domain.Product, error)
}

// Logger mirrors the structured event logger used by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// FetchError describes a failed source fetch.
type FetchError struct {
	Source string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("sources: fetch %s: status %d: %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("sources: fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from remote free text. The strict policy escapes entities, which
// are decoded again since products hold plain text.
func cleanText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(value)))
}

func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := cleanText(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func clampRating(rating float64) float64 {
	switch {
	case math.IsNaN(rating) || rating < 0:
		return 0
	case rating > 5:
		return 5
	default:
		return rating
	}
}

func idHash(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}

// placeholderInt picks a stable value in [lo, hi) for a field the source does not provide.
func placeholderInt(id string, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + int(idHash(id)%uint32(hi-lo))
}

// placeholderBool derives a stable flag from the id.
func placeholderBool(id string) bool {
	return idHash(id)%2 == 0
}

func logEvent(ctx context.Context, logger Logger, event string, fields map[string]any) {
	if logger == nil {
		return
	}
	logger(ctx, event, fields)
}
