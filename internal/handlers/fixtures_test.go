package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecoshop/storefront/internal/domain"
	"github.com/ecoshop/storefront/internal/platform/idempotency"
	"github.com/ecoshop/storefront/internal/services"
	"github.com/ecoshop/storefront/internal/sources"
)

type staticSource struct {
	name     string
	remote   bool
	products []domain.Product
	err      error
	calls    atomic.Int32
}

func (s *staticSource) Name() string { return s.name }
func (s *staticSource) Remote() bool { return s.remote }

func (s *staticSource) Fetch(context.Context) ([]domain.Product, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return domain.CloneProducts(s.products), nil
}

func price(v float64) *float64 { return &v }

var testCategories = []domain.Category{
	{ID: "all", Name: "All Products", Icon: "grid"},
	{ID: "tees", Name: "T-Shirts", Icon: "shirt"},
	{ID: "hoodies", Name: "Hoodies", Icon: "layers"},
}

func baselineProducts() []domain.Product {
	return []domain.Product{
		{
			ID:            "tee-1",
			Name:          "Organic Tee",
			Description:   "Soft **organic** cotton.",
			Price:         29.99,
			OriginalPrice: price(39.99),
			Category:      "tees",
			Images:        []string{"https://img.example/tee-1.jpg"},
			Colors:        []string{"#1a1a1a"},
			Sizes:         []string{"S", "M", "L"},
			Rating:        4.8,
			InStock:       true,
			Featured:      true,
			Tags:          []string{"organic", "bestseller"},
		},
		{
			ID:          "tee-2",
			Name:        "Hemp Tee",
			Description: "Breathable hemp.",
			Price:       34.5,
			Category:    "tees",
			Images:      []string{"https://img.example/tee-2.jpg"},
			Sizes:       []string{"M", "L"},
			Rating:      4.2,
			InStock:     true,
			Tags:        []string{"new"},
		},
		{
			ID:          "hoodie-1",
			Name:        "Recycled Hoodie",
			Description: "Made from recycled bottles.",
			Price:       89,
			Category:    "hoodies",
			Images:      []string{"https://img.example/hoodie-1.jpg"},
			Sizes:       []string{"L", "XL"},
			Rating:      4.6,
			InStock:     true,
			Featured:    true,
			Tags:        []string{},
		},
	}
}

type testEnv struct {
	router   chi.Router
	catalog  *services.CatalogStore
	carts    *services.CartRegistry
	remote   *staticSource
	checkout *services.CheckoutService
}

func newTestEnv(t *testing.T, remote *staticSource) *testEnv {
	t.Helper()

	if remote == nil {
		remote = &staticSource{name: "dummy", remote: true, products: []domain.Product{{
			ID:       "dummy-7",
			Name:     "Linen Shirt",
			Price:    120,
			Category: "tees",
			Images:   []string{"https://img.example/dummy-7.jpg"},
			Sizes:    []string{"S", "M", "L", "XL"},
			Rating:   4.1,
			InStock:  true,
			Tags:     []string{},
		}}}
	}

	catalog, err := services.NewCatalogStore(context.Background(), services.CatalogStoreDeps{
		Baseline: &staticSource{name: "local", products: baselineProducts()},
		Sources:  []sources.Source{remote},
		Clock:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCatalogStore: %v", err)
	}

	var seq atomic.Int32
	carts := services.NewCartRegistry(services.CartRegistryDeps{})
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		TaxRate:         decimal.RequireFromString("0.08"),
		ExpressShipping: decimal.NewFromInt(15),
		Currency:        "USD",
		IDGenerator:     func() string { return fmt.Sprintf("ECO-TEST%04d", seq.Add(1)) },
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}

	cookie := SessionCookie{Name: "TEST_SESSION"}
	router := NewRouter(
		WithMiddlewares(SessionMiddleware(cookie)),
		WithCatalogRoutes(NewCatalogHandlers(catalog).Routes),
		WithProductRoutes(NewProductHandlers(catalog, testCategories, services.NewQueryCache(0)).Routes),
		WithCartRoutes(NewCartHandlers(catalog, carts, cookie, "USD").Routes),
		WithCheckoutRoutes(NewCheckoutHandlers(checkout, carts, cookie,
			WithOrderMiddleware(idempotency.Middleware(idempotency.NewMemoryStore())),
		).Routes),
	)
	return &testEnv{router: router, catalog: catalog, carts: carts, remote: remote, checkout: checkout}
}

// do issues a request, carrying the session cookie when one is given.
func (e *testEnv) do(t *testing.T, method, target string, body any, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.AddCookie(session)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func sessionCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "TEST_SESSION" {
			return c
		}
	}
	t.Fatalf("expected session cookie in response")
	return nil
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Step    string         `json:"step"`
	Fields  []fieldPayload `json:"fields"`
}

type fieldPayload struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var errRemoteDown = errors.New("remote down")
