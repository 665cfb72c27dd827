package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryObservesCatalogLoads(t *testing.T) {
	reg := NewRegistry()

	reg.ObserveCatalogLoad(42, []string{"fake"}, true)
	reg.ObserveCatalogLoad(0, []string{"dummy", "fake"}, false)

	assert.Equal(t, float64(42), testutil.ToFloat64(reg.CatalogProducts))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.CatalogLoads.WithLabelValues("loaded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.CatalogLoads.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.SourceFailures.WithLabelValues("fake")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.SourceFailures.WithLabelValues("dummy")))
}

func TestRegistryObservesCartsAndOrders(t *testing.T) {
	reg := NewRegistry()

	reg.ObserveCarts(3, 0)
	reg.ObserveCarts(1, 2)
	reg.ObserveOrder()

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.ActiveCarts))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.CartsEvicted))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.OrdersPlaced))
}

func TestHandlerExposesRequestMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.ObserveRequest(http.MethodGet, "/api/v1/products", http.StatusOK, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `storefront_http_requests_total{method="GET",route="/api/v1/products",status="200"} 1`))
	assert.Contains(t, string(body), "storefront_http_request_duration_seconds_bucket")
}

func TestNilRegistryIsSafe(t *testing.T) {
	var reg *Registry
	reg.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	reg.ObserveCatalogLoad(1, nil, true)
	reg.ObserveCarts(1, 1)
	reg.ObserveOrder()
}
