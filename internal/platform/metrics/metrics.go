package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Registry owns the storefront's prometheus collectors.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPLatencySec  *prometheus.HistogramVec
	CatalogProducts prometheus.Gauge
	CatalogLoads    *prometheus.CounterVec
	SourceFailures  *prometheus.CounterVec
	ActiveCarts     prometheus.Gauge
	CartsEvicted    prometheus.Counter
	OrdersPlaced    prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method, route and status code.",
	}, []string{"method", "route", "status"})
	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	catalogProducts := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_products",
		Help:      "Products currently held by the catalog store.",
	})
	catalogLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_loads_total",
		Help:      "Catalog loads, by outcome.",
	}, []string{"outcome"})
	sourceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_source_failures_total",
		Help:      "Failed catalog source fetches, by source.",
	}, []string{"source"})
	activeCarts := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_carts",
		Help:      "Session carts held in memory.",
	})
	cartsEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "carts_evicted_total",
		Help:      "Idle session carts evicted.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Mock orders confirmed at checkout.",
	})

	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests, httpLatency, catalogProducts, catalogLoads, sourceFailures,
		activeCarts, cartsEvicted, ordersPlaced,
	)
	return &Registry{
		reg:             r,
		HTTPRequests:    httpRequests,
		HTTPLatencySec:  httpLatency,
		CatalogProducts: catalogProducts,
		CatalogLoads:    catalogLoads,
		SourceFailures:  sourceFailures,
		ActiveCarts:     activeCarts,
		CartsEvicted:    cartsEvicted,
		OrdersPlaced:    ordersPlaced,
	}
}

// ObserveRequest matches observability.RequestObserver.
func (r *Registry) ObserveRequest(method, route string, status int, latency time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPLatencySec.WithLabelValues(method, route).Observe(latency.Seconds())
}

// ObserveCatalogLoad records the outcome of one catalog load.
func (r *Registry) ObserveCatalogLoad(products int, failedSources []string, ok bool) {
	if r == nil {
		return
	}
	for _, source := range failedSources {
		r.SourceFailures.WithLabelValues(source).Inc()
	}
	if !ok {
		r.CatalogLoads.WithLabelValues("failed").Inc()
		return
	}
	r.CatalogLoads.WithLabelValues("loaded").Inc()
	r.CatalogProducts.Set(float64(products))
}

// ObserveCarts records the number of live session carts and how many were just evicted.
func (r *Registry) ObserveCarts(active, evicted int) {
	if r == nil {
		return
	}
	r.ActiveCarts.Set(float64(active))
	if evicted > 0 {
		r.CartsEvicted.Add(float64(evicted))
	}
}

// ObserveOrder counts a confirmed mock order.
func (r *Registry) ObserveOrder() {
	if r == nil {
		return
	}
	r.OrdersPlaced.Inc()
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
