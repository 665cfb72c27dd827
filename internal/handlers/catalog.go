package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecoshop/storefront/internal/platform/httpx"
	"github.com/ecoshop/storefront/internal/services"
)

// CatalogHandlers exposes the catalog load state and load triggers.
type CatalogHandlers struct {
	catalog      services.ProductCatalog
	refreshLimit *windowLimiter
}

// CatalogOption customises CatalogHandlers.
type CatalogOption func(*CatalogHandlers)

// WithRefreshLimit caps forced refreshes per client address.
func WithRefreshLimit(limit int, window time.Duration, clock func() time.Time) CatalogOption {
	return func(h *CatalogHandlers) {
		h.refreshLimit = newWindowLimiter(limit, window, clock)
	}
}

// NewCatalogHandlers constructs catalog state handlers.
func NewCatalogHandlers(catalog services.ProductCatalog, opts ...CatalogOption) *CatalogHandlers {
	h := &CatalogHandlers{catalog: catalog}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.getState)
	r.Post("/catalog:load", h.load)
	r.Post("/catalog:refresh", h.refresh)
}

type catalogStatePayload struct {
	Loaded        bool              `json:"loaded"`
	IsLoading     bool              `json:"isLoading"`
	Error         *string           `json:"error"`
	ProductCount  int               `json:"productCount"`
	BaselineCount int               `json:"baselineCount"`
	Version       uint64            `json:"version"`
	LoadedAt      *time.Time        `json:"loadedAt,omitempty"`
	Sources       []string          `json:"sources"`
	SourceErrors  map[string]string `json:"sourceErrors,omitempty"`
}

func (h *CatalogHandlers) getState(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeCatalogUnavailable(r.Context(), w)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCatalogState(h.catalog))
}

func (h *CatalogHandlers) load(w http.ResponseWriter, r *http.Request) {
	h.runLoad(w, r, func(ctx context.Context) error { return h.catalog.Load(ctx) })
}

func (h *CatalogHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	if ok, retry := h.refreshLimit.allow(clientKey(r)); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many catalog refreshes", http.StatusTooManyRequests))
		return
	}
	h.runLoad(w, r, func(ctx context.Context) error { return h.catalog.Refresh(ctx) })
}

// runLoad answers with the resulting state; an all-remote failure still returns 200 with
// the error recorded on the state, since the baseline keeps serving.
func (h *CatalogHandlers) runLoad(w http.ResponseWriter, r *http.Request, load func(context.Context) error) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	if err := load(ctx); err != nil && !errors.Is(err, services.ErrCatalogUnavailable) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			httpx.WriteError(ctx, w, httpx.NewError("catalog_load_timeout", "catalog load did not finish in time", http.StatusGatewayTimeout))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_load_failed", err.Error(), http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCatalogState(h.catalog))
}

func buildCatalogState(catalog services.ProductCatalog) catalogStatePayload {
	state := catalog.State()
	payload := catalogStatePayload{
		Loaded:        state.Loaded,
		IsLoading:     state.IsLoading,
		ProductCount:  len(state.Products),
		BaselineCount: catalog.BaselineCount(),
		Version:       catalog.Version(),
		Sources:       catalog.SourceNames(),
	}
	if state.Error != "" {
		msg := state.Error
		payload.Error = &msg
	}
	if loadedAt := catalog.LoadedAt(); !loadedAt.IsZero() {
		payload.LoadedAt = &loadedAt
	}
	if len(state.SourceErrors) > 0 {
		payload.SourceErrors = state.SourceErrors
	}
	return payload
}

func writeCatalogUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
}
