package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ecoshop/storefront/internal/domain"
	"github.com/ecoshop/storefront/internal/format"
	"github.com/ecoshop/storefront/internal/markdown"
	"github.com/ecoshop/storefront/internal/platform/httpx"
	"github.com/ecoshop/storefront/internal/platform/requestctx"
	"github.com/ecoshop/storefront/internal/services"
)

// ProductHandlers serves product listings, product detail and filter metadata.
type ProductHandlers struct {
	catalog    services.ProductCatalog
	categories []domain.Category
	cache      *services.QueryCache
}

// NewProductHandlers constructs browsing handlers. A nil cache disables memoization.
func NewProductHandlers(catalog services.ProductCatalog, categories []domain.Category, cache *services.QueryCache) *ProductHandlers {
	cats := make([]domain.Category, len(categories))
	copy(cats, categories)
	return &ProductHandlers{
		catalog:    catalog,
		categories: cats,
		cache:      cache,
	}
}

// Routes wires the product browsing endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/featured", h.listFeatured)
	r.Get("/products/new-arrivals", h.listNewArrivals)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/filters", h.getFilters)
}

type productPayload struct {
	domain.Product
	Thumbnail              string  `json:"thumbnail"`
	DiscountPercent        int     `json:"discountPercent,omitempty"`
	FormattedPrice         string  `json:"formattedPrice"`
	FormattedOriginalPrice *string `json:"formattedOriginalPrice,omitempty"`
}

type productDetailPayload struct {
	productPayload
	DescriptionHTML string           `json:"descriptionHtml,omitempty"`
	DefaultSize     string           `json:"defaultSize,omitempty"`
	Related         []productPayload `json:"related"`
}

type listQueryPayload struct {
	Category string `json:"category"`
	Search   string `json:"q,omitempty"`
	Price    string `json:"price,omitempty"`
	Sort     string `json:"sort"`
}

type productListResponse struct {
	Products  []productPayload `json:"products"`
	Total     int              `json:"total"`
	Query     listQueryPayload `json:"query"`
	IsLoading bool             `json:"isLoading"`
	Error     *string          `json:"error"`
}

type productSelectionResponse struct {
	Products []productPayload `json:"products"`
}

type filtersResponse struct {
	Sort       []services.SortOption  `json:"sort"`
	PriceRange []services.PricePreset `json:"priceRanges"`
	Categories []domain.Category      `json:"categories"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	query, err := services.ParseQuery(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_query", err.Error(), http.StatusBadRequest))
		return
	}

	h.ensureLoaded(ctx)

	var products []domain.Product
	if h.cache != nil {
		products = h.cache.Query(h.catalog, query)
	} else {
		all, _ := h.catalog.Snapshot()
		products = services.ApplyQuery(all, query)
	}

	category := strings.TrimSpace(query.Category)
	if category == "" {
		category = domain.CategoryAll
	}
	echo := listQueryPayload{
		Category: category,
		Search:   query.Search,
		Sort:     string(query.Sort),
	}
	if query.Price != nil {
		echo.Price = query.Price.String()
	}

	state := h.catalog.State()
	resp := productListResponse{
		Products:  buildProductPayloads(products),
		Total:     len(products),
		Query:     echo,
		IsLoading: state.IsLoading,
	}
	if state.Error != "" {
		msg := state.Error
		resp.Error = &msg
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ProductHandlers) listFeatured(w http.ResponseWriter, r *http.Request) {
	h.writeSelection(w, r, services.FeaturedProducts)
}

func (h *ProductHandlers) listNewArrivals(w http.ResponseWriter, r *http.Request) {
	h.writeSelection(w, r, services.NewArrivals)
}

func (h *ProductHandlers) writeSelection(w http.ResponseWriter, r *http.Request, pick func([]domain.Product) []domain.Product) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	h.ensureLoaded(ctx)
	products, _ := h.catalog.Snapshot()
	writeJSONResponse(w, http.StatusOK, productSelectionResponse{Products: buildProductPayloads(pick(products))})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id is required", http.StatusBadRequest))
		return
	}

	h.ensureLoaded(ctx)
	product, err := h.catalog.Product(productID)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	products, _ := h.catalog.Snapshot()
	detail := productDetailPayload{
		productPayload: buildProductPayload(product),
		DefaultSize:    product.DefaultSize(),
		Related:        buildProductPayloads(services.RelatedProducts(products, product)),
	}
	if html, err := markdown.Render(product.Description); err != nil {
		requestctx.Logger(ctx).Warn("product description render failed",
			zap.String("product_id", product.ID),
			zap.Error(err),
		)
	} else {
		detail.DescriptionHTML = html
	}
	writeJSONResponse(w, http.StatusOK, detail)
}

func (h *ProductHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(ctx, w)
		return
	}
	h.ensureLoaded(ctx)
	products, _ := h.catalog.Snapshot()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"categories": services.CountCategories(h.categories, products),
	})
}

func (h *ProductHandlers) getFilters(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, filtersResponse{
		Sort:       services.SortOptions(),
		PriceRange: services.PricePresets(),
		Categories: h.categories,
	})
}

// ensureLoaded triggers the one-time catalog load. Failures are already recorded on the
// catalog state, so listings keep serving whatever is loaded.
func (h *ProductHandlers) ensureLoaded(ctx context.Context) {
	if h.catalog.Loaded() {
		return
	}
	if err := h.catalog.Load(ctx); err != nil && !errors.Is(err, services.ErrCatalogUnavailable) {
		requestctx.Logger(ctx).Warn("catalog load did not complete", zap.Error(err))
	}
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		Product:         product,
		Thumbnail:       product.Thumbnail(),
		DiscountPercent: product.DiscountPercent(),
		FormattedPrice:  format.Price(product.Price),
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}
	if product.OriginalPrice != nil {
		formatted := format.Price(*product.OriginalPrice)
		payload.FormattedOriginalPrice = &formatted
	}
	return payload
}

func buildProductPayloads(products []domain.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, product := range products {
		out = append(out, buildProductPayload(product))
	}
	return out
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_lookup_failed", err.Error(), http.StatusInternalServerError))
	}
}
