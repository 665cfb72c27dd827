package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ecoshop/storefront/internal/domain"
	"github.com/ecoshop/storefront/internal/format"
	"github.com/ecoshop/storefront/internal/platform/httpx"
	"github.com/ecoshop/storefront/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the session cart.
type CartHandlers struct {
	catalog  services.ProductCatalog
	sessions sessionIssuer
	currency string
}

// NewCartHandlers constructs cart handlers. Unit prices are always taken from the catalog.
func NewCartHandlers(catalog services.ProductCatalog, sessions services.CartSessions, cookie SessionCookie, currency string) *CartHandlers {
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	return &CartHandlers{
		catalog:  catalog,
		sessions: sessionIssuer{cookie: cookie, sessions: sessions},
		currency: currency,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart:open", h.openCart)
	r.Post("/cart:close", h.closeCart)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{productId}", h.updateItem)
	r.Delete("/cart/items/{productId}", h.removeItem)
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  *int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int   `json:"quantity"`
	Size     string `json:"size"`
	Color    string `json:"color"`
}

type cartLinePayload struct {
	domain.CartLineItem
	LineTotal          string `json:"lineTotal"`
	FormattedPrice     string `json:"formattedPrice"`
	FormattedLineTotal string `json:"formattedLineTotal"`
}

type cartPayload struct {
	Items      []cartLinePayload `json:"items"`
	TotalItems int               `json:"totalItems"`
	TotalPrice money             `json:"totalPrice"`
	IsOpen     bool              `json:"isOpen"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.sessions.sessions == nil {
		writeCartUnavailable(r.Context(), w)
		return
	}
	snapshot := services.CartSnapshot{}
	if cart, ok := h.sessions.current(r); ok {
		snapshot = cart.Snapshot()
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(snapshot)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions.sessions == nil || h.catalog == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.Product(productID)
	if errors.Is(err, services.ErrCatalogProductNotFound) && !h.catalog.Loaded() {
		if loadErr := h.catalog.Load(ctx); loadErr == nil || errors.Is(loadErr, services.ErrCatalogUnavailable) {
			product, err = h.catalog.Product(productID)
		}
	}
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}

	size := strings.TrimSpace(req.Size)
	if size == "" {
		size = product.DefaultSize()
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity > services.MaxLineQuantity {
		writeQuantityTooLarge(ctx, w)
		return
	}

	cart := h.sessions.sessions.Cart(h.sessions.ensure(w, r))
	cart.AddItem(domain.CartLineItem{
		ID:       product.ID,
		Name:     product.Name,
		Price:    product.Price,
		Image:    product.Thumbnail(),
		Size:     size,
		Color:    strings.TrimSpace(req.Color),
		Quantity: quantity,
	})
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart.Snapshot())})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions.sessions == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id is required", http.StatusBadRequest))
		return
	}

	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	if *req.Quantity > services.MaxLineQuantity {
		writeQuantityTooLarge(ctx, w)
		return
	}

	cart := h.sessions.sessions.Cart(h.sessions.ensure(w, r))
	if key, narrowed := lineKey(productID, req.Size, req.Color); narrowed {
		cart.UpdateLineQuantity(key, *req.Quantity)
	} else {
		cart.UpdateQuantity(productID, *req.Quantity)
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart.Snapshot())})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions.sessions == nil {
		writeCartUnavailable(ctx, w)
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_product_id", "product id is required", http.StatusBadRequest))
		return
	}

	cart := h.sessions.sessions.Cart(h.sessions.ensure(w, r))
	query := r.URL.Query()
	if key, narrowed := lineKey(productID, query.Get("size"), query.Get("color")); narrowed {
		cart.RemoveLine(key)
	} else {
		cart.RemoveItem(productID)
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart.Snapshot())})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*services.CartStore).Clear)
}

func (h *CartHandlers) openCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*services.CartStore).OpenCart)
}

func (h *CartHandlers) closeCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*services.CartStore).CloseCart)
}

func (h *CartHandlers) mutate(w http.ResponseWriter, r *http.Request, apply func(*services.CartStore)) {
	if h.sessions.sessions == nil {
		writeCartUnavailable(r.Context(), w)
		return
	}
	cart := h.sessions.sessions.Cart(h.sessions.ensure(w, r))
	apply(cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: h.buildCartPayload(cart.Snapshot())})
}

func (h *CartHandlers) buildCartPayload(snapshot services.CartSnapshot) cartPayload {
	return cartPayload{
		Items:      buildLinePayloads(snapshot.Items, h.currency),
		TotalItems: snapshot.TotalItems,
		TotalPrice: newMoney(snapshot.TotalPrice, h.currency),
		IsOpen:     snapshot.IsOpen,
	}
}

func buildLinePayloads(items []domain.CartLineItem, currency string) []cartLinePayload {
	lines := make([]cartLinePayload, 0, len(items))
	for _, item := range items {
		total := services.LineTotal(item)
		lines = append(lines, cartLinePayload{
			CartLineItem:       item,
			LineTotal:          total.StringFixed(2),
			FormattedPrice:     format.Currency(decimal.NewFromFloat(item.Price), currency),
			FormattedLineTotal: format.Currency(total, currency),
		})
	}
	return lines
}

// lineKey builds the exact line identity when the request names a size or colour.
func lineKey(productID, size, color string) (domain.LineKey, bool) {
	size = strings.TrimSpace(size)
	color = strings.TrimSpace(color)
	if size == "" && color == "" {
		return domain.LineKey{}, false
	}
	return domain.LineKey{ID: productID, Size: size, Color: color}, true
}

func writeCartUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
}

func writeQuantityTooLarge(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity",
		fmt.Sprintf("quantity must not exceed %d", services.MaxLineQuantity), http.StatusBadRequest))
}
