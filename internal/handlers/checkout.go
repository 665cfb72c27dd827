package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecoshop/storefront/internal/platform/httpx"
	"github.com/ecoshop/storefront/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes the mock checkout flow for the session cart.
type CheckoutHandlers struct {
	checkout    services.CheckoutFlow
	sessions    sessionIssuer
	orderGuards []func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithOrderMiddleware wraps only the order placement route, e.g. with a replay guard.
func WithOrderMiddleware(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.orderGuards = append(h.orderGuards, mw...)
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutFlow, sessions services.CartSessions, cookie SessionCookie, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkout: checkout,
		sessions: sessionIssuer{cookie: cookie, sessions: sessions},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/checkout/summary", h.getSummary)
	r.Get("/checkout/steps", h.listSteps)
	r.Post("/checkout/steps/{step}:validate", h.validateStep)
	r.With(h.orderGuards...).Post("/checkout/orders", h.placeOrder)
}

type checkoutSummaryPayload struct {
	Items          []cartLinePayload `json:"items"`
	ItemCount      int               `json:"itemCount"`
	ShippingMethod string            `json:"shippingMethod"`
	Currency       string            `json:"currency"`
	Subtotal       money             `json:"subtotal"`
	Shipping       money             `json:"shipping"`
	Tax            money             `json:"tax"`
	Total          money             `json:"total"`
}

type orderConfirmationPayload struct {
	OrderNumber string                 `json:"orderNumber"`
	PlacedAt    time.Time              `json:"placedAt"`
	Email       string                 `json:"email"`
	ShipTo      string                 `json:"shipTo"`
	CardLast4   string                 `json:"cardLast4"`
	Summary     checkoutSummaryPayload `json:"summary"`
}

func (h *CheckoutHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil || h.sessions.sessions == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	method, err := services.ParseShippingMethod(r.URL.Query().Get("shipping"))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	cart, ok := h.sessions.current(r)
	if !ok {
		cart = services.NewCartStore()
	}
	summary := h.checkout.Summary(cart, method)
	writeJSONResponse(w, http.StatusOK, map[string]any{"summary": buildSummaryPayload(summary)})
}

func (h *CheckoutHandlers) listSteps(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"steps": services.CheckoutSteps()})
}

func (h *CheckoutHandlers) validateStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	step, err := services.ParseCheckoutStep(chi.URLParam(r, "step"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_step", err.Error(), http.StatusNotFound))
		return
	}

	var form services.CheckoutForm
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &form) {
		return
	}
	if err := h.checkout.ValidateStep(step, form); err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"step":  step,
		"valid": true,
	})
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil || h.sessions.sessions == nil {
		writeCheckoutUnavailable(ctx, w)
		return
	}

	var form services.CheckoutForm
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &form) {
		return
	}

	cart, ok := h.sessions.current(r)
	if !ok {
		writeCheckoutError(ctx, w, services.ErrCheckoutEmptyCart)
		return
	}
	confirmation, err := h.checkout.PlaceOrder(ctx, cart, form)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": orderConfirmationPayload{
		OrderNumber: confirmation.OrderNumber,
		PlacedAt:    confirmation.PlacedAt,
		Email:       confirmation.Email,
		ShipTo:      confirmation.ShipTo,
		CardLast4:   confirmation.CardLast4,
		Summary:     buildSummaryPayload(confirmation.Summary),
	}})
}

func buildSummaryPayload(summary services.CheckoutSummary) checkoutSummaryPayload {
	currency := summary.Currency
	return checkoutSummaryPayload{
		Items:          buildLinePayloads(summary.Items, currency),
		ItemCount:      summary.ItemCount,
		ShippingMethod: string(summary.ShippingMethod),
		Currency:       currency,
		Subtotal:       newMoney(summary.Subtotal, currency),
		Shipping:       newMoney(summary.Shipping, currency),
		Tax:            newMoney(summary.Tax, currency),
		Total:          newMoney(summary.Total, currency),
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.FormValidationError
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "checkout form has invalid fields", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{
				"step":   validation.Step,
				"fields": validation.Fields,
			}))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", strings.TrimPrefix(err.Error(), services.ErrCheckoutInvalidInput.Error()+": "), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", err.Error(), http.StatusInternalServerError))
	}
}

func writeCheckoutUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
}
