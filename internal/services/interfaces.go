package services

import (
	"context"
	"time"

	"github.com/ecoshop/storefront/internal/domain"
)

// ProductCatalog exposes the shared product catalog to the HTTP layer.
type ProductCatalog interface {
	Load(ctx context.Context) error
	Refresh(ctx context.Context) error
	State() domain.ProductCatalogState
	Snapshot() ([]domain.Product, uint64)
	Version() uint64
	Product(id string) (domain.Product, error)
	Loaded() bool
	LoadedAt() time.Time
	BaselineCount() int
	SourceNames() []string
}

// CartSessions resolves the cart owned by a storefront session.
type CartSessions interface {
	NewSessionID() string
	Cart(sessionID string) *CartStore
	Peek(sessionID string) (*CartStore, bool)
	Drop(sessionID string)
}

// CheckoutFlow prices carts and places mock orders.
type CheckoutFlow interface {
	Summary(cart *CartStore, method ShippingMethod) CheckoutSummary
	ValidateStep(step CheckoutStep, form CheckoutForm) error
	PlaceOrder(ctx context.Context, cart *CartStore, form CheckoutForm) (OrderConfirmation, error)
}

var (
	_ ProductCatalog = (*CatalogStore)(nil)
	_ CartSessions   = (*CartRegistry)(nil)
	_ CheckoutFlow   = (*CheckoutService)(nil)
)
