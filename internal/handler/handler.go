// Package handler serves the storefront JSON API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/promo"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// CartService is the subset of *cart.Service used by the API.
type CartService interface {
	Create(ctx context.Context, req cart.CreateRequest) (*cart.Cart, error)
	Get(ctx context.Context, id string) (*cart.Cart, error)
	AddItem(ctx context.Context, cartID, productID string, variantIndex, quantity int) (*cart.Cart, error)
	UpdateItem(ctx context.Context, cartID string, index, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, cartID string, index int) (*cart.Cart, error)
	SetShipping(ctx context.Context, cartID, method string, price decimal.Decimal) (*cart.Cart, error)
	SetContact(ctx context.Context, cartID, email, customerID string) (*cart.Cart, error)
}

// PromoService is the subset of *promo.Service used by the API.
type PromoService interface {
	Validate(ctx context.Context, code, cartID, email string) (*promo.Validation, error)
	Apply(ctx context.Context, code, cartID, email string) (*promo.Result, error)
	Remove(ctx context.Context, cartID string) (*promo.Result, error)
}

// Checkout finalizes carts into orders.
type Checkout interface {
	Finalize(ctx context.Context, req order.Request) (*order.Order, error)
}

var (
	_ CartService  = (*cart.Service)(nil)
	_ PromoService = (*promo.Service)(nil)
	_ Checkout     = (*order.Finalizer)(nil)
)

// Config holds the cross-cutting pieces of the router.
type Config struct {
	// Auth authenticates every /api request. Nil disables authentication.
	Auth Authenticator
	// PromoLimit guards the promo endpoints against code guessing.
	PromoLimit httpmiddleware.Middleware
}

// Handler serves cart, promo and checkout endpoints.
type Handler struct {
	carts    CartService
	promos   PromoService
	checkout Checkout
}

// NewHandler creates a Handler.
func NewHandler(carts CartService, promos PromoService, checkout Checkout) *Handler {
	return &Handler{carts: carts, promos: promos, checkout: checkout}
}

// Router mounts the API under /api.
func (h *Handler) Router(cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(RequireAPIKey(cfg.Auth))
		}
		r.Post("/carts", h.CreateCart)
		r.Route("/carts/{cartID}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Patch("/items/{index}", h.UpdateItem)
			r.Delete("/items/{index}", h.RemoveItem)
			r.Put("/shipping", h.SetShipping)
			r.Put("/contact", h.SetContact)
			r.Group(func(r chi.Router) {
				if cfg.PromoLimit != nil {
					r.Use(cfg.PromoLimit)
				}
				r.Post("/promo/validate", h.ValidatePromo)
				r.Post("/promo", h.ApplyPromo)
			})
			r.Delete("/promo", h.RemovePromo)
			r.With(RequireScope(ScopeCheckout)).Post("/checkout", h.Checkout)
		})
	})
	return r
}

// RoutePattern returns the chi route pattern matched for r.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
