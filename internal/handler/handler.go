// Package handler exposes the cart service over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/kart-cart/internal/domain/auth"
	"github.com/xenking/kart-cart/internal/domain/cart"
)

// CartService is the cart behaviour the handlers depend on.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.View, error)
	AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int) (*cart.View, error)
	RemoveItem(ctx context.Context, userID, productID string) (*cart.View, error)
	Clear(ctx context.Context, userID string) (*cart.View, error)
	ApplyCoupon(ctx context.Context, userID, code string) (*cart.View, error)
	RemoveCoupon(ctx context.Context, userID string) (*cart.View, error)
}

var _ CartService = (*cart.Service)(nil)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative product image paths.
	ImageBaseURL string
}

// Handler serves the /api/cart routes.
type Handler struct {
	carts        CartService
	validate     *validator.Validate
	imageBaseURL string
}

// New constructs a Handler.
func New(cfg Config, carts CartService) *Handler {
	return &Handler{
		carts:        carts,
		validate:     newValidator(),
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}
}

// Routes mounts the cart API on a new chi router. The middlewares run after
// routing and before every cart handler; authentication belongs there.
func (h *Handler) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(middlewares...)
		r.Get("/", h.getCart)
		r.Delete("/clear", h.clearCart)
		r.Post("/item", h.addItem)
		r.Post("/item/{productId}", h.addItem)
		r.Delete("/item/{productId}", h.removeItem)
		r.Post("/coupon", h.applyCoupon)
		r.Delete("/coupon", h.removeCoupon)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// userID returns the authenticated user and names the server span after the
// matched route.
func userID(r *http.Request) (string, bool) {
	span := trace.SpanFromContext(r.Context())
	if rc := chi.RouteContext(r.Context()); rc != nil {
		span.SetName(r.Method + " " + rc.RoutePattern())
	}

	info := auth.UserFrom(r.Context())
	if info == nil || info.UserID == "" {
		return "", false
	}
	span.SetAttributes(attribute.String("cart.user_id", info.UserID))
	return info.UserID, true
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "Cart fetched successfully", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.Get(ctx, user)
	})
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "Cart has been cleared", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.Clear(ctx, user)
	})
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeItem(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.serve(w, r, "Item added successfully", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.AddOrUpdateItem(ctx, user, req.ProductID, req.Quantity)
	})
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.serve(w, r, "Item removed successfully", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.RemoveItem(ctx, user, productID)
	})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeCoupon(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	h.serve(w, r, "Coupon applied successfully", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.ApplyCoupon(ctx, user, req.CouponCode)
	})
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "Coupon removed successfully", func(ctx context.Context, user string) (*cart.View, error) {
		return h.carts.RemoveCoupon(ctx, user)
	})
}

func (h *Handler) serve(
	w http.ResponseWriter,
	r *http.Request,
	message string,
	call func(ctx context.Context, user string) (*cart.View, error),
) {
	user, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	v, err := call(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeView(w, message, v)
}
