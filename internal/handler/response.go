package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/domain/product"
	"github.com/xenking/kart-cart/pkg/httpmiddleware"
)

// statusOf maps domain errors to an HTTP status and a client-facing message.
// Unknown errors map to 500.
func statusOf(err error) (int, string) {
	var (
		notFound *cart.ProductNotFoundError
		stock    *cart.InsufficientStockError
		quantity *cart.InvalidQuantityError
		minimum  *coupon.MinimumNotMetError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.Is(err, coupon.ErrNotFound):
		return http.StatusNotFound, coupon.ErrNotFound.Error()
	case errors.As(err, &stock):
		return http.StatusBadRequest, stock.Error()
	case errors.As(err, &quantity):
		return http.StatusBadRequest, quantity.Error()
	case errors.As(err, &minimum):
		return http.StatusBadRequest, minimum.Error()
	}
	for _, sentinel := range []error{
		coupon.ErrInactive,
		coupon.ErrNotStarted,
		coupon.ErrExpired,
		coupon.ErrEmptyCart,
	} {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, sentinel.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Cart request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, message)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	httpmiddleware.WriteError(w, status, message)
}

func (h *Handler) writeView(w http.ResponseWriter, message string, v *cart.View) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("statusCode")
	e.Int(http.StatusOK)
	e.FieldStart("data")
	h.encodeView(e, v)
	e.FieldStart("message")
	e.Str(message)
	e.FieldStart("success")
	e.Bool(true)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

func (h *Handler) encodeView(e *jx.Encoder, v *cart.View) {
	e.ObjStart()
	e.FieldStart("_id")
	if v.ID == "" {
		e.Null()
	} else {
		e.Str(v.ID)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range v.Items {
		e.ObjStart()
		e.FieldStart("product")
		h.encodeProduct(e, item.Product)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("coupon")
	if v.Coupon == nil {
		e.Null()
	} else {
		encodeCoupon(e, v.Coupon)
	}
	e.FieldStart("cartTotal")
	encodeMoney(e, v.CartTotal)
	e.FieldStart("discountedTotal")
	encodeMoney(e, v.DiscountedTotal)
	e.ObjEnd()
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("owner")
	e.Str(p.Owner)
	e.FieldStart("mainImage")
	e.Str(h.imageURL(p.MainImageURL))
	e.FieldStart("subImages")
	e.ArrStart()
	for _, img := range p.SubImages {
		e.Str(h.imageURL(img))
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("type")
	e.Str(string(c.Type))
	e.FieldStart("discountValue")
	encodeMoney(e, c.DiscountValue)
	e.FieldStart("isActive")
	e.Bool(c.Active)
	e.FieldStart("minimumCartValue")
	encodeMoney(e, c.MinimumCartValue)
	e.FieldStart("startDate")
	e.Str(c.StartDate.UTC().Format(time.RFC3339))
	e.FieldStart("expiryDate")
	e.Str(c.ExpiryDate.UTC().Format(time.RFC3339))
	e.FieldStart("owner")
	e.Str(c.Owner)
	e.ObjEnd()
}

// encodeMoney writes d as an exact JSON number.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

// imageURL prefixes relative paths with the configured base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
