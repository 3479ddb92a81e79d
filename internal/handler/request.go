package handler

import (
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
)

const maxBodySize = 64 << 10

type itemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type couponRequest struct {
	CouponCode string `json:"couponCode" validate:"required,max=64"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// decodeItem reads the item request. The product id in the path wins over
// the body; quantity defaults to 1.
func (h *Handler) decodeItem(r *http.Request) (itemRequest, error) {
	req := itemRequest{Quantity: 1}
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			s, err := d.Str()
			req.ProductID = s
			return err
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			req.Quantity = n
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, err
	}
	if id := chi.URLParam(r, "productId"); id != "" {
		req.ProductID = id
	}
	return req, h.check(req)
}

func (h *Handler) decodeCoupon(r *http.Request) (couponRequest, error) {
	var req couponRequest
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "couponCode", "code":
			s, err := d.Str()
			req.CouponCode = strings.TrimSpace(s)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, err
	}
	return req, h.check(req)
}

// decodeBody walks a JSON object body with fn. An empty body is an empty
// object.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	return nil
}

func (h *Handler) check(req any) error {
	err := h.validate.Struct(req)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errors.Errorf("%s is required", fe.Field())
	case "gte":
		return errors.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return errors.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return errors.Errorf("%s is invalid", fe.Field())
	}
}
