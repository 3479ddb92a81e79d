package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount modes.
type Type string

const (
	// TypeFlat subtracts a fixed amount from the cart total, floored at zero.
	TypeFlat Type = "FLAT"
	// TypePercentage subtracts a percentage of the cart total.
	TypePercentage Type = "PERCENTAGE"
)

// Valid reports whether t is a known discount mode.
func (t Type) Valid() bool {
	return t == TypeFlat || t == TypePercentage
}

var (
	// ErrNotFound is returned when no coupon matches the requested id or code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when applying a coupon that has been disabled.
	ErrInactive = errors.New("coupon is not active")
	// ErrNotStarted is returned when applying a coupon before its start date.
	ErrNotStarted = errors.New("coupon is not yet valid")
	// ErrExpired is returned when applying a coupon after its expiry date.
	ErrExpired = errors.New("coupon expired")
	// ErrEmptyCart is returned when applying a coupon to a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
)

// Coupon is a discount rule with a validity window and a minimum-spend
// precondition. Carts reference coupons by ID and never copy their fields.
type Coupon struct {
	ID               string
	Code             string
	Type             Type
	DiscountValue    decimal.Decimal
	Active           bool
	MinimumCartValue decimal.Decimal
	StartDate        time.Time
	ExpiryDate       time.Time
	Owner            string
}

// MinimumNotMetError indicates the cart total is below the coupon minimum.
type MinimumNotMetError struct {
	Code    string
	Minimum decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return "cart total must be at least " + e.Minimum.StringFixed(2) + " to apply coupon " + e.Code
}

// Repository provides coupon lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}
