package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the outcome of evaluating a coupon against a cart total.
type Evaluation struct {
	Applicable      bool
	DiscountedTotal decimal.Decimal
}

// Evaluate decides whether c discounts cartTotal at time now and computes the
// discounted total. A nil, inactive, out-of-window or below-minimum coupon
// leaves the total unchanged.
//
// Percentage discounts are not clamped: a value above 100 yields a negative
// total.
func Evaluate(c *Coupon, cartTotal decimal.Decimal, now time.Time) Evaluation {
	unchanged := Evaluation{DiscountedTotal: cartTotal}
	if c == nil || !c.Active {
		return unchanged
	}
	if !InWindow(c, now) || cartTotal.LessThan(c.MinimumCartValue) {
		return unchanged
	}

	var total decimal.Decimal
	switch c.Type {
	case TypeFlat:
		total = decimal.Max(decimal.Zero, cartTotal.Sub(c.DiscountValue))
	case TypePercentage:
		total = cartTotal.Sub(cartTotal.Mul(c.DiscountValue).Div(hundred))
	default:
		return unchanged
	}

	return Evaluation{
		Applicable:      true,
		DiscountedTotal: total.Round(2),
	}
}

// InWindow reports whether now falls within [StartDate, ExpiryDate].
func InWindow(c *Coupon, now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.ExpiryDate)
}
