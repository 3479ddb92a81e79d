package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks that a coupon code can be applied to a cart with the given
// total and returns the resolved coupon.
type Validator interface {
	Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (*Coupon, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the coupon by code and checks that it is active, that the
// current time is inside its validity window and that cartTotal meets its
// minimum.
func (v *RepoValidator) Validate(ctx context.Context, code string, cartTotal decimal.Decimal) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Active {
		return nil, ErrInactive
	}

	now := v.now()
	if now.Before(c.StartDate) {
		return nil, ErrNotStarted
	}
	if now.After(c.ExpiryDate) {
		return nil, ErrExpired
	}

	if cartTotal.LessThan(c.MinimumCartValue) {
		return nil, &MinimumNotMetError{Code: c.Code, Minimum: c.MinimumCartValue}
	}

	return c, nil
}
