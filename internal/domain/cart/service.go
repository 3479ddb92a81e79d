package cart

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// Service is the only component that changes a cart's items or coupon
// reference. Every mutation commits through Repository.Update and answers
// with a fresh projection.
type Service struct {
	carts     Repository
	products  product.Repository
	coupons   coupon.Repository
	validator coupon.Validator
	publisher Publisher
	metrics   *Metrics
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the destination for cart events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics enables mutation counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(
	carts Repository,
	products product.Repository,
	coupons coupon.Repository,
	validator coupon.Validator,
	opts ...Option,
) *Service {
	s := &Service{
		carts:     carts,
		products:  products,
		coupons:   coupons,
		validator: validator,
		publisher: nopPublisher{},
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the priced view of the user's cart without mutating it.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			v := EmptyView()
			return &v, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}
	return s.project(ctx, c)
}

// AddOrUpdateItem sets the quantity of productID in the user's cart. A new
// line is appended and keeps any applied coupon; replacing the quantity of an
// existing line always drops the coupon so it has to be applied again.
func (s *Service) AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}

	p, err := s.lookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Remaining: p.Stock,
		}
	}

	ev := Event{UserID: userID, ProductID: productID, Quantity: quantity}
	if err := s.carts.Update(ctx, userID, func(c *Cart) error {
		ev.CartID = c.ID
		if i := c.indexOf(productID); i >= 0 {
			ev.Type = EventItemUpdated
			c.Items[i].Quantity = quantity
			if c.CouponID != "" {
				ev.CouponID, ev.CouponRemoved = c.CouponID, true
				c.CouponID = ""
			}
			return nil
		}

		ev.Type = EventItemAdded
		c.Items = append(c.Items, Item{
			ID:        uuid.NewString(),
			ProductID: productID,
			Quantity:  quantity,
		})
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "add item")
	}

	s.record(ctx, ev)
	return s.Get(ctx, userID)
}

// RemoveItem drops productID from the user's cart. Removing a product that is
// not in the cart is a no-op. When the remaining total falls below the applied
// coupon's minimum, the coupon is dropped in the same commit.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*View, error) {
	if _, err := s.lookupProduct(ctx, productID); err != nil {
		return nil, err
	}

	ev := Event{Type: EventItemRemoved, UserID: userID, ProductID: productID}
	if err := s.carts.Update(ctx, userID, func(c *Cart) error {
		ev.CartID = c.ID
		c.Items = slices.DeleteFunc(c.Items, func(item Item) bool {
			return item.ProductID == productID
		})
		if c.CouponID == "" {
			return nil
		}

		cp, err := s.resolveCoupon(ctx, c.CouponID)
		if err != nil || cp == nil {
			return err
		}
		total, _, err := s.total(ctx, c)
		if err != nil {
			return err
		}
		if total.LessThan(cp.MinimumCartValue) {
			ev.CouponID, ev.CouponRemoved = c.CouponID, true
			c.CouponID = ""
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "remove item")
	}

	s.record(ctx, ev)
	return s.Get(ctx, userID)
}

// Clear empties the user's cart and drops any coupon. It is idempotent.
func (s *Service) Clear(ctx context.Context, userID string) (*View, error) {
	ev := Event{Type: EventCleared, UserID: userID}
	if err := s.carts.Update(ctx, userID, func(c *Cart) error {
		ev.CartID = c.ID
		if c.CouponID != "" {
			ev.CouponID, ev.CouponRemoved = c.CouponID, true
		}
		c.Items = nil
		c.CouponID = ""
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}

	s.record(ctx, ev)
	return s.Get(ctx, userID)
}

// ApplyCoupon validates the coupon identified by code against the current
// cart total and stores a reference to it on the cart.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (*View, error) {
	ev := Event{Type: EventCouponApplied, UserID: userID}
	if err := s.carts.Update(ctx, userID, func(c *Cart) error {
		ev.CartID = c.ID
		total, n, err := s.total(ctx, c)
		if err != nil {
			return err
		}
		if n == 0 {
			return coupon.ErrEmptyCart
		}

		cp, err := s.validator.Validate(ctx, code, total)
		if err != nil {
			return err
		}
		ev.CouponID = cp.ID
		c.CouponID = cp.ID
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "apply coupon")
	}

	s.record(ctx, ev)
	return s.Get(ctx, userID)
}

// RemoveCoupon drops the coupon reference from the user's cart.
func (s *Service) RemoveCoupon(ctx context.Context, userID string) (*View, error) {
	ev := Event{Type: EventCouponRemoved, UserID: userID}
	if err := s.carts.Update(ctx, userID, func(c *Cart) error {
		ev.CartID = c.ID
		ev.CouponID = c.CouponID
		c.CouponID = ""
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "remove coupon")
	}

	s.record(ctx, ev)
	return s.Get(ctx, userID)
}

func (s *Service) lookupProduct(ctx context.Context, productID string) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	return p, nil
}

// resolveCoupon returns nil when id is empty or no longer resolves.
func (s *Service) resolveCoupon(ctx context.Context, id string) (*coupon.Coupon, error) {
	if id == "" {
		return nil, nil
	}
	cp, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get coupon %s", id)
	}
	return cp, nil
}

func (s *Service) loadProducts(ctx context.Context, c *Cart) (map[string]product.Product, error) {
	if len(c.Items) == 0 {
		return nil, nil
	}
	fetched, err := s.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	return product.Index(fetched), nil
}

// total returns the undiscounted total of c and the number of items whose
// product still exists.
func (s *Service) total(ctx context.Context, c *Cart) (decimal.Decimal, int, error) {
	products, err := s.loadProducts(ctx, c)
	if err != nil {
		return decimal.Zero, 0, err
	}
	v := Project(c, nil, products, s.now())
	return v.CartTotal, len(v.Items), nil
}

func (s *Service) project(ctx context.Context, c *Cart) (*View, error) {
	if len(c.Items) == 0 {
		v := EmptyView()
		return &v, nil
	}

	products, err := s.loadProducts(ctx, c)
	if err != nil {
		return nil, err
	}
	cp, err := s.resolveCoupon(ctx, c.CouponID)
	if err != nil {
		return nil, err
	}

	v := Project(c, cp, products, s.now())
	return &v, nil
}

// record counts and publishes a committed mutation. The mutation is already
// durable, so publish failures are only logged.
func (s *Service) record(ctx context.Context, ev Event) {
	ev.OccurredAt = s.now()
	s.metrics.record(ctx, ev)

	if err := s.publisher.Publish(ctx, ev); err != nil {
		zctx.From(ctx).Warn("Publish cart event",
			zap.String("type", string(ev.Type)),
			zap.String("cart_id", ev.CartID),
			zap.Error(err),
		)
	}
}
