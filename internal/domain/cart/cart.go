package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Repository.Get when the user has no cart yet.
var ErrNotFound = errors.New("cart not found")

// Cart is the per-user record holding ordered line items and an optional
// coupon reference. There is at most one item per product.
type Cart struct {
	ID    string
	Owner string
	Items []Item
	// CouponID is empty when no coupon is applied.
	CouponID string
}

// Item is a single cart line. Quantity is always positive.
type Item struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ProductIDs returns the product ids of all items in order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

func (c *Cart) indexOf(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = append([]Item(nil), c.Items...)
	return &out
}

// Repository is the durable per-user cart store.
type Repository interface {
	// Get returns ErrNotFound when owner has no cart.
	Get(ctx context.Context, owner string) (*Cart, error)
	// Update loads the owner's cart under an exclusive lock, creating it when
	// missing, and passes it to fn. The cart is written back only when fn
	// returns nil; an error from fn is returned unchanged and nothing is
	// written. Updates of the same cart never interleave.
	Update(ctx context.Context, owner string, fn func(c *Cart) error) error
}

// ProductNotFoundError indicates a referenced product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s does not exist", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Remaining int
}

func (e *InsufficientStockError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("Only %d products are remaining. But you are adding %d", e.Remaining, e.Requested)
	}
	return "Product is out of stock"
}

// InvalidQuantityError indicates a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// EventType names a committed cart mutation.
type EventType string

const (
	EventItemAdded     EventType = "cart.item_added"
	EventItemUpdated   EventType = "cart.item_updated"
	EventItemRemoved   EventType = "cart.item_removed"
	EventCleared       EventType = "cart.cleared"
	EventCouponApplied EventType = "cart.coupon_applied"
	EventCouponRemoved EventType = "cart.coupon_removed"
)

// Event describes a committed cart mutation.
type Event struct {
	Type      EventType
	CartID    string
	UserID    string
	ProductID string
	Quantity  int
	CouponID  string
	// CouponRemoved is set when the mutation dropped the applied coupon.
	CouponRemoved bool
	OccurredAt    time.Time
}

// Publisher delivers cart events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
