package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// View is the priced, read-only projection of a cart. It is rebuilt from
// current product data on every read.
type View struct {
	// ID is empty when the cart has no items.
	ID              string
	Items           []ViewItem
	Coupon          *coupon.Coupon
	CartTotal       decimal.Decimal
	DiscountedTotal decimal.Decimal
}

// ViewItem pairs a product snapshot with the quantity in the cart.
type ViewItem struct {
	Product  product.Product
	Quantity int
}

// EmptyView returns the canonical view of a cart without items.
func EmptyView() View {
	return View{
		Items:           []ViewItem{},
		CartTotal:       decimal.Zero,
		DiscountedTotal: decimal.Zero,
	}
}

// Project prices c against the product snapshot and the resolved coupon cp.
// Items whose product is absent from products are dropped. A nil or empty
// cart yields EmptyView.
func Project(c *Cart, cp *coupon.Coupon, products map[string]product.Product, now time.Time) View {
	if c == nil || len(c.Items) == 0 {
		return EmptyView()
	}

	items := make([]ViewItem, 0, len(c.Items))
	total := decimal.Zero
	for _, item := range c.Items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		items = append(items, ViewItem{Product: p, Quantity: item.Quantity})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return View{
		ID:              c.ID,
		Items:           items,
		Coupon:          cp,
		CartTotal:       total,
		DiscountedTotal: coupon.Evaluate(cp, total, now).DiscountedTotal,
	}
}
