package cart

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/domain/product"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestProduct(id string, price string, stock int) product.Product {
	return product.Product{
		ID:           id,
		Name:         "Product " + id,
		Description:  "test product",
		Price:        d(price),
		Stock:        stock,
		Category:     "test",
		Owner:        "seller",
		MainImageURL: "https://cdn.example.com/" + id + ".jpg",
	}
}

func TestProject_EmptyCart(t *testing.T) {
	now := time.Now()
	cp := &coupon.Coupon{ID: "c1", Type: coupon.TypeFlat, DiscountValue: d("10"), Active: true}

	for name, c := range map[string]*Cart{
		"nil cart":       nil,
		"no items":       {ID: "cart-1", Owner: "u1"},
		"coupon no item": {ID: "cart-1", Owner: "u1", CouponID: "c1"},
	} {
		t.Run(name, func(t *testing.T) {
			v := Project(c, cp, nil, now)

			assert.Empty(t, v.ID)
			assert.NotNil(t, v.Items)
			assert.Empty(t, v.Items)
			assert.Nil(t, v.Coupon)
			assert.True(t, v.CartTotal.IsZero())
			assert.True(t, v.DiscountedTotal.IsZero())
		})
	}
}

func TestProject_SumsSurvivingItems(t *testing.T) {
	c := &Cart{
		ID:    "cart-1",
		Owner: "u1",
		Items: []Item{
			{ID: "i1", ProductID: "p1", Quantity: 2},
			{ID: "i2", ProductID: "deleted", Quantity: 5},
			{ID: "i3", ProductID: "p2", Quantity: 3},
		},
	}
	products := product.Index([]product.Product{
		newTestProduct("p1", "10.10", 10),
		newTestProduct("p2", "0.20", 10),
	})

	v := Project(c, nil, products, time.Now())

	assert.Equal(t, "cart-1", v.ID)
	require.Len(t, v.Items, 2)
	assert.Equal(t, "p1", v.Items[0].Product.ID)
	assert.Equal(t, 2, v.Items[0].Quantity)
	assert.Equal(t, "p2", v.Items[1].Product.ID)
	// 2*10.10 + 3*0.20 = 20.80 without float drift.
	assert.True(t, d("20.80").Equal(v.CartTotal), "got %s", v.CartTotal)
	assert.True(t, v.CartTotal.Equal(v.DiscountedTotal))
}

func TestProject_AllProductsMissing(t *testing.T) {
	c := &Cart{ID: "cart-1", Items: []Item{{ID: "i1", ProductID: "gone", Quantity: 1}}}

	v := Project(c, nil, map[string]product.Product{}, time.Now())

	assert.Equal(t, "cart-1", v.ID)
	assert.Empty(t, v.Items)
	assert.True(t, v.CartTotal.IsZero())
}

func TestProject_WithCoupon(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := &Cart{
		ID:       "cart-1",
		Items:    []Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
		CouponID: "c1",
	}
	products := product.Index([]product.Product{newTestProduct("p1", "100", 10)})

	t.Run("applicable coupon discounts", func(t *testing.T) {
		cp := &coupon.Coupon{
			ID: "c1", Code: "FLAT50", Type: coupon.TypeFlat, DiscountValue: d("50"), Active: true,
			MinimumCartValue: d("150"),
			StartDate:        now.Add(-time.Hour), ExpiryDate: now.Add(time.Hour),
		}

		v := Project(c, cp, products, now)

		assert.Same(t, cp, v.Coupon)
		assert.True(t, d("200").Equal(v.CartTotal))
		assert.True(t, d("150").Equal(v.DiscountedTotal))
	})

	t.Run("expired coupon is reported but does not discount", func(t *testing.T) {
		cp := &coupon.Coupon{
			ID: "c1", Code: "OLD", Type: coupon.TypePercentage, DiscountValue: d("50"), Active: true,
			StartDate: now.Add(-48 * time.Hour), ExpiryDate: now.Add(-24 * time.Hour),
		}

		v := Project(c, cp, products, now)

		require.NotNil(t, v.Coupon)
		assert.Equal(t, "OLD", v.Coupon.Code)
		assert.True(t, d("200").Equal(v.DiscountedTotal))
	})
}
