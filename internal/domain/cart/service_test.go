package cart

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// --- Mock implementations ---

type memCartRepo struct {
	mu        sync.Mutex
	carts     map[string]*Cart
	getErr    error
	updateErr error
	writes    int
}

func newMemCartRepo(carts ...*Cart) *memCartRepo {
	m := &memCartRepo{carts: make(map[string]*Cart)}
	for _, c := range carts {
		m.carts[c.Owner] = c
	}
	return m
}

func (m *memCartRepo) Get(_ context.Context, owner string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[owner]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memCartRepo) Update(_ context.Context, owner string, fn func(c *Cart) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	c, ok := m.carts[owner]
	if !ok {
		c = &Cart{ID: "cart-" + owner, Owner: owner}
	}
	next := c.Clone()
	if err := fn(next); err != nil {
		return err
	}
	m.carts[owner] = next
	m.writes++
	return nil
}

func (m *memCartRepo) snapshot(owner string) *Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[owner]; ok {
		return c.Clone()
	}
	return nil
}

type mockProductRepo struct {
	byID   map[string]*product.Product
	getErr error
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockCouponRepo struct {
	coupons []*coupon.Coupon
}

func (m *mockCouponRepo) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	for _, c := range m.coupons {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range m.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// --- Helpers ---

func flatCoupon(id, code, value, minimum string) *coupon.Coupon {
	now := time.Now()
	return &coupon.Coupon{
		ID:               id,
		Code:             code,
		Type:             coupon.TypeFlat,
		DiscountValue:    d(value),
		Active:           true,
		MinimumCartValue: d(minimum),
		StartDate:        now.Add(-24 * time.Hour),
		ExpiryDate:       now.Add(24 * time.Hour),
	}
}

type fixture struct {
	carts     *memCartRepo
	products  *mockProductRepo
	coupons   *mockCouponRepo
	publisher *recordingPublisher
	svc       *Service
}

func newFixture(carts *memCartRepo, products *mockProductRepo, coupons ...*coupon.Coupon) *fixture {
	f := &fixture{
		carts:     carts,
		products:  products,
		coupons:   &mockCouponRepo{coupons: coupons},
		publisher: &recordingPublisher{},
	}
	f.svc = NewService(f.carts, f.products, f.coupons,
		coupon.NewRepoValidator(f.coupons),
		WithPublisher(f.publisher),
	)
	return f
}

// --- Tests ---

func TestGet_NoCart(t *testing.T) {
	f := newFixture(newMemCartRepo(), newProductRepo())

	v, err := f.svc.Get(context.Background(), "u1")

	require.NoError(t, err)
	assert.Empty(t, v.ID)
	assert.Empty(t, v.Items)
	assert.Nil(t, v.Coupon)
	assert.True(t, v.CartTotal.IsZero())
	assert.True(t, v.DiscountedTotal.IsZero())
}

func TestGet_StorageError(t *testing.T) {
	storageErr := errors.New("connection reset")
	carts := newMemCartRepo()
	carts.getErr = storageErr
	f := newFixture(carts, newProductRepo())

	_, err := f.svc.Get(context.Background(), "u1")

	require.ErrorIs(t, err, storageErr)
}

func TestGet_DropsDeletedProducts(t *testing.T) {
	carts := newMemCartRepo(&Cart{
		ID:    "cart-u1",
		Owner: "u1",
		Items: []Item{
			{ID: "i1", ProductID: "p1", Quantity: 1},
			{ID: "i2", ProductID: "deleted", Quantity: 4},
		},
	})
	f := newFixture(carts, newProductRepo(newTestProduct("p1", "12.50", 3)))

	v, err := f.svc.Get(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "cart-u1", v.ID)
	require.Len(t, v.Items, 1)
	assert.True(t, d("12.50").Equal(v.CartTotal))
}

func TestAddOrUpdateItem_NewItemOnEmptyCart(t *testing.T) {
	f := newFixture(newMemCartRepo(), newProductRepo(newTestProduct("P2", "20", 5)))

	v, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "P2", 3)

	require.NoError(t, err)
	assert.Equal(t, "cart-u1", v.ID)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 3, v.Items[0].Quantity)
	assert.True(t, d("60").Equal(v.CartTotal))
	assert.True(t, d("60").Equal(v.DiscountedTotal))
	assert.Nil(t, v.Coupon)

	stored := f.carts.snapshot("u1")
	require.Len(t, stored.Items, 1)
	assert.NotEmpty(t, stored.Items[0].ID)
}

func TestAddOrUpdateItem_ExceedsStock(t *testing.T) {
	carts := newMemCartRepo()
	f := newFixture(carts, newProductRepo(newTestProduct("p1", "10", 4)))

	_, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", 10)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 4, stockErr.Remaining)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Contains(t, err.Error(), "4")
	assert.Zero(t, carts.writes)
	assert.Nil(t, carts.snapshot("u1"))
	assert.Empty(t, f.publisher.events)
}

func TestAddOrUpdateItem_OutOfStock(t *testing.T) {
	f := newFixture(newMemCartRepo(), newProductRepo(newTestProduct("p1", "10", 0)))

	_, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", 1)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Product is out of stock", err.Error())
}

func TestAddOrUpdateItem_ProductNotFound(t *testing.T) {
	carts := newMemCartRepo()
	f := newFixture(carts, newProductRepo())

	_, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "missing", 1)

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
	assert.Zero(t, carts.writes)
}

func TestAddOrUpdateItem_InvalidQuantity(t *testing.T) {
	f := newFixture(newMemCartRepo(), newProductRepo(newTestProduct("p1", "10", 5)))

	for _, qty := range []int{0, -1} {
		_, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", qty)

		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr, "quantity %d", qty)
	}
}

func TestAddOrUpdateItem_ExistingLineReplacesQuantityAndDropsCoupon(t *testing.T) {
	cp := flatCoupon("c1", "FLAT5", "5", "0")
	carts := newMemCartRepo(&Cart{
		ID:       "cart-u1",
		Owner:    "u1",
		Items:    []Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
		CouponID: "c1",
	})
	f := newFixture(carts, newProductRepo(newTestProduct("p1", "10", 10)), cp)

	v, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", 5)

	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 5, v.Items[0].Quantity, "quantity is replaced, not incremented")
	assert.Nil(t, v.Coupon)
	assert.True(t, d("50").Equal(v.DiscountedTotal))

	stored := carts.snapshot("u1")
	assert.Empty(t, stored.CouponID)
	assert.Equal(t, "i1", stored.Items[0].ID, "line id is stable")

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, EventItemUpdated, ev.Type)
	assert.True(t, ev.CouponRemoved)
	assert.Equal(t, "c1", ev.CouponID)
}

func TestAddOrUpdateItem_NewLineKeepsCoupon(t *testing.T) {
	cp := flatCoupon("c1", "FLAT5", "5", "0")
	carts := newMemCartRepo(&Cart{
		ID:       "cart-u1",
		Owner:    "u1",
		Items:    []Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
		CouponID: "c1",
	})
	products := newProductRepo(
		newTestProduct("p1", "10", 10),
		newTestProduct("p2", "7.5", 10),
	)
	f := newFixture(carts, products, cp)

	v, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p2", 2)

	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	assert.Equal(t, "p1", v.Items[0].Product.ID)
	assert.Equal(t, "p2", v.Items[1].Product.ID)
	require.NotNil(t, v.Coupon)
	assert.Equal(t, "c1", v.Coupon.ID)
	assert.True(t, d("35").Equal(v.CartTotal))
	assert.True(t, d("30").Equal(v.DiscountedTotal))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventItemAdded, f.publisher.events[0].Type)
	assert.False(t, f.publisher.events[0].CouponRemoved)
}

func TestAddOrUpdateItem_StorageErrorPropagates(t *testing.T) {
	storageErr := errors.New("deadlock detected")
	carts := newMemCartRepo()
	carts.updateErr = storageErr
	f := newFixture(carts, newProductRepo(newTestProduct("p1", "10", 10)))

	_, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", 1)

	require.ErrorIs(t, err, storageErr)
	assert.Empty(t, f.publisher.events)
}

func TestAddOrUpdateItem_PublishErrorIsNotReturned(t *testing.T) {
	f := newFixture(newMemCartRepo(), newProductRepo(newTestProduct("p1", "10", 10)))
	f.publisher.err = errors.New("broker unavailable")

	v, err := f.svc.AddOrUpdateItem(context.Background(), "u1", "p1", 1)

	require.NoError(t, err)
	assert.Len(t, v.Items, 1)
}

func TestRemoveItem_BelowMinimumDropsCoupon(t *testing.T) {
	cp := flatCoupon("c1", "FLAT50", "50", "150")
	carts := newMemCartRepo(&Cart{
		ID:       "cart-u1",
		Owner:    "u1",
		Items:    []Item{{ID: "i1", ProductID: "P1", Quantity: 2}},
		CouponID: "c1",
	})
	f := newFixture(carts, newProductRepo(newTestProduct("P1", "100", 10)), cp)

	before, err := f.svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d("150").Equal(before.DiscountedTotal))

	v, err := f.svc.RemoveItem(context.Background(), "u1", "P1")

	require.NoError(t, err)
	assert.Nil(t, v.Coupon)
	assert.True(t, v.DiscountedTotal.IsZero())
	assert.Empty(t, carts.snapshot("u1").CouponID)
	assert.Equal(t, 1, carts.writes, "removal and coupon drop commit together")

	require.Len(t, f.publisher.events, 1)
	assert.True(t, f.publisher.events[0].CouponRemoved)
}

func TestRemoveItem_AboveMinimumKeepsCoupon(t *testing.T) {
	cp := flatCoupon("c1", "FLAT50", "50", "150")
	carts := newMemCartRepo(&Cart{
		ID:    "cart-u1",
		Owner: "u1",
		Items: []Item{
			{ID: "i1", ProductID: "p1", Quantity: 2},
			{ID: "i2", ProductID: "p2", Quantity: 1},
		},
		CouponID: "c1",
	})
	products := newProductRepo(
		newTestProduct("p1", "100", 10),
		newTestProduct("p2", "30", 10),
	)
	f := newFixture(carts, products, cp)

	v, err := f.svc.RemoveItem(context.Background(), "u1", "p2")

	require.NoError(t, err)
	require.NotNil(t, v.Coupon)
	assert.True(t, d("200").Equal(v.CartTotal))
	assert.True(t, d("150").Equal(v.DiscountedTotal))
}

func TestRemoveItem_NotInCartIsNoop(t *testing.T) {
	carts := newMemCartRepo(&Cart{
		ID:    "cart-u1",
		Owner: "u1",
		Items: []Item{{ID: "i1", ProductID: "p1", Quantity: 1}},
	})
	products := newProductRepo(
		newTestProduct("p1", "10", 10),
		newTestProduct("p2", "20", 10),
	)
	f := newFixture(carts, products)

	v, err := f.svc.RemoveItem(context.Background(), "u1", "p2")

	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "p1", v.Items[0].Product.ID)
}

func TestRemoveItem_ProductNotFound(t *testing.T) {
	carts := newMemCartRepo()
	f := newFixture(carts, newProductRepo())

	_, err := f.svc.RemoveItem(context.Background(), "u1", "ghost")

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Zero(t, carts.writes)
}

func TestClear_Idempotent(t *testing.T) {
	cp := flatCoupon("c1", "FLAT5", "5", "0")
	carts := newMemCartRepo(&Cart{
		ID:       "cart-u1",
		Owner:    "u1",
		Items:    []Item{{ID: "i1", ProductID: "p1", Quantity: 1}},
		CouponID: "c1",
	})
	f := newFixture(carts, newProductRepo(newTestProduct("p1", "10", 10)), cp)

	for range 2 {
		v, err := f.svc.Clear(context.Background(), "u1")

		require.NoError(t, err)
		assert.Empty(t, v.ID)
		assert.Empty(t, v.Items)
		assert.Nil(t, v.Coupon)
		assert.True(t, v.CartTotal.IsZero())
	}

	stored := carts.snapshot("u1")
	assert.Empty(t, stored.Items)
	assert.Empty(t, stored.CouponID)
	assert.Equal(t, "cart-u1", stored.ID, "cart is emptied, not deleted")
}

func TestApplyCoupon(t *testing.T) {
	products := newProductRepo(newTestProduct("p1", "100", 10))

	t.Run("applies valid coupon", func(t *testing.T) {
		carts := newMemCartRepo(&Cart{
			ID: "cart-u1", Owner: "u1",
			Items: []Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
		})
		f := newFixture(carts, products, flatCoupon("c1", "FLAT50", "50", "150"))

		v, err := f.svc.ApplyCoupon(context.Background(), "u1", "FLAT50")

		require.NoError(t, err)
		require.NotNil(t, v.Coupon)
		assert.Equal(t, "c1", v.Coupon.ID)
		assert.True(t, d("150").Equal(v.DiscountedTotal))
		assert.Equal(t, "c1", carts.snapshot("u1").CouponID)
	})

	t.Run("empty cart", func(t *testing.T) {
		carts := newMemCartRepo()
		f := newFixture(carts, products, flatCoupon("c1", "FLAT50", "50", "0"))

		_, err := f.svc.ApplyCoupon(context.Background(), "u1", "FLAT50")

		require.ErrorIs(t, err, coupon.ErrEmptyCart)
		assert.Zero(t, carts.writes)
	})

	t.Run("minimum not met", func(t *testing.T) {
		carts := newMemCartRepo(&Cart{
			ID: "cart-u1", Owner: "u1",
			Items: []Item{{ID: "i1", ProductID: "p1", Quantity: 1}},
		})
		f := newFixture(carts, products, flatCoupon("c1", "FLAT50", "50", "150"))

		_, err := f.svc.ApplyCoupon(context.Background(), "u1", "FLAT50")

		var minErr *coupon.MinimumNotMetError
		require.ErrorAs(t, err, &minErr)
		assert.Empty(t, carts.snapshot("u1").CouponID)
	})

	t.Run("unknown code", func(t *testing.T) {
		carts := newMemCartRepo(&Cart{
			ID: "cart-u1", Owner: "u1",
			Items: []Item{{ID: "i1", ProductID: "p1", Quantity: 1}},
		})
		f := newFixture(carts, products)

		_, err := f.svc.ApplyCoupon(context.Background(), "u1", "NOPE")

		require.ErrorIs(t, err, coupon.ErrNotFound)
	})
}

func TestRemoveCoupon(t *testing.T) {
	carts := newMemCartRepo(&Cart{
		ID: "cart-u1", Owner: "u1",
		Items:    []Item{{ID: "i1", ProductID: "p1", Quantity: 2}},
		CouponID: "c1",
	})
	f := newFixture(carts,
		newProductRepo(newTestProduct("p1", "100", 10)),
		flatCoupon("c1", "FLAT50", "50", "0"),
	)

	v, err := f.svc.RemoveCoupon(context.Background(), "u1")

	require.NoError(t, err)
	assert.Nil(t, v.Coupon)
	assert.True(t, d("200").Equal(v.DiscountedTotal))
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventCouponRemoved, f.publisher.events[0].Type)
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	const n = 20

	products := make([]product.Product, n)
	for i := range n {
		products[i] = newTestProduct(fmt.Sprintf("p%d", i), "1", 100)
	}
	carts := newMemCartRepo()
	f := newFixture(carts, newProductRepo(products...))

	g, ctx := errgroup.WithContext(context.Background())
	for i := range n {
		g.Go(func() error {
			_, err := f.svc.AddOrUpdateItem(ctx, "u1", fmt.Sprintf("p%d", i), 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	v, err := f.svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, v.Items, n)
	assert.True(t, d(fmt.Sprint(n)).Equal(v.CartTotal))
}
