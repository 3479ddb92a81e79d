package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-cart/internal/domain/cart"
)

const (
	cartColumns = `id, owner, items, COALESCE(coupon_id, '')`

	getCartSQL  = `SELECT ` + cartColumns + ` FROM carts WHERE owner = $1`
	lockCartSQL = `SELECT ` + cartColumns + ` FROM carts WHERE owner = $1 FOR UPDATE`

	ensureCartSQL = `INSERT INTO carts (id, owner) VALUES ($1, $2)
		ON CONFLICT (owner) DO NOTHING`

	updateCartSQL = `UPDATE carts
		SET items = $2, coupon_id = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Items are
// stored as a JSONB array in the cart row so that every mutation is a single
// row read-modify-write.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the owner's cart without locking it.
func (r *CartRepository) Get(ctx context.Context, owner string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, owner)
	if err != nil {
		return nil, errors.Wrapf(err, "get cart of %q", owner)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart of %q", owner)
	}
	return &c, nil
}

// Update runs fn against the owner's cart inside a transaction that holds
// the row lock until commit. The cart row is created when missing.
func (r *CartRepository) Update(ctx context.Context, owner string, fn func(c *cart.Cart) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureCartSQL, uuid.NewString(), owner); err != nil {
			return errors.Wrapf(err, "create cart of %q", owner)
		}

		rows, err := tx.Query(ctx, lockCartSQL, owner)
		if err != nil {
			return errors.Wrapf(err, "lock cart of %q", owner)
		}
		c, err := pgx.CollectExactlyOneRow(rows, scanCart)
		if err != nil {
			return errors.Wrapf(err, "lock cart of %q", owner)
		}

		if err := fn(&c); err != nil {
			return err
		}

		items := c.Items
		if items == nil {
			items = []cart.Item{}
		}
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return errors.Wrap(err, "marshal cart items")
		}
		if _, err := tx.Exec(ctx, updateCartSQL, c.ID, itemsJSON, c.CouponID); err != nil {
			return errors.Wrapf(err, "update cart %q", c.ID)
		}
		return nil
	})
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c         cart.Cart
		itemsJSON []byte
	)
	if err := row.Scan(&c.ID, &c.Owner, &itemsJSON, &c.CouponID); err != nil {
		return c, err
	}
	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return c, errors.Wrap(err, "unmarshal cart items")
	}
	return c, nil
}
