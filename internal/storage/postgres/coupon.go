package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-cart/internal/domain/coupon"
)

const (
	couponColumns = `id, code, type, discount_value, is_active, minimum_cart_value,
		start_date, expiry_date, owner`

	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	listCouponCodesSQL = `SELECT code FROM coupons`

	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			type = EXCLUDED.type,
			discount_value = EXCLUDED.discount_value,
			is_active = EXCLUDED.is_active,
			minimum_cart_value = EXCLUDED.minimum_cart_value,
			start_date = EXCLUDED.start_date,
			expiry_date = EXCLUDED.expiry_date,
			owner = EXCLUDED.owner`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GetByID returns the coupon with the given id regardless of its state.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByIDSQL, id)
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive
// coupons are returned too; the caller decides what to do with them.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(ctx, getCouponByCodeSQL, code)
}

func (r *CouponRepository) findOne(ctx context.Context, query, arg string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", arg)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", arg)
	}
	return &c, nil
}

// ForEachCode streams every stored coupon code to fn.
func (r *CouponRepository) ForEachCode(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return errors.Wrap(err, "list coupon codes")
	}

	var code string
	if _, err := pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	}); err != nil {
		return errors.Wrap(err, "list coupon codes")
	}
	return nil
}

// InsertNew inserts coupons in one batch, skipping any whose id or code
// already exists. Existing coupons are never modified. It returns the number
// of rows inserted.
func (r *CouponRepository) InsertNew(ctx context.Context, coupons []coupon.Coupon) (int64, error) {
	if len(coupons) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(insertCouponSQL, couponArgs(c)...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, c := range coupons {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert coupon %q", c.Code)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Upsert inserts c or overwrites the stored coupon with the same id.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...); err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

func couponArgs(c coupon.Coupon) []any {
	return []any{
		c.ID, c.Code, string(c.Type), c.DiscountValue, c.Active, c.MinimumCartValue,
		c.StartDate, c.ExpiryDate, c.Owner,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c   coupon.Coupon
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Code, &typ, &c.DiscountValue, &c.Active, &c.MinimumCartValue,
		&c.StartDate, &c.ExpiryDate, &c.Owner,
	)
	c.Type = coupon.Type(typ)
	return c, err
}
