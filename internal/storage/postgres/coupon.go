package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

const couponColumns = `id, code, discount_type, discount_value, expiry_date, active, usage_limit, used_count, created_at`

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create inserts c. A clash on the unique code index is reported as
// coupon.ErrDuplicateCode.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue, c.ExpiryDate,
		c.Active, c.UsageLimit, c.UsedCount, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return nil
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	row := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

// List returns coupons newest first.
func (r *CouponRepository) List(ctx context.Context, activeOnly bool) ([]coupon.Coupon, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+couponColumns+` FROM coupons
		WHERE NOT $1::bool OR active
		ORDER BY created_at DESC, id`, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "query coupons")
	}
	coupons, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Coupon, error) {
		return scanCoupon(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}
	return coupons, nil
}

// IncrementUsage adds one use with a single conditional UPDATE. Concurrent
// callers serialize on the row lock, and the WHERE clause is re-evaluated
// against the latest row version, so the counter cannot pass the limit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	q := conn(ctx, r.pool)

	var used int
	err := q.QueryRow(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING used_count`, id).Scan(&used)
	if err == nil {
		return used, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrapf(err, "increment coupon %q", id)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, errors.Wrapf(err, "check coupon %q", id)
	}
	if !exists {
		return 0, coupon.ErrNotFound
	}
	return 0, coupon.ErrUsageLimitReached
}

func scanCoupon(row pgx.Row) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID,
		&c.Code,
		&discountType,
		&c.DiscountValue,
		&c.ExpiryDate,
		&c.Active,
		&c.UsageLimit,
		&c.UsedCount,
		&c.CreatedAt,
	)
	if err != nil {
		return coupon.Coupon{}, err
	}
	c.DiscountType = coupon.DiscountType(discountType)
	c.ExpiryDate = c.ExpiryDate.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
