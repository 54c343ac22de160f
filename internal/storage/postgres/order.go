package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `id, user_identity, items, total_amount, final_total, applied_coupon, status, created_at`

// appliedCouponJSON is the JSONB form of order.AppliedCoupon.
type appliedCouponJSON struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the coupon snapshot are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	var couponJSON []byte
	if ac := o.AppliedCoupon; ac != nil {
		couponJSON, err = json.Marshal(appliedCouponJSON{
			Code:           ac.Code,
			DiscountType:   string(ac.DiscountType),
			DiscountValue:  ac.DiscountValue,
			DiscountAmount: ac.DiscountAmount,
		})
		if err != nil {
			return errors.Wrap(err, "marshal applied coupon")
		}
	}

	_, err = conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserIdentity, itemsJSON, o.TotalAmount, o.FinalTotal,
		couponJSON, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// Get returns the order with the given id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByUser returns the orders of user, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, user string) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_identity = $1
		ORDER BY created_at DESC, id`, user)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return orders, nil
}

// UpdateStatus performs a compare-and-set on the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return errors.Wrapf(err, "update order %q", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrOrderNotFound
	}
	return order.ErrStatusConflict
}

// SalesReport groups revenue by UTC calendar month.
func (r *OrderRepository) SalesReport(ctx context.Context) (*order.SalesReport, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT
			EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int  AS year,
			EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			COALESCE(SUM(final_total), 0)                          AS revenue,
			COUNT(*)::int                                          AS orders
		FROM orders
		GROUP BY 1, 2
		ORDER BY 1, 2`)
	if err != nil {
		return nil, errors.Wrap(err, "query sales report")
	}
	monthly, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.MonthlySales, error) {
		var (
			m     order.MonthlySales
			month int
		)
		if err := row.Scan(&m.Year, &month, &m.TotalRevenue, &m.TotalOrders); err != nil {
			return m, err
		}
		m.Month = time.Month(month)
		return m, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan sales report")
	}

	report := &order.SalesReport{TotalRevenue: decimal.Zero, Monthly: monthly}
	for _, m := range monthly {
		report.TotalRevenue = report.TotalRevenue.Add(m.TotalRevenue)
		report.TotalOrders += m.TotalOrders
	}
	return report, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o          order.Order
		itemsJSON  []byte
		couponJSON []byte
		status     string
	)
	err := row.Scan(
		&o.ID,
		&o.UserIdentity,
		&itemsJSON,
		&o.TotalAmount,
		&o.FinalTotal,
		&couponJSON,
		&status,
		&o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, errors.Wrap(err, "unmarshal order items")
	}
	if len(couponJSON) > 0 {
		var ac appliedCouponJSON
		if err := json.Unmarshal(couponJSON, &ac); err != nil {
			return order.Order{}, errors.Wrap(err, "unmarshal applied coupon")
		}
		o.AppliedCoupon = &order.AppliedCoupon{
			Code:           ac.Code,
			DiscountType:   coupon.DiscountType(ac.DiscountType),
			DiscountValue:  ac.DiscountValue,
			DiscountAmount: ac.DiscountAmount,
		}
	}
	return o, nil
}
