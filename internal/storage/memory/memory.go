// Package memory is a single-process store for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ order.Repository  = (*OrderRepository)(nil)
	_ order.Transactor  = (*Store)(nil)
)

type txKey struct{}

// Store keeps coupons and orders in maps.
//
// Transactions are serialized by txMu and undone by restoring a snapshot.
// Writes outside a transaction also take txMu, so a rollback never discards
// them. Reads only take mu and may observe uncommitted writes.
type Store struct {
	txMu sync.Mutex

	mu      sync.Mutex
	coupons map[string]coupon.Coupon // by ID
	codes   map[string]string        // code -> ID
	orders  map[string]order.Order
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		coupons: make(map[string]coupon.Coupon),
		codes:   make(map[string]string),
		orders:  make(map[string]order.Order),
	}
}

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// InTx runs fn atomically with respect to other writers. If fn fails every
// change it made is reverted.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	coupons, codes, orders := maps.Clone(s.coupons), maps.Clone(s.codes), maps.Clone(s.orders)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.coupons, s.codes, s.orders = coupons, codes, orders
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under both locks unless ctx already holds the transaction.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// CouponRepository implements coupon.Repository on a Store.
type CouponRepository struct {
	s *Store
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.codes[c.Code]; ok {
			return coupon.ErrDuplicateCode
		}
		r.s.coupons[c.ID] = *c
		r.s.codes[c.Code] = c.ID
		return nil
	})
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.codes[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c := r.s.coupons[id]
	return &c, nil
}

func (r *CouponRepository) List(_ context.Context, activeOnly bool) ([]coupon.Coupon, error) {
	r.s.mu.Lock()
	out := make([]coupon.Coupon, 0, len(r.s.coupons))
	for _, c := range r.s.coupons {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	r.s.mu.Unlock()

	slices.SortFunc(out, func(a, b coupon.Coupon) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

// IncrementUsage checks the limit and increments under the same lock.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	var used int
	err := r.s.write(ctx, func() error {
		c, ok := r.s.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return coupon.ErrUsageLimitReached
		}
		c.UsedCount++
		r.s.coupons[id] = c
		used = c.UsedCount
		return nil
	})
	return used, err
}

// OrderRepository implements order.Repository on a Store.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func() error {
		r.s.orders[o.ID] = *o
		return nil
	})
}

func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(_ context.Context, user string) ([]order.Order, error) {
	r.s.mu.Lock()
	var out []order.Order
	for _, o := range r.s.orders {
		if o.UserIdentity == user {
			out = append(out, o)
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(out, func(a, b order.Order) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	return r.s.write(ctx, func() error {
		o, ok := r.s.orders[id]
		if !ok {
			return order.ErrOrderNotFound
		}
		if o.Status != from {
			return order.ErrStatusConflict
		}
		o.Status = to
		r.s.orders[id] = o
		return nil
	})
}

func (r *OrderRepository) SalesReport(_ context.Context) (*order.SalesReport, error) {
	type month struct {
		year  int
		month time.Month
	}

	r.s.mu.Lock()
	buckets := make(map[month]*order.MonthlySales)
	report := &order.SalesReport{TotalRevenue: decimal.Zero}
	for _, o := range r.s.orders {
		t := o.CreatedAt.UTC()
		key := month{year: t.Year(), month: t.Month()}
		b, ok := buckets[key]
		if !ok {
			b = &order.MonthlySales{Year: key.year, Month: key.month, TotalRevenue: decimal.Zero}
			buckets[key] = b
		}
		b.TotalRevenue = b.TotalRevenue.Add(o.FinalTotal)
		b.TotalOrders++
		report.TotalRevenue = report.TotalRevenue.Add(o.FinalTotal)
		report.TotalOrders++
	}
	r.s.mu.Unlock()

	for _, b := range buckets {
		report.Monthly = append(report.Monthly, *b)
	}
	slices.SortFunc(report.Monthly, func(a, b order.MonthlySales) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	return report, nil
}

func newestFirst(ta, tb time.Time, ida, idb string) int {
	return cmp.Or(tb.Compare(ta), cmp.Compare(ida, idb))
}
