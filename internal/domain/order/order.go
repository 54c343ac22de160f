package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions lists the statuses reachable from each state. Delivered and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered, StatusCancelled},
}

// ParseStatus reports whether s names a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return st, true
	default:
		return "", false
	}
}

// CanTransition reports whether an order in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AppliedCoupon is a snapshot of the coupon taken at placement time. Later
// changes to the coupon do not affect it.
type AppliedCoupon struct {
	Code           string
	DiscountType   coupon.DiscountType
	DiscountValue  decimal.Decimal
	DiscountAmount decimal.Decimal
}

// Order is a persisted customer order.
type Order struct {
	ID           string
	UserIdentity string
	// Items are stored and returned as submitted.
	Items         []json.RawMessage
	TotalAmount   decimal.Decimal
	FinalTotal    decimal.Decimal
	AppliedCoupon *AppliedCoupon
	Status        Status
	CreatedAt     time.Time
}

// MonthlySales aggregates orders placed in one calendar month (UTC).
type MonthlySales struct {
	Year         int
	Month        time.Month
	TotalRevenue decimal.Decimal
	TotalOrders  int
}

// SalesReport summarizes revenue over all orders.
type SalesReport struct {
	TotalRevenue decimal.Decimal
	TotalOrders  int
	// Monthly is sorted by year and month ascending.
	Monthly []MonthlySales
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns ErrOrderNotFound when no order has the given id.
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the orders of user, newest first.
	ListByUser(ctx context.Context, user string) ([]Order, error)
	// UpdateStatus sets the status to "to" only while it still equals "from".
	// It returns ErrOrderNotFound for an unknown id and ErrStatusConflict when
	// the stored status no longer matches.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	SalesReport(ctx context.Context) (*SalesReport, error)
}

// Transactor runs fn in a single store transaction. Repository calls made
// with the ctx passed to fn join that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
