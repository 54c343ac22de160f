package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes DiscountValue percent off the basket total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes DiscountValue currency units off, capped at the basket total.
	DiscountFixed DiscountType = "fixed"
)

// Known reports whether t is one of the supported discount types.
func (t DiscountType) Known() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned when no coupon matches the normalized code or ID.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a coupon with the same normalized code exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrMissingFields is returned when code, discount type, value or expiry is absent.
	ErrMissingFields = errors.New("missing required coupon fields")
	// ErrCouponInactive is returned when the coupon's active flag is off.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponExpired is returned when the coupon's expiry date has passed.
	ErrCouponExpired = errors.New("coupon has expired")
	// ErrUsageLimitReached is returned when the coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrInvalidBasketTotal is returned for a negative or non-numeric basket total.
	ErrInvalidBasketTotal = errors.New("invalid basket total")
	// ErrInvalidInput is returned when the engine is called without a coupon.
	ErrInvalidInput = errors.New("invalid discount input")
)

// InvalidFieldError reports a coupon field that is present but malformed.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Coupon is a named discount rule with eligibility constraints.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ExpiryDate    time.Time
	Active        bool
	// UsageLimit is nil for unlimited coupons.
	UsageLimit *int
	UsedCount  int
	CreatedAt  time.Time
}

// Remaining returns how many applications are left, or -1 when unlimited.
func (c *Coupon) Remaining() int {
	if c.UsageLimit == nil {
		return -1
	}
	return max(*c.UsageLimit-c.UsedCount, 0)
}

// NormalizeCode trims and uppercases a coupon code. Every lookup and insert
// goes through it, so " save10 " and "SAVE10" name the same coupon.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository is the persistence contract for coupon records.
type Repository interface {
	// Create inserts c, returning ErrDuplicateCode on a code collision.
	Create(ctx context.Context, c *Coupon) error
	// FindByCode returns the coupon with the given normalized code or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// List returns coupons ordered by creation time, newest first.
	List(ctx context.Context, activeOnly bool) ([]Coupon, error)
	// IncrementUsage adds one use iff the coupon is under its limit, in a
	// single atomic store operation, and returns the new used count.
	// It returns ErrUsageLimitReached when the condition does not hold.
	IncrementUsage(ctx context.Context, id string) (int, error)
}
