package coupon

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// expiryLayouts are the accepted expiry date formats, tried in order.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// maxUsageLimit matches the INTEGER column in PostgreSQL.
var maxUsageLimit = decimal.NewFromInt(math.MaxInt32)

// CreateParams holds the raw input for a new coupon. Numeric fields are
// already coerced by the transport; nil means the field was absent.
type CreateParams struct {
	Code          string
	DiscountType  string
	DiscountValue *decimal.Decimal
	ExpiryDate    string
	Active        *bool
	UsageLimit    *decimal.Decimal
}

// Registry owns the lifecycle of coupon records.
type Registry struct {
	repo Repository
	now  func() time.Time
}

// NewRegistry creates a Registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// Create validates p, normalizes the code and stores a new coupon with a zero
// usage counter.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	if code == "" || strings.TrimSpace(p.DiscountType) == "" || p.DiscountValue == nil || strings.TrimSpace(p.ExpiryDate) == "" {
		return nil, ErrMissingFields
	}

	discountType := DiscountType(strings.TrimSpace(p.DiscountType))
	if !discountType.Known() {
		return nil, &InvalidFieldError{Field: "discountType", Reason: "must be percentage or fixed"}
	}
	if p.DiscountValue.IsNegative() {
		return nil, &InvalidFieldError{Field: "discountValue", Reason: "must not be negative"}
	}
	if !WithinPrecision(*p.DiscountValue) {
		return nil, &InvalidFieldError{Field: "discountValue", Reason: "out of range"}
	}

	expiry, err := parseExpiry(p.ExpiryDate)
	if err != nil {
		return nil, err
	}

	limit, err := usageLimit(p.UsageLimit)
	if err != nil {
		return nil, err
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}

	c := &Coupon{
		ID:            uuid.New().String(),
		Code:          code,
		DiscountType:  discountType,
		DiscountValue: *p.DiscountValue,
		ExpiryDate:    expiry,
		Active:        active,
		UsageLimit:    limit,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// FindByCode looks up a coupon using the same normalization as Create.
func (r *Registry) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, ErrNotFound
	}
	c, err := r.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	return c, nil
}

// List returns all coupons, or only active ones, newest first.
func (r *Registry) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	coupons, err := r.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

func parseExpiry(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &InvalidFieldError{Field: "expiryDate", Reason: "unrecognized date format"}
}

// usageLimit maps the optional limit to its stored form. Zero and absent
// both mean unlimited.
func usageLimit(v *decimal.Decimal) (*int, error) {
	if v == nil || v.IsZero() {
		return nil, nil
	}
	if !WithinPrecision(*v) || v.GreaterThan(maxUsageLimit) {
		return nil, &InvalidFieldError{Field: "usageLimit", Reason: "out of range"}
	}
	if v.IsNegative() || !v.IsInteger() {
		return nil, &InvalidFieldError{Field: "usageLimit", Reason: "must be a positive integer"}
	}
	n := int(v.IntPart())
	return &n, nil
}
