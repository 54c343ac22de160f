package coupon

import (
	"context"

	"github.com/shopspring/decimal"
)

// Application is the result of a successful coupon application.
type Application struct {
	Coupon   Coupon
	Discount Discount
}

// Applier implements the strict apply path: every eligibility failure is
// reported to the caller, and a successful application consumes one use.
type Applier struct {
	registry *Registry
	ledger   *Ledger
}

// NewApplier combines a registry and a ledger.
func NewApplier(registry *Registry, ledger *Ledger) *Applier {
	return &Applier{registry: registry, ledger: ledger}
}

// Apply validates the coupon behind code, computes the discount on
// basketTotal and commits one use of the coupon.
func (a *Applier) Apply(ctx context.Context, code string, basketTotal decimal.Decimal) (*Application, error) {
	c, err := a.registry.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := a.ledger.Validate(c, a.ledger.Now()); err != nil {
		return nil, err
	}

	d, err := ComputeDiscount(c, basketTotal)
	if err != nil {
		return nil, err
	}

	// Validate read a snapshot; the conditional increment is the authority
	// when several requests race on the last use.
	used, err := a.ledger.Consume(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.UsedCount = used

	return &Application{Coupon: *c, Discount: d}, nil
}
