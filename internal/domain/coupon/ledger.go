package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ledger enforces the eligibility rules of a coupon and meters its usage.
type Ledger struct {
	repo         Repository
	now          func() time.Time
	consumptions metric.Int64Counter
}

// NewLedger creates a Ledger that increments usage through repo.
func NewLedger(repo Repository, meter metric.Meter) (*Ledger, error) {
	consumptions, err := meter.Int64Counter("promo.coupon.consumptions",
		metric.WithDescription("Coupon usage increments by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create consumptions counter")
	}
	return &Ledger{
		repo:         repo,
		now:          time.Now,
		consumptions: consumptions,
	}, nil
}

// Now returns the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// CheckRedeemable reports whether c is active and unexpired at now. Inactive
// is reported before expired.
func CheckRedeemable(c *Coupon, now time.Time) error {
	if !c.Active {
		return ErrCouponInactive
	}
	if !c.ExpiryDate.IsZero() && c.ExpiryDate.Before(now) {
		return ErrCouponExpired
	}
	return nil
}

// Validate runs every eligibility check in order: inactive, expired, then
// usage limit. The first failing check is returned.
func (l *Ledger) Validate(c *Coupon, now time.Time) error {
	if err := CheckRedeemable(c, now); err != nil {
		return err
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return ErrUsageLimitReached
	}
	return nil
}

// Consume records one application of the coupon identified by id. The
// increment is conditional on the stored counter being under the limit, so
// concurrent callers can never push it past usageLimit. There is no refund:
// callers that need atomicity with other writes run Consume inside a store
// transaction.
func (l *Ledger) Consume(ctx context.Context, id string) (int, error) {
	used, err := l.repo.IncrementUsage(ctx, id)
	switch {
	case err == nil:
		l.record(ctx, "consumed")
		return used, nil
	case errors.Is(err, ErrUsageLimitReached):
		l.record(ctx, "limit_reached")
		return 0, ErrUsageLimitReached
	case errors.Is(err, ErrNotFound):
		return 0, ErrNotFound
	default:
		l.record(ctx, "error")
		return 0, errors.Wrap(err, "increment coupon usage")
	}
}

func (l *Ledger) record(ctx context.Context, outcome string) {
	l.consumptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
