package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/domain/auth"
	"github.com/xenking/promo-orders/internal/domain/coupon"
)

// Sentinel errors for order operations.
var (
	ErrInvalidOrderData = errors.New("invalid order data")
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrStatusConflict   = errors.New("order status changed concurrently")
)

// TransitionError indicates a status change the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserIdentity string
	Items        []json.RawMessage
	// TotalAmount is the declared pre-discount total. Nil means absent.
	TotalAmount *decimal.Decimal
	CouponCode  string
}

// Service encapsulates order placement and lifecycle logic.
type Service struct {
	registry *coupon.Registry
	ledger   *coupon.Ledger
	orders   Repository
	tx       Transactor

	tracer trace.Tracer
	placed metric.Int64Counter
	now    func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	registry *coupon.Registry,
	ledger *coupon.Ledger,
	orders Repository,
	tx Transactor,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	placed, err := mp.Meter("promo/order").Int64Counter("promo.orders.placed",
		metric.WithDescription("Orders placed, by coupon outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	return &Service{
		registry: registry,
		ledger:   ledger,
		orders:   orders,
		tx:       tx,
		tracer:   tp.Tracer("promo/order"),
		placed:   placed,
		now:      time.Now,
	}, nil
}

// PlaceOrder validates the request, applies the coupon when it is redeemable
// and persists the order.
//
// Coupon problems never fail checkout: an unknown, inactive, expired or
// exhausted coupon results in an order without discount. The usage increment
// and the insert share one transaction, so a use is only consumed for a
// persisted order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Place")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if len(req.Items) == 0 || req.TotalAmount == nil || req.TotalAmount.IsNegative() || !coupon.WithinPrecision(*req.TotalAmount) {
		return nil, ErrInvalidOrderData
	}
	total := *req.TotalAmount

	candidate, err := s.lookupCoupon(ctx, req.CouponCode)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:           uuid.New().String(),
		UserIdentity: req.UserIdentity,
		Items:        req.Items,
		TotalAmount:  total,
		Status:       StatusPending,
		CreatedAt:    s.now().UTC(),
	}

	outcome := "none"
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		// InTx may retry fn, so start from a clean slate.
		o.FinalTotal = total
		o.AppliedCoupon = nil
		outcome = "none"

		if candidate != nil {
			applied, err := s.consume(ctx, candidate, total)
			if err != nil {
				return err
			}
			if applied != nil {
				o.AppliedCoupon = applied
				o.FinalTotal = total.Sub(applied.DiscountAmount).Round(2)
				if o.FinalTotal.GreaterThan(total) {
					o.FinalTotal = total.Truncate(2)
				}
				outcome = "applied"
			} else {
				outcome = "exhausted"
			}
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon", outcome)))
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.coupon", outcome),
	)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("coupon", outcome),
		zap.Stringer("final_total", o.FinalTotal),
	)
	return o, nil
}

// lookupCoupon returns the coupon named by code when it can be redeemed at
// checkout, or nil when the order should proceed without a discount.
func (s *Service) lookupCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	if coupon.NormalizeCode(code) == "" {
		return nil, nil
	}
	c, err := s.registry.FindByCode(ctx, code)
	if errors.Is(err, coupon.ErrNotFound) {
		zctx.From(ctx).Debug("Coupon not found, ignoring", zap.String("code", code))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if err := coupon.CheckRedeemable(c, s.ledger.Now()); err != nil {
		zctx.From(ctx).Debug("Coupon not redeemable, ignoring",
			zap.String("code", c.Code),
			zap.Error(err),
		)
		return nil, nil
	}
	return c, nil
}

// consume commits one use of c and returns the snapshot to store with the
// order. A nil snapshot with nil error means the coupon ran out meanwhile.
func (s *Service) consume(ctx context.Context, c *coupon.Coupon, total decimal.Decimal) (*AppliedCoupon, error) {
	d, err := coupon.ComputeDiscount(c, total)
	if err != nil {
		return nil, errors.Wrap(err, "compute discount")
	}
	switch _, err := s.ledger.Consume(ctx, c.ID); {
	case err == nil:
	case errors.Is(err, coupon.ErrUsageLimitReached), errors.Is(err, coupon.ErrNotFound):
		zctx.From(ctx).Debug("Coupon exhausted, placing order without discount", zap.String("code", c.Code))
		return nil, nil
	default:
		return nil, err
	}
	return &AppliedCoupon{
		Code:           c.Code,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.DiscountValue,
		DiscountAmount: d.Amount,
	}, nil
}

// Get returns the order with the given id if requester may see it.
func (s *Service) Get(ctx context.Context, id string, requester auth.Identity) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if !requester.CanAccess(o.UserIdentity) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// ListForUser returns the requester's own orders, newest first. Privilege
// does not widen the listing.
func (s *Service) ListForUser(ctx context.Context, requester auth.Identity) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, requester.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// UpdateStatus moves an order to status on behalf of actor.
func (s *Service) UpdateStatus(ctx context.Context, id, status string, actor auth.Identity) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", status),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if !actor.Privileged {
		return nil, auth.ErrForbidden
	}
	next, ok := ParseStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransition(next) {
		return nil, &TransitionError{From: o.Status, To: next}
	}

	if err := s.orders.UpdateStatus(ctx, id, o.Status, next); err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, ErrStatusConflict):
			return nil, ErrStatusConflict
		default:
			return nil, errors.Wrap(err, "update order status")
		}
	}

	zctx.From(ctx).Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(o.Status)),
		zap.String("to", string(next)),
		zap.String("actor", actor.Subject),
	)
	o.Status = next
	return o, nil
}

// SalesReport aggregates revenue over all orders. Privileged only.
func (s *Service) SalesReport(ctx context.Context, actor auth.Identity) (*SalesReport, error) {
	if !actor.Privileged {
		return nil, auth.ErrForbidden
	}
	r, err := s.orders.SalesReport(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sales report")
	}
	return r, nil
}
