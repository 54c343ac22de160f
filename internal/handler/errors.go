package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/domain/auth"
	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
)

var (
	errBadBody        = errors.New("invalid request body")
	errApplyFields    = errors.New("code and basketTotal are required")
	errNotOrderOwner  = errors.New("not authorized to view this order")
	internalErrorBody = messageResponse{Message: "Internal Server Error"}
)

// statusMessages maps sentinel errors to a status and a client-facing message.
// Order matters: the first match wins.
var statusMessages = []struct {
	err     error
	status  int
	message string
}{
	{auth.ErrMissingCredential, http.StatusUnauthorized, "No token provided"},
	{auth.ErrInvalidCredential, http.StatusUnauthorized, "Invalid token"},
	{errNotOrderOwner, http.StatusForbidden, "Not authorized to view this order"},
	{auth.ErrForbidden, http.StatusForbidden, "Admin only"},

	{errBadBody, http.StatusBadRequest, "Invalid request body"},
	{errApplyFields, http.StatusBadRequest, "code and basketTotal are required"},

	{coupon.ErrNotFound, http.StatusNotFound, "Coupon not found"},
	{coupon.ErrCouponInactive, http.StatusBadRequest, "Coupon is not active"},
	{coupon.ErrCouponExpired, http.StatusBadRequest, "Coupon has expired"},
	{coupon.ErrUsageLimitReached, http.StatusBadRequest, "Coupon usage limit reached"},
	{coupon.ErrInvalidBasketTotal, http.StatusBadRequest, "Invalid basketTotal"},
	{coupon.ErrMissingFields, http.StatusBadRequest, "Missing required coupon fields"},
	{coupon.ErrDuplicateCode, http.StatusBadRequest, "Coupon code already exists"},

	{order.ErrInvalidOrderData, http.StatusBadRequest, "Invalid order data"},
	{order.ErrOrderNotFound, http.StatusNotFound, "Order not found"},
	{order.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
	{order.ErrStatusConflict, http.StatusConflict, "Order status changed concurrently"},
}

// errorStatus returns the HTTP status and message for err. The boolean is
// false for unexpected errors.
func errorStatus(err error) (int, string, bool) {
	var fieldErr *coupon.InvalidFieldError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, fieldErr.Error(), true
	}
	var transitionErr *order.TransitionError
	if errors.As(err, &transitionErr) {
		return http.StatusBadRequest, transitionErr.Error(), true
	}
	for _, m := range statusMessages {
		if errors.Is(err, m.err) {
			return m.status, m.message, true
		}
	}
	return http.StatusInternalServerError, internalErrorBody.Message, false
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, known := errorStatus(err)
	if !known {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, internalErrorBody)
		return
	}
	writeJSON(w, status, messageResponse{Message: message})
}
