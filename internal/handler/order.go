package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/promo-orders/internal/domain/auth"
	"github.com/xenking/promo-orders/internal/domain/order"
)

type appliedCouponResponse struct {
	Code           string  `json:"code"`
	DiscountType   string  `json:"discountType"`
	DiscountValue  float64 `json:"discountValue"`
	DiscountAmount float64 `json:"discountAmount"`
}

type orderResponse struct {
	ID            string                 `json:"id"`
	UserIdentity  string                 `json:"userIdentity"`
	Items         []json.RawMessage      `json:"items"`
	TotalAmount   float64                `json:"totalAmount"`
	FinalTotal    float64                `json:"finalTotal"`
	AppliedCoupon *appliedCouponResponse `json:"appliedCoupon"`
	Status        string                 `json:"status"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		UserIdentity: o.UserIdentity,
		Items:        o.Items,
		TotalAmount:  o.TotalAmount.InexactFloat64(),
		FinalTotal:   o.FinalTotal.InexactFloat64(),
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	if ac := o.AppliedCoupon; ac != nil {
		resp.AppliedCoupon = &appliedCouponResponse{
			Code:           ac.Code,
			DiscountType:   string(ac.DiscountType),
			DiscountValue:  ac.DiscountValue.InexactFloat64(),
			DiscountAmount: ac.DiscountAmount.InexactFloat64(),
		}
	}
	return resp
}

type placeOrderRequest struct {
	Items       json.RawMessage `json:"items"`
	TotalAmount amount          `json:"totalAmount"`
	CouponCode  string          `json:"couponCode"`
}

// items returns the line items, or nil unless the field is a JSON array.
func (req placeOrderRequest) items() []json.RawMessage {
	if !bytes.HasPrefix(bytes.TrimSpace(req.Items), []byte("[")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(req.Items, &items); err != nil {
		return nil
	}
	return items
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.TotalAmount.invalid {
		h.writeError(w, r, order.ErrInvalidOrderData)
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserIdentity: identity(r).Subject,
		Items:        req.items(),
		TotalAmount:  req.TotalAmount.ptr(),
		CouponCode:   req.CouponCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message string `json:"message"`
		OrderID string `json:"orderId"`
	}{"Order placed successfully", o.ID})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForUser(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, struct {
		Orders []orderResponse `json:"orders"`
	}{resp})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), identity(r))
	if errors.Is(err, auth.ErrForbidden) {
		err = errNotOrderOwner
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Order orderResponse `json:"order"`
	}{toOrderResponse(o)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, identity(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Message string        `json:"message"`
		Order   orderResponse `json:"order"`
	}{"Order status updated successfully", toOrderResponse(o)})
}

type monthlySalesResponse struct {
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	TotalRevenue float64 `json:"totalRevenue"`
	TotalOrders  int     `json:"totalOrders"`
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.SalesReport(r.Context(), identity(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type overall struct {
		TotalRevenue float64 `json:"totalRevenue"`
		TotalOrders  int     `json:"totalOrders"`
	}
	monthly := make([]monthlySalesResponse, len(report.Monthly))
	for i, m := range report.Monthly {
		monthly[i] = monthlySalesResponse{
			Year:         m.Year,
			Month:        int(m.Month),
			TotalRevenue: m.TotalRevenue.InexactFloat64(),
			TotalOrders:  m.TotalOrders,
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Overall overall                `json:"overall"`
		Monthly []monthlySalesResponse `json:"monthly"`
	}{
		Overall: overall{TotalRevenue: report.TotalRevenue.InexactFloat64(), TotalOrders: report.TotalOrders},
		Monthly: monthly,
	})
}
