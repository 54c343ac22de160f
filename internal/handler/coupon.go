package handler

import (
	"net/http"
	"time"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

type couponResponse struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	DiscountType  string    `json:"discountType"`
	DiscountValue float64   `json:"discountValue"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Active        bool      `json:"active"`
	UsageLimit    *int      `json:"usageLimit"`
	UsedCount     int       `json:"usedCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toCouponResponse(c coupon.Coupon) couponResponse {
	return couponResponse{
		ID:            c.ID,
		Code:          c.Code,
		DiscountType:  string(c.DiscountType),
		DiscountValue: c.DiscountValue.InexactFloat64(),
		ExpiryDate:    c.ExpiryDate,
		Active:        c.Active,
		UsageLimit:    c.UsageLimit,
		UsedCount:     c.UsedCount,
		CreatedAt:     c.CreatedAt,
	}
}

type createCouponRequest struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discountType"`
	DiscountValue amount `json:"discountValue"`
	ExpiryDate    string `json:"expiryDate"`
	Active        *bool  `json:"active"`
	UsageLimit    amount `json:"usageLimit"`
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DiscountValue.invalid {
		h.writeError(w, r, &coupon.InvalidFieldError{Field: "discountValue", Reason: "must be a number"})
		return
	}
	if req.UsageLimit.invalid {
		h.writeError(w, r, &coupon.InvalidFieldError{Field: "usageLimit", Reason: "must be a number"})
		return
	}

	c, err := h.registry.Create(r.Context(), coupon.CreateParams{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue.ptr(),
		ExpiryDate:    req.ExpiryDate,
		Active:        req.Active,
		UsageLimit:    req.UsageLimit.ptr(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Message  string `json:"message"`
		CouponID string `json:"couponId"`
	}{"Coupon created", c.ID})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.registry.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]couponResponse, len(coupons))
	for i, c := range coupons {
		resp[i] = toCouponResponse(c)
	}
	writeJSON(w, http.StatusOK, struct {
		Coupons []couponResponse `json:"coupons"`
	}{resp})
}

type applyCouponRequest struct {
	Code        string `json:"code"`
	BasketTotal amount `json:"basketTotal"`
}

type applyCouponResponse struct {
	Success        bool    `json:"success"`
	Code           string  `json:"code"`
	DiscountType   string  `json:"discountType"`
	DiscountValue  float64 `json:"discountValue"`
	DiscountAmount float64 `json:"discountAmount"`
	NewTotal       float64 `json:"newTotal"`
	Message        string  `json:"message"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if coupon.NormalizeCode(req.Code) == "" || !req.BasketTotal.set {
		h.writeError(w, r, errApplyFields)
		return
	}
	if req.BasketTotal.invalid {
		h.writeError(w, r, coupon.ErrInvalidBasketTotal)
		return
	}

	app, err := h.applier.Apply(r.Context(), req.Code, req.BasketTotal.value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, applyCouponResponse{
		Success:        true,
		Code:           app.Coupon.Code,
		DiscountType:   string(app.Coupon.DiscountType),
		DiscountValue:  app.Coupon.DiscountValue.InexactFloat64(),
		DiscountAmount: app.Discount.Amount.InexactFloat64(),
		NewTotal:       app.Discount.NewTotal.InexactFloat64(),
		Message:        "Coupon applied successfully",
	})
}
