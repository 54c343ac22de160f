// Package handler exposes the coupon and order services over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/promo-orders/internal/domain/auth"
	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
	"github.com/xenking/promo-orders/pkg/health"
	"github.com/xenking/promo-orders/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler serves the REST API.
type Handler struct {
	verifier auth.Verifier
	registry *coupon.Registry
	applier  *coupon.Applier
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	verifier auth.Verifier,
	registry *coupon.Registry,
	applier *coupon.Applier,
	orders *order.Service,
) *Handler {
	return &Handler{
		verifier: verifier,
		registry: registry,
		applier:  applier,
		orders:   orders,
	}
}

// RouterConfig holds the optional pieces mounted next to the API.
type RouterConfig struct {
	// Health serves /livez and /readyz when set.
	Health *health.Service
	// ApplyLimit guards the coupon apply endpoint when set.
	ApplyLimit httpmiddleware.Middleware
}

// Router returns the chi router for the API.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
	})

	if cfg.Health != nil {
		r.Get("/livez", cfg.Health.LiveEndpoint)
		r.Get("/readyz", cfg.Health.ReadyEndpoint)
	}

	r.Route("/coupons", func(r chi.Router) {
		r.Get("/", h.listCoupons)
		r.With(h.authenticate, h.requireAdmin).Post("/", h.createCoupon)

		apply := r
		if cfg.ApplyLimit != nil {
			apply = r.With(cfg.ApplyLimit)
		}
		apply.Post("/apply", h.applyCoupon)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.With(h.requireAdmin).Put("/{id}/status", h.updateOrderStatus)
	})

	r.With(h.authenticate, h.requireAdmin).Get("/admin/sales-report", h.salesReport)

	return r
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes the JSON request body into v. Any failure maps to
// errBadBody.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}
