// Package handler exposes order.Service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Handler serves the /v1/orders API.
type Handler struct {
	orders *order.Service
}

// NewHandler constructs a Handler backed by the order service.
func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Routes registers the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Put("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)

			r.Put("/recalculate", h.recalculateOrder)
			r.Put("/checkout", h.checkoutOrder)
			r.Put("/cancel", h.cancelOrder)
			r.Put("/close", h.closeOrder)

			r.Put("/billing_address", h.setBillingAddress)
			r.Put("/shipping_address", h.setShippingAddress)

			r.Post("/items", h.addItem)
			r.Put("/items/{item_id}", h.updateItem)
			r.Delete("/items/{item_id}", h.deleteItem)

			r.Post("/discounts", h.addDiscount)
			r.Put("/discounts/{discount_id}", h.updateDiscount)
			r.Delete("/discounts/{discount_id}", h.deleteDiscount)

			r.Post("/transactions", h.addTransaction)
			r.Put("/transactions/{transaction_id}", h.updateTransaction)
			r.Delete("/transactions/{transaction_id}", h.deleteTransaction)

			r.Post("/charge", h.chargeOrder)
		})
	})
}

// Router returns a chi router with only the order routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}
