package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

// decodeJSON reads a single JSON object from the request body. An empty
// body decodes as the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("%s must be an integer", key)
	}
	return v, nil
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	orders, err := h.orders.List(r.Context(), order.ListFilter{
		Status: order.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	in := order.CreateRequest{
		Currency:        req.Currency,
		Email:           req.Email,
		Note:            req.Note,
		BillingAddress:  req.BillingAddress.addressPtr(),
		ShippingAddress: req.ShippingAddress.addressPtr(),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, it.input())
	}
	o, err := h.orders.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), order.UpdateRequest{
		Email:    req.Email,
		Note:     req.Note,
		Currency: req.Currency,
	})
	h.respondOrder(w, r, o, err)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := h.orders.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		notFound(w, r, "order "+id+" not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recalculateOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Recalculate(r.Context(), chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) checkoutOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Checkout(r.Context(), chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Close(r.Context(), chi.URLParam(r, "id"))
	h.respondOrder(w, r, o, err)
}

func (h *Handler) setBillingAddress(w http.ResponseWriter, r *http.Request) {
	var req addressJSON
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, err := h.orders.SetBillingAddress(r.Context(), chi.URLParam(r, "id"), req.address())
	h.respondOrder(w, r, o, err)
}

func (h *Handler) setShippingAddress(w http.ResponseWriter, r *http.Request) {
	var req addressJSON
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, err := h.orders.SetShippingAddress(r.Context(), chi.URLParam(r, "id"), req.address())
	h.respondOrder(w, r, o, err)
}

func (h *Handler) chargeOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Charge(r.Context(), chi.URLParam(r, "id"))
	if res != nil && res.Outcome == order.ChargeProcessing {
		writeJSON(w, http.StatusAccepted, chargeResponse{
			Outcome:     res.Outcome,
			Transaction: newTransactionResponse(res.Transaction),
			Order:       newOrderResponse(res.Order),
		})
		return
	}
	if err != nil {
		resp := serviceError(err)
		if res != nil {
			tx := newTransactionResponse(res.Transaction)
			resp.Transaction = &tx
		}
		if resp.Status == http.StatusInternalServerError {
			writeServiceError(w, r, err)
			return
		}
		writeError(w, r, resp)
		return
	}
	writeJSON(w, http.StatusOK, chargeResponse{
		Outcome:     res.Outcome,
		Transaction: newTransactionResponse(res.Transaction),
		Order:       newOrderResponse(res.Order),
	})
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
