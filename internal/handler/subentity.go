package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

// Sub-entity endpoints respond with the whole order after the change, since
// every change recalculates the order totals.

func respondChanged(w http.ResponseWriter, r *http.Request, status int, o *order.Order, found bool, what string, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		notFound(w, r, what+" not found")
		return
	}
	writeJSON(w, status, newOrderResponse(o))
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, _, err := h.orders.AddItem(r.Context(), chi.URLParam(r, "id"), req.input())
	respondChanged(w, r, http.StatusCreated, o, true, "", err)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	itemID := chi.URLParam(r, "item_id")
	o, _, found, err := h.orders.UpdateItem(r.Context(), chi.URLParam(r, "id"), itemID, order.ItemPatch{
		ProductID: req.ProductID,
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	respondChanged(w, r, http.StatusOK, o, found, "item "+itemID, err)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	o, found, err := h.orders.DeleteItem(r.Context(), chi.URLParam(r, "id"), itemID)
	respondChanged(w, r, http.StatusOK, o, found, "item "+itemID, err)
}

func (h *Handler) addDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, _, err := h.orders.AddDiscount(r.Context(), chi.URLParam(r, "id"), order.DiscountInput{
		Kind:   req.Kind,
		Value:  req.Value,
		Scope:  req.Scope,
		ItemID: req.ItemID,
		Code:   req.Code,
	})
	respondChanged(w, r, http.StatusCreated, o, true, "", err)
}

func (h *Handler) updateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	discountID := chi.URLParam(r, "discount_id")
	o, _, found, err := h.orders.UpdateDiscount(r.Context(), chi.URLParam(r, "id"), discountID, order.DiscountPatch{
		Kind:   req.Kind,
		Value:  req.Value,
		Scope:  req.Scope,
		ItemID: req.ItemID,
		Code:   req.Code,
	})
	respondChanged(w, r, http.StatusOK, o, found, "discount "+discountID, err)
}

func (h *Handler) deleteDiscount(w http.ResponseWriter, r *http.Request) {
	discountID := chi.URLParam(r, "discount_id")
	o, found, err := h.orders.DeleteDiscount(r.Context(), chi.URLParam(r, "id"), discountID)
	respondChanged(w, r, http.StatusOK, o, found, "discount "+discountID, err)
}

func (h *Handler) addTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	o, _, err := h.orders.AddTransaction(r.Context(), chi.URLParam(r, "id"), order.TransactionInput{
		Type:             req.Type,
		Amount:           req.Amount,
		GatewayReference: req.GatewayReference,
		Outcome:          req.Outcome,
		FailureReason:    req.FailureReason,
		Correction:       req.Correction,
	})
	respondChanged(w, r, http.StatusCreated, o, true, "", err)
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	txID := chi.URLParam(r, "transaction_id")
	o, _, found, err := h.orders.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), txID, order.TransactionPatch{
		Amount:           req.Amount,
		GatewayReference: req.GatewayReference,
		Outcome:          req.Outcome,
		FailureReason:    req.FailureReason,
		Correction:       req.Correction,
	})
	respondChanged(w, r, http.StatusOK, o, found, "transaction "+txID, err)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	var correction bool
	if raw := r.URL.Query().Get("correction"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, r, "correction must be a boolean")
			return
		}
		correction = v
	}
	txID := chi.URLParam(r, "transaction_id")
	o, found, err := h.orders.DeleteTransaction(r.Context(), chi.URLParam(r, "id"), txID, correction)
	respondChanged(w, r, http.StatusOK, o, found, "transaction "+txID, err)
}
