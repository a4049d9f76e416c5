package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-orders/internal/domain/order"
	"github.com/xenking/oolio-orders/pkg/httpmiddleware"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error       string               `json:"error"`
	Message     string               `json:"message"`
	Status      int                  `json:"status"`
	Field       string               `json:"field,omitempty"`
	RequestID   string               `json:"request_id,omitempty"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, resp errorResponse) {
	resp.RequestID = httpmiddleware.RequestIDFromContext(r.Context())
	writeJSON(w, resp.Status, resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, errorResponse{Error: "invalid_request", Message: msg, Status: http.StatusBadRequest})
}

func notFound(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, errorResponse{Error: "not_found", Message: msg, Status: http.StatusNotFound})
}

// serviceError maps an order.Service error onto a status code.
func serviceError(err error) errorResponse {
	var (
		gwErr  *order.GatewayError
		valErr *order.ValidationError
	)
	switch {
	case errors.As(err, &gwErr):
		if gwErr.Outcome == order.ChargeDeclined {
			return errorResponse{Error: "payment_declined", Message: err.Error(), Status: http.StatusPaymentRequired}
		}
		return errorResponse{Error: "gateway_unreachable", Message: err.Error(), Status: http.StatusBadGateway}
	case errors.Is(err, order.ErrNotFound):
		return errorResponse{Error: "not_found", Message: err.Error(), Status: http.StatusNotFound}
	case errors.As(err, &valErr):
		return errorResponse{Error: "validation_failed", Message: err.Error(), Status: http.StatusUnprocessableEntity, Field: valErr.Field}
	case errors.Is(err, order.ErrValidation):
		return errorResponse{Error: "validation_failed", Message: err.Error(), Status: http.StatusUnprocessableEntity}
	case errors.Is(err, order.ErrInvalidState):
		return errorResponse{Error: "invalid_state", Message: err.Error(), Status: http.StatusConflict}
	case errors.Is(err, order.ErrConflict):
		return errorResponse{Error: "conflict", Message: err.Error(), Status: http.StatusConflict}
	}
	return errorResponse{Error: "internal", Message: "internal server error", Status: http.StatusInternalServerError}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := serviceError(err)
	if resp.Status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Order request failed", zap.Error(err))
	}
	writeError(w, r, resp)
}
