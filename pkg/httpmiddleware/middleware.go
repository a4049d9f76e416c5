// Package httpmiddleware contains the net/http middleware chain of the order
// API server.
package httpmiddleware

import (
	"encoding/json"
	"net/http"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies mws to h. The first middleware is the outermost one.
func Wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// writeError writes the JSON error envelope shared with the API handlers.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	body := map[string]any{
		"error":   code,
		"message": msg,
		"status":  status,
	}
	if id := RequestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
