package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error kinds. Every error returned by Service wraps exactly one of these, so
// callers can classify with errors.Is.
var (
	// ErrNotFound is returned when the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidState is returned when an operation is not legal in the
	// order's current lifecycle state.
	ErrInvalidState = errors.New("invalid order state")
	// ErrValidation is returned for malformed input, before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned on concurrent modification or a second charge
	// while one is in flight. Callers should re-read and retry.
	ErrConflict = errors.New("order conflict")
	// ErrGateway is returned when the payment gateway declined or could not
	// be reached. The order is left re-chargeable.
	ErrGateway = errors.New("payment gateway error")
)

// StateError describes a rejected lifecycle operation.
type StateError struct {
	OrderID string
	Op      string
	Status  Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in status %s", e.Op, e.OrderID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// ValidationError describes a malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// GatewayError reports a charge the gateway did not accept.
type GatewayError struct {
	OrderID       string
	TransactionID string
	Outcome       ChargeOutcome
	Reason        string
}

func (e *GatewayError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("charge %s for order %s: %s", e.TransactionID, e.OrderID, e.Outcome)
	}
	return fmt.Sprintf("charge %s for order %s: %s: %s", e.TransactionID, e.OrderID, e.Outcome, e.Reason)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }

func conflictf(format string, args ...any) error {
	return errors.Wrapf(ErrConflict, format, args...)
}
