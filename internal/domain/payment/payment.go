// Package payment defines the capability the order core needs from a
// payment service provider.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the normalised result of a capture attempt.
type Status string

const (
	// StatusSucceeded means the provider captured the funds.
	StatusSucceeded Status = "succeeded"
	// StatusDeclined means the provider was reached and refused the capture.
	StatusDeclined Status = "declined"
	// StatusUnreachable means the provider could not be reached or timed out.
	StatusUnreachable Status = "unreachable"
	// StatusProcessing means the provider accepted the capture but has not
	// settled it yet. The funds may still be captured.
	StatusProcessing Status = "processing"
)

// CaptureRequest describes a single authorize-and-capture attempt.
type CaptureRequest struct {
	OrderID string
	// IdempotencyKey is stable per attempt; providers must not capture twice
	// for the same key.
	IdempotencyKey string
	Amount         decimal.Decimal
	Currency       string
}

// Result is what the provider reported.
type Result struct {
	Status    Status
	Reference string
	Reason    string
}

// Gateway authorizes and captures funds for an order in one step.
//
// A returned error means the outcome is unknown to the caller (transport
// failure, timeout); it is treated the same as StatusUnreachable.
type Gateway interface {
	AuthorizeAndCapture(ctx context.Context, req CaptureRequest) (Result, error)
}
