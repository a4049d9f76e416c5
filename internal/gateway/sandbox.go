package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-orders/internal/domain/payment"
)

// SandboxConfig controls the sandbox gateway.
type SandboxConfig struct {
	// Limit declines captures above it when positive.
	Limit decimal.Decimal
	// Latency delays every capture.
	Latency time.Duration
	// Offline makes every capture fail as unreachable.
	Offline bool
}

// Sandbox is an in-process gateway for development and tests. It honours
// idempotency keys: a repeated key returns the first result without
// capturing again.
type Sandbox struct {
	cfg SandboxConfig

	mu       sync.Mutex
	results  map[string]payment.Result
	captured map[string]decimal.Decimal
}

var _ payment.Gateway = (*Sandbox)(nil)

func NewSandbox(cfg SandboxConfig) *Sandbox {
	return &Sandbox{
		cfg:      cfg,
		results:  make(map[string]payment.Result),
		captured: make(map[string]decimal.Decimal),
	}
}

func (s *Sandbox) AuthorizeAndCapture(ctx context.Context, req payment.CaptureRequest) (payment.Result, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return payment.Result{}, ctx.Err()
		}
	}
	if s.cfg.Offline {
		return payment.Result{Status: payment.StatusUnreachable, Reason: "sandbox offline"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}

	res := payment.Result{Reference: "sbx_" + ulid.Make().String()}
	switch {
	case !req.Amount.IsPositive():
		res.Status = payment.StatusDeclined
		res.Reason = "invalid_amount"
	case s.cfg.Limit.IsPositive() && req.Amount.GreaterThan(s.cfg.Limit):
		res.Status = payment.StatusDeclined
		res.Reason = "limit_exceeded"
	default:
		res.Status = payment.StatusSucceeded
		s.captured[req.OrderID] = s.captured[req.OrderID].Add(req.Amount)
	}
	if req.IdempotencyKey != "" {
		s.results[req.IdempotencyKey] = res
	}
	return res, nil
}

// Captured returns the total captured for an order.
func (s *Sandbox) Captured(orderID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captured[orderID]
}

// Ping fails while the sandbox is offline.
func (s *Sandbox) Ping(context.Context) error {
	if s.cfg.Offline {
		return errors.New("sandbox offline")
	}
	return nil
}
