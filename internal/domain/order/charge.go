package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/oolio-orders/internal/domain/payment"
)

// ChargeOutcome distinguishes a capture from the two retryable failures and
// from a capture the gateway has not settled yet.
type ChargeOutcome string

const (
	// ChargeSucceeded means the gateway acknowledged the capture.
	ChargeSucceeded ChargeOutcome = "succeeded"
	// ChargeDeclined means the gateway was reached and refused.
	ChargeDeclined ChargeOutcome = "declined"
	// ChargeUnreachable means the gateway failed or timed out.
	ChargeUnreachable ChargeOutcome = "unreachable"
	// ChargeProcessing means the gateway accepted the capture without
	// settling it. The charge transaction stays pending, which blocks further
	// charges until it is resolved by a correction.
	ChargeProcessing ChargeOutcome = "processing"
)

// ChargeResult is returned by Charge for every outcome the gateway produced.
type ChargeResult struct {
	Outcome     ChargeOutcome
	Order       *Order
	Transaction Transaction
}

// resolveAttempts bounds retries of the final write when another process
// saved the order in between.
const resolveAttempts = 3

// Charge captures the balance due of a checkout_pending order.
//
// A pending charge transaction is saved before the gateway is called and the
// order lock is not held during the call, so readers see the in-flight
// charge and a concurrent Charge fails with ErrConflict. Declined and
// unreachable outcomes return both the result and a *GatewayError; the
// transaction is then failed and the order can be charged again. A
// processing outcome also returns a *GatewayError but leaves the
// transaction pending.
func (s *Service) Charge(ctx context.Context, id string) (*ChargeResult, error) {
	var tx Transaction
	o, err := s.mutate(ctx, id, func(o *Order) error {
		if o.Status != StatusCheckoutPending {
			return &StateError{OrderID: id, Op: "charge", Status: o.Status}
		}
		if _, ok := o.pendingCharge(); ok {
			return conflictf("order %s already has a charge in flight", id)
		}
		s.recalc(o)
		if !o.Totals.BalanceDue.IsPositive() {
			return errors.Wrapf(ErrInvalidState, "order %s has no balance due", id)
		}
		now := s.now()
		tx = Transaction{
			ID:        s.newID(),
			Type:      TransactionCharge,
			Amount:    o.Totals.BalanceDue,
			Outcome:   OutcomePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		o.Transactions = append(o.Transactions, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := s.capture(ctx, o, tx)

	// The outcome must be recorded even if the caller went away meanwhile.
	rctx := context.WithoutCancel(ctx)
	var final *Order
	for attempt := 1; ; attempt++ {
		final, err = s.resolveCharge(rctx, id, tx.ID, res)
		if err == nil || !errors.Is(err, ErrConflict) || attempt == resolveAttempts {
			break
		}
	}
	if err != nil {
		zctx.From(ctx).Error("Failed to record charge outcome",
			zap.String("order_id", id),
			zap.String("transaction_id", tx.ID),
			zap.String("outcome", string(res.outcome)),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "record charge outcome")
	}

	s.metrics.charge(ctx, res.outcome)
	result := &ChargeResult{
		Outcome:     res.outcome,
		Order:       final,
		Transaction: final.Transactions[final.findTransaction(tx.ID)],
	}
	if res.outcome != ChargeSucceeded {
		return result, &GatewayError{
			OrderID:       id,
			TransactionID: tx.ID,
			Outcome:       res.outcome,
			Reason:        res.reason,
		}
	}
	return result, nil
}

type captureResult struct {
	outcome   ChargeOutcome
	reference string
	reason    string
}

func (s *Service) capture(ctx context.Context, o *Order, tx Transaction) captureResult {
	if s.cfg.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
	}
	ctx, span := s.tracer.Start(ctx, "payment.AuthorizeAndCapture",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("order.id", o.ID),
			attribute.String("transaction.id", tx.ID),
			attribute.String("currency", o.Currency),
		),
	)
	defer span.End()

	r, err := s.gateway.AuthorizeAndCapture(ctx, payment.CaptureRequest{
		OrderID:        o.ID,
		IdempotencyKey: tx.ID,
		Amount:         tx.Amount,
		Currency:       o.Currency,
	})
	var res captureResult
	switch {
	case err != nil:
		span.RecordError(err)
		res = captureResult{outcome: ChargeUnreachable, reason: err.Error()}
	case r.Status == payment.StatusSucceeded:
		res = captureResult{outcome: ChargeSucceeded, reference: r.Reference}
	case r.Status == payment.StatusDeclined:
		res = captureResult{outcome: ChargeDeclined, reference: r.Reference, reason: r.Reason}
	case r.Status == payment.StatusProcessing:
		res = captureResult{outcome: ChargeProcessing, reference: r.Reference, reason: r.Reason}
	default:
		res = captureResult{outcome: ChargeUnreachable, reference: r.Reference, reason: r.Reason}
	}
	if res.outcome != ChargeSucceeded {
		span.SetStatus(codes.Error, string(res.outcome))
	}
	span.SetAttributes(attribute.String("outcome", string(res.outcome)))

	zctx.From(ctx).Info("Gateway capture",
		zap.String("order_id", o.ID),
		zap.String("transaction_id", tx.ID),
		zap.String("amount", tx.Amount.String()),
		zap.String("outcome", string(res.outcome)),
		zap.String("reason", res.reason),
	)
	return res
}

func (s *Service) resolveCharge(ctx context.Context, id, txID string, res captureResult) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		idx := o.findTransaction(txID)
		if idx < 0 || o.Transactions[idx].Outcome != OutcomePending {
			return conflictf("charge %s of order %s was resolved concurrently", txID, id)
		}
		t := &o.Transactions[idx]
		if res.reference != "" {
			ref := res.reference
			t.GatewayReference = &ref
		}
		switch res.outcome {
		case ChargeSucceeded:
			t.Outcome = OutcomeSucceeded
		case ChargeProcessing:
			// Stays pending with the gateway reference recorded.
		default:
			t.Outcome = OutcomeFailed
			t.FailureReason = res.reason
			if t.FailureReason == "" {
				t.FailureReason = string(res.outcome)
			}
		}
		t.UpdatedAt = s.now()
		return nil
	})
}
