package order

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// TransactionInput records a money movement. An empty Outcome means the
// movement already happened (OutcomeSucceeded). Correction allows the write
// on terminal orders.
type TransactionInput struct {
	Type             TransactionType
	Amount           decimal.Decimal
	GatewayReference *string
	Outcome          Outcome
	FailureReason    string
	Correction       bool
}

// TransactionPatch updates a transaction. Nil fields are left unchanged.
// Settled transactions and in-flight charges only accept corrections.
type TransactionPatch struct {
	Amount           *decimal.Decimal
	GatewayReference *string
	Outcome          *Outcome
	FailureReason    *string
	Correction       bool
}

func (p TransactionPatch) apply(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.GatewayReference != nil {
		ref := strings.TrimSpace(*p.GatewayReference)
		t.GatewayReference = &ref
		if ref == "" {
			t.GatewayReference = nil
		}
	}
	if p.Outcome != nil {
		t.Outcome = *p.Outcome
	}
	if p.FailureReason != nil {
		t.FailureReason = *p.FailureReason
	}
	return t
}

func validateTransaction(t Transaction) error {
	switch t.Type {
	case TransactionCharge, TransactionRefund:
		if !t.Amount.IsPositive() {
			return invalid("amount", "must be greater than 0")
		}
	case TransactionAdjustment:
		if t.Amount.IsZero() {
			return invalid("amount", "must not be zero")
		}
	default:
		return invalid("type", "must be charge, refund or adjustment")
	}
	switch t.Outcome {
	case OutcomePending, OutcomeSucceeded, OutcomeFailed:
	default:
		return invalid("outcome", "must be pending, succeeded or failed")
	}
	return nil
}

// checkLedger validates t against the other transactions of o. skip is the
// index of t when it replaces an existing transaction, -1 otherwise. While a
// charge is in flight no other charge may be recorded, whatever its outcome,
// unless the write is a correction.
func checkLedger(o *Order, t Transaction, skip int, correction bool) error {
	others := make([]Transaction, 0, len(o.Transactions))
	for i, x := range o.Transactions {
		if i != skip {
			others = append(others, x)
		}
	}
	if t.Type == TransactionCharge && !correction {
		if slices.ContainsFunc(others, func(x Transaction) bool {
			return x.Type == TransactionCharge && x.Outcome == OutcomePending
		}) {
			return conflictf("order %s already has a charge in flight", o.ID)
		}
	}
	if t.Type == TransactionRefund && t.Outcome == OutcomeSucceeded {
		if t.Amount.GreaterThan(PaidTotal(others)) {
			return invalid("amount", "refund exceeds paid total")
		}
	}
	return nil
}

func requireWritableLedger(o *Order, op string, correction bool) error {
	if o.Status.Terminal() && !correction {
		return &StateError{OrderID: o.ID, Op: op, Status: o.Status}
	}
	return nil
}

// requireMutable rejects changes to settled transactions and in-flight
// charges unless the write is a correction.
func requireMutable(t Transaction, correction bool) error {
	if correction {
		return nil
	}
	if t.Outcome.Settled() {
		return errors.Wrapf(ErrInvalidState, "transaction %s is %s", t.ID, t.Outcome)
	}
	if t.Type == TransactionCharge {
		return errors.Wrapf(ErrInvalidState, "charge %s is in flight", t.ID)
	}
	return nil
}

// AddTransaction records a transaction on a non-terminal order, or on a
// terminal order as a correction.
func (s *Service) AddTransaction(ctx context.Context, orderID string, in TransactionInput) (*Order, Transaction, error) {
	now := s.now()
	t := Transaction{
		ID:            s.newID(),
		Type:          in.Type,
		Amount:        in.Amount,
		Outcome:       in.Outcome,
		FailureReason: in.FailureReason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.Outcome == "" {
		t.Outcome = OutcomeSucceeded
	}
	if in.GatewayReference != nil {
		t = TransactionPatch{GatewayReference: in.GatewayReference}.apply(t)
	}
	if err := validateTransaction(t); err != nil {
		return nil, Transaction{}, err
	}
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireWritableLedger(o, "add transaction to", in.Correction); err != nil {
			return err
		}
		if err := checkLedger(o, t, -1, in.Correction); err != nil {
			return err
		}
		o.Transactions = append(o.Transactions, t)
		return nil
	})
	if err != nil {
		return nil, Transaction{}, err
	}
	return o, o.Transactions[o.findTransaction(t.ID)], nil
}

// UpdateTransaction patches a transaction. It reports false without an error
// when the transaction does not exist.
func (s *Service) UpdateTransaction(ctx context.Context, orderID, txID string, p TransactionPatch) (*Order, Transaction, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireWritableLedger(o, "update transaction of", p.Correction); err != nil {
			return err
		}
		idx := o.findTransaction(txID)
		if idx < 0 {
			return errAbsent
		}
		if err := requireMutable(o.Transactions[idx], p.Correction); err != nil {
			return err
		}
		t := p.apply(o.Transactions[idx])
		if err := validateTransaction(t); err != nil {
			return err
		}
		if err := checkLedger(o, t, idx, p.Correction); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		o.Transactions[idx] = t
		return nil
	})
	if errors.Is(err, errAbsent) {
		return nil, Transaction{}, false, nil
	}
	if err != nil {
		return nil, Transaction{}, false, err
	}
	return o, o.Transactions[o.findTransaction(txID)], true, nil
}

// DeleteTransaction removes a transaction. Only pending non-charge
// transactions can be removed without a correction. It reports false
// without an error when the transaction does not exist.
func (s *Service) DeleteTransaction(ctx context.Context, orderID, txID string, correction bool) (*Order, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireWritableLedger(o, "delete transaction of", correction); err != nil {
			return err
		}
		idx := o.findTransaction(txID)
		if idx < 0 {
			return errAbsent
		}
		if err := requireMutable(o.Transactions[idx], correction); err != nil {
			return err
		}
		o.Transactions = slices.Delete(o.Transactions, idx, idx+1)
		return nil
	})
	if errors.Is(err, errAbsent) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}
