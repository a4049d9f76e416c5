package order

import (
	"context"

	"github.com/go-faster/errors"
)

// Checkout freezes the composition of a draft order and awaits payment.
func (s *Service) Checkout(ctx context.Context, id string) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status != StatusDraft {
			return &StateError{OrderID: id, Op: "checkout", Status: o.Status}
		}
		if len(o.Items) == 0 {
			return invalid("items", "order has no items")
		}
		s.transition(ctx, o, StatusCheckoutPending)
		return nil
	})
}

// Cancel moves a draft or checkout_pending order to cancelled. Paid orders
// must be refunded first.
func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status != StatusDraft && o.Status != StatusCheckoutPending {
			return &StateError{OrderID: id, Op: "cancel", Status: o.Status}
		}
		if _, ok := o.pendingCharge(); ok {
			return conflictf("order %s has a charge in flight", id)
		}
		s.transition(ctx, o, StatusCancelled)
		return nil
	})
}

// Close marks fulfillment of a paid order complete.
func (s *Service) Close(ctx context.Context, id string) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status != StatusPaid {
			return &StateError{OrderID: id, Op: "close", Status: o.Status}
		}
		s.transition(ctx, o, StatusClosed)
		return nil
	})
}

// Recalculate recomputes derived totals from the current sub-entities. The
// order is only written when the totals actually changed, so repeated calls
// have no effect.
func (s *Service) Recalculate(ctx context.Context, id string) (*Order, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, &StateError{OrderID: id, Op: "recalculate", Status: o.Status}
	}
	s.metrics.recalcs.Add(ctx, 1)

	before := o.Clone()
	s.recalc(o)
	s.reconcile(ctx, o)
	if o.Status == before.Status && derivedEqual(before, o) {
		return o, nil
	}
	o.UpdatedAt = s.now()
	if err := s.store.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

func derivedEqual(a, b *Order) bool {
	if !a.Totals.Equal(b.Totals) || len(a.Items) != len(b.Items) || len(a.Discounts) != len(b.Discounts) {
		return false
	}
	for i := range a.Items {
		x, y := a.Items[i], b.Items[i]
		if !x.Gross.Equal(y.Gross) || !x.Discount.Equal(y.Discount) || !x.Total.Equal(y.Total) {
			return false
		}
	}
	for i := range a.Discounts {
		if !a.Discounts[i].Amount.Equal(b.Discounts[i].Amount) {
			return false
		}
	}
	return true
}

// Equal compares totals by value, ignoring decimal scale.
func (t Totals) Equal(u Totals) bool {
	return t.Subtotal.Equal(u.Subtotal) &&
		t.DiscountTotal.Equal(u.DiscountTotal) &&
		t.ShippingTotal.Equal(u.ShippingTotal) &&
		t.TaxTotal.Equal(u.TaxTotal) &&
		t.GrandTotal.Equal(u.GrandTotal) &&
		t.PaidTotal.Equal(u.PaidTotal) &&
		t.BalanceDue.Equal(u.BalanceDue)
}
