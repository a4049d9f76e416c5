package order

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountInput describes a new discount. An empty Scope means ScopeOrder.
type DiscountInput struct {
	Kind   DiscountKind
	Value  decimal.Decimal
	Scope  DiscountScope
	ItemID string
	Code   string
}

// DiscountPatch updates a discount. Nil fields are left unchanged.
type DiscountPatch struct {
	Kind   *DiscountKind
	Value  *decimal.Decimal
	Scope  *DiscountScope
	ItemID *string
	Code   *string
}

func (p DiscountPatch) apply(d Discount) Discount {
	if p.Kind != nil {
		d.Kind = *p.Kind
	}
	if p.Value != nil {
		d.Value = *p.Value
	}
	if p.Scope != nil {
		d.Scope = *p.Scope
	}
	if p.ItemID != nil {
		d.ItemID = strings.TrimSpace(*p.ItemID)
	}
	if p.Code != nil {
		d.Code = strings.TrimSpace(*p.Code)
	}
	if d.Scope == ScopeOrder {
		d.ItemID = ""
	}
	return d
}

func (in DiscountInput) discount() (Discount, error) {
	d := Discount{
		Kind:   in.Kind,
		Value:  in.Value,
		Scope:  in.Scope,
		ItemID: strings.TrimSpace(in.ItemID),
		Code:   strings.TrimSpace(in.Code),
	}
	if d.Scope == "" {
		d.Scope = ScopeOrder
	}
	return d, validateDiscount(d)
}

// validateDiscount checks the discount on its own. Item references are
// checked against the order separately.
func validateDiscount(d Discount) error {
	switch d.Kind {
	case DiscountFixed:
	case DiscountPercentage:
		if d.Value.GreaterThan(hundred) {
			return invalid("value", "percentage must not exceed 100")
		}
	default:
		return invalid("kind", "must be fixed or percentage")
	}
	if !d.Value.IsPositive() {
		return invalid("value", "must be greater than 0")
	}
	switch d.Scope {
	case ScopeOrder:
		if d.ItemID != "" {
			return invalid("item_id", "must be empty for order-level discounts")
		}
	case ScopeItem:
		if d.ItemID == "" {
			return invalid("item_id", "required for item-level discounts")
		}
	default:
		return invalid("scope", "must be order or item")
	}
	return nil
}

func checkDiscountTarget(o *Order, d Discount) error {
	if d.Scope == ScopeItem && o.findItem(d.ItemID) < 0 {
		return invalid("item_id", "no such item in order")
	}
	return nil
}

// AddDiscount appends a discount to a draft order. Discounts apply in the
// order they were added.
func (s *Service) AddDiscount(ctx context.Context, orderID string, in DiscountInput) (*Order, Discount, error) {
	d, err := in.discount()
	if err != nil {
		return nil, Discount{}, err
	}
	d.ID = s.newID()
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "add discount to"); err != nil {
			return err
		}
		if err := checkDiscountTarget(o, d); err != nil {
			return err
		}
		o.Discounts = append(o.Discounts, d)
		return nil
	})
	if err != nil {
		return nil, Discount{}, err
	}
	return o, o.Discounts[o.findDiscount(d.ID)], nil
}

// UpdateDiscount patches a discount of a draft order in place, keeping its
// position. It reports false without an error when the discount does not
// exist.
func (s *Service) UpdateDiscount(ctx context.Context, orderID, discountID string, p DiscountPatch) (*Order, Discount, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "update discount of"); err != nil {
			return err
		}
		idx := o.findDiscount(discountID)
		if idx < 0 {
			return errAbsent
		}
		d := p.apply(o.Discounts[idx])
		if err := validateDiscount(d); err != nil {
			return err
		}
		if err := checkDiscountTarget(o, d); err != nil {
			return err
		}
		o.Discounts[idx] = d
		return nil
	})
	if errors.Is(err, errAbsent) {
		return nil, Discount{}, false, nil
	}
	if err != nil {
		return nil, Discount{}, false, err
	}
	return o, o.Discounts[o.findDiscount(discountID)], true, nil
}

// DeleteDiscount removes a discount. It reports false without an error when
// the discount does not exist.
func (s *Service) DeleteDiscount(ctx context.Context, orderID, discountID string) (*Order, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "delete discount of"); err != nil {
			return err
		}
		idx := o.findDiscount(discountID)
		if idx < 0 {
			return errAbsent
		}
		o.Discounts = slices.Delete(o.Discounts, idx, idx+1)
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
