package order

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ItemInput describes a new line item.
type ItemInput struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (in ItemInput) item() (Item, error) {
	it := Item{
		ProductID: strings.TrimSpace(in.ProductID),
		Name:      strings.TrimSpace(in.Name),
		Quantity:  in.Quantity,
		UnitPrice: in.UnitPrice,
	}
	return it, validateItem(it)
}

func validateItem(it Item) error {
	if it.ProductID == "" {
		return invalid("product_id", "required")
	}
	if it.Quantity <= 0 {
		return invalid("quantity", "must be greater than 0")
	}
	if it.UnitPrice.IsNegative() {
		return invalid("unit_price", "must not be negative")
	}
	return nil
}

// ItemPatch updates an item. Nil fields are left unchanged.
type ItemPatch struct {
	ProductID *string
	Name      *string
	Quantity  *int
	UnitPrice *decimal.Decimal
}

func (p ItemPatch) apply(it Item) Item {
	if p.ProductID != nil {
		it.ProductID = strings.TrimSpace(*p.ProductID)
	}
	if p.Name != nil {
		it.Name = strings.TrimSpace(*p.Name)
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		it.UnitPrice = *p.UnitPrice
	}
	return it
}

func requireDraft(o *Order, op string) error {
	if o.Status != StatusDraft {
		return &StateError{OrderID: o.ID, Op: op, Status: o.Status}
	}
	return nil
}

// AddItem appends a line item to a draft order. It returns the saved order
// and the item with derived line totals.
func (s *Service) AddItem(ctx context.Context, orderID string, in ItemInput) (*Order, Item, error) {
	it, err := in.item()
	if err != nil {
		return nil, Item{}, err
	}
	it.ID = s.newID()
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "add item to"); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
		return nil
	})
	if err != nil {
		return nil, Item{}, err
	}
	return o, o.Items[o.findItem(it.ID)], nil
}

// UpdateItem patches an item of a draft order. It reports false without an
// error when the item does not exist.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID string, p ItemPatch) (*Order, Item, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "update item of"); err != nil {
			return err
		}
		idx := o.findItem(itemID)
		if idx < 0 {
			return errAbsent
		}
		it := p.apply(o.Items[idx])
		if err := validateItem(it); err != nil {
			return err
		}
		o.Items[idx] = it
		return nil
	})
	if errors.Is(err, errAbsent) {
		return nil, Item{}, false, nil
	}
	if err != nil {
		return nil, Item{}, false, err
	}
	return o, o.Items[o.findItem(itemID)], true, nil
}

// DeleteItem removes an item and any item-scoped discounts attached to it.
// It reports false without an error when the item does not exist.
func (s *Service) DeleteItem(ctx context.Context, orderID, itemID string) (*Order, bool, error) {
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if err := requireDraft(o, "delete item of"); err != nil {
			return err
		}
		idx := o.findItem(itemID)
		if idx < 0 {
			return errAbsent
		}
		if len(o.Items) == 1 && !s.cfg.AllowEmptyOrders {
			return invalid("items", "cannot remove the last item")
		}
		o.Items = slices.Delete(o.Items, idx, idx+1)
		o.Discounts = slices.DeleteFunc(o.Discounts, func(d Discount) bool {
			return d.Scope == ScopeItem && d.ItemID == itemID
		})
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
