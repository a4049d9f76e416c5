package order

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ShippingRule prices shipping for the discounted merchandise total.
type ShippingRule interface {
	Shipping(merchandise decimal.Decimal, itemCount int) decimal.Decimal
}

// TaxRule computes tax for the discounted merchandise total and shipping.
type TaxRule interface {
	Tax(merchandise, shipping decimal.Decimal, shipTo *Address) decimal.Decimal
}

// FlatShipping charges Amount per order, waived when the merchandise total
// reaches FreeOver (if FreeOver is positive). Empty orders ship for free.
type FlatShipping struct {
	Amount   decimal.Decimal
	FreeOver decimal.Decimal
}

func (s FlatShipping) Shipping(merchandise decimal.Decimal, itemCount int) decimal.Decimal {
	if itemCount == 0 {
		return decimal.Zero
	}
	if s.FreeOver.IsPositive() && merchandise.GreaterThanOrEqual(s.FreeOver) {
		return decimal.Zero
	}
	return s.Amount
}

// PercentTax applies Rate percent to merchandise, and to shipping when
// IncludeShipping is set.
type PercentTax struct {
	Rate            decimal.Decimal
	IncludeShipping bool
}

func (t PercentTax) Tax(merchandise, shipping decimal.Decimal, _ *Address) decimal.Decimal {
	base := merchandise
	if t.IncludeShipping {
		base = base.Add(shipping)
	}
	return base.Mul(t.Rate).Div(hundred)
}

// Input is everything Compute needs. It is not modified.
type Input struct {
	Currency     string
	Items        []Item
	Discounts    []Discount
	Transactions []Transaction
	ShipTo       *Address
	Shipping     ShippingRule
	Tax          TaxRule
}

// Result carries the order totals plus copies of the items and discounts
// with their derived fields filled in.
type Result struct {
	Totals    Totals
	Items     []Item
	Discounts []Discount
}

// Compute derives all totals. It is deterministic: the same input always
// yields the same result. Rounding happens once per line, once per applied
// discount and once for tax and shipping, never on running sums.
func Compute(in Input) Result {
	places := minorUnits(in.Currency)

	items := make([]Item, len(in.Items))
	copy(items, in.Items)
	discounts := make([]Discount, len(in.Discounts))
	copy(discounts, in.Discounts)

	subtotal := decimal.Zero
	itemDiscounts := decimal.Zero
	for i := range items {
		it := &items[i]
		it.Gross = roundMoney(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))), places)
		running := it.Gross
		applied := decimal.Zero
		for j := range discounts {
			d := &discounts[j]
			if d.Scope != ScopeItem || d.ItemID != it.ID {
				continue
			}
			d.Amount = discountAmount(*d, running, places)
			running = running.Sub(d.Amount)
			applied = applied.Add(d.Amount)
		}
		it.Discount = applied
		it.Total = running
		subtotal = subtotal.Add(it.Gross)
		itemDiscounts = itemDiscounts.Add(applied)
	}

	running := subtotal.Sub(itemDiscounts)
	orderDiscounts := decimal.Zero
	for j := range discounts {
		d := &discounts[j]
		switch d.Scope {
		case ScopeOrder:
			d.Amount = discountAmount(*d, running, places)
			running = running.Sub(d.Amount)
			orderDiscounts = orderDiscounts.Add(d.Amount)
		case ScopeItem:
			if !hasItem(items, d.ItemID) {
				d.Amount = decimal.Zero
			}
		}
	}

	shipping := decimal.Zero
	if in.Shipping != nil {
		shipping = roundMoney(floorAtZero(in.Shipping.Shipping(running, len(items))), places)
	}
	tax := decimal.Zero
	if in.Tax != nil {
		tax = roundMoney(floorAtZero(in.Tax.Tax(running, shipping, in.ShipTo)), places)
	}

	t := Totals{
		Subtotal:      subtotal,
		DiscountTotal: itemDiscounts.Add(orderDiscounts),
		ShippingTotal: shipping,
		TaxTotal:      tax,
		PaidTotal:     PaidTotal(in.Transactions),
	}
	t.GrandTotal = t.Subtotal.Sub(t.DiscountTotal).Add(t.ShippingTotal).Add(t.TaxTotal)
	t.BalanceDue = t.GrandTotal.Sub(t.PaidTotal)

	return Result{Totals: t, Items: items, Discounts: discounts}
}

// PaidTotal sums succeeded charges minus succeeded refunds. Adjustments and
// unsettled transactions do not move the paid total.
func PaidTotal(txs []Transaction) decimal.Decimal {
	paid := decimal.Zero
	for _, t := range txs {
		if t.Outcome != OutcomeSucceeded {
			continue
		}
		switch t.Type {
		case TransactionCharge:
			paid = paid.Add(t.Amount)
		case TransactionRefund:
			paid = paid.Sub(t.Amount)
		}
	}
	return paid
}

// discountAmount returns the rounded amount d takes off running, capped so
// running never drops below zero.
func discountAmount(d Discount, running decimal.Decimal, places int32) decimal.Decimal {
	if !running.IsPositive() {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch d.Kind {
	case DiscountPercentage:
		amount = running.Mul(d.Value).Div(hundred)
	case DiscountFixed:
		amount = d.Value
	default:
		return decimal.Zero
	}
	amount = roundMoney(floorAtZero(amount), places)
	return decimal.Min(amount, running)
}

func hasItem(items []Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
