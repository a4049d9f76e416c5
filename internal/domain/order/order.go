package order

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is an order lifecycle state.
type Status string

const (
	// StatusDraft is the initial state; items and discounts may change.
	StatusDraft Status = "draft"
	// StatusCheckoutPending means composition is frozen and payment is expected.
	StatusCheckoutPending Status = "checkout_pending"
	// StatusPaid means the balance has been captured.
	StatusPaid Status = "paid"
	// StatusCancelled is terminal.
	StatusCancelled Status = "cancelled"
	// StatusClosed is terminal; fulfillment is complete.
	StatusClosed Status = "closed"
)

// Terminal reports whether no further composition or payment change is allowed.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusClosed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusCheckoutPending, StatusPaid, StatusCancelled, StatusClosed:
		return true
	}
	return false
}

// Order is the aggregate root. Items, Discounts and Transactions keep their
// insertion order, which drives discount application.
type Order struct {
	ID              string
	Status          Status
	Currency        string
	Email           string
	Note            string
	BillingAddress  *Address
	ShippingAddress *Address
	Items           []Item
	Discounts       []Discount
	Transactions    []Transaction
	Totals          Totals
	// Version is the optimistic concurrency token maintained by the Store.
	// Zero means the order has never been saved.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Totals holds the derived financial fields. They are never set by callers.
type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	ShippingTotal decimal.Decimal
	TaxTotal      decimal.Decimal
	GrandTotal    decimal.Decimal
	PaidTotal     decimal.Decimal
	BalanceDue    decimal.Decimal
}

// Item is a line item.
type Item struct {
	ID        string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal

	// Derived line totals.
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// DiscountKind selects how a discount value is interpreted.
type DiscountKind string

const (
	// DiscountFixed subtracts Value as a money amount.
	DiscountFixed DiscountKind = "fixed"
	// DiscountPercentage subtracts Value percent of the running total.
	DiscountPercentage DiscountKind = "percentage"
)

// DiscountScope selects what a discount applies to.
type DiscountScope string

const (
	ScopeOrder DiscountScope = "order"
	ScopeItem  DiscountScope = "item"
)

// Discount reduces either one line (ScopeItem) or the order (ScopeOrder).
type Discount struct {
	ID     string
	Kind   DiscountKind
	Value  decimal.Decimal
	Scope  DiscountScope
	ItemID string
	Code   string

	// Amount is the money actually applied after capping.
	Amount decimal.Decimal
}

// TransactionType classifies a money movement attempt.
type TransactionType string

const (
	TransactionCharge     TransactionType = "charge"
	TransactionRefund     TransactionType = "refund"
	TransactionAdjustment TransactionType = "adjustment"
)

// Outcome is the settlement state of a transaction.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Settled reports whether the outcome is final.
func (o Outcome) Settled() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

// Transaction records an attempt to move money against an order.
type Transaction struct {
	ID               string
	Type             TransactionType
	Amount           decimal.Decimal
	GatewayReference *string
	Outcome          Outcome
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Address is a postal address. It is always replaced as a whole.
type Address struct {
	Recipient   string
	Lines       []string
	Locality    string
	Region      string
	PostalCode  string
	CountryCode string
}

func (o *Order) findItem(id string) int {
	return slices.IndexFunc(o.Items, func(it Item) bool { return it.ID == id })
}

func (o *Order) findDiscount(id string) int {
	return slices.IndexFunc(o.Discounts, func(d Discount) bool { return d.ID == id })
}

func (o *Order) findTransaction(id string) int {
	return slices.IndexFunc(o.Transactions, func(t Transaction) bool { return t.ID == id })
}

// pendingCharge returns the in-flight charge transaction, if any.
func (o *Order) pendingCharge() (Transaction, bool) {
	for _, t := range o.Transactions {
		if t.Type == TransactionCharge && t.Outcome == OutcomePending {
			return t, true
		}
	}
	return Transaction{}, false
}

// Clone returns a deep copy so callers cannot alias stored state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.BillingAddress = o.BillingAddress.clone()
	c.ShippingAddress = o.ShippingAddress.clone()
	c.Items = slices.Clone(o.Items)
	c.Discounts = slices.Clone(o.Discounts)
	c.Transactions = slices.Clone(o.Transactions)
	for i := range c.Transactions {
		if ref := c.Transactions[i].GatewayReference; ref != nil {
			v := *ref
			c.Transactions[i].GatewayReference = &v
		}
	}
	return &c
}

func (a *Address) clone() *Address {
	if a == nil {
		return nil
	}
	c := *a
	c.Lines = slices.Clone(a.Lines)
	return &c
}
