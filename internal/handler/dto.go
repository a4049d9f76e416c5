package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

// Money fields use decimal.Decimal, which encodes as a JSON string and
// decodes from either a string or a number.

type addressJSON struct {
	Recipient   string   `json:"recipient"`
	Lines       []string `json:"lines"`
	Locality    string   `json:"locality"`
	Region      string   `json:"region,omitempty"`
	PostalCode  string   `json:"postal_code,omitempty"`
	CountryCode string   `json:"country_code"`
}

func (a *addressJSON) address() order.Address {
	return order.Address{
		Recipient:   a.Recipient,
		Lines:       a.Lines,
		Locality:    a.Locality,
		Region:      a.Region,
		PostalCode:  a.PostalCode,
		CountryCode: a.CountryCode,
	}
}

func (a *addressJSON) addressPtr() *order.Address {
	if a == nil {
		return nil
	}
	addr := a.address()
	return &addr
}

func newAddressJSON(a *order.Address) *addressJSON {
	if a == nil {
		return nil
	}
	return &addressJSON{
		Recipient:   a.Recipient,
		Lines:       a.Lines,
		Locality:    a.Locality,
		Region:      a.Region,
		PostalCode:  a.PostalCode,
		CountryCode: a.CountryCode,
	}
}

type itemRequest struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (r itemRequest) input() order.ItemInput {
	return order.ItemInput{
		ProductID: r.ProductID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice,
	}
}

type itemPatchRequest struct {
	ProductID *string          `json:"product_id"`
	Name      *string          `json:"name"`
	Quantity  *int             `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	Currency        string        `json:"currency"`
	Email           string        `json:"email"`
	Note            string        `json:"note"`
	BillingAddress  *addressJSON  `json:"billing_address"`
	ShippingAddress *addressJSON  `json:"shipping_address"`
	Items           []itemRequest `json:"items"`
}

type updateOrderRequest struct {
	Currency *string `json:"currency"`
	Email    *string `json:"email"`
	Note     *string `json:"note"`
}

type discountRequest struct {
	Kind   order.DiscountKind  `json:"kind"`
	Value  decimal.Decimal     `json:"value"`
	Scope  order.DiscountScope `json:"scope"`
	ItemID string              `json:"item_id"`
	Code   string              `json:"code"`
}

type discountPatchRequest struct {
	Kind   *order.DiscountKind  `json:"kind"`
	Value  *decimal.Decimal     `json:"value"`
	Scope  *order.DiscountScope `json:"scope"`
	ItemID *string              `json:"item_id"`
	Code   *string              `json:"code"`
}

type transactionRequest struct {
	Type             order.TransactionType `json:"type"`
	Amount           decimal.Decimal       `json:"amount"`
	GatewayReference *string               `json:"gateway_reference"`
	Outcome          order.Outcome         `json:"outcome"`
	FailureReason    string                `json:"failure_reason"`
	Correction       bool                  `json:"correction"`
}

type transactionPatchRequest struct {
	Amount           *decimal.Decimal `json:"amount"`
	GatewayReference *string          `json:"gateway_reference"`
	Outcome          *order.Outcome   `json:"outcome"`
	FailureReason    *string          `json:"failure_reason"`
	Correction       bool             `json:"correction"`
}

type itemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Gross     decimal.Decimal `json:"gross"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

type discountResponse struct {
	ID     string              `json:"id"`
	Kind   order.DiscountKind  `json:"kind"`
	Value  decimal.Decimal     `json:"value"`
	Scope  order.DiscountScope `json:"scope"`
	ItemID string              `json:"item_id,omitempty"`
	Code   string              `json:"code,omitempty"`
	Amount decimal.Decimal     `json:"amount"`
}

type transactionResponse struct {
	ID               string                `json:"id"`
	Type             order.TransactionType `json:"type"`
	Amount           decimal.Decimal       `json:"amount"`
	GatewayReference *string               `json:"gateway_reference"`
	Outcome          order.Outcome         `json:"outcome"`
	FailureReason    string                `json:"failure_reason,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	Status          order.Status          `json:"status"`
	Currency        string                `json:"currency"`
	Email           string                `json:"email,omitempty"`
	Note            string                `json:"note,omitempty"`
	BillingAddress  *addressJSON          `json:"billing_address"`
	ShippingAddress *addressJSON          `json:"shipping_address"`
	Items           []itemResponse        `json:"items"`
	Discounts       []discountResponse    `json:"discounts"`
	Transactions    []transactionResponse `json:"transactions"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	DiscountTotal   decimal.Decimal       `json:"discount_total"`
	ShippingTotal   decimal.Decimal       `json:"shipping_total"`
	TaxTotal        decimal.Decimal       `json:"tax_total"`
	GrandTotal      decimal.Decimal       `json:"grand_total"`
	PaidTotal       decimal.Decimal       `json:"paid_total"`
	BalanceDue      decimal.Decimal       `json:"balance_due"`
	Version         int64                 `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type chargeResponse struct {
	Outcome     order.ChargeOutcome `json:"outcome"`
	Transaction transactionResponse `json:"transaction"`
	Order       orderResponse       `json:"order"`
}

func newTransactionResponse(t order.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		Type:             t.Type,
		Amount:           t.Amount,
		GatewayReference: t.GatewayReference,
		Outcome:          t.Outcome,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func newOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Status:          o.Status,
		Currency:        o.Currency,
		Email:           o.Email,
		Note:            o.Note,
		BillingAddress:  newAddressJSON(o.BillingAddress),
		ShippingAddress: newAddressJSON(o.ShippingAddress),
		Items:           make([]itemResponse, 0, len(o.Items)),
		Discounts:       make([]discountResponse, 0, len(o.Discounts)),
		Transactions:    make([]transactionResponse, 0, len(o.Transactions)),
		Subtotal:        o.Totals.Subtotal,
		DiscountTotal:   o.Totals.DiscountTotal,
		ShippingTotal:   o.Totals.ShippingTotal,
		TaxTotal:        o.Totals.TaxTotal,
		GrandTotal:      o.Totals.GrandTotal,
		PaidTotal:       o.Totals.PaidTotal,
		BalanceDue:      o.Totals.BalanceDue,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Gross:     it.Gross,
			Discount:  it.Discount,
			Total:     it.Total,
		})
	}
	for _, d := range o.Discounts {
		resp.Discounts = append(resp.Discounts, discountResponse{
			ID:     d.ID,
			Kind:   d.Kind,
			Value:  d.Value,
			Scope:  d.Scope,
			ItemID: d.ItemID,
			Code:   d.Code,
			Amount: d.Amount,
		})
	}
	for _, t := range o.Transactions {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(t))
	}
	return resp
}
