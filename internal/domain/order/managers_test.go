package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestService_Items(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{AllowEmptyOrders: true})
	o := env.scenarioOrder(t)

	saved, it, err := env.svc.AddItem(ctx, o.ID, ItemInput{ProductID: "p3", Name: "Thing", Quantity: 3, UnitPrice: dec("1.335")})
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	// 4.005 rounds half-up once per line.
	assertMoney(t, "4.01", it.Total, "line total")
	require.Len(t, saved.Items, 3)
	assertMoney(t, "29.01", saved.Totals.Subtotal, "subtotal of the saved order")
	assert.Equal(t, o.Version+1, saved.Version)
	assertInvariants(t, saved)

	_, it, found, err := env.svc.UpdateItem(ctx, o.ID, it.ID, ItemPatch{Quantity: ptr(1)})
	require.NoError(t, err)
	require.True(t, found)
	assertMoney(t, "1.34", it.Total, "line total")

	_, _, err = env.svc.AddItem(ctx, o.ID, ItemInput{ProductID: "p4", Quantity: -1, UnitPrice: dec("1")})
	require.ErrorIs(t, err, ErrValidation)
	_, _, _, err = env.svc.UpdateItem(ctx, o.ID, it.ID, ItemPatch{Quantity: ptr(0)})
	require.ErrorIs(t, err, ErrValidation)

	got, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	assert.Equal(t, it.ID, got.Items[2].ID, "insertion order is kept")
	assertMoney(t, "26.34", got.Totals.Subtotal, "subtotal")
	assertInvariants(t, got)

	_, _, err = env.svc.AddItem(ctx, "missing", ItemInput{ProductID: "p", Quantity: 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_AbsentSubEntities(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{AllowEmptyOrders: true})
	o := env.scenarioOrder(t)
	before, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)

	deleted, found, err := env.svc.DeleteItem(ctx, o.ID, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, deleted)

	_, found, err = env.svc.DeleteDiscount(ctx, o.ID, "nope")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = env.svc.DeleteTransaction(ctx, o.ID, "nope", false)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = env.svc.UpdateItem(ctx, o.ID, "nope", ItemPatch{Quantity: ptr(2)})
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = env.svc.UpdateDiscount(ctx, o.ID, "nope", DiscountPatch{Value: ptr(dec("1"))})
	require.NoError(t, err)
	assert.False(t, found)

	_, _, found, err = env.svc.UpdateTransaction(ctx, o.ID, "nope", TransactionPatch{Amount: ptr(dec("1"))})
	require.NoError(t, err)
	assert.False(t, found)

	after, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.Totals.Equal(after.Totals))

	// An absent order is an error, not an absent sub-entity.
	_, _, err = env.svc.DeleteItem(ctx, "missing", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteLastItem(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed", func(t *testing.T) {
		env := newTestEnv(t, Config{AllowEmptyOrders: true})
		o := env.scenarioOrder(t)
		for _, it := range o.Items {
			_, found, err := env.svc.DeleteItem(ctx, o.ID, it.ID)
			require.NoError(t, err)
			assert.True(t, found)
		}
		got, err := env.svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Items)
		assert.True(t, got.Totals.Equal(Totals{}), "totals %+v", got.Totals)
	})

	t.Run("forbidden", func(t *testing.T) {
		env := newTestEnv(t, Config{AllowEmptyOrders: false})
		o := env.scenarioOrder(t)
		_, _, err := env.svc.DeleteItem(ctx, o.ID, o.Items[0].ID)
		require.NoError(t, err)
		_, _, err = env.svc.DeleteItem(ctx, o.ID, o.Items[1].ID)
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestService_Discounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{AllowEmptyOrders: true})
	o := env.scenarioOrder(t)
	widget := o.Items[0].ID

	_, itemDisc, err := env.svc.AddDiscount(ctx, o.ID, DiscountInput{
		Kind: DiscountFixed, Value: dec("5"), Scope: ScopeItem, ItemID: widget,
	})
	require.NoError(t, err)
	assertMoney(t, "5", itemDisc.Amount, "item discount")

	_, orderDisc, err := env.svc.AddDiscount(ctx, o.ID, DiscountInput{Kind: DiscountPercentage, Value: dec("10"), Code: "TEN"})
	require.NoError(t, err)
	// 10% of the already discounted 20.00.
	assertMoney(t, "2", orderDisc.Amount, "order discount")

	got, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assertMoney(t, "7", got.Totals.DiscountTotal, "discount")
	assertMoney(t, "18", got.Totals.GrandTotal, "grand")
	assertMoney(t, "15", got.Items[0].Total, "widget total")

	_, d, found, err := env.svc.UpdateDiscount(ctx, o.ID, orderDisc.ID, DiscountPatch{Kind: ptr(DiscountFixed), Value: ptr(dec("100"))})
	require.NoError(t, err)
	require.True(t, found)
	assertMoney(t, "20", d.Amount, "capped discount")

	got, err = env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assertMoney(t, "0", got.Totals.GrandTotal, "grand")
	assertInvariants(t, got)

	// Removing the item drops the discount attached to it.
	_, _, err = env.svc.DeleteItem(ctx, o.ID, widget)
	require.NoError(t, err)
	got, err = env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Discounts, 1)
	assert.Equal(t, orderDisc.ID, got.Discounts[0].ID)

	tests := []struct {
		name string
		in   DiscountInput
	}{
		{"unknown kind", DiscountInput{Kind: "bogo", Value: dec("1")}},
		{"zero value", DiscountInput{Kind: DiscountFixed, Value: dec("0")}},
		{"percentage over 100", DiscountInput{Kind: DiscountPercentage, Value: dec("101")}},
		{"item scope without item", DiscountInput{Kind: DiscountFixed, Value: dec("1"), Scope: ScopeItem}},
		{"item scope with unknown item", DiscountInput{Kind: DiscountFixed, Value: dec("1"), Scope: ScopeItem, ItemID: "nope"}},
		{"order scope with item", DiscountInput{Kind: DiscountFixed, Value: dec("1"), ItemID: widget}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.AddDiscount(ctx, o.ID, tt.in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestService_CompositionFrozenAfterCheckout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{AllowEmptyOrders: true})
	o := env.advance(t, StatusCheckoutPending)

	_, _, err := env.svc.AddItem(ctx, o.ID, ItemInput{ProductID: "p", Quantity: 1, UnitPrice: dec("1")})
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, _, err = env.svc.UpdateItem(ctx, o.ID, o.Items[0].ID, ItemPatch{Quantity: ptr(5)})
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, err = env.svc.DeleteItem(ctx, o.ID, o.Items[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, err = env.svc.AddDiscount(ctx, o.ID, DiscountInput{Kind: DiscountFixed, Value: dec("1")})
	require.ErrorIs(t, err, ErrInvalidState)

	// Transactions stay writable until the order is terminal.
	_, _, err = env.svc.AddTransaction(ctx, o.ID, TransactionInput{Type: TransactionAdjustment, Amount: dec("-1")})
	require.NoError(t, err)
}

func TestService_Transactions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	o := env.advance(t, StatusCheckoutPending)

	_, partial, err := env.svc.AddTransaction(ctx, o.ID, TransactionInput{
		Type:             TransactionCharge,
		Amount:           dec("10"),
		GatewayReference: ptr("cash-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, partial.Outcome)
	require.NotNil(t, partial.GatewayReference)
	assert.Equal(t, "cash-1", *partial.GatewayReference)

	got, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckoutPending, got.Status)
	assertMoney(t, "15", got.Totals.BalanceDue, "balance")

	// Settled transactions only change through corrections.
	_, _, _, err = env.svc.UpdateTransaction(ctx, o.ID, partial.ID, TransactionPatch{Amount: ptr(dec("25"))})
	require.ErrorIs(t, err, ErrInvalidState)
	_, _, err = env.svc.DeleteTransaction(ctx, o.ID, partial.ID, false)
	require.ErrorIs(t, err, ErrInvalidState)

	_, corrected, found, err := env.svc.UpdateTransaction(ctx, o.ID, partial.ID, TransactionPatch{
		Amount:     ptr(dec("25")),
		Correction: true,
	})
	require.NoError(t, err)
	require.True(t, found)
	assertMoney(t, "25", corrected.Amount, "amount")

	got, err = env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status, "full payment settles the order")
	assertInvariants(t, got)

	_, _, err = env.svc.AddTransaction(ctx, o.ID, TransactionInput{Type: TransactionRefund, Amount: dec("30")})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = env.svc.AddTransaction(ctx, o.ID, TransactionInput{Type: "gift", Amount: dec("1")})
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = env.svc.AddTransaction(ctx, o.ID, TransactionInput{Type: TransactionCharge, Amount: dec("0")})
	require.ErrorIs(t, err, ErrValidation)
}

func TestService_TerminalCorrections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{})
	o := env.advance(t, StatusClosed)

	_, _, err := env.svc.AddTransaction(ctx, o.ID, TransactionInput{Type: TransactionAdjustment, Amount: dec("1")})
	require.ErrorIs(t, err, ErrInvalidState)

	_, adj, err := env.svc.AddTransaction(ctx, o.ID, TransactionInput{
		Type:       TransactionAdjustment,
		Amount:     dec("1"),
		Correction: true,
	})
	require.NoError(t, err)

	_, found, err := env.svc.DeleteTransaction(ctx, o.ID, adj.ID, true)
	require.NoError(t, err)
	assert.True(t, found)

	got, err := env.svc.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
	assertInvariants(t, got)
}
