package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/oolio-orders/internal/domain/order"
	"github.com/xenking/oolio-orders/internal/gateway"
	"github.com/xenking/oolio-orders/internal/storage/memory"
)

func loadSeed(t *testing.T) []seedOrder {
	t.Helper()
	data, err := os.ReadFile("../../db/seed/orders.json")
	require.NoError(t, err)
	var orders []seedOrder
	require.NoError(t, json.Unmarshal(data, &orders))
	return orders
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	svc, err := order.NewService(store, gateway.NewSandbox(gateway.SandboxConfig{}), order.Config{DefaultCurrency: "USD"})
	require.NoError(t, err)

	require.NoError(t, seed(ctx, zap.NewNop(), svc, loadSeed(t)))

	all, err := svc.List(ctx, order.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byEmail := make(map[string]order.Order)
	for _, o := range all {
		byEmail[o.Email] = o
	}

	draft := byEmail["ada@example.com"]
	assert.Equal(t, order.StatusDraft, draft.Status)
	// 2 x 6.50 + 4.25 = 17.25, minus 1.73 (10%, rounded half up).
	assert.True(t, draft.Totals.GrandTotal.Equal(decimal.RequireFromString("15.52")), draft.Totals.GrandTotal.String())

	pending := byEmail["grace@example.com"]
	assert.Equal(t, order.StatusCheckoutPending, pending.Status)
	require.NotNil(t, pending.ShippingAddress)
	assert.Equal(t, "US", pending.ShippingAddress.CountryCode)

	paid := byEmail["linus@example.com"]
	assert.Equal(t, order.StatusPaid, paid.Status)
	assert.Equal(t, "EUR", paid.Currency)
	assert.True(t, paid.Totals.PaidTotal.Equal(decimal.NewFromInt(12)))
	assert.True(t, paid.Totals.BalanceDue.IsZero())
}

func TestSeedRejectsUnknownStatus(t *testing.T) {
	svc, err := order.NewService(memory.NewOrderStore(), gateway.NewSandbox(gateway.SandboxConfig{}), order.Config{DefaultCurrency: "USD"})
	require.NoError(t, err)

	err = seed(context.Background(), zap.NewNop(), svc, []seedOrder{{Status: order.StatusClosed}})
	require.Error(t, err)

	all, err := svc.List(context.Background(), order.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
