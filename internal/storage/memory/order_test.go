package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

func newOrder(id string, status order.Status, created time.Time) *order.Order {
	return &order.Order{
		ID:        id,
		Status:    status,
		Currency:  "USD",
		CreatedAt: created,
		Items: []order.Item{
			{ID: "i1", ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(3)},
		},
	}
}

func TestOrderStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()

	o := newOrder("a", order.StatusDraft, time.Now())
	require.NoError(t, s.Save(ctx, o))
	assert.Equal(t, int64(1), o.Version)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, o, got)

	// Mutating a returned copy does not touch the store.
	got.Items[0].Quantity = 99
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderStore_OptimisticVersion(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()

	o := newOrder("a", order.StatusDraft, time.Now())
	require.NoError(t, s.Save(ctx, o))

	first, err := s.Get(ctx, "a")
	require.NoError(t, err)
	second, err := s.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, first))
	require.ErrorIs(t, s.Save(ctx, second), order.ErrConflict)

	dup := newOrder("a", order.StatusDraft, time.Now())
	require.ErrorIs(t, s.Save(ctx, dup), order.ErrConflict, "a new order must not overwrite an existing one")
}

func TestOrderStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()
	require.NoError(t, s.Save(ctx, newOrder("a", order.StatusDraft, time.Now())))

	found, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOrderStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewOrderStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, newOrder("a", order.StatusDraft, base)))
	require.NoError(t, s.Save(ctx, newOrder("b", order.StatusPaid, base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, newOrder("c", order.StatusDraft, base.Add(2*time.Hour))))

	ids := func(os []order.Order) []string {
		out := make([]string, len(os))
		for i, o := range os {
			out[i] = o.ID
		}
		return out
	}

	tests := []struct {
		name string
		f    order.ListFilter
		want []string
	}{
		{"all newest first", order.ListFilter{}, []string{"c", "b", "a"}},
		{"by status", order.ListFilter{Status: order.StatusDraft}, []string{"c", "a"}},
		{"limit", order.ListFilter{Limit: 2}, []string{"c", "b"}},
		{"offset", order.ListFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", order.ListFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}
