// Package memory implements order.Store in process memory.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-orders/internal/domain/order"
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore keeps orders in a map. Every read and write copies the
// aggregate so callers never share state with the store.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*order.Order)}
}

func (s *OrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(order.ErrNotFound, "order %s", id)
	}
	return o.Clone(), nil
}

func (s *OrderStore) Save(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if cur, ok := s.orders[o.ID]; ok {
		stored = cur.Version
	}
	if o.Version != stored {
		return errors.Wrapf(order.ErrConflict, "order %s: version %d, stored %d", o.ID, o.Version, stored)
	}
	o.Version++
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *OrderStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.orders[id]
	delete(s.orders, id)
	return ok, nil
}

// List returns orders newest first, ties broken by id.
func (s *OrderStore) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	s.mu.RLock()
	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *o.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if f.Offset >= len(out) {
		return []order.Order{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
