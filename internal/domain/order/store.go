package order

import "context"

// Store persists Order aggregates together with their sub-entities.
//
// Implementations must keep sub-entity order stable and enforce optimistic
// concurrency: Save succeeds only when o.Version matches the stored version
// (zero for a new order), bumps Version on success, and returns an error
// wrapping ErrConflict otherwise.
type Store interface {
	// Get returns the order or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	Save(ctx context.Context, o *Order) error
	// Delete removes the order and all of its sub-entities atomically.
	// It reports whether the order existed.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

// ListFilter narrows List results. Zero values mean "no constraint".
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
