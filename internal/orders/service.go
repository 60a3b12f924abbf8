package orders

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

// Repository reads the caller's orders. Implementations confine every read to
// the caller's own orders.
type Repository interface {
	Get(ctx context.Context, caller auth.Caller, orderID string) (*Order, error)
	ListByOwner(ctx context.Context, caller auth.Caller) ([]Order, error)
}

// StatusUpdater performs back-office status transitions.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID string, expected, next Status) error
}

// Reader is the order history surface.
type Reader struct {
	repo Repository
}

// NewReader creates an order Reader.
func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

// List returns the caller's orders, newest first.
func (r *Reader) List(ctx context.Context, caller auth.Caller) ([]Order, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	out, err := r.repo.ListByOwner(ctx, caller)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	SortNewestFirst(out)
	return out, nil
}

// Get returns one of the caller's orders.
func (r *Reader) Get(ctx context.Context, caller auth.Caller, orderID string) (*Order, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	return r.repo.Get(ctx, caller, orderID)
}

// SortNewestFirst orders by creation time descending, ties by id.
func SortNewestFirst(out []Order) {
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
