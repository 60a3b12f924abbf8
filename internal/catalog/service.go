package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

// Repository is the catalog table at the store boundary.
type Repository interface {
	Get(ctx context.Context, id string) (*Item, error)
	// GetMany returns the found items keyed by id; missing ids are absent.
	GetMany(ctx context.Context, ids []string) (map[string]Item, error)
	ListActive(ctx context.Context, f Filter) ([]Item, error)
	Create(ctx context.Context, caller auth.Caller, it Item) error
	Update(ctx context.Context, caller auth.Caller, it Item) error
	// Restock atomically adds delta to the stock count and returns the new count.
	Restock(ctx context.Context, caller auth.Caller, id string, delta int) (int, error)
	SetActive(ctx context.Context, caller auth.Caller, id string, active bool) error
}

// Admin authorizes catalog mutations.
type Admin interface {
	RequireAdmin(ctx context.Context, caller auth.Caller) error
}

// Service is the catalog reader plus admin catalog management.
type Service struct {
	repo    Repository
	admin   Admin
	log     logrus.FieldLogger
	nowFunc func() time.Time
}

// NewService creates a catalog Service.
func NewService(repo Repository, admin Admin, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, admin: admin, log: log, nowFunc: time.Now}
}

// List returns active items matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Item, error) {
	items, err := s.repo.ListActive(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	// backends may pre-filter; the result is normalized here
	return f.Apply(items), nil
}

// Get returns an active item.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !it.IsActive {
		return nil, ErrItemNotFound
	}
	return it, nil
}

// Create adds an active item.
func (s *Service) Create(ctx context.Context, caller auth.Caller, it Item) (*Item, error) {
	if err := s.admin.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	it.ID = uuid.NewString()
	it.Name = strings.TrimSpace(it.Name)
	it.IsActive = true
	it.CreatedAt = now
	it.UpdatedAt = now
	if err := it.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, caller, it); err != nil {
		return nil, errors.Wrap(err, "create item")
	}
	s.log.WithFields(logrus.Fields{"item_id": it.ID, "admin_id": caller.ID}).Info("item created")
	return &it, nil
}

// Update applies p to an item. Existing orders keep the prices they captured.
func (s *Service) Update(ctx context.Context, caller auth.Caller, id string, p Patch) (*Item, error) {
	if err := s.admin.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := p.Apply(*current)
	next.UpdatedAt = s.nowFunc().UTC()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, caller, next); err != nil {
		return nil, errors.Wrap(err, "update item")
	}
	return &next, nil
}

// Restock adds delta (> 0) units of stock.
func (s *Service) Restock(ctx context.Context, caller auth.Caller, id string, delta int) (int, error) {
	if err := s.admin.RequireAdmin(ctx, caller); err != nil {
		return 0, err
	}
	if delta <= 0 {
		return 0, errors.Wrap(ErrInvalidItem, "restock delta must be positive")
	}
	stock, err := s.repo.Restock(ctx, caller, id, delta)
	if err != nil {
		return 0, errors.Wrap(err, "restock item")
	}
	s.log.WithFields(logrus.Fields{"item_id": id, "delta": delta, "stock": stock}).Info("item restocked")
	return stock, nil
}

// SetActive deactivates or reactivates an item. Deactivated items disappear
// from catalog reads; order history still references them.
func (s *Service) SetActive(ctx context.Context, caller auth.Caller, id string, active bool) error {
	if err := s.admin.RequireAdmin(ctx, caller); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, caller, id, active); err != nil {
		return errors.Wrap(err, "set item active")
	}
	s.log.WithFields(logrus.Fields{"item_id": id, "active": active}).Info("item activation changed")
	return nil
}
