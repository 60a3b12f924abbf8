package cart

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/catalog"
)

// Repository is the cart table at the store boundary. Every call is scoped
// to the caller; another owner's lines behave as missing.
type Repository interface {
	List(ctx context.Context, caller auth.Caller) ([]Line, error)
	Get(ctx context.Context, caller auth.Caller, lineID string) (*Line, error)
	// Increment adds one unit to the (item, variant) line, creating it with
	// quantity 1 when absent. It fails with catalog.ErrStockExhausted when the
	// line already holds max units.
	Increment(ctx context.Context, caller auth.Caller, itemID, variant string, max int) (*Line, error)
	SetQuantity(ctx context.Context, caller auth.Caller, lineID string, qty int) error
	Remove(ctx context.Context, caller auth.Caller, lineID string) error
	Clear(ctx context.Context, caller auth.Caller) error
}

// Items is the slice of the catalog the cart needs.
type Items interface {
	Get(ctx context.Context, id string) (*catalog.Item, error)
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Item, error)
}

// Service is the cart store.
type Service struct {
	repo  Repository
	items Items
	log   logrus.FieldLogger
}

// NewService creates a cart Service.
func NewService(repo Repository, items Items, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, items: items, log: log}
}

func (s *Service) availableItem(ctx context.Context, id string) (*catalog.Item, error) {
	it, err := s.items.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return nil, catalog.ErrItemUnavailable
		}
		return nil, err
	}
	if !it.IsActive {
		return nil, catalog.ErrItemUnavailable
	}
	return it, nil
}

// Add puts one unit of (itemID, variant) into the caller's cart.
func (s *Service) Add(ctx context.Context, caller auth.Caller, itemID, variant string) (*Line, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	it, err := s.availableItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !it.HasVariant(variant) {
		return nil, ErrInvalidVariant
	}
	if it.StockQuantity < 1 {
		return nil, catalog.ErrStockExhausted
	}

	line, err := s.repo.Increment(ctx, caller, itemID, variant, it.StockQuantity)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"owner_id": caller.ID,
		"item_id":  itemID,
		"variant":  variant,
		"quantity": line.Quantity,
	}).Debug("cart line incremented")
	return line, nil
}

// SetQuantity replaces a line's quantity. n below 1 fails with
// ErrInvalidQuantity and leaves the cart unchanged.
func (s *Service) SetQuantity(ctx context.Context, caller auth.Caller, lineID string, n int) error {
	if err := caller.Require(); err != nil {
		return err
	}
	if n < 1 {
		return ErrInvalidQuantity
	}
	line, err := s.repo.Get(ctx, caller, lineID)
	if err != nil {
		return err
	}
	it, err := s.availableItem(ctx, line.ItemID)
	if err != nil {
		return err
	}
	if n > it.StockQuantity {
		return catalog.ErrStockExhausted
	}
	return s.repo.SetQuantity(ctx, caller, lineID, n)
}

// Remove deletes one line.
func (s *Service) Remove(ctx context.Context, caller auth.Caller, lineID string) error {
	if err := caller.Require(); err != nil {
		return err
	}
	return s.repo.Remove(ctx, caller, lineID)
}

// Clear deletes every line of the caller.
func (s *Service) Clear(ctx context.Context, caller auth.Caller) error {
	if err := caller.Require(); err != nil {
		return err
	}
	return s.repo.Clear(ctx, caller)
}

// Lines returns the caller's raw lines, oldest first.
func (s *Service) Lines(ctx context.Context, caller auth.Caller) ([]Line, error) {
	if err := caller.Require(); err != nil {
		return nil, err
	}
	lines, err := s.repo.List(ctx, caller)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].CreatedAt.Before(lines[j].CreatedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines, nil
}

// View returns the caller's cart with current prices and the derived total.
func (s *Service) View(ctx context.Context, caller auth.Caller) (*Cart, error) {
	lines, err := s.Lines(ctx, caller)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	items, err := s.items.GetMany(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}

	views := make([]LineView, 0, len(lines))
	for _, l := range lines {
		v := LineView{Line: l, UnitPrice: decimal.Zero, Subtotal: decimal.Zero}
		if it, ok := items[l.ItemID]; ok {
			v.Name = it.Name
			v.ImageURL = it.ImageURL
			v.UnitPrice = it.Price
			v.Stock = it.StockQuantity
			v.Available = it.IsActive
			v.Subtotal = it.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		}
		views = append(views, v)
	}
	return &Cart{OwnerID: caller.ID, Lines: views, Total: Total(views)}, nil
}
