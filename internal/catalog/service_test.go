package catalog

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

type mockRepository struct {
	mu    sync.Mutex
	items map[string]Item
}

func newMockRepository(items ...Item) *mockRepository {
	m := &mockRepository{items: map[string]Item{}}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockRepository) Get(ctx context.Context, id string) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &it, nil
}

func (m *mockRepository) GetMany(ctx context.Context, ids []string) (map[string]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]Item{}
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (m *mockRepository) ListActive(ctx context.Context, f Filter) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockRepository) Create(ctx context.Context, caller auth.Caller, it Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

func (m *mockRepository) Update(ctx context.Context, caller auth.Caller, it Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return ErrItemNotFound
	}
	m.items[it.ID] = it
	return nil
}

func (m *mockRepository) Restock(ctx context.Context, caller auth.Caller, id string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return 0, ErrItemNotFound
	}
	it.StockQuantity += delta
	m.items[id] = it
	return it.StockQuantity, nil
}

func (m *mockRepository) SetActive(ctx context.Context, caller auth.Caller, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrItemNotFound
	}
	it.IsActive = active
	m.items[id] = it
	return nil
}

type mockAdmin struct{ admins map[string]bool }

func (m mockAdmin) RequireAdmin(ctx context.Context, caller auth.Caller) error {
	if !caller.Authenticated() {
		return auth.ErrUnauthenticated
	}
	if !m.admins[caller.ID] {
		return auth.ErrForbidden
	}
	return nil
}

var (
	admin    = auth.Caller{ID: "admin-1"}
	customer = auth.Caller{ID: "cust-1"}
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(items ...Item) (*Service, *mockRepository) {
	repo := newMockRepository(items...)
	return NewService(repo, mockAdmin{admins: map[string]bool{admin.ID: true}}, quietLogger()), repo
}

func TestService_List(t *testing.T) {
	svc, _ := setup(bracketFixture()...)

	got, err := svc.List(context.Background(), Filter{Bracket: BracketUnder100})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))

	got, err = svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(got), "newest first")
}

func TestService_DeactivateHidesItem(t *testing.T) {
	svc, _ := setup(bracketFixture()...)
	ctx := context.Background()

	require.NoError(t, svc.SetActive(ctx, admin, "a", false))

	got, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.NotContains(t, ids(got), "a")

	_, err = svc.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrItemNotFound)

	require.NoError(t, svc.SetActive(ctx, admin, "a", true))
	it, err := svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", it.ID)
}

func TestService_MutationsRequireAdmin(t *testing.T) {
	svc, repo := setup(bracketFixture()...)
	ctx := context.Background()

	_, err := svc.Create(ctx, customer, Item{Name: "Bowl", Price: price("9.99")})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Create(ctx, auth.Anonymous, Item{Name: "Bowl", Price: price("9.99")})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	newPrice := price("1.00")
	_, err = svc.Update(ctx, customer, "a", Patch{Price: &newPrice})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Restock(ctx, customer, "a", 5)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	assert.ErrorIs(t, svc.SetActive(ctx, customer, "a", false), auth.ErrForbidden)
	assert.True(t, repo.items["a"].IsActive)
	assert.True(t, repo.items["a"].Price.Equal(price("59.99")))
}

func TestService_Create(t *testing.T) {
	svc, repo := setup()
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return fixed }

	it, err := svc.Create(context.Background(), admin, Item{
		Name:          " Bowl ",
		Price:         price("9.99"),
		StockQuantity: 4,
		Variants:      []string{"S", "L"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	assert.Equal(t, "Bowl", it.Name)
	assert.True(t, it.IsActive)
	assert.Equal(t, fixed, it.CreatedAt)
	assert.Contains(t, repo.items, it.ID)

	_, err = svc.Create(context.Background(), admin, Item{Name: "Free", Price: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestService_UpdateAndRestock(t *testing.T) {
	svc, repo := setup(bracketFixture()...)
	ctx := context.Background()

	newPrice := price("64.99")
	it, err := svc.Update(ctx, admin, "a", Patch{Price: &newPrice})
	require.NoError(t, err)
	assert.True(t, it.Price.Equal(newPrice))
	assert.True(t, repo.items["a"].Price.Equal(newPrice))

	_, err = svc.Update(ctx, admin, "missing", Patch{Price: &newPrice})
	assert.ErrorIs(t, err, ErrItemNotFound)

	stock, err := svc.Restock(ctx, admin, "a", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	_, err = svc.Restock(ctx, admin, "a", 0)
	assert.ErrorIs(t, err, ErrInvalidItem)
}
