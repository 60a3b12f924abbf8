package checkout

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

type stockRow struct {
	stock  int
	active bool
}

// txMock evaluates the conditions the ledger sends and applies the writes
// only when every condition holds, like TransactWriteItems.
type txMock struct {
	aws.DynamoDBAPI
	mu       sync.Mutex
	items    map[string]*stockRow
	carts    map[string]int // owner#line_id -> quantity
	orders   map[string]map[string]types.AttributeValue
	keys     map[string]bool
	calls    []*dyn.TransactWriteItemsInput
	forceErr error
	conflict bool
}

func newTxMock() *txMock {
	return &txMock{
		items:  map[string]*stockRow{},
		carts:  map[string]int{},
		orders: map[string]map[string]types.AttributeValue{},
		keys:   map[string]bool{},
	}
}

func strAttr(av types.AttributeValue) string { return av.(*types.AttributeValueMemberS).Value }

func numAttr(av types.AttributeValue) int {
	v, _ := strconv.Atoi(av.(*types.AttributeValueMemberN).Value)
	return v
}

func (m *txMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.forceErr != nil {
		return nil, m.forceErr
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		if m.conflict {
			reasons[i].Code = aws.String("TransactionConflict")
			failed = true
			continue
		}
		code := "None"
		switch {
		case it.Put != nil && *it.Put.TableName == "orders":
			if m.orders[strAttr(it.Put.Item["order_id"])] != nil {
				code, failed = "ConditionalCheckFailed", true
			}
		case it.Put != nil && *it.Put.TableName == "idempotency":
			if m.keys[strAttr(it.Put.Item["idempotency_key"])] {
				code, failed = "ConditionalCheckFailed", true
			}
		case it.Update != nil:
			row := m.items[strAttr(it.Update.Key["item_id"])]
			qty := numAttr(it.Update.ExpressionAttributeValues[":qty"])
			if row == nil || !row.active || row.stock < qty {
				code, failed = "ConditionalCheckFailed", true
				if row != nil {
					reasons[i].Item = map[string]types.AttributeValue{
						"is_active": &types.AttributeValueMemberBOOL{Value: row.active},
					}
				}
			}
		case it.Delete != nil:
			k := strAttr(it.Delete.Key["owner_id"]) + "#" + strAttr(it.Delete.Key["line_id"])
			q, ok := m.carts[k]
			if !ok || q != numAttr(it.Delete.ExpressionAttributeValues[":q"]) {
				code, failed = "ConditionalCheckFailed", true
			}
		}
		reasons[i].Code = aws.String(code)
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil && *it.Put.TableName == "orders":
			m.orders[strAttr(it.Put.Item["order_id"])] = it.Put.Item
		case it.Put != nil:
			m.keys[strAttr(it.Put.Item["idempotency_key"])] = true
		case it.Update != nil:
			m.items[strAttr(it.Update.Key["item_id"])].stock -= numAttr(it.Update.ExpressionAttributeValues[":qty"])
		case it.Delete != nil:
			delete(m.carts, strAttr(it.Delete.Key["owner_id"])+"#"+strAttr(it.Delete.Key["line_id"]))
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *txMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *params.TableName != "orders" {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: m.orders[strAttr(params.Key["order_id"])]}, nil
}

func newLedger(m *txMock) *DynamoLedger {
	return NewDynamoLedger(m,
		orders.NewStore(m, "orders", "by-owner"),
		catalog.NewStore(m, "items"),
		cart.NewStore(m, "carts"),
		idempotency.NewStore(m, "idempotency", time.Hour),
	)
}

func plan(orderID string, lines ...cart.Line) Plan {
	return Plan{
		Order: orders.Order{
			ID:        orderID,
			OwnerID:   "alice",
			Status:    orders.StatusPending,
			CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		CartLines: lines,
	}
}

func line(itemID, variant string, qty int) cart.Line {
	return cart.Line{ID: cart.LineID(itemID, variant), OwnerID: "alice", ItemID: itemID, Variant: variant, Quantity: qty}
}

func TestDynamoLedger_CommitsEverythingInOneTransaction(t *testing.T) {
	m := newTxMock()
	m.items["bed"] = &stockRow{stock: 5, active: true}
	m.carts["alice#bed#M"] = 2
	m.carts["alice#bed#L"] = 1
	l := newLedger(m)

	p := plan("order-1", line("bed", "M", 2), line("bed", "L", 1))
	p.IdempotencyKey = "k1"
	require.NoError(t, l.Commit(context.Background(), alice, p))

	require.Len(t, m.calls, 1)
	// order + one aggregated stock update + two cart deletes + key
	assert.Len(t, m.calls[0].TransactItems, 5)
	assert.Equal(t, "order-1", *m.calls[0].ClientRequestToken)
	assert.Equal(t, 2, m.items["bed"].stock)
	assert.Empty(t, m.carts)
	assert.True(t, m.keys["alice#k1"])
	assert.NotNil(t, m.orders["order-1"])
}

func TestDynamoLedger_StoredOrderKeepsCapturedPrice(t *testing.T) {
	ctx := context.Background()
	w, _, _, _ := fixture()
	w.addLine("alice", "leash", "", 2)

	m := newTxMock()
	m.items["leash"] = &stockRow{stock: 2, active: true}
	m.carts["alice#leash#"] = 2
	store := orders.NewStore(m, "orders", "by-owner")

	o := New(Deps{Ledger: newLedger(m), Cart: w, Items: w, Orders: store, Log: quietLogger()})
	res, err := o.Place(ctx, alice, "")
	require.NoError(t, err)

	// the catalog moves on after the order is placed
	w.mu.Lock()
	leash := w.items["leash"]
	leash.Price = price("99.00")
	leash.Name = "Leash v2"
	leash.IsActive = false
	w.items["leash"] = leash
	w.mu.Unlock()

	stored, err := store.Get(ctx, alice, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, "12.50", stored.Lines[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Leash", stored.Lines[0].Name)
	assert.Equal(t, "leash.png", stored.Lines[0].ImageURL)
	assert.Equal(t, "25.00", stored.Total.StringFixed(2))
	assert.Equal(t, "25.00", strAttr(m.orders[res.Order.ID]["total_amount"]))
}

func TestDynamoLedger_CancellationMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("stock", func(t *testing.T) {
		m := newTxMock()
		m.items["bed"] = &stockRow{stock: 1, active: true}
		m.carts["alice#bed#M"] = 2
		err := newLedger(m).Commit(ctx, alice, plan("o", line("bed", "M", 2)))
		var se *StockError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "bed", se.ItemID)
		assert.Equal(t, 1, m.items["bed"].stock)
		assert.Equal(t, 2, m.carts["alice#bed#M"])
	})

	t.Run("inactive", func(t *testing.T) {
		m := newTxMock()
		m.items["bed"] = &stockRow{stock: 9, active: false}
		m.carts["alice#bed#M"] = 1
		err := newLedger(m).Commit(ctx, alice, plan("o", line("bed", "M", 1)))
		assert.ErrorIs(t, err, catalog.ErrItemUnavailable)
	})

	t.Run("cart changed", func(t *testing.T) {
		m := newTxMock()
		m.items["bed"] = &stockRow{stock: 9, active: true}
		m.carts["alice#bed#M"] = 3
		err := newLedger(m).Commit(ctx, alice, plan("o", line("bed", "M", 1)))
		assert.ErrorIs(t, err, ErrCartChanged)
		assert.Equal(t, 9, m.items["bed"].stock)
	})

	t.Run("key taken", func(t *testing.T) {
		m := newTxMock()
		m.items["bed"] = &stockRow{stock: 9, active: true}
		m.carts["alice#bed#M"] = 1
		m.keys["alice#k"] = true
		p := plan("o", line("bed", "M", 1))
		p.IdempotencyKey = "k"
		assert.ErrorIs(t, newLedger(m).Commit(ctx, alice, p), ErrKeyConflict)
	})

	t.Run("conflict", func(t *testing.T) {
		m := newTxMock()
		m.conflict = true
		err := newLedger(m).Commit(ctx, alice, plan("o", line("bed", "M", 1)))
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("remote", func(t *testing.T) {
		m := newTxMock()
		m.forceErr = errors.New("connection reset")
		err := newLedger(m).Commit(ctx, alice, plan("o", line("bed", "M", 1)))
		assert.ErrorIs(t, err, remote.ErrFailure)
	})
}

func TestDynamoLedger_ConcurrentCommitsNeverOversell(t *testing.T) {
	m := newTxMock()
	m.items["leash"] = &stockRow{stock: 3, active: true}
	owners := []string{"a", "b", "c", "d"}
	for _, o := range owners {
		m.carts[o+"#leash#"] = 3
	}
	l := newLedger(m)

	var wg sync.WaitGroup
	errs := make([]error, len(owners))
	for i, o := range owners {
		wg.Add(1)
		go func(i int, owner string) {
			defer wg.Done()
			p := Plan{
				Order:     orders.Order{ID: "order-" + owner, OwnerID: owner, Status: orders.StatusPending},
				CartLines: []cart.Line{{ID: "leash#", OwnerID: owner, ItemID: "leash", Quantity: 3}},
			}
			errs[i] = l.Commit(context.Background(), auth.Caller{ID: owner}, p)
		}(i, o)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, catalog.ErrStockExhausted)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, m.items["leash"].stock)
}
