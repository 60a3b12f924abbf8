package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// mockDynamo keeps items by item_id and answers the calls the items store makes.
type mockDynamo struct {
	aws.DynamoDBAPI
	items       map[string]map[string]types.AttributeValue
	mu          sync.Mutex
	unprocessed int // BatchGetItem defers this many keys once
	updates     []*dyn.UpdateItemInput
	scanErr     error
}

func newMockDynamo(t *testing.T, items ...Item) *mockDynamo {
	m := &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
	for _, it := range items {
		av, err := attributevalue.MarshalMap(toRecord(it))
		require.NoError(t, err)
		m.items[it.ID] = av
	}
	return m
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["item_id"].(*types.AttributeValueMemberS).Value
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	item, ok := m.items[keyOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) BatchGetItem(ctx context.Context, params *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &dyn.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for table, ka := range params.RequestItems {
		var deferred []map[string]types.AttributeValue
		for _, k := range ka.Keys {
			if m.unprocessed > 0 {
				m.unprocessed--
				deferred = append(deferred, k)
				continue
			}
			if item, ok := m.items[keyOf(k)]; ok {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
		if len(deferred) > 0 {
			out.UnprocessedKeys[table] = types.KeysAndAttributes{Keys: deferred}
		}
	}
	return out, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	out := &dyn.ScanOutput{}
	for _, item := range m.items {
		if active, ok := item["is_active"].(*types.AttributeValueMemberBOOL); ok && active.Value {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.updates = append(m.updates, params)
	if _, ok := m.items[keyOf(params.Key)]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	return &dyn.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"stock_quantity": &types.AttributeValueMemberN{Value: "7"},
	}}, nil
}

func TestStore_RecordRoundTrip(t *testing.T) {
	it := Item{
		ID:            "i-1",
		Name:          "Dog Bed",
		Price:         price("129.9"),
		Variants:      []string{"M", "L"},
		StockQuantity: 3,
		IsActive:      true,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	rec := toRecord(it)
	assert.Equal(t, "129.90", rec.Price)

	back, err := rec.toItem()
	require.NoError(t, err)
	assert.True(t, back.Price.Equal(it.Price))
	assert.Equal(t, it.Variants, back.Variants)

	rec.Price = "not-a-number"
	_, err = rec.toItem()
	assert.Error(t, err)
}

func TestStore_ListActive(t *testing.T) {
	items := bracketFixture()
	items[1].IsActive = false
	s := NewStore(newMockDynamo(t, items...), "items")

	got, err := s.ListActive(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(got))

	got, err = s.ListActive(context.Background(), Filter{Bracket: BracketUnder100})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))

	failing := NewStore(&mockDynamo{scanErr: errors.New("throttled")}, "items")
	_, err = failing.ListActive(context.Background(), Filter{})
	assert.ErrorIs(t, err, remote.ErrFailure)
}

func TestStore_GetAndGetMany(t *testing.T) {
	mock := newMockDynamo(t, bracketFixture()...)
	mock.unprocessed = 1
	s := NewStore(mock, "items")
	ctx := context.Background()

	it, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Dog Bed", it.Name)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrItemNotFound)

	found, err := s.GetMany(ctx, []string{"a", "c", "a", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "a")
	assert.Contains(t, found, "c")
}

func TestStore_GetManyChunks(t *testing.T) {
	var items []Item
	var ids []string
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("item-%03d", i)
		items = append(items, Item{ID: id, Name: id, Price: price("1.00"), IsActive: true})
		ids = append(ids, id)
	}
	mock := newMockDynamo(t, items...)
	mock.unprocessed = 3

	found, err := NewStore(mock, "items").GetMany(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, found, 250)
}

func TestStore_RestockAndSetActive(t *testing.T) {
	mock := newMockDynamo(t, bracketFixture()...)
	s := NewStore(mock, "items")
	ctx := context.Background()

	stock, err := s.Restock(ctx, auth.Caller{ID: "admin"}, "a", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, stock)
	require.Len(t, mock.updates, 1)
	assert.Equal(t, "ADD stock_quantity :d SET updated_at = :ua", *mock.updates[0].UpdateExpression)

	err = s.SetActive(ctx, auth.Caller{ID: "admin"}, "missing", false)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestStore_DecrementStock(t *testing.T) {
	s := NewStore(newMockDynamo(t), "items")

	tw := s.DecrementStock("i-9", 3)
	require.NotNil(t, tw.Update)
	assert.Equal(t, "items", *tw.Update.TableName)
	assert.Equal(t, "is_active = :active AND stock_quantity >= :qty", *tw.Update.ConditionExpression)
	assert.Equal(t, "3", tw.Update.ExpressionAttributeValues[":qty"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "i-9", keyOf(tw.Update.Key))
}
