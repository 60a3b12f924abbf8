package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

const (
	batchGetLimit       = 100
	batchGetAttempts    = 5
	batchGetParallelism = 4
)

// itemRecord is the item stored in the items DynamoDB table.
type itemRecord struct {
	ItemID        string    `dynamodbav:"item_id"` // PK
	Name          string    `dynamodbav:"name"`
	Description   string    `dynamodbav:"description,omitempty"`
	Price         string    `dynamodbav:"price"` // decimal string, e.g. "59.99"
	ImageURL      string    `dynamodbav:"image_url,omitempty"`
	Brand         string    `dynamodbav:"brand,omitempty"`
	Variants      []string  `dynamodbav:"variants,omitempty"`
	StockQuantity int       `dynamodbav:"stock_quantity"`
	IsActive      bool      `dynamodbav:"is_active"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
}

func toRecord(it Item) itemRecord {
	return itemRecord{
		ItemID:        it.ID,
		Name:          it.Name,
		Description:   it.Description,
		Price:         it.Price.StringFixed(2),
		ImageURL:      it.ImageURL,
		Brand:         it.Brand,
		Variants:      it.Variants,
		StockQuantity: it.StockQuantity,
		IsActive:      it.IsActive,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

func (r itemRecord) toItem() (Item, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return Item{}, fmt.Errorf("item %s price %q: %w", r.ItemID, r.Price, err)
	}
	return Item{
		ID:            r.ItemID,
		Name:          r.Name,
		Description:   r.Description,
		Price:         price,
		ImageURL:      r.ImageURL,
		Brand:         r.Brand,
		Variants:      r.Variants,
		StockQuantity: r.StockQuantity,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}, nil
}

func unmarshalItem(av map[string]types.AttributeValue) (Item, error) {
	var rec itemRecord
	if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
		return Item{}, fmt.Errorf("unmarshal item: %w", err)
	}
	return rec.toItem()
}

// Store encapsulates operations on the items table. Admin authorization for
// mutations happens in Service before the store is reached.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new items Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

var _ Repository = (*Store)(nil)

// TableName is the items table the store is bound to.
func (s *Store) TableName() string { return s.tableName }

func (s *Store) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"item_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Get fetches an item by id, active or not.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(id),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, remote.Wrap("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrItemNotFound
	}
	it, err := unmarshalItem(out.Item)
	if err != nil {
		return nil, remote.Wrap("get item", err)
	}
	return &it, nil
}

// GetMany reads items in BatchGetItem chunks, retrying unprocessed keys.
// Chunks are fetched concurrently.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Item, error) {
	found := make(map[string]Item, len(ids))
	seen := make(map[string]bool, len(ids))
	var keys []map[string]types.AttributeValue
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, s.key(id))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchGetParallelism)
	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		g.Go(func() error {
			items, err := s.batchGet(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, it := range items {
				found[it.ID] = it
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Store) batchGet(ctx context.Context, keys []map[string]types.AttributeValue) ([]Item, error) {
	var items []Item
	request := map[string]types.KeysAndAttributes{
		s.tableName: {Keys: keys, ConsistentRead: boolPtr(true)},
	}
	for attempt := 0; len(request) > 0; attempt++ {
		if attempt == batchGetAttempts {
			return nil, remote.Wrap("batch get items", errors.New("unprocessed keys remain"))
		}
		out, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, remote.Wrap("batch get items", err)
		}
		for _, av := range out.Responses[s.tableName] {
			it, err := unmarshalItem(av)
			if err != nil {
				return nil, remote.Wrap("batch get items", err)
			}
			items = append(items, it)
		}
		request = out.UnprocessedKeys
	}
	return items, nil
}

// ListActive scans active items and applies f in memory.
func (s *Store) ListActive(ctx context.Context, f Filter) ([]Item, error) {
	p := dyn.NewScanPaginator(s.client, &dyn.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("is_active = :active"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: true},
		},
	})

	var items []Item
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, remote.Wrap("scan items", err)
		}
		for _, av := range page.Items {
			it, err := unmarshalItem(av)
			if err != nil {
				return nil, remote.Wrap("scan items", err)
			}
			if f.Match(it) {
				items = append(items, it)
			}
		}
	}
	SortNewestFirst(items)
	return items, nil
}

// Create puts a new item; an existing id is rejected.
func (s *Store) Create(ctx context.Context, _ auth.Caller, it Item) error {
	item, err := attributevalue.MarshalMap(toRecord(it))
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(item_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return fmt.Errorf("item %s already exists: %w", it.ID, ErrInvalidItem)
		}
		return remote.Wrap("put item", err)
	}
	return nil
}

// Update rewrites descriptive fields and price. Stock and the active flag are
// left untouched so concurrent checkouts are not overwritten.
func (s *Store) Update(ctx context.Context, _ auth.Caller, it Item) error {
	values := map[string]types.AttributeValue{
		":name":  &types.AttributeValueMemberS{Value: it.Name},
		":desc":  &types.AttributeValueMemberS{Value: it.Description},
		":price": &types.AttributeValueMemberS{Value: it.Price.StringFixed(2)},
		":img":   &types.AttributeValueMemberS{Value: it.ImageURL},
		":brand": &types.AttributeValueMemberS{Value: it.Brand},
		":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	variants, err := attributevalue.Marshal(it.Variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}
	values[":variants"] = variants

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(it.ID),
		UpdateExpression:          aws.String("SET #n = :name, #d = :desc, #p = :price, #i = :img, #b = :brand, #v = :variants, updated_at = :ua"),
		ConditionExpression:       aws.String("attribute_exists(item_id)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
			"#d": "description",
			"#p": "price",
			"#i": "image_url",
			"#b": "brand",
			"#v": "variants",
		},
		ExpressionAttributeValues: values,
	})
	return s.mapWriteErr("update item", err)
}

// Restock adds delta to stock_quantity atomically.
func (s *Store) Restock(ctx context.Context, _ auth.Caller, id string, delta int) (int, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(id),
		UpdateExpression:    aws.String("ADD stock_quantity :d SET updated_at = :ua"),
		ConditionExpression: aws.String("attribute_exists(item_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":  &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err := s.mapWriteErr("restock item", err); err != nil {
		return 0, err
	}
	n, ok := out.Attributes["stock_quantity"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, remote.Wrap("restock item", errors.New("stock_quantity missing from response"))
	}
	stock, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, remote.Wrap("restock item", err)
	}
	return stock, nil
}

// SetActive flips the soft-delete flag.
func (s *Store) SetActive(ctx context.Context, _ auth.Caller, id string, active bool) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(id),
		UpdateExpression:    aws.String("SET is_active = :active, updated_at = :ua"),
		ConditionExpression: aws.String("attribute_exists(item_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":active": &types.AttributeValueMemberBOOL{Value: active},
			":ua":     &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	})
	return s.mapWriteErr("set item active", err)
}

// DecrementStock builds the transactional stock decrement for one order line.
// The write is cancelled unless the item is active and holds at least qty units.
func (s *Store) DecrementStock(id string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:           &s.tableName,
			Key:                 s.key(id),
			UpdateExpression:    aws.String("SET stock_quantity = stock_quantity - :qty, updated_at = :ua"),
			ConditionExpression: aws.String("is_active = :active AND stock_quantity >= :qty"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":qty":    &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
				":active": &types.AttributeValueMemberBOOL{Value: true},
				":ua":     &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	}
}

func (s *Store) mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var cf *types.ConditionalCheckFailedException
	if errors.As(err, &cf) {
		return ErrItemNotFound
	}
	return remote.Wrap(op, err)
}

func boolPtr(b bool) *bool { return &b }
