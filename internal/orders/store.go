package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// orderRecord is the item stored in the orders DynamoDB table. Money is kept
// as fixed two-decimal strings.
type orderRecord struct {
	OrderID         string       `dynamodbav:"order_id"` // PK
	OwnerID         string       `dynamodbav:"owner_id"` // GSI PK
	CreatedUnixNano int64        `dynamodbav:"created_unix_nano"`
	Status          string       `dynamodbav:"status"`
	TotalAmount     string       `dynamodbav:"total_amount"`
	Lines           []lineRecord `dynamodbav:"lines"`
	CreatedAt       time.Time    `dynamodbav:"created_at"`
	UpdatedAt       time.Time    `dynamodbav:"updated_at"`
}

type lineRecord struct {
	ItemID    string `dynamodbav:"item_id"`
	Variant   string `dynamodbav:"variant"`
	Quantity  int    `dynamodbav:"quantity"`
	UnitPrice string `dynamodbav:"unit_price"`
	Name      string `dynamodbav:"name"`
	ImageURL  string `dynamodbav:"image_url,omitempty"`
}

func toRecord(o Order) orderRecord {
	rec := orderRecord{
		OrderID:         o.ID,
		OwnerID:         o.OwnerID,
		CreatedUnixNano: o.CreatedAt.UnixNano(),
		Status:          string(o.Status),
		TotalAmount:     o.Total.StringFixed(2),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, l := range o.Lines {
		rec.Lines = append(rec.Lines, lineRecord{
			ItemID:    l.ItemID,
			Variant:   l.Variant,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Name:      l.Name,
			ImageURL:  l.ImageURL,
		})
	}
	return rec
}

func (r orderRecord) toOrder() (Order, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return Order{}, fmt.Errorf("order %s total: %w", r.OrderID, err)
	}
	o := Order{
		ID:        r.OrderID,
		OwnerID:   r.OwnerID,
		Total:     total,
		Status:    Status(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Lines:     make([]Line, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return Order{}, fmt.Errorf("order %s line %s price: %w", r.OrderID, l.ItemID, err)
		}
		o.Lines = append(o.Lines, Line{
			ItemID:    l.ItemID,
			Variant:   l.Variant,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
		})
	}
	return o, nil
}

// Store encapsulates operations on the orders table.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	ownerIndex string
	nowFunc    func() time.Time
}

// NewStore creates a new orders Store. ownerIndex is the GSI keyed by
// owner_id and created_unix_nano.
func NewStore(client aws.DynamoDBAPI, tableName, ownerIndex string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		ownerIndex: ownerIndex,
		nowFunc:    time.Now,
	}
}

var (
	_ Repository    = (*Store)(nil)
	_ StatusUpdater = (*Store)(nil)
)

func (s *Store) key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

// PutOrder builds the transactional put of a new order. The write is
// cancelled if the order id is already taken.
func (s *Store) PutOrder(o Order) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(toRecord(o))
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal order item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(order_id)"),
		},
	}, nil
}

// Get fetches an order owned by the caller. Another owner's order is
// reported as ErrOrderNotFound.
func (s *Store) Get(ctx context.Context, caller auth.Caller, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(orderID),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, remote.Wrap("get order", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, remote.Wrap("unmarshal order", err)
	}
	if rec.OwnerID != caller.ID {
		return nil, ErrOrderNotFound
	}
	o, err := rec.toOrder()
	if err != nil {
		return nil, remote.Wrap("decode order", err)
	}
	return &o, nil
}

// ListByOwner queries the owner index newest first.
func (s *Store) ListByOwner(ctx context.Context, caller auth.Caller) ([]Order, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.ownerIndex,
		KeyConditionExpression: aws.String("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: caller.ID},
		},
		ScanIndexForward: boolPtr(false),
	})

	out := []Order{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, remote.Wrap("query orders", err)
		}
		var recs []orderRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, remote.Wrap("unmarshal orders", err)
		}
		for _, r := range recs {
			o, err := r.toOrder()
			if err != nil {
				return nil, remote.Wrap("decode order", err)
			}
			out = append(out, o)
		}
	}
	return out, nil
}

// UpdateStatus conditionally updates the order status from expected to next.
// Returns ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, next Status) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(orderID),
		UpdateExpression:         aws.String("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      aws.String("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(next)},
			":expected": &types.AttributeValueMemberS{Value: string(expected)},
			":ua":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return remote.Wrap("update order status", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
