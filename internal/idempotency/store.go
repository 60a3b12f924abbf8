package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a key replays its order
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: TTL window (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Get retrieves a record by owner and client key. If not found, or if the
// record outlived its TTL but was not yet swept, returns (nil, nil).
func (s *Store) Get(ctx context.Context, ownerID, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: ScopedKey(ownerID, key)},
		},
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, remote.Wrap("get idempotency record", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, remote.Wrap("unmarshal idempotency record", err)
	}
	if rec.ExpiresAt > 0 && s.nowFunc().Unix() >= rec.ExpiresAt {
		return nil, nil
	}
	return &rec, nil
}

// Lookup returns the order id committed under the caller's key.
func (s *Store) Lookup(ctx context.Context, caller auth.Caller, key string) (string, bool, error) {
	rec, err := s.Get(ctx, caller.ID, key)
	if err != nil || rec == nil || rec.Status != StatusDone {
		return "", false, err
	}
	return rec.OrderID, true, nil
}

// PutDone builds the transactional put recording that key committed orderID.
// It is cancelled when a live record already holds the key; an expired
// record that TTL has not yet removed may be overwritten.
func (s *Store) PutDone(ownerID, key, orderID string) (types.TransactWriteItem, error) {
	now := s.nowFunc()
	item, err := attributevalue.MarshalMap(Record{
		IdempotencyKey: ScopedKey(ownerID, key),
		OwnerID:        ownerID,
		Status:         StatusDone,
		OrderID:        orderID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal idempotency record: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(idempotency_key) OR expires_at <= :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			},
		},
	}, nil
}

func boolPtr(b bool) *bool { return &b }
