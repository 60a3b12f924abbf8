package cart

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

const (
	batchWriteLimit    = 25
	batchWriteAttempts = 5
)

// lineRecord is the item stored in the carts DynamoDB table.
type lineRecord struct {
	OwnerID   string    `dynamodbav:"owner_id"` // PK
	LineID    string    `dynamodbav:"line_id"`  // SK: item_id#variant
	ItemID    string    `dynamodbav:"item_id"`
	Variant   string    `dynamodbav:"variant"`
	Quantity  int       `dynamodbav:"quantity"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func (r lineRecord) toLine() Line {
	return Line{
		ID:        r.LineID,
		OwnerID:   r.OwnerID,
		ItemID:    r.ItemID,
		Variant:   r.Variant,
		Quantity:  r.Quantity,
		CreatedAt: r.CreatedAt,
	}
}

// Store encapsulates operations on the carts table. The partition key is the
// owner, so every request is confined to the caller's own lines.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new carts Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

var _ Repository = (*Store)(nil)

func (s *Store) key(ownerID, lineID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"owner_id": &types.AttributeValueMemberS{Value: ownerID},
		"line_id":  &types.AttributeValueMemberS{Value: lineID},
	}
}

func (s *Store) now() string {
	return s.nowFunc().UTC().Format(time.RFC3339Nano)
}

// List returns all lines of the caller.
func (s *Store) List(ctx context.Context, caller auth.Caller) ([]Line, error) {
	p := dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: caller.ID},
		},
		ConsistentRead: boolPtr(true),
	})

	var lines []Line
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, remote.Wrap("query cart", err)
		}
		var recs []lineRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, remote.Wrap("unmarshal cart", err)
		}
		for _, r := range recs {
			lines = append(lines, r.toLine())
		}
	}
	return lines, nil
}

// Get returns one of the caller's lines.
func (s *Store) Get(ctx context.Context, caller auth.Caller, lineID string) (*Line, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(caller.ID, lineID),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, remote.Wrap("get cart line", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrLineNotFound
	}
	var rec lineRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, remote.Wrap("unmarshal cart line", err)
	}
	l := rec.toLine()
	return &l, nil
}

// Increment upserts the line and adds one unit in a single conditional update.
func (s *Store) Increment(ctx context.Context, caller auth.Caller, itemID, variant string, max int) (*Line, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(caller.ID, LineID(itemID, variant)),
		UpdateExpression:    aws.String("SET item_id = :item, variant = :variant, created_at = if_not_exists(created_at, :now), updated_at = :now ADD quantity :one"),
		ConditionExpression: aws.String("attribute_not_exists(quantity) OR quantity < :max"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":item":    &types.AttributeValueMemberS{Value: itemID},
			":variant": &types.AttributeValueMemberS{Value: variant},
			":now":     &types.AttributeValueMemberS{Value: s.now()},
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":max":     &types.AttributeValueMemberN{Value: strconv.Itoa(max)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, catalog.ErrStockExhausted
		}
		return nil, remote.Wrap("increment cart line", err)
	}
	var rec lineRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, remote.Wrap("unmarshal cart line", err)
	}
	l := rec.toLine()
	return &l, nil
}

// SetQuantity overwrites the quantity of an existing line.
func (s *Store) SetQuantity(ctx context.Context, caller auth.Caller, lineID string, qty int) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(caller.ID, lineID),
		UpdateExpression:    aws.String("SET quantity = :q, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(line_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":   &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":now": &types.AttributeValueMemberS{Value: s.now()},
		},
	})
	return mapLineErr("set cart line quantity", err)
}

// Remove deletes an existing line.
func (s *Store) Remove(ctx context.Context, caller auth.Caller, lineID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(caller.ID, lineID),
		ConditionExpression: aws.String("attribute_exists(line_id)"),
	})
	return mapLineErr("delete cart line", err)
}

// Clear deletes all lines of the caller with BatchWriteItem.
func (s *Store) Clear(ctx context.Context, caller auth.Caller) error {
	lines, err := s.List(ctx, caller)
	if err != nil {
		return err
	}
	for start := 0; start < len(lines); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(lines) {
			end = len(lines)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, l := range lines[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: s.key(caller.ID, l.ID)},
			})
		}
		pending := map[string][]types.WriteRequest{s.tableName: reqs}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == batchWriteAttempts {
				return remote.Wrap("clear cart", errors.New("unprocessed deletes remain"))
			}
			out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return remote.Wrap("clear cart", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

// DeleteLine builds the transactional delete of a checked-out line. The write
// is cancelled when the line changed since it was read.
func (s *Store) DeleteLine(ownerID, lineID string, expectedQty int) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 s.key(ownerID, lineID),
			ConditionExpression: aws.String("quantity = :q"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":q": &types.AttributeValueMemberN{Value: strconv.Itoa(expectedQty)},
			},
		},
	}
}

func mapLineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var cf *types.ConditionalCheckFailedException
	if errors.As(err, &cf) {
		return ErrLineNotFound
	}
	return remote.Wrap(op, err)
}

func boolPtr(b bool) *bool { return &b }
