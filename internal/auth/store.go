package auth

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// roleRecord is the item stored in the roles DynamoDB table.
type roleRecord struct {
	UserID string `dynamodbav:"user_id"` // PK
	Role   string `dynamodbav:"role"`
}

// Store reads role assignments from DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a role Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

var _ RoleRepository = (*Store)(nil)

func (s *Store) RoleOf(ctx context.Context, userID string) (Role, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return "", remote.Wrap("get role", err)
	}
	if len(out.Item) == 0 {
		return RoleCustomer, nil
	}
	var rec roleRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return "", remote.Wrap("unmarshal role", err)
	}
	if Role(rec.Role) == RoleAdmin {
		return RoleAdmin, nil
	}
	return RoleCustomer, nil
}
