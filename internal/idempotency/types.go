package idempotency

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StatusDone marks a key whose checkout committed. Records are only ever
// written together with their order, so no other status is persisted.
const StatusDone = "DONE"

// MaxKeyLength bounds client supplied keys.
const MaxKeyLength = 128

var ErrInvalidKey = errors.New("idempotency key must be 1-128 printable characters")

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK: owner#key
	OwnerID        string    `dynamodbav:"owner_id"`
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// ScopedKey confines a client key to one owner so two users sending the same
// key never collide.
func ScopedKey(ownerID, key string) string {
	return ownerID + "#" + key
}

// ValidateKey checks a client supplied key. The empty key means the request
// is not idempotent and is accepted.
func ValidateKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) > MaxKeyLength || strings.TrimSpace(key) != key {
		return ErrInvalidKey
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}
