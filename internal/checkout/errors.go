package checkout

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/catalog"
)

var (
	ErrEmptyCart    = errors.New("cart is empty")
	ErrCartTooLarge = errors.New("cart has too many lines for one checkout")
	// ErrCartChanged means the cart was modified between reading it and
	// committing the order.
	ErrCartChanged = errors.New("cart changed during checkout")
	// ErrConflict means the store rejected the commit because another
	// transaction touched the same records; retrying is safe.
	ErrConflict = errors.New("concurrent checkout conflict")
	// ErrKeyConflict is returned by a Ledger when the idempotency key was
	// claimed by a concurrent commit.
	ErrKeyConflict = errors.New("idempotency key already used")
	// ErrInProgress means another request with the same idempotency key has
	// not finished yet.
	ErrInProgress = errors.New("checkout with this idempotency key is in progress")
)

// StockError names the item whose stock could not cover the order. It
// matches catalog.ErrStockExhausted.
type StockError struct {
	ItemID string
}

func (e *StockError) Error() string {
	return fmt.Sprintf("not enough stock for item %s", e.ItemID)
}

func (e *StockError) Is(target error) bool {
	return target == catalog.ErrStockExhausted
}
