package checkout

import (
	"context"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// Cancellation reason codes reported by TransactWriteItems.
const (
	reasonConditionFailed     = "ConditionalCheckFailed"
	reasonTransactionConflict = "TransactionConflict"
)

type writeKind int

const (
	writeOrder writeKind = iota
	writeStock
	writeCartLine
	writeKey
)

// writeRef tells which plan element produced a transaction item, so a
// cancellation reason can be turned back into a domain error.
type writeRef struct {
	kind   writeKind
	itemID string
}

// DynamoLedger commits a plan with a single TransactWriteItems call across
// the orders, items, carts and idempotency tables.
type DynamoLedger struct {
	client aws.DynamoDBAPI
	orders *orders.Store
	items  *catalog.Store
	carts  *cart.Store
	keys   *idempotency.Store
}

// NewDynamoLedger creates a DynamoLedger over the given table stores.
func NewDynamoLedger(client aws.DynamoDBAPI, o *orders.Store, items *catalog.Store, carts *cart.Store, keys *idempotency.Store) *DynamoLedger {
	return &DynamoLedger{client: client, orders: o, items: items, carts: carts, keys: keys}
}

var _ Ledger = (*DynamoLedger)(nil)

func (l *DynamoLedger) Commit(ctx context.Context, caller auth.Caller, p Plan) error {
	put, err := l.orders.PutOrder(p.Order)
	if err != nil {
		return remote.Wrap("build order put", err)
	}
	tx := []types.TransactWriteItem{put}
	refs := []writeRef{{kind: writeOrder}}

	for _, d := range p.StockDemand() {
		tx = append(tx, l.items.DecrementStock(d.ItemID, d.Quantity))
		refs = append(refs, writeRef{kind: writeStock, itemID: d.ItemID})
	}
	for _, line := range p.CartLines {
		tx = append(tx, l.carts.DeleteLine(caller.ID, line.ID, line.Quantity))
		refs = append(refs, writeRef{kind: writeCartLine, itemID: line.ItemID})
	}
	if p.IdempotencyKey != "" {
		keyPut, err := l.keys.PutDone(caller.ID, p.IdempotencyKey, p.Order.ID)
		if err != nil {
			return remote.Wrap("build idempotency put", err)
		}
		tx = append(tx, keyPut)
		refs = append(refs, writeRef{kind: writeKey})
	}

	_, err = l.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems:      tx,
		ClientRequestToken: &p.Order.ID,
	})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return cancellationError(tce, refs)
	}
	return remote.Wrap("commit checkout", err)
}

// cancellationError maps the first failed condition to its domain error.
// Reasons are positional and match the transaction items one to one.
func cancellationError(tce *types.TransactionCanceledException, refs []writeRef) error {
	conflict := false
	for i, r := range tce.CancellationReasons {
		if i >= len(refs) || r.Code == nil {
			continue
		}
		switch *r.Code {
		case reasonConditionFailed:
			switch ref := refs[i]; ref.kind {
			case writeStock:
				if !activeIn(r.Item) {
					return errors.Wrapf(catalog.ErrItemUnavailable, "item %s", ref.itemID)
				}
				return &StockError{ItemID: ref.itemID}
			case writeCartLine:
				return ErrCartChanged
			case writeKey:
				return ErrKeyConflict
			default:
				return remote.Wrap("commit checkout", tce)
			}
		case reasonTransactionConflict:
			conflict = true
		}
	}
	if conflict {
		return ErrConflict
	}
	return remote.Wrap("commit checkout", tce)
}

// activeIn reads is_active from the old image returned with a failed
// condition. A missing image means the item does not exist.
func activeIn(old map[string]types.AttributeValue) bool {
	v, ok := old["is_active"].(*types.AttributeValueMemberBOOL)
	return ok && v.Value
}
