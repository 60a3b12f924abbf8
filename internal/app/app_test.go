package app

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/checkout"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

func TestWire_DynamoStores(t *testing.T) {
	cfg := config.Config{
		ItemsTable:       "items",
		CartsTable:       "carts",
		OrdersTable:      "orders",
		OrdersOwnerIndex: "owner-index",
		RolesTable:       "roles",
		IdempotencyTable: "idempotency",
		IdempotencyTTL:   time.Hour,
	}
	st := DynamoStores(nil, cfg)
	require.NotNil(t, st.Ledger)
	require.NotNil(t, st.Replays)

	// the orders table serves reads and worker status updates
	_, ok := st.Statuses.(*orders.Store)
	assert.True(t, ok)

	log := logrus.New()
	log.SetOutput(io.Discard)

	a := &App{}
	a.wire(st, checkout.Deps{}, log)
	assert.NotNil(t, a.Catalog)
	assert.NotNil(t, a.Carts)
	assert.NotNil(t, a.Checkout)
	assert.NotNil(t, a.Orders)
	assert.NotNil(t, a.Gate)
	assert.Nil(t, a.Metrics)
	assert.NoError(t, a.Close())
}
