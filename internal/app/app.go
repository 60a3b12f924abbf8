// Package app wires the storefront services onto the configured backend.
package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/checkout"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/postgres"
)

// Stores is one backend's implementation of every repository plus the
// checkout ledger.
type Stores struct {
	Items    catalog.Repository
	Carts    cart.Repository
	Orders   orders.Repository
	Statuses orders.StatusUpdater
	Roles    auth.RoleRepository
	Replays  checkout.Replays
	Ledger   checkout.Ledger
}

// App holds the services shared by the API and the worker.
type App struct {
	Catalog  *catalog.Service
	Carts    *cart.Service
	Checkout *checkout.Orchestrator
	Orders   *orders.Reader
	Gate     *auth.Gate
	Statuses orders.StatusUpdater
	// Metrics is nil when METRICS_NAMESPACE is empty.
	Metrics checkout.Metrics

	closers []func() error
}

// New builds the stores for cfg.Backend and the services on top of them.
// SQS and CloudWatch are optional and only used when configured.
func New(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	clients, err := aws.NewAWSClients(ctx, aws.ConfigOptions{
		Region:           cfg.AWSRegion,
		EndpointOverride: cfg.AWSEndpointOverride,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init aws clients")
	}

	a := &App{}
	var st Stores
	switch cfg.Backend {
	case config.BackendDynamoDB:
		st = DynamoStores(clients.DynamoDB, cfg)
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		st = PostgresStores(db, cfg)
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}

	deps := checkout.Deps{Log: log}
	if cfg.QueueURL != "" {
		deps.Events = aws.NewPublisher(clients.SQS, cfg.QueueURL)
	} else {
		log.Warn("ORDERS_QUEUE_URL not set; order events are not published")
	}
	if cfg.MetricsNamespace != "" {
		a.Metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
		deps.Metrics = a.Metrics
	}

	a.wire(st, deps, log)
	return a, nil
}

// wire builds the services over st. deps carries the optional publisher and
// metrics; its store fields are filled here.
func (a *App) wire(st Stores, deps checkout.Deps, log logrus.FieldLogger) {
	a.Gate = auth.NewGate(st.Roles)
	a.Catalog = catalog.NewService(st.Items, a.Gate, log.WithField("component", "catalog"))
	a.Carts = cart.NewService(st.Carts, st.Items, log.WithField("component", "cart"))
	a.Orders = orders.NewReader(st.Orders)
	a.Statuses = st.Statuses

	deps.Ledger = st.Ledger
	deps.Cart = a.Carts
	deps.Items = st.Items
	deps.Orders = st.Orders
	deps.Replays = st.Replays
	deps.Log = log.WithField("component", "checkout")
	a.Checkout = checkout.New(deps)
}

// DynamoStores binds the DynamoDB tables named in cfg.
func DynamoStores(client aws.DynamoDBAPI, cfg config.Config) Stores {
	items := catalog.NewStore(client, cfg.ItemsTable)
	carts := cart.NewStore(client, cfg.CartsTable)
	ords := orders.NewStore(client, cfg.OrdersTable, cfg.OrdersOwnerIndex)
	keys := idempotency.NewStore(client, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	return Stores{
		Items:    items,
		Carts:    carts,
		Orders:   ords,
		Statuses: ords,
		Roles:    auth.NewStore(client, cfg.RolesTable),
		Replays:  keys,
		Ledger:   checkout.NewDynamoLedger(client, ords, items, carts, keys),
	}
}

// PostgresStores binds the relational repositories on db.
func PostgresStores(db *postgres.DB, cfg config.Config) Stores {
	ords := postgres.NewOrderRepo(db)
	return Stores{
		Items:    postgres.NewCatalogRepo(db),
		Carts:    postgres.NewCartRepo(db),
		Orders:   ords,
		Statuses: ords,
		Roles:    postgres.NewRoleRepo(db),
		Replays:  postgres.NewIdempotencyRepo(db),
		Ledger:   postgres.NewLedger(db, cfg.IdempotencyTTL),
	}
}

// Close releases backend connections.
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
