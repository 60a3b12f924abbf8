// Package checkout turns a cart into an order as one all-or-nothing commit.
package checkout

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// MaxLines is the largest cart one checkout accepts. A DynamoDB transaction
// holds at most 100 writes: the order, the idempotency record, and one stock
// update plus one cart delete per line.
const MaxLines = 49

// MetricCheckoutOutcome counts checkout attempts by outcome.
const MetricCheckoutOutcome = "CheckoutOutcome"

// Plan is everything a Ledger writes for one checkout.
type Plan struct {
	Order          orders.Order
	CartLines      []cart.Line
	IdempotencyKey string
}

// Demand is the total quantity of one item across the plan's lines.
type Demand struct {
	ItemID   string
	Quantity int
}

// StockDemand aggregates line quantities per item, sorted by item id so that
// concurrent commits lock items in the same order.
func (p Plan) StockDemand() []Demand {
	byItem := map[string]int{}
	for _, l := range p.CartLines {
		byItem[l.ItemID] += l.Quantity
	}
	out := make([]Demand, 0, len(byItem))
	for id, q := range byItem {
		out = append(out, Demand{ItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Ledger commits a plan atomically: the order with its lines, the stock
// decrements, the cart line deletes and the idempotency record are written
// together or not at all. Commit fails with a *StockError, ErrCartChanged,
// ErrKeyConflict, ErrConflict or a remote failure.
type Ledger interface {
	Commit(ctx context.Context, caller auth.Caller, p Plan) error
}

// Cart reads the caller's current lines.
type Cart interface {
	Lines(ctx context.Context, caller auth.Caller) ([]cart.Line, error)
}

// Items loads the catalog entries referenced by a cart.
type Items interface {
	GetMany(ctx context.Context, ids []string) (map[string]catalog.Item, error)
}

// Orders loads a committed order for replay.
type Orders interface {
	Get(ctx context.Context, caller auth.Caller, orderID string) (*orders.Order, error)
}

// Replays finds the order committed under an idempotency key.
type Replays interface {
	Lookup(ctx context.Context, caller auth.Caller, key string) (orderID string, ok bool, err error)
}

// EventPublisher announces committed orders.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}, attributes map[string]string) error
}

// Metrics counts outcomes.
type Metrics interface {
	Increment(ctx context.Context, metric string, dimensions map[string]string) error
}

// Deps wires an Orchestrator. Replays, Events and Metrics are optional.
type Deps struct {
	Ledger  Ledger
	Cart    Cart
	Items   Items
	Orders  Orders
	Replays Replays
	Events  EventPublisher
	Metrics Metrics
	Log     logrus.FieldLogger
}

// Result is the outcome of Place.
type Result struct {
	Order    *orders.Order
	State    State
	Replayed bool
}

// Orchestrator runs checkout attempts. It is safe for concurrent use.
type Orchestrator struct {
	d       Deps
	nowFunc func() time.Time
	newID   func() string
}

// New returns an Orchestrator over d.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		d:       d,
		nowFunc: time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Place converts the caller's cart into a pending order. Guard failures
// (anonymous caller, invalid key, empty or oversized cart) leave the attempt
// Idle; every other failure ends in Failed with nothing written.
func (o *Orchestrator) Place(ctx context.Context, caller auth.Caller, idempotencyKey string) (*Result, error) {
	log := o.d.Log.WithField("owner_id", caller.ID)
	a := newAttempt(log)
	res := &Result{State: Idle}

	if err := caller.Require(); err != nil {
		return res, err
	}
	if err := idempotency.ValidateKey(idempotencyKey); err != nil {
		return res, err
	}

	if idempotencyKey != "" {
		if replay, err := o.replay(ctx, caller, idempotencyKey); err != nil || replay != nil {
			if replay != nil {
				o.count(ctx, "replayed")
				return replay, nil
			}
			return res, err
		}
	}

	lines, err := o.d.Cart.Lines(ctx, caller)
	if err != nil {
		return res, err
	}
	if len(lines) == 0 {
		return res, ErrEmptyCart
	}
	if len(lines) > MaxLines {
		return res, ErrCartTooLarge
	}

	a.to(Submitting)
	res.State = a.state

	order, err := o.build(ctx, caller, lines)
	if err == nil {
		err = o.d.Ledger.Commit(ctx, caller, Plan{Order: *order, CartLines: lines, IdempotencyKey: idempotencyKey})
	}
	if errors.Is(err, ErrKeyConflict) {
		// a concurrent request with the same key won
		if replay, rerr := o.replay(ctx, caller, idempotencyKey); rerr == nil && replay != nil {
			a.to(Committed)
			o.count(ctx, "replayed")
			return replay, nil
		}
		err = ErrInProgress
	}
	if err != nil {
		a.to(Failed)
		res.State = a.state
		log.WithError(err).WithField("state", a.state.String()).Info("checkout failed")
		o.count(ctx, "failed")
		return res, err
	}

	a.to(Committed)
	res.State = a.state
	res.Order = order
	log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"state":    a.state.String(),
		"total":    order.Total.StringFixed(2),
		"lines":    len(order.Lines),
	}).Info("checkout committed")

	o.announce(ctx, *order)
	o.count(ctx, "committed")
	return res, nil
}

// build captures current prices and checks availability. The ledger repeats
// the stock check atomically.
func (o *Orchestrator) build(ctx context.Context, caller auth.Caller, lines []cart.Line) (*orders.Order, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ItemID)
	}
	items, err := o.d.Items.GetMany(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load checkout items")
	}

	demand := map[string]int{}
	out := make([]orders.Line, 0, len(lines))
	for _, l := range lines {
		it, ok := items[l.ItemID]
		if !ok || !it.IsActive {
			return nil, errors.Wrapf(catalog.ErrItemUnavailable, "item %s", l.ItemID)
		}
		demand[l.ItemID] += l.Quantity
		if it.StockQuantity < demand[l.ItemID] {
			return nil, &StockError{ItemID: l.ItemID}
		}
		out = append(out, orders.Line{
			ItemID:    l.ItemID,
			Variant:   l.Variant,
			Quantity:  l.Quantity,
			UnitPrice: it.Price,
			Name:      it.Name,
			ImageURL:  it.ImageURL,
		})
	}

	now := o.nowFunc().UTC()
	return &orders.Order{
		ID:        o.newID(),
		OwnerID:   caller.ID,
		Total:     orders.LinesTotal(out),
		Status:    orders.StatusPending,
		Lines:     out,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *Orchestrator) replay(ctx context.Context, caller auth.Caller, key string) (*Result, error) {
	if o.d.Replays == nil {
		return nil, nil
	}
	orderID, ok, err := o.d.Replays.Lookup(ctx, caller, key)
	if err != nil || !ok {
		return nil, err
	}
	order, err := o.d.Orders.Get(ctx, caller, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load replayed order %s", orderID)
	}
	o.d.Log.WithFields(logrus.Fields{"owner_id": caller.ID, "order_id": orderID}).Info("checkout replayed")
	return &Result{Order: order, State: Committed, Replayed: true}, nil
}

func (o *Orchestrator) announce(ctx context.Context, order orders.Order) {
	if o.d.Events == nil {
		return
	}
	err := o.d.Events.Publish(ctx, orders.EventOrderPlaced, order.PlacedEvent(), map[string]string{
		"order_id": order.ID,
		"owner_id": order.OwnerID,
	})
	if err != nil {
		o.d.Log.WithError(err).WithField("order_id", order.ID).Warn("publish order placed")
	}
}

func (o *Orchestrator) count(ctx context.Context, outcome string) {
	if o.d.Metrics == nil {
		return
	}
	if err := o.d.Metrics.Increment(ctx, MetricCheckoutOutcome, map[string]string{"Outcome": outcome}); err != nil {
		o.d.Log.WithError(err).Warn("record checkout metric")
	}
}
