package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// MetricOrderIntake counts intake transitions by result.
const MetricOrderIntake = "OrderIntake"

// StatusStore performs conditional order status transitions.
type StatusStore interface {
	UpdateStatus(ctx context.Context, orderID string, expected, next orders.Status) error
}

// Counter records count metrics.
type Counter interface {
	Increment(ctx context.Context, metric string, dimensions map[string]string) error
}

// Processor moves placed orders from pending to processing.
type Processor struct {
	statuses StatusStore
	metrics  Counter
	log      logrus.FieldLogger
}

// NewProcessor returns a Processor. metrics may be nil.
func NewProcessor(statuses StatusStore, metrics Counter, log logrus.FieldLogger) *Processor {
	return &Processor{statuses: statuses, metrics: metrics, log: log}
}

// Handle processes an SQS batch. Failed messages are reported individually so
// only they are redelivered and, after the queue's redrive limit, dead-lettered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.WithError(err).WithField("message_id", rec.MessageId).Error("worker error")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	if attr, ok := rec.MessageAttributes[aws.EventTypeAttribute]; ok && attr.StringValue != nil &&
		*attr.StringValue != orders.EventOrderPlaced {
		p.log.WithField("event_type", *attr.StringValue).Warn("ignoring unknown event")
		return nil
	}

	var msg orders.PlacedEvent
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return errors.Wrap(err, "invalid message body")
	}
	if msg.OrderID == "" {
		return errors.New("message has no order_id")
	}
	log := p.log.WithFields(logrus.Fields{"order_id": msg.OrderID, "owner_id": msg.OwnerID})

	err := p.statuses.UpdateStatus(ctx, msg.OrderID, orders.StatusPending, orders.StatusProcessing)
	if errors.Is(err, orders.ErrStatusMismatch) {
		// redelivery, or the order already moved on
		log.Info("order already taken in")
		p.count(ctx, "duplicate")
		return nil
	}
	if err != nil {
		p.count(ctx, "failed")
		return errors.Wrap(err, "update status to processing")
	}

	log.WithField("total_amount", msg.Total).Info("order taken in")
	p.count(ctx, "processing")
	return nil
}

func (p *Processor) count(ctx context.Context, result string) {
	if p.metrics == nil {
		return
	}
	if err := p.metrics.Increment(ctx, MetricOrderIntake, map[string]string{"Result": result}); err != nil {
		p.log.WithError(err).Warn("record intake metric")
	}
}
