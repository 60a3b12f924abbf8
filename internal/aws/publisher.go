package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// EventTypeAttribute is the message attribute carrying the event type.
const EventTypeAttribute = "event_type"

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish marshals payload to JSON and sends it with eventType and attributes
// as string message attributes.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload interface{}, attributes map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	attrs := map[string]string{EventTypeAttribute: eventType}
	for k, v := range attributes {
		if v != "" {
			attrs[k] = v
		}
	}
	return p.SendMessage(ctx, string(body), attrs)
}

// SendMessage sends a raw message body. attributes are sent as String MessageAttributes.
func (p *Publisher) SendMessage(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    String("String"),
				StringValue: String(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
