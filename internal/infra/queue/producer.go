package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channelPublisher is the slice of *amqp.Channel the producer needs.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch channelPublisher
}

func NewProducer(ch *amqp.Channel) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishLeadEvent(ctx context.Context, event LeadEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "queue: encode lead event")
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		event.Type,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return eris.Wrapf(err, "queue: publish %s", event.Type)
	}
	return nil
}

// LogProducer stands in for the broker when RABBITMQ_URL is unset.
type LogProducer struct {
	Log *zap.Logger
}

func (p LogProducer) PublishLeadEvent(_ context.Context, event LeadEvent) error {
	p.Log.Debug("lead_event",
		zap.String("type", event.Type),
		zap.String("lead_id", event.LeadID),
		zap.String("external_id", event.ExternalID),
		zap.String("status", event.Status),
	)
	return nil
}
