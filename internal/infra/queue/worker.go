package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ReplyNotifier is told about every customer reply taken off the alerts queue.
type ReplyNotifier interface {
	NotifyReply(ctx context.Context, event LeadEvent) error
}

type Worker struct {
	Channel  *amqp.Channel
	Notifier ReplyNotifier
	Log      *zap.Logger
}

func NewWorker(ch *amqp.Channel, notifier ReplyNotifier, log *zap.Logger) *Worker {
	return &Worker{
		Channel:  ch,
		Notifier: notifier,
		Log:      log,
	}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.ConsumeWithContext(ctx,
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return eris.Wrapf(err, "queue: consume %s", queueName)
	}

	w.Log.Info("queue_worker_started", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			w.Log.Info("queue_worker_stopped", zap.String("queue", queueName))
			return nil
		case d, ok := <-msgs:
			if !ok {
				return eris.Errorf("queue: delivery channel for %s closed", queueName)
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var event LeadEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.Log.Error("queue_invalid_message", zap.Error(err))
		// Malformed payloads are rejected without requeue so they do not block the queue.
		d.Nack(false, false)
		return
	}

	if err := w.processMessage(ctx, event); err != nil {
		w.Log.Error("queue_process_failed",
			zap.String("type", event.Type),
			zap.String("lead_id", event.LeadID),
			zap.Error(err),
		)
		d.Nack(false, false)
		return
	}

	d.Ack(false)
}

func (w *Worker) processMessage(ctx context.Context, event LeadEvent) error {
	switch event.Type {
	case EventLeadReplied:
		return w.Notifier.NotifyReply(ctx, event)
	default:
		w.Log.Debug("queue_event_ignored", zap.String("type", event.Type))
		return nil
	}
}
