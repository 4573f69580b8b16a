package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (r *recordingAck) Ack(uint64, bool) error { r.acked = true; return nil }
func (r *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	r.nacked = true
	r.requeue = requeue
	return nil
}
func (r *recordingAck) Reject(_ uint64, requeue bool) error {
	r.nacked = true
	r.requeue = requeue
	return nil
}

type fakeNotifier struct {
	events []LeadEvent
	err    error
}

func (f *fakeNotifier) NotifyReply(_ context.Context, event LeadEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func delivery(t *testing.T, ack amqp.Acknowledger, event any) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestHandleDelivery_ReplyIsNotifiedAndAcked(t *testing.T) {
	notifier := &fakeNotifier{}
	w := &Worker{Notifier: notifier, Log: zap.NewNop()}
	ack := &recordingAck{}

	event := NewLeadEvent(EventLeadReplied, "lead-1", "123", "+972501111111", "Dana", "לקוח הגיב", time.Now())
	w.handleDelivery(t.Context(), delivery(t, ack, event))

	assert.True(t, ack.acked)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "123", notifier.events[0].ExternalID)
}

func TestHandleDelivery_OtherEventsAreAcked(t *testing.T) {
	notifier := &fakeNotifier{}
	w := &Worker{Notifier: notifier, Log: zap.NewNop()}
	ack := &recordingAck{}

	w.handleDelivery(t.Context(), delivery(t, ack, LeadEvent{Type: EventLeadCreated}))

	assert.True(t, ack.acked)
	assert.Empty(t, notifier.events)
}

func TestHandleDelivery_NotifierFailureIsDeadLettered(t *testing.T) {
	w := &Worker{Notifier: &fakeNotifier{err: errors.New("smtp down")}, Log: zap.NewNop()}
	ack := &recordingAck{}

	w.handleDelivery(t.Context(), delivery(t, ack, LeadEvent{Type: EventLeadReplied}))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestHandleDelivery_MalformedBody(t *testing.T) {
	w := &Worker{Notifier: &fakeNotifier{}, Log: zap.NewNop()}
	ack := &recordingAck{}

	w.handleDelivery(t.Context(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	assert.True(t, ack.nacked)
	assert.False(t, ack.acked)
}
