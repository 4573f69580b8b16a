package queue

import (
	"github.com/rotisserie/eris"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName    = "ex.leads"
	AlertsQueueName = "q.lead-alerts"
	DLQName         = "q.lead-alerts.dlq"
	DLXName         = "ex.leads.dlx" // Dead Letter Exchange
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq: dial")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "rabbitmq: open channel")
	}

	if err := setupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

// Lifecycle events go to a topic exchange; only replies are queued for the
// alert consumer, rejected alerts land in the DLQ.
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: declare dlx")
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: declare dlq")
	}
	if err := ch.QueueBind(DLQName, EventLeadReplied, DLXName, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: bind dlq")
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": EventLeadReplied,
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: declare exchange")
	}
	if _, err := ch.QueueDeclare(AlertsQueueName, true, false, false, false, args); err != nil {
		return eris.Wrap(err, "rabbitmq: declare alerts queue")
	}
	if err := ch.QueueBind(AlertsQueueName, EventLeadReplied, ExchangeName, false, nil); err != nil {
		return eris.Wrap(err, "rabbitmq: bind alerts queue")
	}
	return nil
}

// Healthy reports whether the broker connection is still open.
func (r *RabbitMQ) Healthy() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if r.Ch != nil {
		r.Ch.Close()
	}
	if r.Conn != nil {
		return r.Conn.Close()
	}
	return nil
}
