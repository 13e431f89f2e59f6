package broker

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Topology names shared by the relay and the consumer.
const (
	ExchangeName = "events"
	QueueName    = "consumer-queue"
	DLXName      = ExchangeName + ".dlx"
	DLQName      = QueueName + ".dlq"
)

// BindingKeys routes both domain event streams into the consumer queue.
var BindingKeys = []string{"order-events", "product-events"}

// Session wraps one AMQP connection and channel; a session is owned by a
// single process and never shared.
type Session struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.SugaredLogger
}

// Connect dials the broker under the given backoff policy. Exhausting the
// policy is a startup failure for the caller.
func Connect(ctx context.Context, url string, policy BackoffPolicy, log *zap.SugaredLogger) (*Session, error) {
	s := &Session{log: log}
	attempt := 0
	err := policy.Retry(ctx, func() error {
		attempt++
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warnf("broker connect failed (attempt %d/%d): %v", attempt, policy.MaxAttempts, err)
			return err
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return err
		}
		s.conn, s.ch = conn, ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("connected to broker")
	return s, nil
}

// DeclareExchange asserts the durable topic exchange; enough for publishers.
func (s *Session) DeclareExchange() error {
	return s.ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
}

// DeclareTopology asserts the full consumer topology: the topic exchange, the
// dead-letter exchange/queue pair, the primary queue with its DLX target, and
// the routing-key bindings.
func (s *Session) DeclareTopology() error {
	if err := s.DeclareExchange(); err != nil {
		return err
	}
	if err := s.ch.ExchangeDeclare(DLXName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := s.ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	// catch-all binding: everything rejected lands in the DLQ
	if err := s.ch.QueueBind(DLQName, "#", DLXName, false, nil); err != nil {
		return err
	}
	if _, err := s.ch.QueueDeclare(QueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DLXName,
	}); err != nil {
		return err
	}
	for _, key := range BindingKeys {
		if err := s.ch.QueueBind(QueueName, key, ExchangeName, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// Publish sends one persistent message to the topic exchange. The outbox row
// id travels as the message id so duplicates can be traced end to end.
func (s *Session) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	return s.ch.PublishWithContext(ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

// NotifyClose registers for connection-level close events.
func (s *Session) NotifyClose() chan *amqp.Error {
	return s.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close releases the channel and connection.
func (s *Session) Close() {
	if s.ch != nil {
		s.ch.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
