package broker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/event"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one decoded event body. A returned error sends the
// message to the dead-letter queue.
type HandlerFunc func(ctx context.Context, body []byte) error

// Consumer owns the subscription to the primary queue and dispatches
// deliveries one at a time (prefetch 1) to the registered handlers.
type Consumer struct {
	url            string
	policy         BackoffPolicy
	reconnectDelay time.Duration
	handlers       map[string]HandlerFunc
	log            *zap.SugaredLogger
	connected      atomic.Bool
}

func NewConsumer(url string, handlers map[string]HandlerFunc, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		url:            url,
		policy:         BackoffPolicy{MaxAttempts: 15, Delay: 3 * time.Second},
		reconnectDelay: 5 * time.Second,
		handlers:       handlers,
		log:            log,
	}
}

// Connected reports whether a broker session is currently live (health endpoint).
func (c *Consumer) Connected() bool { return c.connected.Load() }

// Run loops Disconnected → Connecting → Topology-Ready → Consuming until ctx
// is canceled. Exhausting the connect bound returns an error, which is fatal
// at startup; once a session was established, a lost connection is retried
// after a fixed delay under the same bound.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		sess, err := Connect(ctx, c.url, c.policy, c.log)
		if err != nil {
			return err
		}
		if err := c.consume(ctx, sess); err != nil {
			sess.Close()
			return err
		}
		sess.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Infof("connection lost, reconnecting in %s", c.reconnectDelay)
		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// consume runs one session until the connection drops (nil) or ctx ends.
func (c *Consumer) consume(ctx context.Context, sess *Session) error {
	if err := sess.DeclareTopology(); err != nil {
		return err
	}
	// prefetch 1: one unacknowledged message in flight, fair dispatch
	if err := sess.ch.Qos(1, 0, false); err != nil {
		return err
	}
	deliveries, err := sess.ch.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.log.Infof("waiting for messages on queue %s", QueueName)

	closed := sess.NotifyClose()
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				c.log.Warnf("broker connection closed: %v", amqpErr)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch decodes the envelope once, routes by event type and acks or nacks.
// Unknown types are logged and acked; handler failures are nacked without
// requeue so the broker dead-letters them.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var env event.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.log.Errorf("undecodable message %s: %v", d.MessageId, err)
		d.Nack(false, false)
		return
	}
	handler, ok := c.handlers[env.EventType]
	if !ok {
		c.log.Infof("unknown event type %q, dropping event %s", env.EventType, env.EventID)
		d.Ack(false)
		return
	}
	if err := handler(ctx, d.Body); err != nil {
		c.log.Errorf("handling %s event %s failed: %v", env.EventType, env.EventID, err)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}
