package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/model"
	"go.uber.org/zap"
)

// Publisher is the broker-facing half of the relay; the real implementation
// is broker.Session.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
}

// Source is the outbox-facing half: pending rows in creation order, and the
// publishedAt mark.
type Source interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id string) error
}

// Relay polls the outbox table on a fixed interval and delivers pending rows
// to the broker at-least-once. A crash between publish and mark leaves the
// row pending, so the event is published again on the next cycle; consumers
// tolerate the duplicate via the idempotency ledger.
type Relay struct {
	source    Source
	pub       Publisher
	interval  time.Duration
	batchSize int
	log       *zap.SugaredLogger
	busy      atomic.Bool
}

func NewRelay(source Source, pub Publisher, interval time.Duration, batchSize int, log *zap.SugaredLogger) *Relay {
	return &Relay{
		source:    source,
		pub:       pub,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start runs the polling loop until ctx is canceled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Infof("outbox relay started, polling every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of pending rows. At most one batch is in
// flight at a time: a tick (or caller) arriving while a batch is running is
// skipped, otherwise two batches could publish the same rows before either
// marks them.
func (r *Relay) ProcessBatch(ctx context.Context) {
	if !r.busy.CompareAndSwap(false, true) {
		r.log.Debug("previous poll still in flight, skipping")
		return
	}
	defer r.busy.Store(false)

	events, err := r.source.PollOutbox(ctx, r.batchSize)
	if err != nil {
		r.log.Errorf("poll outbox: %v", err)
		return
	}

	for _, evt := range events {
		// A failed row stays pending and is retried next cycle; the rest of
		// the batch proceeds.
		if err := r.pub.Publish(ctx, evt.Topic, evt.ID, []byte(evt.Payload)); err != nil {
			r.log.Errorf("publish event %s: %v", evt.ID, err)
			continue
		}
		if err := r.source.MarkOutboxPublished(ctx, evt.ID); err != nil {
			r.log.Errorf("mark published %s: %v", evt.ID, err)
			continue
		}
		r.log.Infof("published event %s to %s", evt.ID, evt.Topic)
	}
}
