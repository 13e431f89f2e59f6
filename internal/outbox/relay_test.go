package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type published struct {
	topic     string
	messageID string
	body      string
}

// fakePublisher records publishes and can fail selected message ids or block
// until released.
type fakePublisher struct {
	mu      sync.Mutex
	sent    []published
	failIDs map[string]bool
	started chan struct{}
	release chan struct{}
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if f.failIDs[messageID] {
		return errors.New("broker unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{routingKey, messageID, string(body)})
	return nil
}

func (f *fakePublisher) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.sent))
	for i, p := range f.sent {
		ids[i] = p.messageID
	}
	return ids
}

var seq int

func newRelayFixture(t *testing.T, pub Publisher) (*Relay, *repo.CommandRepository, context.Context) {
	seq++
	dsn := fmt.Sprintf("file:relaytest%d?mode=memory&cache=shared", seq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.OutboxEvent{}))
	log, _ := logger.NewLogger("test")
	r := repo.NewCommandRepository(db, log)
	return NewRelay(r, pub, 10*time.Millisecond, 100, log), r, context.Background()
}

func seedOutbox(t *testing.T, r *repo.CommandRepository, ctx context.Context, n int) []string {
	base := time.Now().Add(-time.Minute)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
		require.NoError(t, r.DB(ctx).Create(&model.OutboxEvent{
			ID:        ids[i],
			Topic:     "order-events",
			Payload:   fmt.Sprintf(`{"n":%d}`, i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
	return ids
}

func TestProcessBatch_PublishesAndMarksInOrder(t *testing.T) {
	pub := &fakePublisher{}
	relay, r, ctx := newRelayFixture(t, pub)
	ids := seedOutbox(t, r, ctx, 3)

	relay.ProcessBatch(ctx)

	assert.Equal(t, ids, pub.sentIDs())

	pending, err := r.PollOutbox(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// nothing left: the next cycle publishes nothing
	relay.ProcessBatch(ctx)
	assert.Len(t, pub.sent, 3)
}

func TestProcessBatch_RowFailureDoesNotStopBatch(t *testing.T) {
	pub := &fakePublisher{failIDs: map[string]bool{}}
	relay, r, ctx := newRelayFixture(t, pub)
	ids := seedOutbox(t, r, ctx, 3)
	pub.failIDs[ids[1]] = true

	relay.ProcessBatch(ctx)

	// rows around the failure were delivered and marked
	assert.Equal(t, []string{ids[0], ids[2]}, pub.sentIDs())
	pending, err := r.PollOutbox(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].ID)

	// the failed row is retried on the next cycle
	pub.failIDs[ids[1]] = false
	relay.ProcessBatch(ctx)
	assert.Equal(t, []string{ids[0], ids[2], ids[1]}, pub.sentIDs())
}

func TestProcessBatch_SkipsWhileInFlight(t *testing.T) {
	pub := &fakePublisher{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	relay, r, ctx := newRelayFixture(t, pub)
	seedOutbox(t, r, ctx, 1)

	done := make(chan struct{})
	go func() {
		relay.ProcessBatch(ctx)
		close(done)
	}()
	<-pub.started

	// overlapping poll is a no-op: the row must not be published twice
	relay.ProcessBatch(ctx)

	close(pub.release)
	<-done
	assert.Len(t, pub.sent, 1)
}
