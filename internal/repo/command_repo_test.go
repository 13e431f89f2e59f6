package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCommandRepo(t *testing.T) (*CommandRepository, context.Context) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.OutboxEvent{}))
	log, _ := logger.NewLogger("test")
	return NewCommandRepository(db, log), context.Background()
}

func TestDecrementStock_GuardsAgainstOversell(t *testing.T) {
	r, ctx := newCommandRepo(t)
	p := &model.Product{Name: "Widget", Category: "Tools", Price: decimal.NewFromInt(1), Stock: 3}
	require.NoError(t, r.db.Create(p).Error)

	require.NoError(t, r.DecrementStock(ctx, r.db, p.ID, 2))

	err := r.DecrementStock(ctx, r.db, p.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var got model.Product
	require.NoError(t, r.db.First(&got, p.ID).Error)
	assert.EqualValues(t, 1, got.Stock)
}

func TestMarkOutboxPublished_SetsTimestampOnce(t *testing.T) {
	r, ctx := newCommandRepo(t)
	evt := &model.OutboxEvent{ID: uuid.NewString(), Topic: "order-events", Payload: "{}"}
	require.NoError(t, r.db.Create(evt).Error)

	require.NoError(t, r.MarkOutboxPublished(ctx, evt.ID))

	var got model.OutboxEvent
	require.NoError(t, r.db.First(&got, "id = ?", evt.ID).Error)
	require.NotNil(t, got.PublishedAt)

	// a second mark must not move the timestamp
	pinned := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, r.db.Model(&model.OutboxEvent{}).
		Where("id = ?", evt.ID).
		Update("published_at", pinned).Error)
	require.NoError(t, r.MarkOutboxPublished(ctx, evt.ID))

	require.NoError(t, r.db.First(&got, "id = ?", evt.ID).Error)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(pinned))
}

func TestPollOutbox_ReturnsPendingInCreationOrder(t *testing.T) {
	r, ctx := newCommandRepo(t)
	base := time.Now().Add(-time.Minute)
	ids := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for i, id := range ids {
		require.NoError(t, r.db.Create(&model.OutboxEvent{
			ID:        id,
			Topic:     "order-events",
			Payload:   "{}",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}).Error)
	}
	require.NoError(t, r.MarkOutboxPublished(ctx, ids[0]))

	pending, err := r.PollOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID)
	assert.Equal(t, ids[2], pending[1].ID)

	limited, err := r.PollOutbox(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, ids[1], limited[0].ID)
}
