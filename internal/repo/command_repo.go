package repo

import (
	"context"
	"errors"

	"github.com/alexzhu96/shop-cqrs/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientStock is returned when a conditional stock decrement matches
// no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// CommandRepositoryInterface restricts CommandRepository methods (unit test mocks).
type CommandRepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	CreateProduct(ctx context.Context, tx *gorm.DB, p *model.Product) error
	GetProductForUpdate(ctx context.Context, tx *gorm.DB, productID uint64) (*model.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uint64, qty int64) error
	CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error
	CreateOrderItem(ctx context.Context, tx *gorm.DB, item *model.OrderItem) error
	AppendOutbox(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id string) error
}

// CommandRepository owns the write store: products, orders, order items and
// the outbox table.
type CommandRepository struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewCommandRepository(db *gorm.DB, logger *zap.SugaredLogger) *CommandRepository {
	return &CommandRepository{db: db, log: logger}
}

// DB returns underlying *gorm.DB
func (r *CommandRepository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// CreateProduct inserts a product row.
func (r *CommandRepository) CreateProduct(ctx context.Context, tx *gorm.DB, p *model.Product) error {
	return tx.WithContext(ctx).Create(p).Error
}

// GetProductForUpdate locks the product row for the rest of the transaction.
// SQLite (test store) has no FOR UPDATE; its single-writer lock serializes
// transactions there.
func (r *CommandRepository) GetProductForUpdate(ctx context.Context, tx *gorm.DB, productID uint64) (*model.Product, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p model.Product
	if err := q.Where("id = ?", productID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DecrementStock subtracts qty guarded by a stock >= qty predicate, so stock
// can never go negative even if the caller's read was stale.
func (r *CommandRepository) DecrementStock(ctx context.Context, tx *gorm.DB, productID uint64, qty int64) error {
	res := tx.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// CreateOrder inserts an order row.
func (r *CommandRepository) CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

// CreateOrderItem inserts an order item row.
func (r *CommandRepository) CreateOrderItem(ctx context.Context, tx *gorm.DB, item *model.OrderItem) error {
	return tx.WithContext(ctx).Create(item).Error
}

// AppendOutbox writes the event row; callers must pass the same tx as the
// state mutation so both commit or neither does.
func (r *CommandRepository) AppendOutbox(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unpublished rows in creation order.
func (r *CommandRepository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at asc").
		Limit(limit).
		Find(&evts).Error
	return evts, err
}

// MarkOutboxPublished sets published_at once; a row already marked is left
// untouched.
func (r *CommandRepository) MarkOutboxPublished(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
