package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss is returned by GetCachedView when redis has no entry.
var ErrCacheMiss = errors.New("view cache miss")

const viewCacheTTL = 30 * time.Second

// ReadRepositoryInterface restricts ReadRepository methods (unit test mocks).
type ReadRepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	EventProcessed(ctx context.Context, tx *gorm.DB, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, tx *gorm.DB, eventID string) error
	ApplyProductSale(ctx context.Context, tx *gorm.DB, productID uint64, qty int64, revenue decimal.Decimal) error
	ApplyCategoryMetrics(ctx context.Context, tx *gorm.DB, category string, revenue decimal.Decimal) error
	ApplyCustomerLTV(ctx context.Context, tx *gorm.DB, customerID uint64, total decimal.Decimal, orderedAt time.Time) error
	ApplyHourlySales(ctx context.Context, tx *gorm.DB, bucket time.Time, total decimal.Decimal) error
	GetProductSales(ctx context.Context, productID uint64) (*model.ProductSalesView, error)
	GetCategoryMetrics(ctx context.Context, category string) (*model.CategoryMetricsView, error)
	GetCustomerLTV(ctx context.Context, customerID uint64) (*model.CustomerLTVView, error)
	GetHourlySales(ctx context.Context, bucket time.Time) (*model.HourlySalesView, error)
	LastProcessedAt(ctx context.Context) (*time.Time, error)
	CacheView(ctx context.Context, key string, v interface{}) error
	GetCachedView(ctx context.Context, key string, dest interface{}) error
}

// ReadRepository owns the read store: the four materialized views and the
// processed-events ledger, plus the redis view cache.
type ReadRepository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewReadRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *ReadRepository {
	return &ReadRepository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *ReadRepository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// EventProcessed reports whether the ledger already holds the event id.
func (r *ReadRepository) EventProcessed(ctx context.Context, tx *gorm.DB, eventID string) (bool, error) {
	var pe model.ProcessedEvent
	err := tx.WithContext(ctx).Where("event_id = ?", eventID).First(&pe).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// MarkEventProcessed inserts the ledger row; a duplicate insert is a no-op.
func (r *ReadRepository) MarkEventProcessed(ctx context.Context, tx *gorm.DB, eventID string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ProcessedEvent{EventID: eventID, ProcessedAt: time.Now()}).Error
}

// ApplyProductSale accumulates one sold line item into product_sales_view.
func (r *ReadRepository) ApplyProductSale(ctx context.Context, tx *gorm.DB, productID uint64, qty int64, revenue decimal.Decimal) error {
	var row model.ProductSalesView
	err := tx.WithContext(ctx).Where("product_id = ?", productID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.ProductSalesView{
			ProductID:         productID,
			TotalQuantitySold: qty,
			TotalRevenue:      revenue,
			OrderCount:        1,
		}
		return tx.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&model.ProductSalesView{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"total_quantity_sold": row.TotalQuantitySold + qty,
			"total_revenue":       row.TotalRevenue.Add(revenue),
			"order_count":         row.OrderCount + 1,
		}).Error
}

// ApplyCategoryMetrics adds one order's revenue for a category; the order
// counts once per category regardless of how many items touched it.
func (r *ReadRepository) ApplyCategoryMetrics(ctx context.Context, tx *gorm.DB, category string, revenue decimal.Decimal) error {
	var row model.CategoryMetricsView
	err := tx.WithContext(ctx).Where("category_name = ?", category).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.CategoryMetricsView{
			CategoryName: category,
			TotalRevenue: revenue,
			TotalOrders:  1,
		}
		return tx.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&model.CategoryMetricsView{}).
		Where("category_name = ?", category).
		Updates(map[string]interface{}{
			"total_revenue": row.TotalRevenue.Add(revenue),
			"total_orders":  row.TotalOrders + 1,
		}).Error
}

// ApplyCustomerLTV accumulates an order into customer_ltv_view keeping
// last_order_date as a running max.
func (r *ReadRepository) ApplyCustomerLTV(ctx context.Context, tx *gorm.DB, customerID uint64, total decimal.Decimal, orderedAt time.Time) error {
	var row model.CustomerLTVView
	err := tx.WithContext(ctx).Where("customer_id = ?", customerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.CustomerLTVView{
			CustomerID:    customerID,
			TotalSpent:    total,
			OrderCount:    1,
			LastOrderDate: &orderedAt,
		}
		return tx.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	last := orderedAt
	if row.LastOrderDate != nil && row.LastOrderDate.After(orderedAt) {
		last = *row.LastOrderDate
	}
	return tx.WithContext(ctx).
		Model(&model.CustomerLTVView{}).
		Where("customer_id = ?", customerID).
		Updates(map[string]interface{}{
			"total_spent":     row.TotalSpent.Add(total),
			"order_count":     row.OrderCount + 1,
			"last_order_date": last,
		}).Error
}

// ApplyHourlySales accumulates an order into its hour bucket.
func (r *ReadRepository) ApplyHourlySales(ctx context.Context, tx *gorm.DB, bucket time.Time, total decimal.Decimal) error {
	var row model.HourlySalesView
	err := tx.WithContext(ctx).Where("hour_bucket = ?", bucket).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.HourlySalesView{
			HourBucket:   bucket,
			TotalOrders:  1,
			TotalRevenue: total,
		}
		return tx.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&model.HourlySalesView{}).
		Where("hour_bucket = ?", bucket).
		Updates(map[string]interface{}{
			"total_orders":  row.TotalOrders + 1,
			"total_revenue": row.TotalRevenue.Add(total),
		}).Error
}

// GetProductSales fetches one view row; gorm.ErrRecordNotFound when absent.
func (r *ReadRepository) GetProductSales(ctx context.Context, productID uint64) (*model.ProductSalesView, error) {
	var row model.ProductSalesView
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ReadRepository) GetCategoryMetrics(ctx context.Context, category string) (*model.CategoryMetricsView, error) {
	var row model.CategoryMetricsView
	if err := r.db.WithContext(ctx).Where("category_name = ?", category).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ReadRepository) GetCustomerLTV(ctx context.Context, customerID uint64) (*model.CustomerLTVView, error) {
	var row model.CustomerLTVView
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ReadRepository) GetHourlySales(ctx context.Context, bucket time.Time) (*model.HourlySalesView, error) {
	var row model.HourlySalesView
	if err := r.db.WithContext(ctx).Where("hour_bucket = ?", bucket).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LastProcessedAt returns the most recent ledger insertion time, nil when the
// ledger is empty.
func (r *ReadRepository) LastProcessedAt(ctx context.Context) (*time.Time, error) {
	var pe model.ProcessedEvent
	err := r.db.WithContext(ctx).Order("processed_at desc").First(&pe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pe.ProcessedAt, nil
}

// CacheView writes a serialized view row to redis with a short TTL.
func (r *ReadRepository) CacheView(ctx context.Context, key string, v interface{}) error {
	if r.rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key, b, viewCacheTTL).Err()
}

// GetCachedView reads a serialized view row from redis.
func (r *ReadRepository) GetCachedView(ctx context.Context, key string, dest interface{}) error {
	if r.rdb == nil {
		return ErrCacheMiss
	}
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(b, dest)
}
