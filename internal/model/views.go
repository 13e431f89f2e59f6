package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessedEvent is the idempotency ledger: a row exists iff the event was
// durably applied to the views.
type ProcessedEvent struct {
	EventID     string    `gorm:"type:uuid;primaryKey"`
	ProcessedAt time.Time `gorm:"autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

type ProductSalesView struct {
	ProductID         uint64          `gorm:"primaryKey"`
	TotalQuantitySold int64           `gorm:"not null;default:0"`
	TotalRevenue      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	OrderCount        int64           `gorm:"not null;default:0"`
}

func (ProductSalesView) TableName() string { return "product_sales_view" }

type CategoryMetricsView struct {
	CategoryName string          `gorm:"size:255;primaryKey"`
	TotalRevenue decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TotalOrders  int64           `gorm:"not null;default:0"`
}

func (CategoryMetricsView) TableName() string { return "category_metrics_view" }

type CustomerLTVView struct {
	CustomerID    uint64          `gorm:"primaryKey"`
	TotalSpent    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	OrderCount    int64           `gorm:"not null;default:0"`
	LastOrderDate *time.Time
}

func (CustomerLTVView) TableName() string { return "customer_ltv_view" }

type HourlySalesView struct {
	HourBucket   time.Time       `gorm:"primaryKey"`
	TotalOrders  int64           `gorm:"not null;default:0"`
	TotalRevenue decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
}

func (HourlySalesView) TableName() string { return "hourly_sales_view" }
