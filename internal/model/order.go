package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const OrderStatusCreated = "created"

type Order struct {
	ID         uint64          `gorm:"primaryKey"`
	CustomerID uint64          `gorm:"not null"`
	Total      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status     string          `gorm:"size:50;not null;default:'created'"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        uint64          `gorm:"primaryKey"`
	OrderID   uint64          `gorm:"not null;index"`
	ProductID uint64          `gorm:"not null"`
	Quantity  int64           `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (OrderItem) TableName() string { return "order_items" }
