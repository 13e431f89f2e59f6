package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service exposes read access to the materialized views. A view row that has
// not been projected yet reads as zeroed defaults, never as an error.
type Service struct {
	repo repo.ReadRepositoryInterface
	log  *zap.SugaredLogger
}

func NewService(r repo.ReadRepositoryInterface, logger *zap.SugaredLogger) *Service {
	return &Service{repo: r, log: logger}
}

// SyncStatus reports projection staleness: the most recent ledger insertion
// and the lag from now. Both are nil while the ledger is empty.
type SyncStatus struct {
	LastProcessedAt *time.Time
	LagSeconds      *int64
}

// ProductSales returns the sales view for one product, read-through cached.
func (s *Service) ProductSales(ctx context.Context, productID uint64) (*model.ProductSalesView, error) {
	key := fmt.Sprintf("views:product-sales:%d", productID)
	var cached model.ProductSalesView
	if err := s.repo.GetCachedView(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	row, err := s.repo.GetProductSales(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.ProductSalesView{ProductID: productID}, nil
		}
		return nil, err
	}
	if err := s.repo.CacheView(ctx, key, row); err != nil {
		s.log.Warnf("cache product sales %d: %v", productID, err)
	}
	return row, nil
}

// CategoryRevenue returns the metrics view for one category.
func (s *Service) CategoryRevenue(ctx context.Context, category string) (*model.CategoryMetricsView, error) {
	key := "views:category-metrics:" + category
	var cached model.CategoryMetricsView
	if err := s.repo.GetCachedView(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	row, err := s.repo.GetCategoryMetrics(ctx, category)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.CategoryMetricsView{CategoryName: category}, nil
		}
		return nil, err
	}
	if err := s.repo.CacheView(ctx, key, row); err != nil {
		s.log.Warnf("cache category metrics %s: %v", category, err)
	}
	return row, nil
}

// CustomerLTV returns the lifetime-value view for one customer.
func (s *Service) CustomerLTV(ctx context.Context, customerID uint64) (*model.CustomerLTVView, error) {
	key := fmt.Sprintf("views:customer-ltv:%d", customerID)
	var cached model.CustomerLTVView
	if err := s.repo.GetCachedView(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	row, err := s.repo.GetCustomerLTV(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.CustomerLTVView{CustomerID: customerID}, nil
		}
		return nil, err
	}
	if err := s.repo.CacheView(ctx, key, row); err != nil {
		s.log.Warnf("cache customer ltv %d: %v", customerID, err)
	}
	return row, nil
}

// HourlySales returns the sales view for one hour bucket. The given time is
// truncated to its hour boundary before lookup.
func (s *Service) HourlySales(ctx context.Context, at time.Time) (*model.HourlySalesView, error) {
	bucket := at.UTC().Truncate(time.Hour)
	row, err := s.repo.GetHourlySales(ctx, bucket)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.HourlySalesView{HourBucket: bucket}, nil
		}
		return nil, err
	}
	return row, nil
}

// Status computes the projection lag from the ledger.
func (s *Service) Status(ctx context.Context) (*SyncStatus, error) {
	last, err := s.repo.LastProcessedAt(ctx)
	if err != nil {
		return nil, err
	}
	st := &SyncStatus{LastProcessedAt: last}
	if last != nil {
		lag := int64(time.Since(*last).Seconds())
		st.LagSeconds = &lag
	}
	return st, nil
}
