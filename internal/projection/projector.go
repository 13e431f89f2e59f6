package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/event"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Projector applies domain events to the materialized views. Applying the
// same event any number of times yields the state of applying it once: the
// ledger check, the view updates and the ledger insert share one transaction.
type Projector struct {
	repo repo.ReadRepositoryInterface
	log  *zap.SugaredLogger
}

func NewProjector(r repo.ReadRepositoryInterface, logger *zap.SugaredLogger) *Projector {
	return &Projector{repo: r, log: logger}
}

// ApplyOrderCreated decodes and applies an OrderCreated event body.
func (p *Projector) ApplyOrderCreated(ctx context.Context, body []byte) error {
	var evt event.OrderCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return err
	}
	return p.HandleOrderCreated(ctx, evt)
}

// ApplyProductCreated decodes and applies a ProductCreated event body.
func (p *Projector) ApplyProductCreated(ctx context.Context, body []byte) error {
	var evt event.ProductCreated
	if err := json.Unmarshal(body, &evt); err != nil {
		return err
	}
	return p.HandleProductCreated(ctx, evt)
}

// HandleOrderCreated updates all four views for one order event.
func (p *Projector) HandleOrderCreated(ctx context.Context, evt event.OrderCreated) error {
	return p.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := p.repo.EventProcessed(ctx, tx, evt.EventID)
		if err != nil {
			return err
		}
		if seen {
			p.log.Infof("event %s already processed, skipping", evt.EventID)
			return nil
		}

		for _, item := range evt.Items {
			revenue := item.Price.Mul(decimal.NewFromInt(item.Quantity))
			if err := p.repo.ApplyProductSale(ctx, tx, item.ProductID, item.Quantity, revenue); err != nil {
				return err
			}
		}

		// One order counts once per distinct category it touched, however
		// many items fell into that category.
		byCategory := make(map[string]decimal.Decimal)
		for _, item := range evt.Items {
			revenue := item.Price.Mul(decimal.NewFromInt(item.Quantity))
			byCategory[item.Category] = byCategory[item.Category].Add(revenue)
		}
		for category, revenue := range byCategory {
			if err := p.repo.ApplyCategoryMetrics(ctx, tx, category, revenue); err != nil {
				return err
			}
		}

		if err := p.repo.ApplyCustomerLTV(ctx, tx, evt.CustomerID, evt.Total, evt.Timestamp); err != nil {
			return err
		}

		if err := p.repo.ApplyHourlySales(ctx, tx, HourBucket(evt.Timestamp), evt.Total); err != nil {
			return err
		}

		return p.repo.MarkEventProcessed(ctx, tx, evt.EventID)
	})
}

// HandleProductCreated records the ledger entry only; no view is derived from
// product creation, but redelivered copies must still be recognized.
func (p *Projector) HandleProductCreated(ctx context.Context, evt event.ProductCreated) error {
	return p.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := p.repo.EventProcessed(ctx, tx, evt.EventID)
		if err != nil {
			return err
		}
		if seen {
			p.log.Infof("event %s already processed, skipping", evt.EventID)
			return nil
		}
		return p.repo.MarkEventProcessed(ctx, tx, evt.EventID)
	})
}

// HourBucket truncates a timestamp to its hour boundary in UTC.
func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
