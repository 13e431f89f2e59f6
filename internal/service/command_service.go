package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexzhu96/shop-cqrs/internal/event"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Validation errors reject the command before any transaction opens.
var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidOrder   = errors.New("invalid order")
)

// ErrProductNotFound means an order referenced a product id that does not exist.
var ErrProductNotFound = errors.New("product not found")

// OrderItemInput is one requested line of an order command.
type OrderItemInput struct {
	ProductID uint64
	Quantity  int64
	Price     decimal.Decimal
}

// CommandService handles the write side: every state mutation commits
// together with its outbox event or not at all.
type CommandService struct {
	repo repo.CommandRepositoryInterface
	log  *zap.SugaredLogger
}

func NewCommandService(r repo.CommandRepositoryInterface, logger *zap.SugaredLogger) *CommandService {
	return &CommandService{repo: r, log: logger}
}

// CreateProduct inserts a product and its ProductCreated outbox row in one
// transaction, returning the new product id.
func (s *CommandService) CreateProduct(ctx context.Context, name, category string, price decimal.Decimal, stock int64) (uint64, error) {
	if name == "" || category == "" {
		return 0, fmt.Errorf("%w: name and category are required", ErrInvalidProduct)
	}
	if price.IsNegative() {
		return 0, fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}
	if stock < 0 {
		return 0, fmt.Errorf("%w: stock must be non-negative", ErrInvalidProduct)
	}

	var productID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		p := &model.Product{Name: name, Category: category, Price: price, Stock: stock}
		if err := s.repo.CreateProduct(ctx, tx, p); err != nil {
			return err
		}
		productID = p.ID

		evt := event.NewProductCreated(p.ID, name, category, price, stock, p.CreatedAt)
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		return s.repo.AppendOutbox(ctx, tx, &model.OutboxEvent{
			ID:      evt.EventID,
			Topic:   event.TopicProductEvents,
			Payload: payload,
		})
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("product created: id=%d name=%s", productID, name)
	return productID, nil
}

// PlaceOrder validates and commits an order, its items, the stock decrements
// and one OrderCreated outbox row in a single transaction. The order is
// all-or-nothing: any missing product or short stock rejects the whole order.
func (s *CommandService) PlaceOrder(ctx context.Context, customerID uint64, items []OrderItemInput) (uint64, error) {
	if customerID == 0 {
		return 0, fmt.Errorf("%w: customerId is required", ErrInvalidOrder)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: items must be a non-empty list", ErrInvalidOrder)
	}
	for _, it := range items {
		if it.ProductID == 0 {
			return 0, fmt.Errorf("%w: each item needs a productId", ErrInvalidOrder)
		}
		if it.Quantity <= 0 {
			return 0, fmt.Errorf("%w: item quantity must be a positive integer", ErrInvalidOrder)
		}
		if it.Price.IsNegative() {
			return 0, fmt.Errorf("%w: item price must be non-negative", ErrInvalidOrder)
		}
	}

	var orderID uint64
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock and validate every referenced product before mutating anything.
		products := make(map[uint64]*model.Product, len(items))
		for _, it := range items {
			p, err := s.repo.GetProductForUpdate(ctx, tx, it.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d", ErrProductNotFound, it.ProductID)
				}
				return err
			}
			if p.Stock < it.Quantity {
				return fmt.Errorf("%w: product %s has %d, requested %d",
					repo.ErrInsufficientStock, p.Name, p.Stock, it.Quantity)
			}
			products[it.ProductID] = p
		}

		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.Price.Mul(decimal.NewFromInt(it.Quantity)))
		}

		order := &model.Order{CustomerID: customerID, Total: total, Status: model.OrderStatusCreated}
		if err := s.repo.CreateOrder(ctx, tx, order); err != nil {
			return err
		}

		lines := make([]event.OrderItemLine, 0, len(items))
		for _, it := range items {
			if err := s.repo.CreateOrderItem(ctx, tx, &model.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.Price,
			}); err != nil {
				return err
			}
			if err := s.repo.DecrementStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			p := products[it.ProductID]
			lines = append(lines, event.OrderItemLine{
				ProductID:   it.ProductID,
				ProductName: p.Name,
				Category:    p.Category,
				Quantity:    it.Quantity,
				Price:       it.Price,
			})
		}

		evt := event.NewOrderCreated(order.ID, customerID, lines, total, order.CreatedAt)
		payload, err := event.Encode(evt)
		if err != nil {
			return err
		}
		if err := s.repo.AppendOutbox(ctx, tx, &model.OutboxEvent{
			ID:      evt.EventID,
			Topic:   event.TopicOrderEvents,
			Payload: payload,
		}); err != nil {
			return err
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Infof("order created: id=%d customer=%d items=%d", orderID, customerID, len(items))
	return orderID, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *CommandService) Repo() repo.CommandRepositoryInterface {
	return s.repo
}
