package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys used on the broker; the outbox row carries one of these as its
// topic.
const (
	TopicOrderEvents   = "order-events"
	TopicProductEvents = "product-events"
)

const (
	TypeOrderCreated   = "OrderCreated"
	TypeProductCreated = "ProductCreated"
)

// Envelope carries the fields every event shares; the consumer decodes it
// first to route the raw payload.
type Envelope struct {
	EventType string `json:"eventType"`
	EventID   string `json:"eventId"`
}

type OrderItemLine struct {
	ProductID   uint64          `json:"productId"`
	ProductName string          `json:"productName"`
	Category    string          `json:"category"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	EventType  string          `json:"eventType"`
	EventID    string          `json:"eventId"`
	OrderID    uint64          `json:"orderId"`
	CustomerID uint64          `json:"customerId"`
	Items      []OrderItemLine `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Timestamp  time.Time       `json:"timestamp"`
}

type ProductCreated struct {
	EventType string          `json:"eventType"`
	EventID   string          `json:"eventId"`
	ProductID uint64          `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewOrderCreated assigns a fresh event id and stamps the event type.
func NewOrderCreated(orderID, customerID uint64, items []OrderItemLine, total decimal.Decimal, ts time.Time) OrderCreated {
	return OrderCreated{
		EventType:  TypeOrderCreated,
		EventID:    uuid.NewString(),
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
		Total:      total,
		Timestamp:  ts,
	}
}

func NewProductCreated(productID uint64, name, category string, price decimal.Decimal, stock int64, ts time.Time) ProductCreated {
	return ProductCreated{
		EventType: TypeProductCreated,
		EventID:   uuid.NewString(),
		ProductID: productID,
		Name:      name,
		Category:  category,
		Price:     price,
		Stock:     stock,
		Timestamp: ts,
	}
}

// Encode serializes an event payload exactly once. The outbox stores these
// bytes verbatim and the relay publishes them verbatim; the consumer is the
// single place that decodes them.
func Encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
