package projection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/event"
	"github.com/alexzhu96/shop-cqrs/internal/logger"
	"github.com/alexzhu96/shop-cqrs/internal/model"
	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq int

func newReadStore(t *testing.T) *gorm.DB {
	seq++
	dsn := fmt.Sprintf("file:projtest%d?mode=memory&cache=shared", seq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.ProcessedEvent{},
		&model.ProductSalesView{},
		&model.CategoryMetricsView{},
		&model.CustomerLTVView{},
		&model.HourlySalesView{},
	))
	return db
}

func newProjector(t *testing.T) (*Projector, *gorm.DB, context.Context) {
	db := newReadStore(t)
	log, _ := logger.NewLogger("test")
	p := NewProjector(repo.NewReadRepository(db, nil, log), log)
	return p, db, context.Background()
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func orderEvent(customerID uint64, total string, ts time.Time, items ...event.OrderItemLine) event.OrderCreated {
	return event.OrderCreated{
		EventType:  event.TypeOrderCreated,
		EventID:    uuid.NewString(),
		OrderID:    1,
		CustomerID: customerID,
		Items:      items,
		Total:      dec(total),
		Timestamp:  ts,
	}
}

func TestHandleOrderCreated_UpdatesAllViews(t *testing.T) {
	p, db, ctx := newProjector(t)

	ts := time.Date(2024, 5, 1, 10, 42, 31, 0, time.UTC)
	evt := orderEvent(7, "30.98", ts,
		event.OrderItemLine{ProductID: 1, ProductName: "Widget", Category: "Tools", Quantity: 2, Price: dec("9.99")},
		event.OrderItemLine{ProductID: 2, ProductName: "Hammer", Category: "Tools", Quantity: 1, Price: dec("5.00")},
		event.OrderItemLine{ProductID: 3, ProductName: "Hose", Category: "Garden", Quantity: 3, Price: dec("2.00")},
	)
	require.NoError(t, p.HandleOrderCreated(ctx, evt))

	var sales model.ProductSalesView
	require.NoError(t, db.First(&sales, "product_id = ?", 1).Error)
	assert.EqualValues(t, 2, sales.TotalQuantitySold)
	assert.Equal(t, "19.98", sales.TotalRevenue.StringFixed(2))
	assert.EqualValues(t, 1, sales.OrderCount)

	// one order per distinct category, item revenue summed per category
	var tools model.CategoryMetricsView
	require.NoError(t, db.First(&tools, "category_name = ?", "Tools").Error)
	assert.Equal(t, "24.98", tools.TotalRevenue.StringFixed(2))
	assert.EqualValues(t, 1, tools.TotalOrders)

	var garden model.CategoryMetricsView
	require.NoError(t, db.First(&garden, "category_name = ?", "Garden").Error)
	assert.Equal(t, "6.00", garden.TotalRevenue.StringFixed(2))
	assert.EqualValues(t, 1, garden.TotalOrders)

	var ltv model.CustomerLTVView
	require.NoError(t, db.First(&ltv, "customer_id = ?", 7).Error)
	assert.Equal(t, "30.98", ltv.TotalSpent.StringFixed(2))
	assert.EqualValues(t, 1, ltv.OrderCount)
	require.NotNil(t, ltv.LastOrderDate)
	assert.True(t, ltv.LastOrderDate.Equal(ts))

	var hourly model.HourlySalesView
	require.NoError(t, db.First(&hourly, "hour_bucket = ?", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)).Error)
	assert.EqualValues(t, 1, hourly.TotalOrders)
	assert.Equal(t, "30.98", hourly.TotalRevenue.StringFixed(2))

	var ledger int64
	db.Model(&model.ProcessedEvent{}).Count(&ledger)
	assert.EqualValues(t, 1, ledger)
}

func TestHandleOrderCreated_Idempotent(t *testing.T) {
	p, db, ctx := newProjector(t)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	evt := orderEvent(1, "19.98", ts,
		event.OrderItemLine{ProductID: 1, ProductName: "Widget", Category: "Tools", Quantity: 2, Price: dec("9.99")},
	)

	require.NoError(t, p.HandleOrderCreated(ctx, evt))
	// redelivery: same event id, same body
	require.NoError(t, p.HandleOrderCreated(ctx, evt))
	require.NoError(t, p.HandleOrderCreated(ctx, evt))

	var sales model.ProductSalesView
	require.NoError(t, db.First(&sales, "product_id = ?", 1).Error)
	assert.EqualValues(t, 2, sales.TotalQuantitySold)
	assert.Equal(t, "19.98", sales.TotalRevenue.StringFixed(2))
	assert.EqualValues(t, 1, sales.OrderCount)

	var ltv model.CustomerLTVView
	require.NoError(t, db.First(&ltv, "customer_id = ?", 1).Error)
	assert.Equal(t, "19.98", ltv.TotalSpent.StringFixed(2))
	assert.EqualValues(t, 1, ltv.OrderCount)

	var ledger int64
	db.Model(&model.ProcessedEvent{}).Count(&ledger)
	assert.EqualValues(t, 1, ledger)
}

func TestHandleOrderCreated_CustomerLTVAccumulates(t *testing.T) {
	p, db, ctx := newProjector(t)

	early := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	late := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// apply the later order first: lastOrderDate must still end up at the max
	require.NoError(t, p.HandleOrderCreated(ctx, orderEvent(7, "15.00", late,
		event.OrderItemLine{ProductID: 1, ProductName: "A", Category: "X", Quantity: 1, Price: dec("15.00")},
	)))
	require.NoError(t, p.HandleOrderCreated(ctx, orderEvent(7, "10.00", early,
		event.OrderItemLine{ProductID: 2, ProductName: "B", Category: "X", Quantity: 1, Price: dec("10.00")},
	)))

	var ltv model.CustomerLTVView
	require.NoError(t, db.First(&ltv, "customer_id = ?", 7).Error)
	assert.Equal(t, "25.00", ltv.TotalSpent.StringFixed(2))
	assert.EqualValues(t, 2, ltv.OrderCount)
	require.NotNil(t, ltv.LastOrderDate)
	assert.True(t, ltv.LastOrderDate.Equal(late))
}

func TestHandleProductCreated_LedgerOnly(t *testing.T) {
	p, db, ctx := newProjector(t)

	evt := event.ProductCreated{
		EventType: event.TypeProductCreated,
		EventID:   uuid.NewString(),
		ProductID: 1,
		Name:      "Widget",
		Category:  "Tools",
		Price:     dec("9.99"),
		Stock:     5,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, p.HandleProductCreated(ctx, evt))
	require.NoError(t, p.HandleProductCreated(ctx, evt))

	var ledger int64
	db.Model(&model.ProcessedEvent{}).Count(&ledger)
	assert.EqualValues(t, 1, ledger)

	var views int64
	db.Model(&model.ProductSalesView{}).Count(&views)
	assert.Zero(t, views)
}

// failAfterViews makes the ledger insert fail so the transaction must roll
// back everything applied before it.
type failAfterViews struct {
	*repo.ReadRepository
}

func (f *failAfterViews) MarkEventProcessed(ctx context.Context, tx *gorm.DB, eventID string) error {
	return errors.New("crash before ledger insert")
}

func TestHandleOrderCreated_RollsBackOnLedgerFailure(t *testing.T) {
	db := newReadStore(t)
	log, _ := logger.NewLogger("test")
	p := NewProjector(&failAfterViews{repo.NewReadRepository(db, nil, log)}, log)
	ctx := context.Background()

	evt := orderEvent(1, "19.98", time.Now().UTC(),
		event.OrderItemLine{ProductID: 1, ProductName: "Widget", Category: "Tools", Quantity: 2, Price: dec("9.99")},
	)
	err := p.HandleOrderCreated(ctx, evt)
	require.Error(t, err)

	// no partial application survives
	var sales, cats, ltv, hourly, ledger int64
	db.Model(&model.ProductSalesView{}).Count(&sales)
	db.Model(&model.CategoryMetricsView{}).Count(&cats)
	db.Model(&model.CustomerLTVView{}).Count(&ltv)
	db.Model(&model.HourlySalesView{}).Count(&hourly)
	db.Model(&model.ProcessedEvent{}).Count(&ledger)
	assert.Zero(t, sales)
	assert.Zero(t, cats)
	assert.Zero(t, ltv)
	assert.Zero(t, hourly)
	assert.Zero(t, ledger)
}

func TestHourBucket_TruncatesToHour(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 59, 59, 999000000, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), HourBucket(ts))
}

func TestApplyOrderCreated_DecodesWire(t *testing.T) {
	p, db, ctx := newProjector(t)

	body := []byte(`{"eventType":"OrderCreated","eventId":"` + uuid.NewString() + `",` +
		`"orderId":9,"customerId":3,"items":[{"productId":1,"productName":"Widget",` +
		`"category":"Tools","quantity":2,"price":"9.99"}],"total":"19.98",` +
		`"timestamp":"2024-05-01T10:00:00Z"}`)
	require.NoError(t, p.ApplyOrderCreated(ctx, body))

	var sales model.ProductSalesView
	require.NoError(t, db.First(&sales, "product_id = ?", 1).Error)
	assert.EqualValues(t, 2, sales.TotalQuantitySold)
}
