package http

import (
	"errors"
	"net/http"

	"github.com/alexzhu96/shop-cqrs/internal/repo"
	"github.com/alexzhu96/shop-cqrs/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func RegisterCommandHandlers(r *gin.Engine, svc *service.CommandService) {
	api := r.Group("/api")
	{
		api.POST("/products", createProductHandler(svc))
		api.POST("/orders", createOrderHandler(svc))
	}
}

type createProductReq struct {
	Name     string          `json:"name" binding:"required"`
	Category string          `json:"category" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Stock    int64           `json:"stock"`
}

func createProductHandler(svc *service.CommandService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createProductReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := svc.CreateProduct(c, req.Name, req.Category, req.Price, req.Stock)
		if err != nil {
			writeCommandError(c, err, "failed to create product")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"productId": id})
	}
}

type orderItemReq struct {
	ProductID uint64          `json:"productId" binding:"required"`
	Quantity  int64           `json:"quantity" binding:"required"`
	Price     decimal.Decimal `json:"price"`
}

type createOrderReq struct {
	CustomerID uint64         `json:"customerId" binding:"required"`
	Items      []orderItemReq `json:"items" binding:"required"`
}

func createOrderHandler(svc *service.CommandService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items := make([]service.OrderItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, service.OrderItemInput{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     it.Price,
			})
		}
		id, err := svc.PlaceOrder(c, req.CustomerID, items)
		if err != nil {
			writeCommandError(c, err, "failed to create order")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"orderId": id})
	}
}

// writeCommandError maps the error taxonomy onto status codes: validation and
// conflict errors carry their reason, anything unexpected stays generic.
func writeCommandError(c *gin.Context, err error, generic string) {
	switch {
	case errors.Is(err, service.ErrInvalidProduct), errors.Is(err, service.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}
