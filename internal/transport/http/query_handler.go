package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alexzhu96/shop-cqrs/internal/query"
	"github.com/gin-gonic/gin"
)

func RegisterQueryHandlers(r *gin.Engine, svc *query.Service) {
	api := r.Group("/api/analytics")
	{
		api.GET("/products/:productId/sales", productSalesHandler(svc))
		api.GET("/categories/:category/revenue", categoryRevenueHandler(svc))
		api.GET("/customers/:customerId/lifetime-value", customerLTVHandler(svc))
		api.GET("/sales/hourly", hourlySalesHandler(svc))
		api.GET("/sync-status", syncStatusHandler(svc))
	}
	r.GET("/sync-status", syncStatusHandler(svc))
}

func productSalesHandler(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("productId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid productId"})
			return
		}
		row, err := svc.ProductSales(c, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch product sales"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"productId":         row.ProductID,
			"totalQuantitySold": row.TotalQuantitySold,
			"totalRevenue":      row.TotalRevenue,
			"orderCount":        row.OrderCount,
		})
	}
}

func categoryRevenueHandler(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := svc.CategoryRevenue(c, c.Param("category"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch category revenue"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"category":     row.CategoryName,
			"totalRevenue": row.TotalRevenue,
			"totalOrders":  row.TotalOrders,
		})
	}
}

func customerLTVHandler(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("customerId"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customerId"})
			return
		}
		row, err := svc.CustomerLTV(c, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch customer lifetime value"})
			return
		}
		var lastOrder interface{}
		if row.LastOrderDate != nil {
			lastOrder = row.LastOrderDate.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, gin.H{
			"customerId":    row.CustomerID,
			"totalSpent":    row.TotalSpent,
			"orderCount":    row.OrderCount,
			"lastOrderDate": lastOrder,
		})
	}
}

func hourlySalesHandler(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		at := time.Now()
		if raw := c.Query("at"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid at, want RFC3339"})
				return
			}
			at = parsed
		}
		row, err := svc.HourlySales(c, at)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch hourly sales"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"hourBucket":   row.HourBucket.UTC().Format(time.RFC3339),
			"totalOrders":  row.TotalOrders,
			"totalRevenue": row.TotalRevenue,
		})
	}
}

func syncStatusHandler(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.Status(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sync status"})
			return
		}
		var last interface{}
		if st.LastProcessedAt != nil {
			last = st.LastProcessedAt.UTC().Format(time.RFC3339)
		}
		var lag interface{}
		if st.LagSeconds != nil {
			lag = *st.LagSeconds
		}
		c.JSON(http.StatusOK, gin.H{
			"lastProcessedEventTimestamp": last,
			"lagSeconds":                  lag,
		})
	}
}
