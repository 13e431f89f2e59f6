package http

import (
	"net/http"

	"github.com/alexzhu96/shop-cqrs/internal/config"
	"github.com/alexzhu96/shop-cqrs/internal/query"
	"github.com/alexzhu96/shop-cqrs/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewCommandRouter serves the write-side API.
func NewCommandRouter(svc *service.CommandService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	r.GET("/health", healthHandler("command-service"))
	RegisterCommandHandlers(r, svc)
	return r
}

// NewQueryRouter serves the read-side analytics API.
func NewQueryRouter(svc *query.Service, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.GET("/health", healthHandler("query-service"))
	RegisterQueryHandlers(r, svc)
	return r
}

// NewConsumerRouter serves the consumer's liveness endpoint; connected
// reports whether the broker session is live.
func NewConsumerRouter(connected func() bool, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "consumer-service",
			"connected": connected(),
		})
	})
	return r
}

func healthHandler(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": name})
	}
}
