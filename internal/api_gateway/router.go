package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dalasi-wallet-core/internal/api_gateway/handler"
	"github.com/dalasi-wallet-core/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	walletHandler *handler.WalletHandler,
	transactionHandler *handler.TransactionHandler,
	cardHandler *handler.CardHandler,
	webhookHandler *handler.WebhookHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Wallet operations
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", walletHandler.Create)
			wallets.GET("/:id", walletHandler.GetByID)
			wallets.GET("/:id/transactions", walletHandler.GetTransactions)
		}

		// Transaction operations
		transactions := v1.Group("/transactions")
		{
			transactions.POST("/top-up", transactionHandler.TopUp)
			transactions.POST("/transfer", transactionHandler.Transfer)
			transactions.POST("/payment", transactionHandler.Payment)
			transactions.POST("/convert", transactionHandler.Convert)
			transactions.GET("/quote", transactionHandler.Quote)
			transactions.GET("/:id", transactionHandler.GetByID)
			transactions.POST("/:id/cancel", transactionHandler.Cancel)
		}

		// Card operations
		cards := v1.Group("/cards")
		{
			cards.POST("", cardHandler.Issue)
			cards.GET("", cardHandler.List)
			cards.GET("/:id", cardHandler.GetByID)
			cards.POST("/:id/lock", cardHandler.Lock)
			cards.POST("/:id/unlock", cardHandler.Unlock)
		}
	}

	// Provider callbacks bypass the versioned API surface
	r.POST("/webhooks/:provider", webhookHandler.Receive)

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
