package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"marketdash/controllers"
	"marketdash/middleware"
	"marketdash/services/realtime"
)

// SetupRoutes sets up all API routes. A nil db registers the market data
// and stream routes only, leaving auth and watchlist endpoints off.
func SetupRoutes(router *gin.Engine, db *gorm.DB, stream *realtime.StreamService) {
	// Initialize controllers
	candleController := controllers.NewCandleController()
	signalController := controllers.NewSignalController()

	// WebSocket stream
	router.GET("/ws", func(c *gin.Context) {
		stream.HandleWebSocket(c.Writer, c.Request)
	})

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Candle routes
		candles := api.Group("/candles")
		{
			candles.GET("", candleController.GetCandles)
			candles.GET("/latest", candleController.GetLatestCandle)
			candles.GET("/indicators", candleController.GetIndicators)
		}

		// Signal routes
		signals := api.Group("/signals")
		{
			signals.GET("", signalController.GetSignals)
			signals.GET("/history", signalController.GetSignalHistory)
		}

		api.GET("/strategies", signalController.GetStrategies)
		api.GET("/providers", candleController.GetProviders)

		// Stream status
		api.GET("/stream/status", func(c *gin.Context) {
			c.JSON(200, stream.Status())
		})

		if db == nil {
			return
		}

		authController := controllers.NewAuthController(db)
		watchlistController := controllers.NewWatchlistController(db)

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", middleware.LoginRateLimitMiddleware(), authController.Login)
		}

		// Authenticated routes
		protected := api.Group("")
		protected.Use(middleware.JWTAuthMiddleware())
		{
			watchlist := protected.Group("/watchlist")
			{
				watchlist.GET("", watchlistController.GetWatchlist)
				watchlist.POST("", watchlistController.AddWatchlistItem)
				watchlist.DELETE("/:id", watchlistController.RemoveWatchlistItem)
			}

			alerts := protected.Group("/alerts")
			{
				alerts.GET("", watchlistController.GetAlerts)
				alerts.POST("", watchlistController.CreateAlert)
				alerts.DELETE("/:id", watchlistController.DeleteAlert)
			}
		}
	}
}
