package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"marketdash/config"
	"marketdash/models"
	"marketdash/routes"
	"marketdash/scheduler"
	"marketdash/services"
	"marketdash/services/realtime"
	"marketdash/services/signals"
)

// dbInitialized tracks whether the relational database has been successfully
// initialized. Guarded by dbInitMutex so the /ready endpoint can check it
// while the background init goroutine is still running.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  Market Dashboard API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up while the stores initialize in background
	setupHealthEndpoints(router)

	// Market data plane: sqlite candle store, optional redis cache,
	// provider-backed candle service, strategies, optional mongo archive.
	// These must exist before the stream service starts polling.
	if err := services.InitCandleStore(cfg.SQLitePath); err != nil {
		log.Fatalf("Candle store init failed: %v", err)
	}
	services.InitCandleCache(cfg.RedisHost, cfg.RedisPort)
	if err := services.InitCandleService(cfg.DefaultProvider); err != nil {
		log.Fatalf("Candle service init failed: %v", err)
	}
	if err := signals.InitSignalService(); err != nil {
		log.Fatalf("Signal service init failed: %v", err)
	}
	if err := services.InitSignalArchive(cfg.MongoURI); err != nil {
		log.Printf("Signal archive not configured or unreachable: %v", err)
	}

	// Stream service with its candle and signal pollers. When upstream
	// URLs are configured the pollers read over HTTP so this instance can
	// run as a pure gateway; otherwise they use the in-process services.
	stream := realtime.NewStreamService(realtime.Options{
		CandleSource:       candleSource(cfg),
		SignalSource:       signalSource(cfg),
		CandlePollInterval: cfg.CandlePollInterval,
		SignalPollInterval: cfg.SignalPollInterval,
		SignalLookback:     cfg.SignalLookback,
		DefaultProvider:    cfg.DefaultProvider,
	})
	stream.Start()

	// Create HTTP server with timeouts suited to long-lived websockets
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       0, // websocket connections manage their own deadlines
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately so health checks pass during db init
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize relational database and setup routes in background
	var jobScheduler *scheduler.Scheduler
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service continues in limited mode (stream and candle API only)")

			// Routes still work without the relational db; auth and
			// watchlist endpoints will reject requests against a nil db
			// so keep them off entirely.
			routes.SetupRoutes(router, nil, stream)

			jobScheduler = scheduler.NewScheduler(nil, stream, cfg.DefaultSymbols)
			go jobScheduler.Start()
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		if err := models.SeedDefaultAdminUser(config.DB); err != nil {
			log.Printf("Warning: Could not seed admin user: %v", err)
		}

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		routes.SetupRoutes(router, db, stream)

		jobScheduler = scheduler.NewScheduler(db, stream, cfg.DefaultSymbols)
		go jobScheduler.Start()

		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, stream, jobScheduler)
}

// candleSource picks the candle backend for the realtime poller
func candleSource(cfg *config.Config) realtime.CandleSource {
	if cfg.MarketDataURL != "" {
		log.Printf("Candle poller reading from upstream %s", cfg.MarketDataURL)
		return services.NewMarketDataClient(cfg.MarketDataURL)
	}
	return services.GlobalCandleService
}

// signalSource picks the signal backend for the realtime poller
func signalSource(cfg *config.Config) realtime.SignalSource {
	if cfg.AnalyticsURL != "" {
		log.Printf("Signal poller reading from upstream %s", cfg.AnalyticsURL)
		return services.NewAnalyticsClient(cfg.AnalyticsURL)
	}
	return signals.GlobalSignalService
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateUserModels(db); err != nil {
		return err
	}
	if err := models.MigrateWatchlistModels(db); err != nil {
		return err
	}
	return nil
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Dashboard API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, stream *realtime.StreamService, jobScheduler *scheduler.Scheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop background work first so nothing writes to closing stores
	if jobScheduler != nil {
		jobScheduler.Stop()
	}
	stream.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close data stores
	if services.GlobalCandleStore != nil {
		services.GlobalCandleStore.Close()
	}
	if services.GlobalCandleCache != nil {
		services.GlobalCandleCache.Close()
	}
	if services.GlobalSignalArchive != nil {
		services.GlobalSignalArchive.Close()
	}
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
