package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"inventory-service/internal/alerting"
	"inventory-service/internal/handler"
	"inventory-service/internal/inventory"
	mid "inventory-service/internal/middleware"
	"inventory-service/internal/notify"
	"inventory-service/internal/syncer"
	"inventory-service/pkg/config"
	"inventory-service/pkg/database"
	"inventory-service/pkg/jwtutil"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Just log a warning, don't fail if .env file is not found
		// The fallback values will be used in case env vars are not set
	}

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(appConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("Starting inventory-service", appConfig.LogConfig()...)

	// Initialize JWT utility
	jwtutil.Initialize(&appConfig.JWT)
	log.Info("JWT utility initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(appConfig)
	log.Info("Prometheus metrics initialized",
		zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database
	if err := database.InitDB(appConfig); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Critical-alert webhook dispatcher runs outside the business
	// transactions; delivery is best-effort.
	dispatcher := notify.NewDispatcher(
		appConfig.Webhook.URL,
		appConfig.Webhook.Timeout,
		appConfig.Webhook.QueueSize,
		log,
	)
	dispatcher.Start()
	defer dispatcher.Stop()

	// Wire the service layer
	lifecycle := alerting.NewLifecycle(dispatcher, log)
	movements := inventory.NewService(database.GetDB(), lifecycle, log)
	engine := syncer.NewEngine(database.GetDB(), movements, lifecycle, appConfig.Sync.MaxBatchSize, log)
	handler.Init(engine, movements, lifecycle)

	rateLimiter := syncer.NewRateLimiter(appConfig.Sync.RateLimitMax, appConfig.Sync.RateLimitWindow)

	// Initialize Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(mid.MetricsMiddleware)

	// Metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check endpoint
	e.GET("/health", handler.Health)

	// Sync endpoint - rate limited per (user, client IP)
	syncAPI := e.Group("/api/sync", mid.AuthMiddleware, mid.RateLimitMiddleware(rateLimiter))
	syncAPI.POST("", handler.ProcessSync)

	// Product API routes
	productAPI := e.Group("/api/products", mid.AuthMiddleware)
	productAPI.GET("", handler.ListProducts)
	productAPI.GET("/:id", handler.GetProduct)
	productAPI.POST("", handler.CreateProduct)
	productAPI.PUT("/:id", handler.UpdateProduct)
	productAPI.DELETE("/:id", handler.DeleteProduct)
	productAPI.POST("/:id/movements", handler.CreateMovement)
	productAPI.GET("/:id/movements", handler.ListMovements)

	// Alert API routes
	alertAPI := e.Group("/api/alerts", mid.AuthMiddleware)
	alertAPI.GET("", handler.ListAlerts)
	alertAPI.POST("/:id/snooze", handler.SnoozeAlert)
	alertAPI.POST("/:id/handled", handler.MarkAlertHandled)

	// Aggregate + tenant settings
	e.GET("/api/inventory/health", handler.InventoryHealth, mid.AuthMiddleware)
	e.PUT("/api/tenants/thresholds", handler.UpdateTenantThresholds, mid.AuthMiddleware)

	// Start server
	port := appConfig.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Server error", zap.Error(err))
	}
}
