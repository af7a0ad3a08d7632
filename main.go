package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/snackline-api/config"
	"github.com/kendall-kelly/snackline-api/controllers"
	"github.com/kendall-kelly/snackline-api/middleware"
	"github.com/kendall-kelly/snackline-api/models"
	"github.com/kendall-kelly/snackline-api/observability"
	"github.com/kendall-kelly/snackline-api/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.GoEnv, cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting Snackline API server...", zap.String("env", cfg.GoEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	if err := config.ConnectDatabase(cfg); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	db := config.GetDB()
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migration completed successfully")

	deps, cleanup, err := buildDependencies(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer cleanup()

	auth, err := middleware.EnsureValidToken(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up the JWT validator", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, auth, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server is running", zap.String("addr", "http://localhost"+server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown failed", zap.Error(err))
	}
}

// buildDependencies creates every service from cfg. S3 and Redis are
// optional: without a bucket the catalog has no images, without a Redis URL
// Idempotency-Key headers are ignored.
func buildDependencies(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (controllers.Dependencies, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("Failed to close resource", zap.Error(err))
			}
		}
	}

	var images services.ImageService
	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			return controllers.Dependencies{}, cleanup, err
		}
		images = services.NewS3ImageService(s3Service)
	} else {
		logger.Warn("AWS_S3_BUCKET not set, product images are disabled")
	}

	var idempotency services.IdempotencyStore
	if cfg.IdempotencyEnabled() {
		rdb, err := services.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return controllers.Dependencies{}, cleanup, err
		}
		closers = append(closers, rdb.Close)
		idempotency = services.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
	}

	dispatcher, closeDispatcher, err := services.NewAlertDispatcher(cfg, logger)
	if err != nil {
		return controllers.Dependencies{}, cleanup, err
	}
	closers = append(closers, closeDispatcher)

	inventory := services.NewInventoryService(db, logger)
	return controllers.Dependencies{
		Catalog:   services.NewCatalogService(db, images, logger),
		Inventory: inventory,
		Orders:    services.NewOrderService(db, inventory, idempotency, logger),
		Feedback: services.NewFeedbackService(db, dispatcher, services.AlertOptions{
			Recipient: cfg.AlertRecipient,
			Timeout:   cfg.AlertTimeout,
		}, logger),
		Users:  services.NewUserService(db, services.NewAuth0Service(cfg), logger),
		Logger: logger,
	}, cleanup, nil
}

// setupRouter builds the gin engine. auth validates bearer tokens; tests pass
// a stand-in.
func setupRouter(cfg *config.Config, auth gin.HandlerFunc, deps controllers.Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestLogger(deps.Logger),
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", controllers.IdempotencyKeyHeader},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
		controllers.RegisterRoutes(v1, auth, deps)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Snackline API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not initialized",
			},
		})
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
