package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/AnimaI/SMD-Manager/bomimport"
	"github.com/AnimaI/SMD-Manager/catalog"
	"github.com/AnimaI/SMD-Manager/config"
	"github.com/AnimaI/SMD-Manager/models"
	"github.com/AnimaI/SMD-Manager/utils"
)

const defaultPort = "8080"

// app holds the services built once dependencies are connected. Handlers only
// run after ready is set, so the fields are safe to read without locking.
type app struct {
	ready    atomic.Bool
	catalog  *catalog.Client
	importer *bomimport.Importer
}

// resolver returns the catalog as an import resolver, or nil without
// credentials.
func (a *app) resolver() bomimport.Resolver {
	if a.catalog == nil {
		return nil
	}
	return a.catalog
}

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, we return 503 for app endpoints.
	a := &app{}
	r := newRouter(a, logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !config.BoolFromEnv("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	cleanup := wireServices(workerCtx, a, logger)
	defer cleanup()
	a.ready.Store(true)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// wireServices builds the catalog client and importer from the environment.
// The returned func releases what was opened.
func wireServices(ctx context.Context, a *app, logger *logrus.Logger) func() {
	var closers []func()

	var shared catalog.SharedStore
	if rdb := config.GetRedisDB(); rdb != nil {
		shared = config.NewRedisStore(rdb)
	}

	client, err := catalog.NewClient(config.LoadCatalogConfig(), shared, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "catalog"}).Warn("catalog client disabled: " + err.Error())
	} else {
		a.catalog = client
	}

	importCfg := config.LoadImportConfig()
	tracker := bomimport.NewTracker(importCfg.JobTTL, shared, logger)
	go tracker.Run(ctx, importCfg.SweepInterval)

	var locker bomimport.DeviceLocker = bomimport.NewLocalDeviceLocker()
	if rl := config.GetRedisLock(); rl != nil {
		locker = bomimport.NewRedisDeviceLocker(rl, importCfg.LockTTL, logger)
	}

	var opts []bomimport.Option
	if importCfg.ArchiveBucket != "" {
		gcs, err := utils.GetGCSClient(ctx)
		if err != nil {
			config.LogError(logger, "server.go", "wireServices", "BOM archive disabled", importCfg.ArchiveBucket, err)
		} else {
			closers = append(closers, func() { _ = gcs.Close() })
			opts = append(opts, bomimport.WithArchiver(bomimport.NewGCSArchiver(gcs, importCfg.ArchiveBucket)))
		}
	}
	if importCfg.EventTopic != "" && config.PubSubEnabled() {
		ps, err := config.GetPubSubClient(ctx)
		if err == nil {
			var publisher *bomimport.PubSubPublisher
			publisher, err = bomimport.NewPubSubPublisher(ctx, ps, importCfg.EventTopic)
			if err == nil {
				closers = append(closers, publisher.Stop)
				opts = append(opts, bomimport.WithPublisher(publisher))
			}
		}
		if err != nil {
			config.LogError(logger, "server.go", "wireServices", "import events disabled", importCfg.EventTopic, err)
		}
	}

	a.importer = bomimport.NewImporter(models.NewBomStore(config.GetDB()), a.resolver(), tracker, locker, logger, opts...)

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func newRouter(a *app, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe and scrapes.
		switch c.Request.URL.Path {
		case "/healthz":
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		case "/metrics":
			c.Next()
			return
		}
		// Gate app endpoints on dependency readiness.
		if !a.ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	r.Use(cors.New(corsConfig))

	// Inbound limit is per client IP and shared across replicas through redis.
	if rlCfg := config.LoadRateLimitConfig(); rlCfg.Enabled {
		rateLimiter := NewRateLimiter(getRedisClient(os.Getenv("REDIS_ADDRESS")), rlCfg.MaxRequests, rlCfg.Window)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r, a)
	r.NoRoute(customNotFoundHandler)
	return r
}

func registerRoutes(r *gin.Engine, a *app) {
	importGroup := r.Group("/import")
	importGroup.POST("/bom", importBomHandler(a))
	importGroup.GET("/progress/:trackingId", importProgressHandler(a))

	parts := r.Group("/parts")
	parts.GET("", listPartsHandler())
	parts.GET("/unassigned", unassignedPartsHandler())
	parts.POST("", upsertPartHandler(a))
	parts.PUT("/:id/stock", updateStockHandler())
	parts.DELETE("/:id", deletePartHandler())
	parts.GET("/:id/devices", partDevicesHandler())

	devices := r.Group("/devices")
	devices.GET("", listDevicesHandler())
	devices.POST("", createDeviceHandler())
	devices.PUT("/:id", renameDeviceHandler())
	devices.DELETE("/:id", deleteDeviceHandler())
	devices.GET("/:id/buildable", buildableHandler())
	devices.GET("/:id/missing-parts", missingPartsHandler())

	r.PUT("/bom", updatePartUsageHandler())

	catalogGroup := r.Group("/catalog")
	// Catch-all params: catalog numbers and keywords may contain '/'.
	catalogGroup.GET("/search/*term", catalogSearchHandler(a))
	catalogGroup.GET("/test/*catalogNumber", catalogTestHandler(a))
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits. Each client IP gets a fixed
// window counter that expires with the window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()
	ctx := c.Request.Context()

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		// Redis hiccups must not take the API down.
		_ = c.Error(err)
		c.Next()
		return
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			_ = c.Error(err)
		}
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
