package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/solarclean/backoffice/config"
	"github.com/solarclean/backoffice/handlers"
	"github.com/solarclean/backoffice/middlewares"
	"github.com/solarclean/backoffice/models"
	"github.com/solarclean/backoffice/utils"
	"github.com/solarclean/backoffice/workflow"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

// RateLimiter counts requests per client IP in a fixed Redis window.
type RateLimiter struct {
	limit  int64
	window time.Duration
}

func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()
	count, err := config.IncrRedisWindow(c.Request.Context(), key, rl.window)
	if err != nil {
		// Redis outages must not take the API down.
		config.GetLogger().WithFields(logrus.Fields{"field": "RateLimitMiddleware"}).Warn("rate limiter unavailable: " + err.Error())
		c.Next()
		return
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func correlationMiddleware(c *gin.Context) {
	cid := c.GetHeader("x-correlation-id")
	if cid == "" {
		cid = uuid.NewString()
	}
	c.Header("x-correlation-id", cid)
	c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
	c.Next()
}

// readinessGate answers /healthz immediately and 503 everywhere else until ready is set.
func readinessGate(ready *atomic.Bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() || config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

// corsConfig allows every origin unless ALLOWED_ORIGINS lists them.
func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if origins := splitAndTrim(os.Getenv("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Authorization", "Content-Type", "x-correlation-id")
	cfg.AddExposeHeaders("Content-Disposition", "x-correlation-id")
	return cfg
}

// ratePerMinute is RATE_LIMIT_PER_MINUTE; zero disables the limiter.
func ratePerMinute() int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv("RATE_LIMIT_PER_MINUTE")), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// newStorage returns nil when GCS_BUCKET is unset; upload routes then answer 503.
func newStorage(logger *logrus.Logger) utils.BlobStorage {
	store, err := utils.NewGCSStorage()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Warn("file storage disabled: " + err.Error())
		return nil
	}
	return store
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

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var ready atomic.Bool

	r := gin.New()
	r.Use(correlationMiddleware)
	r.Use(readinessGate(&ready))
	r.Use(cors.New(corsConfig()))

	if limit := ratePerMinute(); limit > 0 {
		r.Use(NewRateLimiter(limit, time.Minute).RateLimitMiddleware)
	}

	httpMetrics, err := middlewares.NewHTTPMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "metrics"}).Warn("http metrics disabled: " + err.Error())
	}
	r.Use(middlewares.MetricsMiddleware(httpMetrics))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	handlers.New(newStorage(logger), workflow.PubSubPublisher{}).Register(r)
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	ready.Store(true)

	logger.WithFields(logrus.Fields{"field": "http", "port": port}).Info("back-office API ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs the errors handlers attached to the gin context.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
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
