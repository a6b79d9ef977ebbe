// Package api exposes the campaign control and status HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/pipeline/internal/config"
	"github.com/leadforge/pipeline/internal/control"
	"github.com/leadforge/pipeline/internal/logger"
	"github.com/leadforge/pipeline/internal/metrics"
)

const (
	healthCheckTimeout   = 2 * time.Second
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	serviceVersion       = "1.0.0"
)

// Router holds the API dependencies.
type Router struct {
	handlers    *Handlers
	db          *sqlx.DB
	redisClient *redis.Client
	metrics     *metrics.Metrics
	cfg         *config.Config
}

// NewRouter creates an API router.
func NewRouter(service *control.Service, db *sqlx.DB, redisClient *redis.Client, m *metrics.Metrics, cfg *config.Config, log logger.Logger) *Router {
	return &Router{
		handlers:    NewHandlers(service, log),
		db:          db,
		redisClient: redisClient,
		metrics:     m,
		cfg:         cfg,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", r.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		r.metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	v1 := router.Group("/api/v1")
	campaigns := v1.Group("/campaigns")
	campaigns.POST("", r.handlers.CreateCampaign)
	campaigns.GET("/:id/status", r.handlers.GetStatus)
	campaigns.POST("/:id/retry", r.handlers.Retry)
	campaigns.POST("/:id/pause", r.handlers.Pause)
	campaigns.POST("/:id/cancel", r.handlers.Pause) // cancel is the pause sweep
	campaigns.POST("/:id/resume", r.handlers.Resume)
	campaigns.DELETE("/:id", r.handlers.Delete)

	return router
}

// NewServer wraps the engine in an http.Server with the configured
// timeouts.
func (r *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

// healthCheck reports database and Redis connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "pipeline",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := r.db.PingContext(ctx) == nil
	health["database"] = gin.H{"connected": dbConnected}

	redisConnected := r.redisClient != nil && r.redisClient.Ping(ctx).Err() == nil
	health["redis"] = gin.H{"connected": redisConnected}

	if !dbConnected || !redisConnected {
		health["status"] = healthStatusDegraded
	}
	c.JSON(http.StatusOK, health)
}
