package api

import (
	"net/http"

	"github.com/frostdev-ops/pma-watch-bridge/internal/api/handlers"
	"github.com/frostdev-ops/pma-watch-bridge/internal/api/middleware"
	"github.com/frostdev-ops/pma-watch-bridge/internal/config"
	"github.com/frostdev-ops/pma-watch-bridge/internal/core/metrics"
	"github.com/frostdev-ops/pma-watch-bridge/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the HTTP surface exposes
type Dependencies struct {
	Watches handlers.WatchService
	Health  *metrics.HealthChecker
	Metrics *metrics.PrometheusCollector
}

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, deps Dependencies, logger *logrus.Logger) *gin.Engine {
	// Set gin mode based on config
	switch cfg.Server.Mode {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	h := handlers.NewHandlers(deps.Watches, deps.Health, logger)

	// Public routes
	router.GET("/health", h.Health)
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "Endpoint not found")
	})

	// API v1 routes
	api := router.Group("/api/v1")
	api.GET("/help", h.Help)

	protected := api.Group("/")
	if cfg.Auth.Enabled {
		protected.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	}
	{
		watches := protected.Group("/watches")
		{
			watches.POST("", h.CreateWatch)
			watches.DELETE("/:id", h.DeleteWatch)
		}

		protected.GET("/channels/:channel_id/watches", h.ListChannelWatches)
		protected.GET("/entities/search", h.SearchEntities)
	}

	return router
}
