package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pageready/api/handler"
	"github.com/use-agent/pageready/api/middleware"
	"github.com/use-agent/pageready/cache"
	"github.com/use-agent/pageready/cleaner"
	"github.com/use-agent/pageready/config"
	"github.com/use-agent/pageready/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(rd handler.Renderer, cl *cleaner.Cleaner, cfg *config.Config, cc *cache.Cache, wh *webhook.Notifier, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(rd, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/render", handler.Render(rd, cl, cc, wh))
	protected.POST("/evaluate", handler.Evaluate(rd))

	return r
}
