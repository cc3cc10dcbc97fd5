package http

import (
	"net/http"
	"time"

	"ambient-novel/internal/delivery/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// RouterConfig holds the outer surface settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	// NarrationDir is served under /narration when set.
	NarrationDir string
}

// NewRouter assembles middleware, application routes, /health and /metrics.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.GinZapLogger(logger.Named("HTTP")))
	router.Use(gin.Recovery())
	router.Use(middleware.ClientIdentity())

	ginprometheus.NewPrometheus("gin").Use(router)

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", middleware.ClientIDHeader}
	corsConfig.ExposeHeaders = []string{"Location", "X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	if cfg.NarrationDir != "" {
		router.Static("/narration", cfg.NarrationDir)
	}

	h.RegisterRoutes(router)
	return router
}
