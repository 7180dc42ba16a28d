package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatdispatch/internal/auth"
	"github.com/vovakirdan/chatdispatch/internal/config"
	"github.com/vovakirdan/chatdispatch/internal/core"
	"github.com/vovakirdan/chatdispatch/internal/metrics"
)

// NewServer builds the HTTP server: websocket endpoint, uploads, read API and
// operational routes. authService may be nil when no jwt secret is configured.
func NewServer(hub *core.Hub, fanout *core.Fanout, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(metrics.GinMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, fanout, authService, cfg.WS, logger)))

	uploads := NewUploadHandlers(cfg.Upload, logger)
	if cfg.Upload.RequireToken && authService != nil {
		router.POST("/upload", UploadAuthMiddleware(authService, logger), uploads.Upload)
	} else {
		router.POST("/upload", uploads.Upload)
	}
	router.Static("/uploads", cfg.Upload.Dir)

	apiHandlers := NewAPIHandlers(hub, logger)
	api := router.Group("/api")
	{
		api.GET("/history", apiHandlers.History)
		api.GET("/rooms", apiHandlers.Rooms)
		api.GET("/users", apiHandlers.Users)
	}

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
