package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/auth"
	"github.com/vovakirdan/lobbychat/internal/config"
	"github.com/vovakirdan/lobbychat/internal/core"
)

// NewServer builds an HTTP server with the socket endpoint, REST API and metrics.
// /ws sits on the plain mux in front of gin so the upgrade can hijack the connection.
func NewServer(hub core.Hub, authService *auth.Service, st core.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := NewAPIHandlers(authService, hub, st, cfg.Chat.HistoryLimit, logger)
	router.POST("/api/session", api.CreateSession)

	protected := router.Group("/api")
	protected.Use(AuthMiddleware(authService, logger))
	{
		protected.GET("/messages", api.RecentMessages)
		protected.GET("/online", api.Online)
		protected.GET("/me", api.Me)
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, cfg.Chat, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
