package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
)

// NewServer builds the HTTP server: the chat socket on "/" and "/ws",
// account endpoints and a health check.
func NewServer(relay *core.Relay, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	policy := newOriginPolicy(cfg.AllowedOrigins, logger)
	ws := NewWSHandler(relay, authService, policy, WSOptions{
		ReadLimit:          cfg.MaxMessageBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, logger)
	api := NewAPIHandlers(authService, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(policy))

	router.GET("/", gin.WrapH(ws))
	router.GET("/ws", gin.WrapH(ws))
	router.GET("/health", healthHandler)

	for _, prefix := range []string{"", "/api"} {
		router.POST(prefix+"/register", api.Register)
		router.POST(prefix+"/login", api.Login)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
