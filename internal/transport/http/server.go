package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/config"
	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/session"
)

// Deps are the collaborators the HTTP layer routes into.
type Deps struct {
	Broadcaster *core.Broadcaster
	Sessions    *session.Manager
	Validator   session.TokenValidator
	// HistoryState reports the persistence breaker state; nil when no breaker is configured.
	HistoryState func() string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	History     string `json:"history,omitempty"`
}

// NewServer builds an HTTP server with the websocket endpoint and REST routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler(deps))
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Sessions, cfg, logger)))

	history := NewHistoryHandlers(deps.Broadcaster, logger)
	api := router.Group("/api")
	api.Use(AuthMiddleware(deps.Validator, logger))
	api.GET("/rooms/:room/messages", history.GetMessages)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, _ := deps.Broadcaster.Registry().Stats()
		resp := HealthResponse{
			Status:      "ok",
			Rooms:       rooms,
			Connections: deps.Sessions.Active(),
		}
		if deps.HistoryState != nil {
			resp.History = deps.HistoryState()
		}
		c.JSON(stdhttp.StatusOK, resp)
	}
}
