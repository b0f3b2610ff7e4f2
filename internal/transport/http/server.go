package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/meshchat/internal/directory"
	"github.com/vovakirdan/meshchat/internal/router"
)

// Network is the server state exposed by the status API.
type Network interface {
	Name() string
	Directory() *directory.Directory
	Router() *router.Router
}

// NewServer builds the HTTP status server with its routes.
func NewServer(network Network, addr string, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              addr,
		Handler:           NewRouter(network, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewRouter builds the gin engine serving the status API.
func NewRouter(network Network, logger *zerolog.Logger) *gin.Engine {
	httpLog := logger.With().Str("component", "status").Logger()

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(&httpLog))
	r.GET("/health", healthHandler)

	h := NewChannelHandlers(network, &httpLog)
	api := r.Group("/api")
	{
		api.GET("/channels", h.ListChannels)
		api.GET("/channels/:name", h.GetChannel)
		api.GET("/channels/:name/messages", h.ListMessages)
		api.GET("/users", h.ListUsers)
		api.GET("/peers", h.ListPeers)
		api.GET("/metrics", h.Metrics)
	}
	return r
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
