package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/geckode/internal/transport"
)

// Server exposes a hub over HTTP:
//
//	GET /channels/:id   websocket upgrade, token in ?token= or a bearer header
//	GET /healthz        liveness and loaded room count
//	GET /metrics        prometheus exposition
type Server struct {
	hub      *Hub
	auth     Authorizer
	upgrader *transport.Upgrader
	logger   *slog.Logger
	engine   *gin.Engine
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Settings transport.Settings
	Logger   *slog.Logger
}

// NewServer builds the HTTP routes.
func NewServer(hub *Hub, auth Authorizer, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Settings == (transport.Settings{}) {
		opts.Settings = transport.DefaultSettings()
	}
	s := &Server{
		hub:      hub,
		auth:     auth,
		upgrader: transport.NewUpgrader(opts.Settings),
		logger:   opts.Logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/channels/:id", s.handleChannel)
	if opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler returns the routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": s.hub.Rooms()})
}

func (s *Server) handleChannel(c *gin.Context) {
	channel := c.Param("id")
	token := c.Query("token")
	if token == "" {
		token = extractBearerToken(c)
	}

	grant, err := s.auth.Authorize(c.Request.Context(), channel, token)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		s.logger.Info("channel refused", "channel", channel, "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request)
	if err != nil {
		s.logger.Warn("upgrade failed", "channel", channel, "error", err)
		return
	}
	if err := s.hub.Serve(c.Request.Context(), conn, channel, grant); err != nil {
		s.logger.Debug("member ended", "channel", channel, "subject", grant.Subject, "error", err)
	}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
