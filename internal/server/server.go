package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/uwrealitylabs/humanoid-server/internal/auth"
	"github.com/uwrealitylabs/humanoid-server/internal/domain"
	"github.com/uwrealitylabs/humanoid-server/internal/platform/config"
)

type tokenService interface {
	Issue(ttl time.Duration) (domain.Token, error)
	Lookup(token string) (domain.Token, error)
	IsValid(token string) bool
}

type connectionRelay interface {
	Register(conn *websocket.Conn, token string) (string, error)
	Unregister(conn *websocket.Conn)
	Publish(from *websocket.Conn, data []byte) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	tokens        tokenService
	relay         connectionRelay
	authenticator *auth.Authenticator
	limits        *ConnectionLimits
	upgrader      websocket.Upgrader

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, tokens tokenService, relay connectionRelay, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:          e,
		config:        cfg,
		clock:         clock,
		tokens:        tokens,
		relay:         relay,
		authenticator: auth.NewAuthenticator(tokens),
		limits: NewConnectionLimits(clock,
			int64(cfg.MaxWebSocketConnections),
			cfg.MaxConnectionsPerIP,
			cfg.ConnectionRatePerSecond,
			cfg.ConnectionRateBurst,
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.Origins(), cfg.IsDevelopment()),
		},
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "ws_path", s.config.WebSocketPath)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
