package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/null-channel/twitch-alerts/internal/broadcast"
	"github.com/null-channel/twitch-alerts/internal/twitch"
)

const (
	defaultAPIRate  = 20
	defaultAPIBurst = 40
)

// IngestionStatus reports where the EventSub client is in its connection lifecycle.
type IngestionStatus interface {
	State() twitch.State
}

// Server is one Echo instance bound to a port.
type Server struct {
	name string
	port string
	echo *echo.Echo
}

// AdminConfig wires the admin server. Ingestion may be nil when no client runs in-process.
type AdminConfig struct {
	Port         string
	Queue        *broadcast.QueueStore
	Registry     *broadcast.Registry
	Ingestion    IngestionStatus
	HealthChecks []HealthCheck
	APIRate      float64
	APIBurst     int
	Clock        clockwork.Clock
}

type admin struct {
	queue     *broadcast.QueueStore
	registry  *broadcast.Registry
	ingestion IngestionStatus
	checks    []HealthCheck
	clock     clockwork.Clock
	startTime time.Time
}

func NewAdminServer(cfg AdminConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.APIRate <= 0 {
		cfg.APIRate = defaultAPIRate
	}
	if cfg.APIBurst <= 0 {
		cfg.APIBurst = defaultAPIBurst
	}

	a := &admin{
		queue:     cfg.Queue,
		registry:  cfg.Registry,
		ingestion: cfg.Ingestion,
		checks:    cfg.HealthChecks,
		clock:     cfg.Clock,
		startTime: cfg.Clock.Now(),
	}

	e := newEcho()
	a.registerRoutes(e, newRateLimiter(cfg.APIRate, cfg.APIBurst))

	return &Server{name: "admin", port: cfg.Port, echo: e}
}

// OverlayConfig wires the overlay server.
type OverlayConfig struct {
	Port     string
	Acceptor http.Handler
	Limits   *ConnectionLimits
}

func NewOverlayServer(cfg OverlayConfig) *Server {
	e := newEcho()
	registerOverlayRoutes(e, cfg.Acceptor, cfg.Limits)
	return &Server{name: "overlay", port: cfg.Port, echo: e}
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	useCommonMiddleware(e)
	return e
}

// Start blocks serving until Shutdown. The returned error wraps http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	slog.Info("Starting server", "server", s.name, "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start %s server: %w", s.name, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown %s server: %w", s.name, err)
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) String() string {
	return s.name + "-server"
}
