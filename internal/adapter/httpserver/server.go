package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
	"github.com/zetsu101/PostPal-sub002/internal/platform/config"
)

type realtimeService interface {
	Stats(ctx context.Context) (domain.Stats, error)
	UserStats(ctx context.Context, userID string) (domain.UserStats, error)
	SendToUser(ctx context.Context, userID string, message any) (int, error)
	Broadcast(ctx context.Context, message any) (int, error)
}

// connectionHandler takes over an authenticated upgrade request for its lifetime.
type connectionHandler interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

type insightPublisher interface {
	Publish(topic domain.Topic, userID string, payload any, priority domain.Priority)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	realtime    realtimeService
	connections connectionHandler
	insights    insightPublisher
	tokens      *tokenVerifier

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, svc realtimeService, connections connectionHandler, insights insightPublisher, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		realtime:     svc,
		connections:  connections,
		insights:     insights,
		tokens:       newTokenVerifier(cfg.JWTSecret),
		registry:     registry,
		httpMetrics:  metrics.NewHTTPMetrics(registry),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
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

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
