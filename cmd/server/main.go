package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/httpserver"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/metrics"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/redis"
	"github.com/zetsu101/PostPal-sub002/internal/adapter/websocket"
	"github.com/zetsu101/PostPal-sub002/internal/domain"
	"github.com/zetsu101/PostPal-sub002/internal/insights"
	"github.com/zetsu101/PostPal-sub002/internal/platform/config"
	"github.com/zetsu101/PostPal-sub002/internal/platform/logging"
	"github.com/zetsu101/PostPal-sub002/internal/platform/version"
	"github.com/zetsu101/PostPal-sub002/internal/realtime"
)

// pongGrace is added on top of two heartbeat intervals before an idle
// connection's read deadline expires.
const pongGrace = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RelayMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func realtimeConfig(cfg *config.Config) realtime.Config {
	return realtime.Config{
		DispatchInterval:   cfg.DispatchInterval,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		WriteTimeout:       cfg.WriteTimeout,
		SendBuffer:         cfg.SendBuffer,
		PublishBuffer:      cfg.PublishBuffer,
		MaxQueuePerUser:    cfg.MaxQueuePerUser,
		UpdateTTL:          cfg.UpdateTTL,
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
	}
}

func runGracefulShutdown(srv *httpserver.Server, svc *realtime.Service, stopRelay context.CancelFunc, relayDone <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopRelay()
		<-relayDone

		svc.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	registry := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(registry)

	svc := realtime.New(realtimeConfig(cfg), clock, metrics.NewRealtimeMetrics(registry))

	var (
		publisher    domain.Publisher = svc
		healthChecks []httpserver.HealthCheck
	)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	relayDone := make(chan struct{})

	if cfg.RedisURL != "" {
		redisClient := setupRedis(context.Background(), cfg, relayMetrics)
		defer func() { _ = redisClient.Close() }()

		relay := redis.NewRelay(redisClient, svc, relayMetrics)
		go func() {
			defer close(relayDone)
			if err := relay.Start(relayCtx); err != nil {
				slog.Error("Insight relay stopped", "error", err)
			}
		}()

		redisPublisher := redis.NewPublisher(redisClient, svc, relayMetrics, cfg.PublishBuffer)
		defer redisPublisher.Close()
		publisher = redisPublisher
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	} else {
		slog.Info("REDIS_URL not set, insights are delivered to this instance only")
		close(relayDone)
	}

	notifier := insights.NewNotifier(publisher, clock)

	pongWait := 2*cfg.HeartbeatInterval + pongGrace
	wsHandler := websocket.NewHandler(
		svc,
		websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		pongWait,
		metrics.NewWebSocketMetrics(registry),
	)

	srv := httpserver.NewServer(cfg, svc, wsHandler, notifier, registry, healthChecks)

	done := runGracefulShutdown(srv, svc, stopRelay, relayDone)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
