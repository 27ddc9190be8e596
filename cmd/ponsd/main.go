package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/ports"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/core/services"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/distributed"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/httpapi"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/monitoring"
	memoryrepo "github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/repositories/memory"
	redisrepo "github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/repositories/redis"
	"github.com/DeclanJeon/Pons-Link-sub000/internal/infrastructure/transport"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/clock"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/config"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/logger"
	"github.com/DeclanJeon/Pons-Link-sub000/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	instanceID := uuid.NewString()
	log.Infow("starting ponslink daemon", "instance_id", instanceID)

	tp, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	clk := clock.System{}
	health := monitoring.NewHealthChecker()

	// Session store: Redis when configured, otherwise in-process.
	var repo ports.SessionRepository
	var bus ports.EventPublisher
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisrepo.NewRedisClient(cfg.Redis, log)
		if err != nil {
			log.Fatalw("failed to connect to Redis", "error", err)
		}
		defer redisrepo.CloseRedisClient(redisClient)

		repo = redisrepo.NewRedisSessionRepository(redisClient)
		bus = distributed.NewEventBus(redisClient, instanceID, log)
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}, 2*time.Second)
	} else {
		repo = memoryrepo.NewMemorySessionRepository()
	}
	health.AddCheck("session_store", func(ctx context.Context) error {
		_, err := repo.ListActive(ctx)
		return err
	}, 2*time.Second)

	dc := transport.NewDataChannelTransport(cfg.Transport, log)
	router := services.NewControlRouter(cfg.Transport, log)
	coord := services.NewCoordinator(cfg, dc, repo, router, bus, log, clk)
	agg := services.NewAggregator(cfg.Telemetry, coord, log, clk)

	hub := httpapi.NewTelemetryHub(log)
	agg.AddSink(hub)
	if cfg.Monitoring.PrometheusEnabled {
		agg.AddSink(monitoring.NewPrometheusCollector())
	}

	issuer := httpapi.NewTokenIssuer(cfg.Auth)
	if token, err := issuer.Issue("operator"); err == nil {
		log.Infow("operator token issued", "token", token)
	}

	server := httpapi.NewServer(cfg, coord, agg, repo, health, hub, issuer, clk, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go agg.Run(ctx)
	go consumeEvents(ctx, coord, log)

	go func() {
		if err := server.Run(); err != nil {
			log.Errorw("debug API failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := coord.StopSession(shutdownCtx); err == nil {
		log.Infow("active session stopped")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("debug API shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracing shutdown", "error", err)
	}
	log.Infow("shutdown complete")
}

// consumeEvents drains the session event and inbound control streams into
// the log. The UI bridge attaches here when one is embedded.
func consumeEvents(ctx context.Context, coord *services.Coordinator, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-coord.Events():
			log.Infow("session event",
				"kind", ev.Kind,
				"session_id", ev.SessionID,
				"peer_id", ev.PeerID,
				"error", ev.Err,
			)
		case in := <-coord.Controls():
			log.Infow("inbound control",
				"peer_id", in.PeerID,
				"type", in.Envelope.Type,
			)
		}
	}
}
