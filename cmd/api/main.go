package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"biom-sync/internal/adapters/httpapi"
	"biom-sync/internal/adapters/repo"
	"biom-sync/internal/domain"
	"biom-sync/internal/infra/cache"
	"biom-sync/internal/infra/config"
	"biom-sync/internal/infra/db"
	httpinfra "biom-sync/internal/infra/http"
	applog "biom-sync/internal/infra/log"
	"biom-sync/internal/infra/metrics"
	"biom-sync/internal/infra/realtime"
	"biom-sync/internal/usecase/messaging"
	"biom-sync/internal/usecase/session"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	hub, closeHub, err := realtime.Open(realtime.Options{
		Backend:   cfg.Realtime.Backend,
		Redis:     redisClient,
		RabbitURL: cfg.RabbitURL,
		Exchange:  cfg.Realtime.Exchange,
		Buffer:    cfg.Realtime.Buffer,
	}, logger.With().Str("component", "realtime").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("api: realtime недоступен")
	}
	defer closeHub()

	var store domain.SnapshotStore = cache.NewMemory()
	if cfg.Cache.Backend == "redis" && redisClient != nil {
		store = cache.NewRedis(redisClient, cfg.Cache.TTL)
	}

	sessions := session.NewRegistry(repoAdapter, store, logger, session.Options{
		PageSize: cfg.Feed.PageSize,
		CacheKey: cfg.Cache.Key,
	})
	if cfg.Cache.Sweep > 0 {
		go sessions.RunSweeper(ctx, cfg.Cache.Sweep, cfg.Cache.TTL)
	}
	channels := messaging.NewChannels(hub, logger.With().Str("component", "channels").Logger())
	handler := httpapi.NewHandler(
		sessions,
		messaging.NewService(repoAdapter, hub, logger.With().Str("component", "messaging").Logger()),
		messaging.NewInbox(repoAdapter, cfg.Inbox.DefaultLimit),
		channels,
		logger,
	)

	server := httpinfra.NewServer(logger)
	handler.Mount(server.Router, cfg.Auth.Secret)

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api: shutdown")
	}
}
