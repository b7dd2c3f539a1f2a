package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"biom-sync/internal/domain"
	"biom-sync/internal/infra/config"
	applog "biom-sync/internal/infra/log"
	"biom-sync/internal/infra/realtime"
	"biom-sync/internal/usecase/messaging"
)

// realtime-tail печатает события сообщений пользователя и, если указан собеседник,
// сигналы набора текста от него.
//
//	realtime-tail <user-id> [other-user-id]
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).With().Str("service", "realtime-tail").Logger()

	if len(os.Args) < 2 {
		logger.Fatal().Msg("использование: realtime-tail <user-id> [other-user-id]")
	}
	me := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("realtime-tail: realtime недоступен")
	}
	defer closeHub()

	channels := messaging.NewChannels(hub, logger)
	logMessage := func(kind string) func(domain.Message) {
		return func(m domain.Message) {
			logger.Info().Str("kind", kind).Str("id", m.ID).Str("from", m.SenderID).
				Str("to", m.ReceiverID).Bool("read", m.ReadAt != nil).Msg(m.Body)
		}
	}
	watch, err := channels.WatchMessages(ctx, me, messaging.MessageHandlers{
		OnInsert: logMessage("insert"),
		OnUpdate: logMessage("update"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("realtime-tail: подписка на сообщения")
	}
	defer watch.Close()

	if len(os.Args) > 2 {
		typing, err := channels.WatchTyping(ctx, me, os.Args[2], func(sig domain.TypingSignal) {
			logger.Info().Str("kind", "typing").Str("from", sig.From).Bool("typing", sig.Typing).Int64("ts", sig.TS).Send()
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("realtime-tail: подписка на набор текста")
		}
		defer typing.Close()
	}

	logger.Info().Str("user", me).Str("backend", cfg.Realtime.Backend).Msg("realtime-tail: слушаем")
	<-ctx.Done()
}
