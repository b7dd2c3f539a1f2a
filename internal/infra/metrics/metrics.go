package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	PhotoQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "photo_queue_depth",
		Help: "Число мероприятий в очереди на загрузку фотографий",
	})

	PhotoFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photo_fetch_total",
		Help: "Загрузки фотографий мероприятий",
	}, []string{"status"})

	FeedPagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_pages_total",
		Help: "Загруженные страницы ленты",
	}, []string{"status"})

	RealtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Доставленные realtime-события",
	}, []string{"channel", "type"})

	MessageDeleteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "message_delete_total",
		Help: "Удаления сообщений по пути и результату",
	}, []string{"path", "status"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Количество активных сессий синхронизации",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		PhotoQueueDepth,
		PhotoFetchTotal,
		FeedPagesTotal,
		RealtimeEventsTotal,
		MessageDeleteTotal,
		ActiveSessions,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	duration := time.Since(start).Seconds()
	st := status(err)
	NetworkRequestDuration.WithLabelValues(component, operation, target, st).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, st).Inc()
}

// ObservePhotoFetch учитывает результат загрузки фотографий.
func ObservePhotoFetch(err error) {
	PhotoFetchTotal.WithLabelValues(status(err)).Inc()
}

// ObserveFeedPage учитывает загрузку страницы ленты.
func ObserveFeedPage(err error) {
	FeedPagesTotal.WithLabelValues(status(err)).Inc()
}

// ObserveRealtimeEvent учитывает доставленное событие.
func ObserveRealtimeEvent(channel, eventType string) {
	RealtimeEventsTotal.WithLabelValues(channel, eventType).Inc()
}

// ObserveMessageDelete учитывает попытку удаления сообщения.
func ObserveMessageDelete(path string, err error) {
	MessageDeleteTotal.WithLabelValues(path, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
