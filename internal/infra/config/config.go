package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Realtime struct {
		Backend  string `envconfig:"REALTIME_BACKEND" default:"redis"`
		Exchange string `envconfig:"REALTIME_EXCHANGE" default:"biom.realtime"`
		Buffer   int    `envconfig:"REALTIME_BUFFER" default:"64"`
	} `envconfig:""`

	Cache struct {
		Backend string        `envconfig:"CACHE_BACKEND" default:"redis"`
		Key     string        `envconfig:"CACHE_KEY" default:"biom_events_cache_v1"`
		TTL     time.Duration `envconfig:"CACHE_TTL" default:"12h"`

		// Sweep задаёт период закрытия сессий, неактивных дольше TTL.
		Sweep time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
	} `envconfig:""`

	Feed struct {
		PageSize int `envconfig:"FEED_PAGE_SIZE" default:"10"`
	} `envconfig:""`

	Inbox struct {
		DefaultLimit int `envconfig:"INBOX_DEFAULT_LIMIT" default:"50"`
	} `envconfig:""`

	Auth struct {
		Secret string `envconfig:"AUTH_SECRET"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
