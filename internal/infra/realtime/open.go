package realtime

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"biom-sync/internal/domain"
)

// Options выбирает и настраивает реализацию хаба.
type Options struct {
	Backend   string
	Redis     *redis.Client
	RabbitURL string
	Exchange  string
	Buffer    int
}

// Open создаёт хаб по имени backend: redis, rabbitmq или memory.
// Возвращаемая функция освобождает соединения хаба.
func Open(opts Options, logger zerolog.Logger) (domain.Realtime, func(), error) {
	switch opts.Backend {
	case "redis":
		if opts.Redis == nil {
			return nil, nil, fmt.Errorf("realtime: backend redis требует REDIS_ADDR")
		}
		return NewRedisHub(opts.Redis, opts.Buffer, logger), func() {}, nil
	case "rabbitmq":
		hub, err := NewRabbitHub(opts.RabbitURL, opts.Exchange, opts.Buffer, logger)
		if err != nil {
			return nil, nil, err
		}
		return hub, func() { _ = hub.Close() }, nil
	case "memory", "":
		return NewMemoryHub(opts.Buffer), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("realtime: неизвестный backend %q", opts.Backend)
	}
}
