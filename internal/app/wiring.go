package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Fieldflow/internal/channel"
	"github.com/shaiso/Fieldflow/internal/config"
	"github.com/shaiso/Fieldflow/internal/dedupe"
	"github.com/shaiso/Fieldflow/internal/domain"
	"github.com/shaiso/Fieldflow/internal/trigger"
)

// NewDeduper возвращает Redis deduper, если задан REDIS_URL и Redis доступен,
// иначе deduper в памяти процесса.
func NewDeduper(ctx context.Context, cfg *config.Config, logger *slog.Logger) (trigger.Deduper, func()) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, deduplicating events in memory")
		return dedupe.NewMemory(cfg.Redis.DedupTTL), func() {}
	}

	client, err := dedupe.Connect(ctx, cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis not available, deduplicating events in memory", "error", err)
		return dedupe.NewMemory(cfg.Redis.DedupTTL), func() {}
	}

	return dedupe.NewRedis(client, cfg.Redis.DedupTTL), func() { client.Close() }
}

// NewRouter собирает провайдеров каналов по настройкам.
// outbound нужен только для провайдеров вида amqp.
func NewRouter(cfg *config.Config, outbound channel.OutboundPublisher, logger *slog.Logger) (*channel.Router, error) {
	router := channel.NewRouter()

	providers := []struct {
		channel domain.MessageType
		cfg     config.Provider
	}{
		{domain.MessageTypeSMS, cfg.Providers.SMS},
		{domain.MessageTypeEmail, cfg.Providers.Email},
	}

	for _, p := range providers {
		provider, err := newProvider(p.cfg, outbound, logger)
		if err != nil {
			return nil, fmt.Errorf("%s provider: %w", p.channel, err)
		}
		router.Handle(p.channel, provider)
		logger.Info("channel provider configured", "channel", p.channel, "kind", p.cfg.Kind)
	}

	return router, nil
}

func newProvider(p config.Provider, outbound channel.OutboundPublisher, logger *slog.Logger) (channel.Provider, error) {
	switch p.Kind {
	case config.ProviderHTTP:
		return channel.NewHTTPProvider(p.Endpoint, p.Token, p.Timeout), nil
	case config.ProviderAMQP:
		if outbound == nil {
			return nil, fmt.Errorf("kind %q requires RabbitMQ", p.Kind)
		}
		return channel.NewAMQPProvider(outbound), nil
	case config.ProviderLog, "":
		return channel.NewLogProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}
}
