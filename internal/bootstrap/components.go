package bootstrap

import (
	"github.com/payflow/payments/internal/httpclient"
	"github.com/payflow/payments/internal/infrastructure/config"
	"github.com/payflow/payments/internal/infrastructure/kafka"
	"github.com/payflow/payments/internal/infrastructure/observability"
	infraRedis "github.com/payflow/payments/internal/infrastructure/redis"
	"github.com/payflow/payments/internal/providers"
	"github.com/payflow/payments/internal/service"
	"github.com/payflow/payments/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// NewProviderFactory builds the provider registry from configuration. The
// breaker state of every provider is exported as a gauge.
func NewProviderFactory(cfg config.ProviderConfig, metrics *observability.Metrics, logger zerolog.Logger) *providers.Factory {
	settings := providers.BreakerSettings{
		MaxRequests:  cfg.BreakerMaxRequests,
		Interval:     cfg.BreakerInterval,
		Timeout:      cfg.BreakerTimeout,
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
	}

	var observer providers.StateObserver
	if metrics != nil {
		observer = func(name string, state gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(state))
		}
	}

	return providers.NewFactory(settings, observer, logger, newProvider(cfg, logger))
}

func newProvider(cfg config.ProviderConfig, logger zerolog.Logger) providers.Provider {
	if cfg.Mode == "mock" {
		logger.Warn().Str("provider", cfg.Name).Msg("Using mock payment provider")
		return providers.NewMockProvider(cfg.Name)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxAttempts
	retryCfg.InitialDelay = cfg.RetryDelay

	engine := httpclient.NewEngine(cfg.Timeout, logger)
	return providers.NewHTTPProvider(cfg.Name, cfg.BaseURL, cfg.APIKey, engine, retryCfg, logger)
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// NewEventPublisher returns the publisher selected by events.driver. The
// returned closer must be called on shutdown. The "none" driver yields a nil
// publisher, which disables publishing.
func NewEventPublisher(cfg config.EventsConfig, client redis.Cmdable) (service.EventPublisher, func() error) {
	switch cfg.Driver {
	case "kafka":
		p := kafka.NewPublisher(kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		return p, p.Close
	case "redis":
		return infraRedis.NewStreamProducer(client), func() error { return nil }
	default:
		return nil, func() error { return nil }
	}
}
