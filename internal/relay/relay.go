// Package relay forwards transaction status events from the Redis stream
// to downstream consumers.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/infrastructure/observability"
	infraRedis "github.com/payflow/payments/internal/infrastructure/redis"
	"github.com/payflow/payments/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamReader reads and acknowledges stream messages for a consumer group.
type StreamReader interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

// Relay moves status events from a stream consumer group to a publisher.
// A message is acknowledged only after it has been published, so a failed
// publish leaves it pending and the reader hands it out again.
type Relay struct {
	reader     StreamReader
	publisher  service.EventPublisher
	metrics    *observability.Metrics
	logger     zerolog.Logger
	retryDelay time.Duration
}

func New(reader StreamReader, publisher service.EventPublisher, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	return &Relay{
		reader:     reader,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.With().Str("component", "relay").Logger(),
		retryDelay: time.Second,
	}
}

// Run processes batches until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := r.reader.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			r.logger.Error().Err(err).Msg("Failed to read from stream")
			if !sleep(ctx, r.retryDelay) {
				return nil
			}
			continue
		}

		if pending := r.ProcessBatch(ctx, msgs); pending > 0 {
			// Pending messages come straight back; give the publisher time.
			if !sleep(ctx, r.retryDelay) {
				return nil
			}
		}
	}
}

// ProcessBatch publishes and acknowledges each message of a batch. It
// returns how many messages were left pending.
func (r *Relay) ProcessBatch(ctx context.Context, msgs []redis.XMessage) int {
	pending := 0
	for _, msg := range msgs {
		event, err := infraRedis.DecodeStatusChanged(msg)
		if err != nil {
			// Undecodable messages are dropped so they do not block the group.
			r.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed stream message")
			r.ack(ctx, msg.ID)
			r.observe("malformed")
			continue
		}

		if err := r.publisher.PublishStatusChanged(ctx, event); err != nil {
			r.logger.Warn().Err(err).
				Str("message_id", msg.ID).
				Str("txn_reference", event.Reference).
				Msg("Failed to relay status event, leaving it pending")
			r.observe("error")
			pending++
			continue
		}

		r.ack(ctx, msg.ID)
		r.observe("relayed")
		r.logger.Debug().
			Str("txn_reference", event.Reference).
			Str("status", string(event.ToStatus)).
			Msg("Status event relayed")
	}
	return pending
}

func (r *Relay) ack(ctx context.Context, id string) {
	if err := r.reader.Ack(ctx, id); err != nil {
		r.logger.Error().Err(err).Str("message_id", id).Msg("Failed to ack stream message")
	}
}

func (r *Relay) observe(result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.EventsPublished.WithLabelValues(transaction.EventStatusChanged, result).Inc()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
