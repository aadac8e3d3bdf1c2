package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/redis/go-redis/v9"
)

const TransactionStream = "transactions:status"

// StreamProducer publishes transaction events to a Redis stream.
type StreamProducer struct {
	client redis.Cmdable
	stream string
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client, stream: TransactionStream}
}

// PublishStatusChanged appends the event to the transaction stream.
func (p *StreamProducer) PublishStatusChanged(ctx context.Context, event transaction.StatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"txn_reference": event.Reference,
			"event_type":    transaction.EventStatusChanged,
			"payload":       string(payload),
			"timestamp":     event.OccurredAt.Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}
	return nil
}

// DecodeStatusChanged extracts the event from a transaction stream message.
func DecodeStatusChanged(msg redis.XMessage) (transaction.StatusChanged, error) {
	var event transaction.StatusChanged
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return event, fmt.Errorf("message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return event, nil
}

// StreamConsumer reads a stream through a consumer group. Messages that
// were delivered but never acked are handed out again: first the ones
// already owned by this consumer, then ones another consumer left idle
// for longer than claimMinIdle.
type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
	claimMinIdle  time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
	claimMinIdle time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
		claimMinIdle:  claimMinIdle,
	}
}

// CreateGroup creates the consumer group and the stream if missing.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns the next batch to process. Pending entries of this consumer
// come first, then entries claimed from idle consumers, then new messages.
// It returns no messages once the block duration elapses.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	pending, err := c.readGroup(ctx, "0", -1)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		return pending, nil
	}

	if c.claimMinIdle > 0 {
		claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.claimMinIdle,
			Start:    "0-0",
			Count:    c.batchSize,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to claim idle messages: %w", err)
		}
		if len(claimed) > 0 {
			return claimed, nil
		}
	}

	return c.readGroup(ctx, ">", c.blockDuration)
}

// readGroup runs XREADGROUP from id. A negative block omits BLOCK.
func (c *StreamConsumer) readGroup(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, id},
		Count:    c.batchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}
