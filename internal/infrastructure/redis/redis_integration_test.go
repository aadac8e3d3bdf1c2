//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestLocker_Integration(t *testing.T) {
	client := setupRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "txn:ref-1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "txn:ref-1", time.Minute)
	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)

	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, "txn:ref-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestDistributedLock_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	first := NewDistributedLock(client, "txn:ref-2", 100*time.Millisecond)
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(200 * time.Millisecond)

	second := NewDistributedLock(client, "txn:ref-2", time.Minute)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, first.Release(ctx), domainErrors.ErrLockNotHeld)
	assert.NoError(t, second.Release(ctx))
}

func TestStream_Integration(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	consumer := NewStreamConsumer(client, TransactionStream, "test-group", "c1", 10, 100*time.Millisecond, time.Minute)
	require.NoError(t, consumer.CreateGroup(ctx))
	require.NoError(t, consumer.CreateGroup(ctx), "creating an existing group is not an error")

	producer := NewStreamProducer(client)
	event := transaction.StatusChanged{
		TransactionID: uuid.New(),
		Reference:     "ref-3",
		ToStatus:      transaction.StatusPending,
		OccurredAt:    time.Now(),
	}
	require.NoError(t, producer.PublishStatusChanged(ctx, event))

	msgs, err := consumer.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got, err := DecodeStatusChanged(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, "ref-3", got.Reference)
	require.NoError(t, consumer.Ack(ctx, msgs[0].ID))

	msgs, err = consumer.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
