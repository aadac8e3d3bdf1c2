package redis

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "txn:ref-1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "txn:ref-1", time.Minute)
	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)

	other, err := locker.Acquire(ctx, "txn:ref-2", time.Minute)
	require.NoError(t, err, "locks are per key")
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "txn:ref-1", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, again(ctx))
}

func TestDistributedLock_ReleaseOnlyByOwner(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	owner := NewDistributedLock(client, "txn:ref-1", time.Minute)
	ok, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by a new owner taking the key.
	require.NoError(t, client.Set(ctx, "lock:txn:ref-1", "someone-else", time.Minute).Err())

	assert.ErrorIs(t, owner.Release(ctx), domainErrors.ErrLockNotHeld)
	val, err := client.Get(ctx, "lock:txn:ref-1").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestDistributedLock_ReleaseWithoutAcquireIsNoop(t *testing.T) {
	lock := NewDistributedLock(newTestClient(t), "txn:ref-1", time.Minute)
	assert.NoError(t, lock.Release(context.Background()))
}
