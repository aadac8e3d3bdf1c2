package service

import (
	"context"
	"time"

	"github.com/payflow/payments/internal/domain/transaction"
)

// TransactionManager defines the interface for transaction management.
// Services use this to wrap multiple repository operations in a single transaction.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serialises work on a key across service instances. Acquire fails
// with errors.ErrLockAcquisitionFailed when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// EventPublisher delivers status change events to downstream consumers.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event transaction.StatusChanged) error
}
