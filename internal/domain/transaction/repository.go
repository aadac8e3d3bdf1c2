package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create inserts a new transaction
	Create(ctx context.Context, txn *Transaction) error

	// GetByReference retrieves a transaction by its reference.
	// Returns errors.ErrTransactionNotFound when no row matches.
	GetByReference(ctx context.Context, reference string) (*Transaction, error)

	// Update updates an existing transaction
	Update(ctx context.Context, txn *Transaction) error

	// AddEvent appends a status history entry
	AddEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves the status history of a transaction
	GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*Event, error)
}
