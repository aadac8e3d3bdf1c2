package transaction

import (
	"time"

	"github.com/google/uuid"
)

// EventStatusChanged is the event type emitted on every status change.
const EventStatusChanged = "transaction.status_changed"

// StatusChanged is published after a status change has been persisted.
type StatusChanged struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	Reference         string    `json:"txn_reference"`
	MerchantID        string    `json:"merchant_id,omitempty"`
	FromStatus        Status    `json:"from_status,omitempty"`
	ToStatus          Status    `json:"to_status"`
	ProviderReference string    `json:"provider_reference,omitempty"`
	ErrorCode         string    `json:"error_code,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NewStatusChanged builds the event for txn having moved from "from".
func NewStatusChanged(txn *Transaction, from Status) StatusChanged {
	return StatusChanged{
		TransactionID:     txn.ID,
		Reference:         txn.Reference,
		MerchantID:        txn.MerchantID,
		FromStatus:        from,
		ToStatus:          txn.Status,
		ProviderReference: txn.ProviderReference,
		ErrorCode:         txn.ErrorCode,
		OccurredAt:        time.Now(),
	}
}
