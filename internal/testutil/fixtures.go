package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/payflow/payments/internal/domain/transaction"
)

// NewTestTransaction returns a CREATED Stripe transaction owned by merchantID.
func NewTestTransaction(merchantID string, amountCents int64, currency string) *transaction.Transaction {
	now := time.Now()
	return &transaction.Transaction{
		ID:                           uuid.New(),
		Reference:                    transaction.NewReference(),
		MerchantID:                   merchantID,
		MerchantTransactionReference: "order-" + uuid.New().String()[:8],
		PaymentMethod:                transaction.PaymentMethodAPM,
		Provider:                     transaction.ProviderStripe,
		PaymentType:                  transaction.PaymentTypeSale,
		Amount:                       amountCents,
		Currency:                     currency,
		Status:                       transaction.StatusCreated,
		CreatedAt:                    now,
		UpdatedAt:                    now,
	}
}

// NewTransactionInStatus returns a test transaction forced into status.
func NewTransactionInStatus(merchantID string, status transaction.Status) *transaction.Transaction {
	txn := NewTestTransaction(merchantID, 5000, "USD")
	txn.Status = status
	return txn
}
