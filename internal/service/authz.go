package service

import (
	"context"

	"github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/middleware"
)

// verifyOwnership rejects access to a transaction owned by another merchant.
// Requests without an authenticated merchant are not restricted.
func verifyOwnership(ctx context.Context, txn *transaction.Transaction) error {
	merchantID, ok := middleware.GetMerchantID(ctx)
	if !ok {
		return nil
	}
	if txn.MerchantID != merchantID {
		return errors.ErrUnauthorized
	}
	return nil
}

// assignMerchant stamps the authenticated merchant on a new transaction.
func assignMerchant(ctx context.Context, txn *transaction.Transaction) {
	if merchantID, ok := middleware.GetMerchantID(ctx); ok {
		txn.MerchantID = merchantID
	}
}
