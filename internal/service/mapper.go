package service

import (
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/providers"
)

// toProviderRequest maps an initiate request onto the provider's
// create-payment shape. Without line items the whole transaction amount is
// sent as a single item.
func toProviderRequest(txn *transaction.Transaction, req InitiatePaymentRequest) providers.CreatePaymentRequest {
	out := providers.CreatePaymentRequest{
		TxnReference: txn.Reference,
		SuccessURL:   req.SuccessURL,
		CancelURL:    req.CancelURL,
	}

	if len(req.LineItems) == 0 {
		name := txn.MerchantTransactionReference
		if name == "" {
			name = txn.Reference
		}
		out.LineItems = []providers.LineItem{{
			Currency:    txn.Currency,
			ProductName: name,
			UnitAmount:  txn.Amount,
			Quantity:    1,
		}}
		return out
	}

	out.LineItems = make([]providers.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		currency := item.Currency
		if currency == "" {
			currency = txn.Currency
		}
		out.LineItems = append(out.LineItems, providers.LineItem{
			Currency:    currency,
			ProductName: item.ProductName,
			UnitAmount:  item.UnitAmount,
			Quantity:    item.Quantity,
		})
	}
	return out
}

// applyProviderResponse copies the provider answer onto the transaction and
// moves it to PENDING.
func applyProviderResponse(txn *transaction.Transaction, resp *providers.PaymentResponse) error {
	return txn.MarkPending(resp.ID, resp.URL)
}
