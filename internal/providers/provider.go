package providers

import (
	"context"
)

// PaymentResponse is the provider's answer to a create-payment call.
type PaymentResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider creates hosted payment sessions at an external payment provider.
type Provider interface {
	// Name returns the provider name.
	Name() string
	// CreatePayment registers the payment and returns the provider id and the
	// URL the payer must be redirected to.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error)
}

// CreatePaymentRequest is the provider's create-payment shape.
type CreatePaymentRequest struct {
	TxnReference string     `json:"txnReference"`
	SuccessURL   string     `json:"successUrl"`
	CancelURL    string     `json:"cancelUrl"`
	LineItems    []LineItem `json:"lineItems"`
}

// LineItem is one purchased item. UnitAmount is in cents.
type LineItem struct {
	Currency    string `json:"currency"`
	ProductName string `json:"productName"`
	UnitAmount  int64  `json:"unitAmount"`
	Quantity    int64  `json:"quantity"`
}
