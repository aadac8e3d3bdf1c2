package controller

import (
	"fmt"
	"math"
	"time"

	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/service"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (float64 for money, validation tags).
// Controllers convert these to domain or service types before calling business logic.

// CreatePaymentRequest holds the input for registering a transaction.
type CreatePaymentRequest struct {
	MerchantTransactionReference string  `json:"merchantTransactionReference" validate:"required,max=128"`
	PaymentMethod                string  `json:"paymentMethod" validate:"required,oneof=APM CARD"`
	Provider                     string  `json:"provider" validate:"required,oneof=STRIPE"`
	PaymentType                  string  `json:"paymentType" validate:"omitempty,oneof=SALE"`
	Amount                       float64 `json:"amount" validate:"required,gt=0"`
	Currency                     string  `json:"currency" validate:"required,len=3"`
}

// InitiatePaymentRequest holds the checkout details for a transaction.
type InitiatePaymentRequest struct {
	SuccessURL string            `json:"successUrl" validate:"omitempty,url"`
	CancelURL  string            `json:"cancelUrl" validate:"omitempty,url"`
	LineItems  []LineItemRequest `json:"lineItems" validate:"omitempty,dive"`
}

// LineItemRequest is one purchased item.
type LineItemRequest struct {
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	ProductName string  `json:"productName" validate:"required"`
	UnitAmount  float64 `json:"unitAmount" validate:"gt=0"`
	Quantity    int64   `json:"quantity" validate:"gte=1"`
}

// --- Response DTOs ---

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	TxnReference                 string    `json:"txnReference"`
	MerchantID                   string    `json:"merchantId,omitempty"`
	MerchantTransactionReference string    `json:"merchantTransactionReference"`
	PaymentMethod                string    `json:"paymentMethod"`
	Provider                     string    `json:"provider"`
	PaymentType                  string    `json:"paymentType"`
	Amount                       float64   `json:"amount"`
	Currency                     string    `json:"currency"`
	Status                       string    `json:"status"`
	ProviderReference            string    `json:"providerReference,omitempty"`
	URL                          string    `json:"url,omitempty"`
	ErrorCode                    string    `json:"errorCode,omitempty"`
	ErrorMessage                 string    `json:"errorMessage,omitempty"`
	CreatedAt                    time.Time `json:"createdAt"`
	UpdatedAt                    time.Time `json:"updatedAt"`
}

// EventResponse represents a status history entry.
type EventResponse struct {
	FromStatus string         `json:"fromStatus,omitempty"`
	ToStatus   string         `json:"toStatus"`
	EventData  map[string]any `json:"eventData,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// --- Conversion helpers ---

// toTransaction converts a create request to a domain transaction.
func (req CreatePaymentRequest) toTransaction() (*transaction.Transaction, error) {
	cents, err := floatToCents(req.Amount)
	if err != nil {
		return nil, err
	}
	paymentType := transaction.PaymentTypeSale
	if req.PaymentType != "" {
		paymentType = transaction.PaymentType(req.PaymentType)
	}
	return &transaction.Transaction{
		MerchantTransactionReference: req.MerchantTransactionReference,
		PaymentMethod:                transaction.PaymentMethod(req.PaymentMethod),
		Provider:                     transaction.Provider(req.Provider),
		PaymentType:                  paymentType,
		Amount:                       cents,
		Currency:                     req.Currency,
	}, nil
}

// toService converts an initiate request to the service input.
func (req InitiatePaymentRequest) toService() (service.InitiatePaymentRequest, error) {
	out := service.InitiatePaymentRequest{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}
	for _, item := range req.LineItems {
		cents, err := floatToCents(item.UnitAmount)
		if err != nil {
			return out, err
		}
		out.LineItems = append(out.LineItems, service.LineItem{
			Currency:    item.Currency,
			ProductName: item.ProductName,
			UnitAmount:  cents,
			Quantity:    item.Quantity,
		})
	}
	return out, nil
}

// FromTransaction converts a domain transaction to API response.
func FromTransaction(t *transaction.Transaction) *TransactionResponse {
	return &TransactionResponse{
		TxnReference:                 t.Reference,
		MerchantID:                   t.MerchantID,
		MerchantTransactionReference: t.MerchantTransactionReference,
		PaymentMethod:                string(t.PaymentMethod),
		Provider:                     string(t.Provider),
		PaymentType:                  string(t.PaymentType),
		Amount:                       centsToFloat(t.Amount),
		Currency:                     t.Currency,
		Status:                       string(t.Status),
		ProviderReference:            t.ProviderReference,
		URL:                          t.URL,
		ErrorCode:                    t.ErrorCode,
		ErrorMessage:                 t.ErrorMessage,
		CreatedAt:                    t.CreatedAt,
		UpdatedAt:                    t.UpdatedAt,
	}
}

// FromEvent converts a status history entry to API response.
func FromEvent(e *transaction.Event) *EventResponse {
	return &EventResponse{
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		EventData:  e.EventData,
		CreatedAt:  e.CreatedAt,
	}
}

// maxAmount caps a single amount, in currency units.
const maxAmount = 1_000_000_000.0

// floatToCents converts a currency amount to cents, rounding to the nearest cent.
func floatToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, newAmountError("must be a finite number")
	}
	if f <= 0 {
		return 0, newAmountError("must be positive")
	}
	if f > maxAmount {
		return 0, newAmountError(fmt.Sprintf("must not exceed %.0f", maxAmount))
	}
	cents := int64(math.Round(f * 100))
	if cents == 0 {
		return 0, newAmountError("must be at least 0.01")
	}
	return cents, nil
}

// centsToFloat converts cents to a currency amount.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}

func newAmountError(msg string) error {
	return domainErrors.NewValidationError("amount", msg)
}
