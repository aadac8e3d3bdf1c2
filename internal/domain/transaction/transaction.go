package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/payflow/payments/internal/domain/errors"
)

// Status represents the transaction status in the state machine
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusInitiated Status = "INITIATED"
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
)

// PaymentMethod is the instrument the payer uses.
type PaymentMethod string

const (
	PaymentMethodAPM  PaymentMethod = "APM"
	PaymentMethodCard PaymentMethod = "CARD"
)

// Provider names the external payment provider handling the transaction.
type Provider string

const (
	ProviderStripe Provider = "STRIPE"
)

// PaymentType distinguishes the flow a transaction goes through.
type PaymentType string

const (
	PaymentTypeSale PaymentType = "SALE"
)

// Transaction is a payment transaction owned by a merchant.
type Transaction struct {
	ID                           uuid.UUID
	Reference                    string
	MerchantID                   string
	MerchantTransactionReference string
	PaymentMethod                PaymentMethod
	Provider                     Provider
	PaymentType                  PaymentType
	Amount                       int64 // in cents
	Currency                     string
	Status                       Status
	ProviderReference            string
	URL                          string
	ErrorCode                    string
	ErrorMessage                 string
	CreatedAt                    time.Time
	UpdatedAt                    time.Time
}

// Event is an entry of the transaction status history.
type Event struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	FromStatus    Status
	ToStatus      Status
	EventData     map[string]any
	CreatedAt     time.Time
}

// NewReference returns a fresh unique transaction reference.
func NewReference() string {
	return uuid.New().String()
}

var transitions = map[Status][]Status{
	StatusCreated:   {StatusInitiated},
	StatusInitiated: {StatusPending, StatusFailed},
	StatusPending:   {StatusSuccess, StatusFailed},
	StatusSuccess:   {}, // Terminal state
	StatusFailed:    {}, // Terminal state
}

// CanTransitionTo checks if the transaction can transition to the given status
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	allowed, exists := transitions[t.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the transaction to a new status
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	t.Status = newStatus
	t.UpdatedAt = time.Now()
	return nil
}

// MarkInitiated records that the provider call is about to be made.
func (t *Transaction) MarkInitiated() error {
	return t.TransitionTo(StatusInitiated)
}

// MarkPending stores the provider's payment id and redirect URL.
func (t *Transaction) MarkPending(providerReference, url string) error {
	if err := t.TransitionTo(StatusPending); err != nil {
		return err
	}
	t.ProviderReference = providerReference
	t.URL = url
	return nil
}

// MarkFailed transitions the transaction to FAILED and records why.
func (t *Transaction) MarkFailed(errorCode, errorMessage string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	t.ErrorCode = errorCode
	t.ErrorMessage = errorMessage
	return nil
}

// IsTerminal returns true if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

// Validate checks the merchant-supplied fields of a new transaction.
func (t *Transaction) Validate() error {
	if t.Amount <= 0 {
		return errors.ErrInvalidAmount
	}
	if len(t.Currency) != 3 {
		return errors.NewValidationError("currency", "must be a 3 letter ISO code")
	}
	return nil
}
