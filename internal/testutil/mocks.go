package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/providers"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory transaction.Repository. Stored
// transactions are copies, so callers observe only what they persisted.
type MockTransactionRepository struct {
	mu           sync.Mutex
	transactions map[string]*transaction.Transaction
	events       map[uuid.UUID][]*transaction.Event

	CreateFunc         func(ctx context.Context, txn *transaction.Transaction) error
	GetByReferenceFunc func(ctx context.Context, reference string) (*transaction.Transaction, error)
	UpdateFunc         func(ctx context.Context, txn *transaction.Transaction) error
	AddEventFunc       func(ctx context.Context, event *transaction.Event) error
	GetEventsFunc      func(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[string]*transaction.Transaction),
		events:       make(map[uuid.UUID][]*transaction.Event),
	}
}

// AddTransaction seeds the repository.
func (m *MockTransactionRepository) AddTransaction(txn *transaction.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *txn
	m.transactions[txn.Reference] = &stored
}

// Stored returns the persisted copy of a transaction, or nil.
func (m *MockTransactionRepository) Stored(reference string) *transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[reference]
	if !ok {
		return nil
	}
	out := *txn
	return &out
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, txn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[txn.Reference]; exists {
		return domainErrors.ErrDuplicateReference
	}
	stored := *txn
	m.transactions[txn.Reference] = &stored
	return nil
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	if m.GetByReferenceFunc != nil {
		return m.GetByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[reference]
	if !ok {
		return nil, domainErrors.ErrTransactionNotFound
	}
	out := *txn
	return &out, nil
}

func (m *MockTransactionRepository) Update(ctx context.Context, txn *transaction.Transaction) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, txn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[txn.Reference]; !ok {
		return domainErrors.ErrTransactionNotFound
	}
	stored := *txn
	m.transactions[txn.Reference] = &stored
	return nil
}

func (m *MockTransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	if m.AddEventFunc != nil {
		return m.AddEventFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.TransactionID] = append(m.events[event.TransactionID], event)
	return nil
}

func (m *MockTransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	if m.GetEventsFunc != nil {
		return m.GetEventsFunc(ctx, transactionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transaction.Event(nil), m.events[transactionID]...), nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Locker Mock ---

// MockLocker is an in-process lock table.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
	Acquired    []string
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

// Hold marks key as held by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// IsHeld reports whether key is currently locked.
func (m *MockLocker) IsHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[key]
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, fmt.Errorf("%s: %w", key, domainErrors.ErrLockAcquisitionFailed)
	}
	m.held[key] = true
	m.Acquired = append(m.Acquired, key)
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}

// --- Event Publisher Mock ---

// MockEventPublisher records published events.
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []transaction.StatusChanged
	Err    error
}

func (m *MockEventPublisher) PublishStatusChanged(ctx context.Context, event transaction.StatusChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

// SetErr changes the publish error while the publisher is in use.
func (m *MockEventPublisher) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// Statuses returns the target status of every recorded event in order.
func (m *MockEventPublisher) Statuses() []transaction.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transaction.Status, 0, len(m.Events))
	for _, e := range m.Events {
		out = append(out, e.ToStatus)
	}
	return out
}

// --- Provider Mock ---

// MockProvider is a providers.Provider with a scripted answer.
type MockProvider struct {
	NameValue         string
	CreatePaymentFunc func(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error)

	mu       sync.Mutex
	Requests []providers.CreatePaymentRequest
}

func (m *MockProvider) Name() string { return m.NameValue }

func (m *MockProvider) CreatePayment(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return &providers.PaymentResponse{ID: "provider-ref-id1", URL: "http://test.com"}, nil
}
