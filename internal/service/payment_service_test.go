package service

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/infrastructure/observability"
	"github.com/payflow/payments/internal/middleware"
	"github.com/payflow/payments/internal/providers"
	"github.com/payflow/payments/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type fixture struct {
	svc       *PaymentService
	repo      *testutil.MockTransactionRepository
	provider  *testutil.MockProvider
	locker    *testutil.MockLocker
	publisher *testutil.MockEventPublisher
	txManager *testutil.MockTransactionManager
	metrics   *observability.Metrics
}

func setupPaymentService(t *testing.T, breaker providers.BreakerSettings) *fixture {
	t.Helper()
	f := &fixture{
		repo:      testutil.NewMockTransactionRepository(),
		provider:  &testutil.MockProvider{NameValue: string(transaction.ProviderStripe)},
		locker:    testutil.NewMockLocker(),
		publisher: &testutil.MockEventPublisher{},
		txManager: testutil.NewMockTransactionManager(),
		metrics:   observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	logger := zerolog.Nop()
	factory := providers.NewFactory(breaker, nil, logger, f.provider)
	status := NewStatusService(f.repo, f.txManager, f.publisher, f.metrics, logger)
	f.svc = NewPaymentService(f.repo, status, factory, f.locker, lockTTL, f.metrics, logger)
	return f
}

const lockTTL = 30 * time.Second

func (f *fixture) seed(txn *transaction.Transaction) *transaction.Transaction {
	f.repo.AddTransaction(txn)
	return txn
}

func requireProcessingError(t *testing.T, err error, code domainErrors.ErrorCode) *domainErrors.ProcessingError {
	t.Helper()
	var pe *domainErrors.ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, code.HTTPStatus, pe.HTTPStatus)
	assert.Equal(t, code.Code, pe.ErrorCode)
	assert.Equal(t, code.Message, pe.ErrorMessage)
	return pe
}

// --- CreatePayment Tests ---

func TestCreatePayment_SetsInitialState(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())

	inputs := []*transaction.Transaction{
		{},
		{Status: transaction.StatusPending, Reference: "stale"},
		testutil.NewTestTransaction("merchant-1", 100, "EUR"),
	}
	seen := map[string]bool{}
	for _, txn := range inputs {
		out := f.svc.CreatePayment(txn)
		assert.Same(t, txn, out)
		assert.Equal(t, transaction.StatusCreated, out.Status)
		assert.NotEmpty(t, out.Reference)
		assert.NotEqual(t, "stale", out.Reference)
		assert.False(t, seen[out.Reference], "reference must be unique")
		seen[out.Reference] = true
	}
	assert.Nil(t, f.repo.Stored(inputs[0].Reference), "CreatePayment must not persist")
}

// --- Register Tests ---

func TestRegister_PersistsCreatedTransaction(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	ctx := context.Background()

	txn := &transaction.Transaction{
		MerchantTransactionReference: "order-1",
		PaymentMethod:                transaction.PaymentMethodAPM,
		Provider:                     transaction.ProviderStripe,
		PaymentType:                  transaction.PaymentTypeSale,
		Amount:                       2500,
		Currency:                     "USD",
	}

	out, err := f.svc.Register(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCreated, out.Status)

	stored := f.repo.Stored(out.Reference)
	require.NotNil(t, stored)
	assert.Equal(t, transaction.StatusCreated, stored.Status)

	events, err := f.repo.GetEvents(ctx, out.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, transaction.Status(""), events[0].FromStatus)
	assert.Equal(t, transaction.StatusCreated, events[0].ToStatus)

	assert.Equal(t, []transaction.Status{transaction.StatusCreated}, f.publisher.Statuses())
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.TransactionsTotal.WithLabelValues("APM", "STRIPE")))
}

func TestRegister_AssignsAuthenticatedMerchant(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	ctx := middleware.WithMerchantID(context.Background(), "merchant-7")

	txn := testutil.NewTestTransaction("spoofed", 1000, "USD")
	out, err := f.svc.Register(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, "merchant-7", out.MerchantID)
}

func TestRegister_InvalidAmount(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())

	_, err := f.svc.Register(context.Background(), testutil.NewTestTransaction("m", 0, "USD"))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidAmount)
	assert.Empty(t, f.publisher.Events)
}

// --- InitiatePayment Tests ---

func TestInitiatePayment_UnknownReference(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())

	txn, err := f.svc.InitiatePayment(context.Background(), "does-not-exist", InitiatePaymentRequest{})
	assert.Nil(t, txn)
	requireProcessingError(t, err, domainErrors.InvalidTxnReference)
	assert.Equal(t, 400, domainErrors.InvalidTxnReference.HTTPStatus)
	assert.Equal(t, "Invalid transaction reference", domainErrors.InvalidTxnReference.Message)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionNotFound)
	assert.Empty(t, f.provider.Requests)
	assert.False(t, f.locker.IsHeld("txn:does-not-exist"))
}

func TestInitiatePayment_Success(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	ctx := context.Background()
	seeded := f.seed(testutil.NewTestTransaction("merchant-1", 5000, "USD"))

	txn, err := f.svc.InitiatePayment(ctx, seeded.Reference, InitiatePaymentRequest{
		SuccessURL: "https://shop.test/ok",
		CancelURL:  "https://shop.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, txn.Status)
	assert.Equal(t, "provider-ref-id1", txn.ProviderReference)
	assert.Equal(t, "http://test.com", txn.URL)

	stored := f.repo.Stored(seeded.Reference)
	assert.Equal(t, transaction.StatusPending, stored.Status)
	assert.Equal(t, "provider-ref-id1", stored.ProviderReference)
	assert.Equal(t, "http://test.com", stored.URL)

	assert.Equal(t,
		[]transaction.Status{transaction.StatusInitiated, transaction.StatusPending},
		f.publisher.Statuses())
	assert.Equal(t, []string{"txn:" + seeded.Reference}, f.locker.Acquired)
	assert.False(t, f.locker.IsHeld("txn:"+seeded.Reference))

	require.Len(t, f.provider.Requests, 1)
	req := f.provider.Requests[0]
	assert.Equal(t, seeded.Reference, req.TxnReference)
	assert.Equal(t, "https://shop.test/ok", req.SuccessURL)
	require.Len(t, req.LineItems, 1)
	assert.Equal(t, int64(5000), req.LineItems[0].UnitAmount)
	assert.Equal(t, int64(1), req.LineItems[0].Quantity)

	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ProviderRequestsTotal.WithLabelValues("STRIPE", "success")))
}

func TestInitiatePayment_ForwardsLineItems(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("merchant-1", 3000, "EUR"))

	_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{
		LineItems: []LineItem{
			{ProductName: "T-shirt", UnitAmount: 1000, Quantity: 2},
			{Currency: "EUR", ProductName: "Socks", UnitAmount: 1000, Quantity: 1},
		},
	})
	require.NoError(t, err)

	items := f.provider.Requests[0].LineItems
	require.Len(t, items, 2)
	assert.Equal(t, providers.LineItem{Currency: "EUR", ProductName: "T-shirt", UnitAmount: 1000, Quantity: 2}, items[0])
	assert.Equal(t, "Socks", items[1].ProductName)
}

func TestInitiatePayment_ProviderFailures(t *testing.T) {
	tests := []struct {
		name        string
		providerErr error
		want        domainErrors.ErrorCode
	}{
		{"rejected", domainErrors.ErrProviderRejected, domainErrors.ProviderError},
		{"unavailable", domainErrors.ErrProviderUnavailable, domainErrors.ProviderError},
		{"malformed response", domainErrors.ErrProviderInvalidResponse, domainErrors.ProviderInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupPaymentService(t, providers.DefaultBreakerSettings())
			f.provider.CreatePaymentFunc = func(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
				return nil, tt.providerErr
			}
			seeded := f.seed(testutil.NewTestTransaction("merchant-1", 5000, "USD"))

			txn, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
			assert.Nil(t, txn)
			requireProcessingError(t, err, tt.want)
			assert.ErrorIs(t, err, tt.providerErr)

			stored := f.repo.Stored(seeded.Reference)
			assert.Equal(t, transaction.StatusFailed, stored.Status)
			assert.Equal(t, tt.want.Code, stored.ErrorCode)
			assert.NotEmpty(t, stored.ErrorMessage)
			assert.Equal(t,
				[]transaction.Status{transaction.StatusInitiated, transaction.StatusFailed},
				f.publisher.Statuses())
			assert.False(t, f.locker.IsHeld("txn:"+seeded.Reference))
		})
	}
}

func TestInitiatePayment_CircuitOpen(t *testing.T) {
	f := setupPaymentService(t, providers.BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.5,
	})
	f.provider.CreatePaymentFunc = func(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
		return nil, domainErrors.ErrProviderUnavailable
	}
	ctx := context.Background()

	first := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	_, err := f.svc.InitiatePayment(ctx, first.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.ProviderError)

	second := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	_, err = f.svc.InitiatePayment(ctx, second.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.ProviderError)
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)

	assert.Len(t, f.provider.Requests, 1, "open breaker must short-circuit the provider")
	assert.Equal(t, transaction.StatusFailed, f.repo.Stored(second.Reference).Status)
}

func TestInitiatePayment_NotCreated(t *testing.T) {
	for _, status := range []transaction.Status{
		transaction.StatusInitiated,
		transaction.StatusPending,
		transaction.StatusSuccess,
		transaction.StatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := setupPaymentService(t, providers.DefaultBreakerSettings())
			seeded := f.seed(testutil.NewTransactionInStatus("m", status))

			_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
			requireProcessingError(t, err, domainErrors.InvalidTxnStatus)
			assert.Empty(t, f.provider.Requests)
			assert.Equal(t, status, f.repo.Stored(seeded.Reference).Status)
		})
	}
}

func TestInitiatePayment_Locked(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	f.locker.Hold("txn:" + seeded.Reference)

	_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.TxnLocked)
	assert.ErrorIs(t, err, domainErrors.ErrLockAcquisitionFailed)
	assert.Equal(t, transaction.StatusCreated, f.repo.Stored(seeded.Reference).Status)
}

func TestInitiatePayment_LockBackendError(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	f.locker.AcquireFunc = func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
		return nil, errors.New("redis down")
	}

	_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
	require.Error(t, err)
	var pe *domainErrors.ProcessingError
	assert.False(t, errors.As(err, &pe))
}

func TestInitiatePayment_ForeignMerchant(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("merchant-a", 100, "USD"))
	ctx := middleware.WithMerchantID(context.Background(), "merchant-b")

	_, err := f.svc.InitiatePayment(ctx, seeded.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.InvalidTxnReference)
	assert.Empty(t, f.provider.Requests)
}

func TestInitiatePayment_UnknownProvider(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	txn := testutil.NewTestTransaction("m", 100, "USD")
	txn.Provider = transaction.Provider("ADYEN")
	f.seed(txn)

	_, err := f.svc.InitiatePayment(context.Background(), txn.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.ProviderError)
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotFound)
	assert.Equal(t, transaction.StatusFailed, f.repo.Stored(txn.Reference).Status)
}

func TestInitiatePayment_FinalWriteFailureLeavesInitiated(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	dbErr := errors.New("write timeout")
	f.repo.UpdateFunc = func(ctx context.Context, txn *transaction.Transaction) error {
		if txn.Status == transaction.StatusPending {
			return dbErr
		}
		f.repo.AddTransaction(txn)
		return nil
	}

	_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
	assert.ErrorIs(t, err, dbErr)
	assert.Len(t, f.provider.Requests, 1)
	assert.Equal(t, transaction.StatusInitiated, f.repo.Stored(seeded.Reference).Status)
	assert.False(t, f.locker.IsHeld("txn:"+seeded.Reference))
}

func TestInitiatePayment_FailedStatusWriteKeepsProviderError(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
	f.provider.CreatePaymentFunc = func(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
		return nil, domainErrors.ErrProviderRejected
	}
	f.repo.UpdateFunc = func(ctx context.Context, txn *transaction.Transaction) error {
		if txn.Status == transaction.StatusFailed {
			return errors.New("write timeout")
		}
		f.repo.AddTransaction(txn)
		return nil
	}

	_, err := f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
	requireProcessingError(t, err, domainErrors.ProviderError)
	assert.Contains(t, err.Error(), "write timeout")
	assert.Equal(t, transaction.StatusInitiated, f.repo.Stored(seeded.Reference).Status)
}

func TestInitiatePayment_CancelledRequestStillRecordsOutcome(t *testing.T) {
	tests := []struct {
		name        string
		providerErr error
		wantStatus  transaction.Status
	}{
		{"provider failure", domainErrors.ErrProviderRejected, transaction.StatusFailed},
		{"provider success", nil, transaction.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupPaymentService(t, providers.DefaultBreakerSettings())
			seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))
			f.txManager.WithTransactionFunc = func(ctx context.Context, fn func(ctx context.Context) error) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fn(ctx)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.provider.CreatePaymentFunc = func(ctx context.Context, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
				cancel()
				if tt.providerErr != nil {
					return nil, tt.providerErr
				}
				return &providers.PaymentResponse{ID: "prov-1", URL: "http://test.com"}, nil
			}

			_, err := f.svc.InitiatePayment(ctx, seeded.Reference, InitiatePaymentRequest{})
			if tt.providerErr != nil {
				requireProcessingError(t, err, domainErrors.ProviderError)
				assert.NotContains(t, err.Error(), "compensation failed")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, f.repo.Stored(seeded.Reference).Status)

			_, err = f.svc.InitiatePayment(context.Background(), seeded.Reference, InitiatePaymentRequest{})
			requireProcessingError(t, err, domainErrors.InvalidTxnStatus)
		})
	}
}

// --- Read Tests ---

func TestGetPayment(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	seeded := f.seed(testutil.NewTestTransaction("m", 100, "USD"))

	txn, err := f.svc.GetPayment(context.Background(), seeded.Reference)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, txn.ID)

	_, err = f.svc.GetPayment(context.Background(), "missing")
	requireProcessingError(t, err, domainErrors.InvalidTxnReference)
}

func TestGetPayment_RepositoryError(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	f.repo.GetByReferenceFunc = func(ctx context.Context, reference string) (*transaction.Transaction, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.svc.GetPayment(context.Background(), "any")
	require.Error(t, err)
	var pe *domainErrors.ProcessingError
	assert.False(t, errors.As(err, &pe))
}

func TestGetEvents_FollowsLifecycle(t *testing.T) {
	f := setupPaymentService(t, providers.DefaultBreakerSettings())
	ctx := context.Background()

	created, err := f.svc.Register(ctx, testutil.NewTestTransaction("m", 100, "USD"))
	require.NoError(t, err)
	_, err = f.svc.InitiatePayment(ctx, created.Reference, InitiatePaymentRequest{})
	require.NoError(t, err)

	events, err := f.svc.GetEvents(ctx, created.Reference)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, transaction.StatusCreated, events[0].ToStatus)
	assert.Equal(t, transaction.StatusCreated, events[1].FromStatus)
	assert.Equal(t, transaction.StatusInitiated, events[1].ToStatus)
	assert.Equal(t, transaction.StatusPending, events[2].ToStatus)
	assert.Equal(t, "provider-ref-id1", events[2].EventData["provider_reference"])
}
