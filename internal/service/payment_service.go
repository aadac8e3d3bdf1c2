package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/infrastructure/observability"
	"github.com/payflow/payments/internal/providers"
	"github.com/payflow/payments/pkg/saga"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/payflow/payments/internal/service"

// PaymentService creates transactions and initiates them at the provider.
type PaymentService struct {
	repo            transaction.Repository
	status          *StatusService
	providerFactory *providers.Factory
	locker          Locker
	lockTTL         time.Duration
	metrics         *observability.Metrics
	logger          zerolog.Logger
	tracer          trace.Tracer
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	repo transaction.Repository,
	status *StatusService,
	providerFactory *providers.Factory,
	locker Locker,
	lockTTL time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		repo:            repo,
		status:          status,
		providerFactory: providerFactory,
		locker:          locker,
		lockTTL:         lockTTL,
		metrics:         metrics,
		logger:          logger,
		tracer:          otel.Tracer(tracerName),
	}
}

// CreatePayment puts txn in its initial state: status CREATED and a freshly
// generated reference. Nothing is persisted.
func (s *PaymentService) CreatePayment(txn *transaction.Transaction) *transaction.Transaction {
	now := time.Now()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.Reference = transaction.NewReference()
	txn.Status = transaction.StatusCreated
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return txn
}

// Register validates txn, creates it and persists it.
func (s *PaymentService) Register(ctx context.Context, txn *transaction.Transaction) (*transaction.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Register")
	defer span.End()

	if err := txn.Validate(); err != nil {
		return nil, err
	}
	assignMerchant(ctx, txn)
	s.CreatePayment(txn)
	span.SetAttributes(attribute.String("txn.reference", txn.Reference))

	if err := s.status.ProcessStatus(ctx, txn, ""); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.TransactionsTotal.WithLabelValues(string(txn.PaymentMethod), string(txn.Provider)).Inc()
	s.logger.Info().
		Str("txn_reference", txn.Reference).
		Str("merchant_id", txn.MerchantID).
		Int64("amount_cents", txn.Amount).
		Msg("Transaction created")
	return txn, nil
}

// GetPayment returns the transaction identified by reference.
func (s *PaymentService) GetPayment(ctx context.Context, reference string) (*transaction.Transaction, error) {
	return s.load(ctx, reference)
}

// GetEvents returns the status history of the transaction identified by reference.
func (s *PaymentService) GetEvents(ctx context.Context, reference string) ([]*transaction.Event, error) {
	txn, err := s.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.repo.GetEvents(ctx, txn.ID)
}

// InitiatePayment sends the transaction to its provider and stores the
// returned provider reference and redirect URL. The transaction ends up
// PENDING on success and FAILED when the provider call fails.
func (s *PaymentService) InitiatePayment(ctx context.Context, reference string, req InitiatePaymentRequest) (txn *transaction.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.InitiatePayment",
		trace.WithAttributes(attribute.String("txn.reference", reference)))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.InitiateDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.End()
	}()

	logger := observability.WithTransaction(s.logger, reference)

	release, err := s.locker.Acquire(ctx, "txn:"+reference, s.lockTTL)
	if err != nil {
		if errors.Is(err, domainErrors.ErrLockAcquisitionFailed) {
			return nil, domainErrors.NewProcessingError(domainErrors.TxnLocked, err)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		if rErr := release(context.WithoutCancel(ctx)); rErr != nil {
			logger.Warn().Err(rErr).Msg("Failed to release transaction lock")
		}
	}()

	txn, err = s.load(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status != transaction.StatusCreated {
		return nil, domainErrors.NewProcessingError(domainErrors.InvalidTxnStatus,
			fmt.Errorf("transaction %s is %s", reference, txn.Status))
	}

	var providerErr error
	flow := saga.New("initiate_payment").
		AddStep(saga.Step{
			Name: "mark_initiated",
			Execute: func(ctx context.Context) error {
				if err := txn.MarkInitiated(); err != nil {
					return domainErrors.NewProcessingError(domainErrors.InvalidTxnStatus, err)
				}
				return s.status.ProcessStatus(ctx, txn, transaction.StatusCreated)
			},
			Compensate: func(ctx context.Context) error {
				return s.markFailed(ctx, txn, providerErr)
			},
		}).
		AddStep(saga.Step{
			Name: "call_provider",
			Execute: func(ctx context.Context) error {
				resp, err := s.callProvider(ctx, txn, toProviderRequest(txn, req))
				if err != nil {
					logger.Error().Err(err).Str("provider", string(txn.Provider)).Msg("Provider call failed")
					providerErr = err
					return domainErrors.NewProcessingError(failureCode(err), err)
				}
				return applyProviderResponse(txn, resp)
			},
		}).
		AddStep(saga.Step{
			Name: "mark_pending",
			Execute: func(ctx context.Context) error {
				// The provider already holds the payment; record it even if
				// the caller has gone away.
				return s.status.ProcessStatus(context.WithoutCancel(ctx), txn, transaction.StatusInitiated)
			},
		})

	if err := flow.Execute(ctx); err != nil {
		return nil, err
	}

	logger.Info().Str("provider_reference", txn.ProviderReference).Msg("Payment initiated")
	return txn, nil
}

// load fetches a transaction the caller is allowed to see. Unknown
// references and foreign transactions look the same to the caller.
func (s *PaymentService) load(ctx context.Context, reference string) (*transaction.Transaction, error) {
	txn, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return nil, domainErrors.NewProcessingError(domainErrors.InvalidTxnReference, err)
		}
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	if err := verifyOwnership(ctx, txn); err != nil {
		return nil, domainErrors.NewProcessingError(domainErrors.InvalidTxnReference, err)
	}
	return txn, nil
}

func (s *PaymentService) callProvider(ctx context.Context, txn *transaction.Transaction, req providers.CreatePaymentRequest) (*providers.PaymentResponse, error) {
	name := string(txn.Provider)
	provider, breaker, err := s.providerFactory.Get(name)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "provider.CreatePayment",
		trace.WithAttributes(attribute.String("provider", name)))
	defer span.End()

	start := time.Now()
	resp, err := breaker.Execute(func() (*providers.PaymentResponse, error) {
		return provider.CreatePayment(ctx, req)
	})
	s.metrics.ProviderRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", domainErrors.ErrProviderUnavailable, err)
	}
	if err != nil {
		s.metrics.ProviderRequestsTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ProviderRequestsTotal.WithLabelValues(name, "success").Inc()
	return resp, nil
}

func failureCode(cause error) domainErrors.ErrorCode {
	if errors.Is(cause, domainErrors.ErrProviderInvalidResponse) {
		return domainErrors.ProviderInvalidResponse
	}
	return domainErrors.ProviderError
}

// markFailed records a provider failure on an INITIATED transaction. A nil
// cause means the provider accepted the payment and only the final write
// failed, so the transaction is left INITIATED. The write outlives a
// cancelled request context.
func (s *PaymentService) markFailed(ctx context.Context, txn *transaction.Transaction, cause error) error {
	if cause == nil {
		return nil
	}
	if err := txn.MarkFailed(failureCode(cause).Code, cause.Error()); err != nil {
		return err
	}
	if err := s.status.ProcessStatus(context.WithoutCancel(ctx), txn, transaction.StatusInitiated); err != nil {
		s.logger.Error().Err(err).Str("txn_reference", txn.Reference).Msg("Failed to persist FAILED status")
		return err
	}
	return nil
}
