package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// StatusService is the single place where transaction status changes are
// persisted and announced.
type StatusService struct {
	repo      transaction.Repository
	txManager TransactionManager
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewStatusService creates a StatusService. publisher may be nil, in which
// case no events are emitted.
func NewStatusService(
	repo transaction.Repository,
	txManager TransactionManager,
	publisher EventPublisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *StatusService {
	return &StatusService{
		repo:      repo,
		txManager: txManager,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProcessStatus stores txn in its current status together with a history
// entry, then publishes a status change event. A CREATED transaction is
// inserted, any other status updates the existing row.
func (s *StatusService) ProcessStatus(ctx context.Context, txn *transaction.Transaction, from transaction.Status) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if txn.Status == transaction.StatusCreated {
			if err := s.repo.Create(txCtx, txn); err != nil {
				return err
			}
		} else {
			if err := s.repo.Update(txCtx, txn); err != nil {
				return err
			}
		}

		data := map[string]any{
			"amount_cents": txn.Amount,
			"currency":     txn.Currency,
		}
		if txn.ProviderReference != "" {
			data["provider_reference"] = txn.ProviderReference
		}
		if txn.ErrorCode != "" {
			data["error_code"] = txn.ErrorCode
			data["error_message"] = txn.ErrorMessage
		}

		return s.repo.AddEvent(txCtx, &transaction.Event{
			ID:            uuid.New(),
			TransactionID: txn.ID,
			FromStatus:    from,
			ToStatus:      txn.Status,
			EventData:     data,
			CreatedAt:     time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("persist status %s: %w", txn.Status, err)
	}

	s.metrics.TransactionStatusTotal.WithLabelValues(string(txn.Status)).Inc()
	s.publish(ctx, transaction.NewStatusChanged(txn, from))
	return nil
}

// publish is best effort: the status change is already committed.
func (s *StatusService) publish(ctx context.Context, event transaction.StatusChanged) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
		s.metrics.EventsPublished.WithLabelValues(transaction.EventStatusChanged, "error").Inc()
		s.logger.Warn().Err(err).
			Str("txn_reference", event.Reference).
			Str("status", string(event.ToStatus)).
			Msg("Failed to publish status change")
		return
	}
	s.metrics.EventsPublished.WithLabelValues(transaction.EventStatusChanged, "ok").Inc()
}
