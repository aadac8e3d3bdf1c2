package service

import (
	"context"
	"errors"
	"testing"

	"github.com/payflow/payments/internal/domain/transaction"
	"github.com/payflow/payments/internal/infrastructure/observability"
	"github.com/payflow/payments/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusService(repo transaction.Repository, tm TransactionManager, pub EventPublisher) (*StatusService, *observability.Metrics) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	return NewStatusService(repo, tm, pub, m, zerolog.Nop()), m
}

func TestProcessStatus_CreatedInsertsOtherStatusesUpdate(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	var created, updated int
	repo.CreateFunc = func(ctx context.Context, txn *transaction.Transaction) error { created++; return nil }
	repo.UpdateFunc = func(ctx context.Context, txn *transaction.Transaction) error { updated++; return nil }
	svc, m := newStatusService(repo, testutil.NewMockTransactionManager(), nil)

	txn := testutil.NewTestTransaction("m", 100, "USD")
	require.NoError(t, svc.ProcessStatus(context.Background(), txn, ""))
	require.NoError(t, txn.MarkInitiated())
	require.NoError(t, svc.ProcessStatus(context.Background(), txn, transaction.StatusCreated))

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TransactionStatusTotal.WithLabelValues("INITIATED")))
}

func TestProcessStatus_RollsBackOnEventFailure(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	repo.AddEventFunc = func(ctx context.Context, event *transaction.Event) error {
		return errors.New("insert failed")
	}
	var rolledBack bool
	tm := &testutil.MockTransactionManager{
		WithTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
			err := fn(ctx)
			rolledBack = err != nil
			return err
		},
	}
	pub := &testutil.MockEventPublisher{}
	svc, _ := newStatusService(repo, tm, pub)

	err := svc.ProcessStatus(context.Background(), testutil.NewTestTransaction("m", 100, "USD"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist status CREATED")
	assert.True(t, rolledBack)
	assert.Empty(t, pub.Events, "nothing is published for an uncommitted change")
}

func TestProcessStatus_PublishFailureIsNotFatal(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	pub := &testutil.MockEventPublisher{Err: errors.New("stream unavailable")}
	svc, m := newStatusService(repo, testutil.NewMockTransactionManager(), pub)

	txn := testutil.NewTestTransaction("m", 100, "USD")
	require.NoError(t, svc.ProcessStatus(context.Background(), txn, ""))

	assert.NotNil(t, repo.Stored(txn.Reference))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.EventsPublished.WithLabelValues(transaction.EventStatusChanged, "error")))
}

func TestProcessStatus_PublishesEvent(t *testing.T) {
	repo := testutil.NewMockTransactionRepository()
	pub := &testutil.MockEventPublisher{}
	svc, _ := newStatusService(repo, testutil.NewMockTransactionManager(), pub)

	txn := testutil.NewTestTransaction("merchant-9", 100, "USD")
	require.NoError(t, svc.ProcessStatus(context.Background(), txn, ""))

	require.Len(t, pub.Events, 1)
	event := pub.Events[0]
	assert.Equal(t, txn.ID, event.TransactionID)
	assert.Equal(t, txn.Reference, event.Reference)
	assert.Equal(t, "merchant-9", event.MerchantID)
	assert.Equal(t, transaction.StatusCreated, event.ToStatus)
	assert.False(t, event.OccurredAt.IsZero())
}
