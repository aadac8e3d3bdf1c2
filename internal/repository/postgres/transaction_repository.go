package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/payflow/payments/internal/domain/errors"
	"github.com/payflow/payments/internal/domain/transaction"
)

const uniqueViolation = "23505"

const transactionColumns = `id, reference, merchant_id, merchant_transaction_reference,
	payment_method, provider, payment_type, amount_cents, currency, status,
	provider_reference, url, error_code, error_message, created_at, updated_at`

// TransactionRepository implements transaction.Repository using PostgreSQL.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

func (r *TransactionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.Reference, t.MerchantID, t.MerchantTransactionReference,
		string(t.PaymentMethod), string(t.Provider), string(t.PaymentType), t.Amount, t.Currency, string(t.Status),
		t.ProviderReference, t.URL, t.ErrorCode, t.ErrorMessage, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainErrors.ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference retrieves a transaction by its reference.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	return scanTransaction(r.db(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

// Update stores the mutable fields of a transaction.
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE transactions SET
		  status=$1, provider_reference=$2, url=$3,
		  error_code=$4, error_message=$5, updated_at=$6
		 WHERE id=$7`,
		string(t.Status), t.ProviderReference, t.URL,
		t.ErrorCode, t.ErrorMessage, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrTransactionNotFound
	}
	return nil
}

// AddEvent inserts a status history entry.
func (r *TransactionRepository) AddEvent(ctx context.Context, event *transaction.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	var from *string
	if event.FromStatus != "" {
		s := string(event.FromStatus)
		from = &s
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transaction_events (id, transaction_id, from_status, to_status, event_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.TransactionID, from, string(event.ToStatus), data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

// GetEvents retrieves the status history of a transaction, oldest first.
func (r *TransactionRepository) GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*transaction.Event, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, transaction_id, from_status, to_status, event_data, created_at
		 FROM transaction_events WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transaction events: %w", err)
	}
	defer rows.Close()

	var events []*transaction.Event
	for rows.Next() {
		e := &transaction.Event{}
		var (
			from *string
			to   string
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &from, &to, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if from != nil {
			e.FromStatus = transaction.Status(*from)
		}
		e.ToStatus = transaction.Status(to)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.EventData); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- scanning helpers ---

func scanTransaction(s scanner) (*transaction.Transaction, error) {
	t := &transaction.Transaction{}
	var paymentMethod, provider, paymentType, status string
	err := s.Scan(
		&t.ID, &t.Reference, &t.MerchantID, &t.MerchantTransactionReference,
		&paymentMethod, &provider, &paymentType, &t.Amount, &t.Currency, &status,
		&t.ProviderReference, &t.URL, &t.ErrorCode, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.PaymentMethod = transaction.PaymentMethod(paymentMethod)
	t.Provider = transaction.Provider(provider)
	t.PaymentType = transaction.PaymentType(paymentType)
	t.Status = transaction.Status(status)
	return t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
