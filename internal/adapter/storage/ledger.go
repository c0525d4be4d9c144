package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/E5GEN2/highbid.ai/internal/core/domain"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type LedgerRepository struct {
	Db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{Db: db}
}

// CreatePendingTopup records the optimistic credit created when a user
// initiates a crypto top-up. The provider callback later resolves it to
// completed or failed.
func (r *LedgerRepository) CreatePendingTopup(ctx context.Context, accountID, paymentID string, amount int64, description, paymentURL string) (*domain.Transaction, error) {
	query := `
		INSERT INTO transactions (account_id, payment_id, type, amount, currency, description, status, payment_url)
		VALUES ($1, $2, 'credit', $3, 'USD', $4, 'pending', $5)
		RETURNING id, account_id, payment_id, type, amount, currency, description, status, payment_url, created_at, updated_at
	`
	var t domain.Transaction
	err := r.Db.QueryRow(ctx, query, accountID, paymentID, amount, description, paymentURL).Scan(
		&t.ID, &t.AccountID, &t.PaymentID, &t.Type, &t.Amount, &t.Currency,
		&t.Description, &t.Status, &t.PaymentURL, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending top-up: %w", err)
	}
	return &t, nil
}

// SettlePayment applies a settled provider notification. The pending ->
// completed transition on the transaction row is the idempotency gate: the
// balance credit happens in the same database transaction and only when the
// transition actually moved a row. Provider retries and concurrent
// duplicates therefore settle at most once.
//
// Returns the credited account's new balance and credited=false when no
// pending record matched the payment id.
func (r *LedgerRepository) SettlePayment(ctx context.Context, accountID, paymentID string, amount int64) (credited bool, newBalance int64, err error) {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(ctx)

	var txAccountID string
	err = tx.QueryRow(ctx, `
		UPDATE transactions
		SET status = 'completed', updated_at = NOW()
		WHERE payment_id = $1 AND account_id = $2 AND status = 'pending'
		RETURNING account_id
	`, paymentID, accountID).Scan(&txAccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already settled, already failed, or never recorded. No credit.
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("settle transition failed: %w", err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1 WHERE id = $2
		RETURNING balance
	`, amount, txAccountID).Scan(&newBalance)
	if err != nil {
		return false, 0, fmt.Errorf("balance credit failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	return true, newBalance, nil
}

// FailPayment resolves a pending top-up to failed. When the provider reports
// a payment we have no pending record for, a single failed credit record is
// inserted for audit; the unique payment_id constraint keeps it to one row
// per payment either way.
func (r *LedgerRepository) FailPayment(ctx context.Context, accountID, paymentID string, amount int64, description string) error {
	tag, err := r.Db.Exec(ctx, `
		UPDATE transactions
		SET status = 'failed', description = $3, updated_at = NOW()
		WHERE payment_id = $1 AND account_id = $2 AND status = 'pending'
	`, paymentID, accountID, description)
	if err != nil {
		return fmt.Errorf("fail transition failed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = r.Db.Exec(ctx, `
		INSERT INTO transactions (account_id, payment_id, type, amount, currency, description, status)
		VALUES ($1, $2, 'credit', $3, 'USD', $4, 'failed')
		ON CONFLICT (payment_id) DO NOTHING
	`, accountID, paymentID, amount, description)
	if err != nil {
		return fmt.Errorf("failed transaction insert failed: %w", err)
	}
	return nil
}

// Spend debits a generation charge from the account balance and records the
// completed debit, all in one transaction. The row lock makes concurrent
// spends serialize instead of overdrawing.
func (r *LedgerRepository) Spend(ctx context.Context, accountID string, amount int64, description string) (*domain.Transaction, error) {
	tx, err := r.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1 WHERE id = $2`, amount, accountID); err != nil {
		return nil, err
	}

	var t domain.Transaction
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (account_id, type, amount, currency, description, status)
		VALUES ($1, 'debit', $2, 'USD', $3, 'completed')
		RETURNING id, account_id, type, amount, currency, description, status, created_at, updated_at
	`, accountID, amount, description).Scan(
		&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Currency,
		&t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetHistory fetches the account's most recent transactions, newest first.
func (r *LedgerRepository) GetHistory(ctx context.Context, accountID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, account_id, COALESCE(payment_id, ''), type, amount, currency,
		       description, status, COALESCE(payment_url, ''), created_at, updated_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.Db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.PaymentID, &t.Type, &t.Amount, &t.Currency,
			&t.Description, &t.Status, &t.PaymentURL, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

// QueueEvent enqueues a signed operator notification for the background
// webhook worker.
func (r *LedgerRepository) QueueEvent(ctx context.Context, url string, payload []byte) error {
	_, err := r.Db.Exec(ctx, `INSERT INTO webhook_jobs (url, payload) VALUES ($1, $2)`, url, payload)
	if err != nil {
		return fmt.Errorf("webhook enqueue failed: %w", err)
	}
	return nil
}

// WebhookJob is one claimed delivery.
type WebhookJob struct {
	ID       string
	URL      string
	Payload  []byte
	Attempts int
}

// ClaimJob atomically takes the oldest due job. Claim and status flip happen
// in one statement, so the row stays invisible to other instances for the
// whole delivery, not just for the duration of a SELECT. Returns nil when
// nothing is due.
func (r *LedgerRepository) ClaimJob(ctx context.Context) (*WebhookJob, error) {
	var job WebhookJob
	err := r.Db.QueryRow(ctx, `
		UPDATE webhook_jobs
		SET status = 'PROCESSING'
		WHERE id = (
			SELECT id FROM webhook_jobs
			WHERE status = 'PENDING' AND next_run_at <= NOW()
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, url, payload, attempts
	`).Scan(&job.ID, &job.URL, &job.Payload, &job.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("job claim failed: %w", err)
	}
	return &job, nil
}

// CompleteJob marks a claimed job delivered.
func (r *LedgerRepository) CompleteJob(ctx context.Context, id string) error {
	_, err := r.Db.Exec(ctx, `UPDATE webhook_jobs SET status = 'COMPLETED' WHERE id = $1`, id)
	return err
}

// RescheduleJob returns a claimed job to the queue with attempt-scaled
// backoff.
func (r *LedgerRepository) RescheduleJob(ctx context.Context, id string, nextRun time.Time) error {
	_, err := r.Db.Exec(ctx,
		`UPDATE webhook_jobs SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2 WHERE id = $1`,
		id, nextRun)
	return err
}

// FailJob gives up on a claimed job.
func (r *LedgerRepository) FailJob(ctx context.Context, id string) error {
	_, err := r.Db.Exec(ctx, `UPDATE webhook_jobs SET status = 'FAILED' WHERE id = $1`, id)
	return err
}
