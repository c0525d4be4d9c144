package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/E5GEN2/highbid.ai/internal/core/domain"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateAccount inserts a zero-balance account with a hyphen-free hex ID.
func (r *AccountRepository) CreateAccount(ctx context.Context, ownerName, email string, currency domain.Currency) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (id, owner_name, email, currency, balance)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id, owner_name, email, balance, currency, created_at
	`
	var acc domain.Account
	err := r.db.QueryRow(ctx, query, domain.NewAccountID(), ownerName, email, currency).Scan(
		&acc.ID, &acc.OwnerName, &acc.Email, &acc.Balance, &acc.Currency, &acc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &acc, nil
}

// GetAccountByID
func (r *AccountRepository) GetAccountByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT id, owner_name, email, balance, currency, created_at FROM accounts WHERE id = $1`
	var acc domain.Account
	err := r.db.QueryRow(ctx, query, id).Scan(
		&acc.ID, &acc.OwnerName, &acc.Email, &acc.Balance, &acc.Currency, &acc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// APIKey is the token metadata surfaced to users; the hash never leaves the
// database.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  string     `json:"account_id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// SaveAPIKey stores the hashed key for the account.
func (r *AccountRepository) SaveAPIKey(ctx context.Context, accountID, name, keyHash, keyPrefix string) (*APIKey, error) {
	query := `
		INSERT INTO api_keys (account_id, name, key_hash, key_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, name, key_prefix, created_at
	`
	var key APIKey
	err := r.db.QueryRow(ctx, query, accountID, name, keyHash, keyPrefix).Scan(
		&key.ID, &key.AccountID, &key.Name, &key.KeyPrefix, &key.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns the account's active (non-revoked) tokens.
func (r *AccountRepository) ListAPIKeys(ctx context.Context, accountID string) ([]APIKey, error) {
	query := `
		SELECT id, account_id, name, key_prefix, created_at, last_used_at
		FROM api_keys
		WHERE account_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks a token revoked so it stops authenticating. Revoking an
// already-revoked or foreign key is a no-op error.
func (r *AccountRepository) RevokeAPIKey(ctx context.Context, accountID string, keyID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE api_keys SET revoked_at = NOW()
		WHERE id = $1 AND account_id = $2 AND revoked_at IS NULL
	`, keyID, accountID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("api key not found")
	}
	return nil
}
