package domain

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Transaction lifecycle statuses. A credit starts PENDING when the user
// initiates a top-up and reaches exactly one terminal state when the
// provider callback resolves it.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Transaction types.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Account represents a user's credit wallet.
//
// IDs are 32-char hyphen-free hex so they can be embedded in provider order
// identifiers, which are split on hyphens.
type Account struct {
	ID        string    `json:"id"`
	OwnerName string    `json:"owner_name"`
	Email     string    `json:"email"`
	Balance   int64     `json:"balance"` // Minor units (cents)
	Currency  Currency  `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAccountID returns a fresh account identifier: the hex bytes of a UUID
// without the hyphens.
func NewAccountID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Transaction represents one movement of credit, keyed to the provider's
// payment identifier for top-ups.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	AccountID   string    `json:"account_id"`
	PaymentID   string    `json:"payment_id,omitempty"`
	Type        string    `json:"type"` // credit | debit
	Amount      int64     `json:"amount"`
	Currency    Currency  `json:"currency"`
	Description string    `json:"description"`
	Status      string    `json:"status"` // pending | completed | failed
	PaymentURL  string    `json:"payment_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
