package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferCommandEvent is consumed from the transfer-commands topic and
// asks the ledger to move money between two accounts.
type TransferCommandEvent struct {
	CommandID     string          `json:"command_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Timestamp     time.Time       `json:"timestamp"`
}

// TransactionCommittedEvent is published (through the outbox) once a ledger
// operation has committed.
type TransactionCommittedEvent struct {
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	FromAccountID *string         `json:"from_account_id,omitempty"`
	ToAccountID   *string         `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}
