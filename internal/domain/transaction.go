package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeManual     TransactionType = "manual"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer, TransactionTypeManual:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Transaction is an immutable record of a committed money movement.
// At least one of FromAccountID/ToAccountID is set: deposits have no
// source, withdrawals no destination.
type Transaction struct {
	ID              string
	FromAccountID   *string
	ToAccountID     *string
	Amount          decimal.Decimal
	Type            TransactionType
	Description     string
	Status          TransactionStatus
	TransactionDate time.Time
	CreatedAt       time.Time
}
