package accounts_repo

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

// AccountRepository owns persisted account rows. All methods take a
// domain.Querier so they can participate in a caller-owned transaction.
type AccountRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	GetTx(ctx context.Context, querier domain.Querier, id string) (*domain.Account, error)
	// GetForUpdateTx locks the row for the remainder of the transaction.
	GetForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Account, error)
	GetByNumberTx(ctx context.Context, querier domain.Querier, accountNumber string) (*domain.Account, error)
	// ApplyDeltaTx sets balance = account.Balance + delta, failing with
	// domain.ErrInsufficientFunds when the result would be negative for an
	// account that does not allow overdraft. The caller must have loaded
	// account via GetForUpdateTx in the same transaction; no second read is
	// issued. Returns the updated account.
	ApplyDeltaTx(ctx context.Context, querier domain.Querier, account *domain.Account, delta decimal.Decimal) (*domain.Account, error)
	ListByOwnerTx(ctx context.Context, querier domain.Querier, ownerID string, typeFilter domain.AccountType) ([]domain.Account, error)
	// SetBalanceTx is an administrative override; it bypasses the
	// balance-equals-sum-of-transactions invariant on purpose.
	SetBalanceTx(ctx context.Context, querier domain.Querier, id string, balance decimal.Decimal) error
	DeleteTx(ctx context.Context, querier domain.Querier, id string) (bool, error)
}
