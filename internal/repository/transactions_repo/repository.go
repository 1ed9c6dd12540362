package transactions_repo

import (
	"context"

	"ledger/internal/domain"
)

// TransactionRepository owns the append-mostly transaction log. Rows are
// immutable once inserted; Delete exists only as an administrative escape
// hatch and does not reverse balance effects.
type TransactionRepository interface {
	AppendTx(ctx context.Context, querier domain.Querier, txn *domain.Transaction) error
	GetTx(ctx context.Context, querier domain.Querier, id string) (*domain.Transaction, error)
	// ListForAccountTx returns transactions touching the account on either
	// side, newest first. An empty typeFilter means all types.
	ListForAccountTx(ctx context.Context, querier domain.Querier, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error)
	// ListForOwnerTx returns transactions touching any of the owner's
	// accounts, newest first. Empty accountID/typeFilter mean no filter.
	ListForOwnerTx(ctx context.Context, querier domain.Querier, ownerID, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) (bool, error)
}
