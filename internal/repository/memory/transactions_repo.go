package memory

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

type transactionRepository struct {
	store *Store
}

func NewTransactionRepository(store *Store) *transactionRepository {
	return &transactionRepository{store: store}
}

func (r *transactionRepository) AppendTx(ctx context.Context, _ domain.Querier, txn *domain.Transaction) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpAppendTransaction); err != nil {
		return err
	}
	if txn.FromAccountID == nil && txn.ToAccountID == nil {
		return domain.ErrNoAccountSpecified
	}
	if txn.Amount.Cmp(decimal.Zero) <= 0 {
		return domain.ErrInvalidAmount
	}
	s.transactions = append(s.transactions, cloneTransaction(*txn))
	return nil
}

func (r *transactionRepository) GetTx(ctx context.Context, _ domain.Querier, id string) (*domain.Transaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range s.transactions {
		if txn.ID == id {
			copied := cloneTransaction(txn)
			return &copied, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *transactionRepository) ListForAccountTx(ctx context.Context, _ domain.Querier, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var txns []domain.Transaction
	for _, txn := range s.transactions {
		if !touchesAccount(txn, accountID) {
			continue
		}
		if typeFilter != "" && txn.Type != typeFilter {
			continue
		}
		txns = append(txns, cloneTransaction(txn))
	}
	sortTransactionsNewestFirst(txns)
	return txns, nil
}

func (r *transactionRepository) ListForOwnerTx(ctx context.Context, _ domain.Querier, ownerID, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make(map[string]struct{})
	for id, account := range s.accounts {
		if account.OwnerID == ownerID {
			owned[id] = struct{}{}
		}
	}

	var txns []domain.Transaction
	for _, txn := range s.transactions {
		if !touchesAnyAccount(txn, owned) {
			continue
		}
		if accountID != "" && !touchesAccount(txn, accountID) {
			continue
		}
		if typeFilter != "" && txn.Type != typeFilter {
			continue
		}
		txns = append(txns, cloneTransaction(txn))
	}
	sortTransactionsNewestFirst(txns)
	return txns, nil
}

func (r *transactionRepository) DeleteTx(ctx context.Context, _ domain.Querier, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, txn := range s.transactions {
		if txn.ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func touchesAccount(txn domain.Transaction, accountID string) bool {
	if txn.FromAccountID != nil && *txn.FromAccountID == accountID {
		return true
	}
	if txn.ToAccountID != nil && *txn.ToAccountID == accountID {
		return true
	}
	return false
}

func touchesAnyAccount(txn domain.Transaction, accountIDs map[string]struct{}) bool {
	if txn.FromAccountID != nil {
		if _, ok := accountIDs[*txn.FromAccountID]; ok {
			return true
		}
	}
	if txn.ToAccountID != nil {
		if _, ok := accountIDs[*txn.ToAccountID]; ok {
			return true
		}
	}
	return false
}

func cloneTransaction(txn domain.Transaction) domain.Transaction {
	if txn.FromAccountID != nil {
		from := *txn.FromAccountID
		txn.FromAccountID = &from
	}
	if txn.ToAccountID != nil {
		to := *txn.ToAccountID
		txn.ToAccountID = &to
	}
	return txn
}
