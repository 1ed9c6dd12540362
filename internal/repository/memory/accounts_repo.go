package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

type accountRepository struct {
	store *Store
}

func NewAccountRepository(store *Store) *accountRepository {
	return &accountRepository{store: store}
}

func (r *accountRepository) CreateTx(ctx context.Context, _ domain.Querier, account *domain.Account) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpCreateAccount); err != nil {
		return err
	}
	for _, existing := range s.accounts {
		if existing.AccountNumber == account.AccountNumber {
			return domain.ErrDuplicateAccountNumber
		}
	}
	s.accounts[account.ID] = *account
	return nil
}

func (r *accountRepository) GetTx(ctx context.Context, _ domain.Querier, id string) (*domain.Account, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(id)
}

func (r *accountRepository) GetForUpdateTx(ctx context.Context, q domain.Querier, id string) (*domain.Account, error) {
	// No row locks in memory; the engine's account locks provide exclusion.
	return r.GetTx(ctx, q, id)
}

func (r *accountRepository) GetByNumberTx(ctx context.Context, _ domain.Querier, accountNumber string) (*domain.Account, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts {
		if account.AccountNumber == accountNumber {
			copied := account
			return &copied, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *accountRepository) ApplyDeltaTx(ctx context.Context, _ domain.Querier, loaded *domain.Account, delta decimal.Decimal) (*domain.Account, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpApplyDelta); err != nil {
		return nil, err
	}
	account, ok := s.accounts[loaded.ID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() && !account.AllowsNegativeBalance() {
		return nil, domain.ErrInsufficientFunds
	}

	account.Balance = newBalance
	account.UpdatedAt = time.Now()
	s.accounts[account.ID] = account

	copied := account
	return &copied, nil
}

func (r *accountRepository) ListByOwnerTx(ctx context.Context, _ domain.Querier, ownerID string, typeFilter domain.AccountType) ([]domain.Account, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []domain.Account
	for _, account := range s.accounts {
		if account.OwnerID != ownerID {
			continue
		}
		if typeFilter != "" && account.Type != typeFilter {
			continue
		}
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].OpenedDate.After(accounts[j].OpenedDate)
	})
	return accounts, nil
}

func (r *accountRepository) SetBalanceTx(ctx context.Context, _ domain.Querier, id string, balance decimal.Decimal) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	account.Balance = balance
	account.UpdatedAt = time.Now()
	s.accounts[id] = account
	return nil
}

func (r *accountRepository) DeleteTx(ctx context.Context, _ domain.Querier, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return false, nil
	}
	delete(s.accounts, id)
	return true, nil
}

func (s *Store) getAccountLocked(id string) (*domain.Account, error) {
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	copied := account
	return &copied, nil
}
