package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

const uniqueViolation = "23505"

const accountColumns = `id, owner_id, account_number, account_type, balance, currency, opened_date, is_active, created_at, updated_at`

type accountRepository struct{}

func NewAccountRepository() *accountRepository {
	return &accountRepository{}
}

func (r *accountRepository) CreateTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, account_number, account_type, balance, currency, opened_date, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := querier.ExecContext(ctx, query,
		account.ID,
		account.OwnerID,
		account.AccountNumber,
		account.Type,
		account.Balance,
		account.Currency,
		account.OpenedDate,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateAccountNumber
		}
		return fmt.Errorf("failed to create account %s: %w", account.AccountNumber, err)
	}
	return nil
}

func (r *accountRepository) GetTx(ctx context.Context, querier domain.Querier, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(querier.QueryRowContext(ctx, query, id), id)
}

func (r *accountRepository) GetForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return r.scanOne(querier.QueryRowContext(ctx, query, id), id)
}

func (r *accountRepository) GetByNumberTx(ctx context.Context, querier domain.Querier, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.scanOne(querier.QueryRowContext(ctx, query, accountNumber), accountNumber)
}

func (r *accountRepository) ApplyDeltaTx(ctx context.Context, querier domain.Querier, account *domain.Account, delta decimal.Decimal) (*domain.Account, error) {
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() && !account.AllowsNegativeBalance() {
		return nil, domain.ErrInsufficientFunds
	}

	now := time.Now()
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, newBalance, now, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance for account %s: %w", account.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, domain.ErrAccountNotFound
	}

	updated := *account
	updated.Balance = newBalance
	updated.UpdatedAt = now
	return &updated, nil
}

func (r *accountRepository) ListByOwnerTx(ctx context.Context, querier domain.Querier, ownerID string, typeFilter domain.AccountType) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1`
	params := []any{ownerID}

	if typeFilter != "" {
		query += ` AND account_type = $2`
		params = append(params, typeFilter)
	}
	query += ` ORDER BY opened_date DESC`

	rows, err := querier.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) SetBalanceTx(ctx context.Context, querier domain.Querier, id string, balance decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, balance, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set balance for account %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) (bool, error) {
	res, err := querier.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete account %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *accountRepository) scanOne(row *sql.Row, key string) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	return account, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.AccountNumber,
		&account.Type,
		&account.Balance,
		&account.Currency,
		&account.OpenedDate,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}
