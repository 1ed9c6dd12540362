package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"ledger/internal/domain"
)

const transactionColumns = `id, from_account_id, to_account_id, amount, transaction_type, description, status, transaction_date, created_at`

type transactionRepository struct{}

func NewTransactionRepository() *transactionRepository {
	return &transactionRepository{}
}

func (r *transactionRepository) AppendTx(ctx context.Context, querier domain.Querier, txn *domain.Transaction) error {
	if txn.FromAccountID == nil && txn.ToAccountID == nil {
		return domain.ErrNoAccountSpecified
	}
	if txn.Amount.Cmp(decimal.Zero) <= 0 {
		return domain.ErrInvalidAmount
	}

	query := `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount, transaction_type, description, status, transaction_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := querier.ExecContext(ctx, query,
		txn.ID,
		txn.FromAccountID,
		txn.ToAccountID,
		txn.Amount,
		txn.Type,
		txn.Description,
		txn.Status,
		txn.TransactionDate,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction %s: %w", txn.ID, err)
	}
	return nil
}

func (r *transactionRepository) GetTx(ctx context.Context, querier domain.Querier, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	txn, err := scanTransaction(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

func (r *transactionRepository) ListForAccountTx(ctx context.Context, querier domain.Querier, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
	`
	params := []any{accountID}

	if typeFilter != "" {
		params = append(params, typeFilter)
		query += ` AND transaction_type = $` + strconv.Itoa(len(params))
	}
	query += ` ORDER BY transaction_date DESC`

	rows, err := querier.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) ListForOwnerTx(ctx context.Context, querier domain.Querier, ownerID, accountID string, typeFilter domain.TransactionType) ([]domain.Transaction, error) {
	query := `
		SELECT DISTINCT t.id, t.from_account_id, t.to_account_id, t.amount,
			t.transaction_type, t.description, t.status, t.transaction_date, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.from_account_id OR a.id = t.to_account_id
		WHERE a.owner_id = $1
	`
	params := []any{ownerID}

	if accountID != "" {
		params = append(params, accountID)
		n := strconv.Itoa(len(params))
		query += ` AND (t.from_account_id = $` + n + ` OR t.to_account_id = $` + n + `)`
	}
	if typeFilter != "" {
		params = append(params, typeFilter)
		query += ` AND t.transaction_type = $` + strconv.Itoa(len(params))
	}
	query += ` ORDER BY t.transaction_date DESC`

	rows, err := querier.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for owner %s: %w", ownerID, err)
	}
	return collectTransactions(rows)
}

func (r *transactionRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) (bool, error) {
	res, err := querier.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction %s: %w", id, err)
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

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	var fromID, toID sql.NullString
	err := row.Scan(
		&txn.ID,
		&fromID,
		&toID,
		&txn.Amount,
		&txn.Type,
		&txn.Description,
		&txn.Status,
		&txn.TransactionDate,
		&txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fromID.Valid {
		txn.FromAccountID = &fromID.String
	}
	if toID.Valid {
		txn.ToAccountID = &toID.String
	}
	return txn, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}
