package domain

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager runs fn as a single unit of work. If fn returns an error, every
// write made inside it is rolled back; otherwise all of them commit
// together. The Querier passed to fn is nil for backends that have no
// transaction handle of their own.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error
}
