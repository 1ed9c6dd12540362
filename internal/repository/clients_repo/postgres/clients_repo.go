package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/domain"
)

type clientRepository struct{}

func NewClientRepository() *clientRepository {
	return &clientRepository{}
}

func (r *clientRepository) ExistsTx(ctx context.Context, querier domain.Querier, id string) (bool, error) {
	var one int
	err := querier.QueryRowContext(ctx, `SELECT 1 FROM clients WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check client %s: %w", id, err)
	}
	return true, nil
}
