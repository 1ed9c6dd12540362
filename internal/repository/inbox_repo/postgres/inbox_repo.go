package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ledger/internal/domain"
)

const uniqueViolation = "23505"

type inboxRepository struct{}

func NewInboxRepository() *inboxRepository {
	return &inboxRepository{}
}

func (r *inboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (id, payload, status, received_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := querier.ExecContext(ctx, query, msg.ID, msg.Payload, msg.Status, msg.ReceivedAt)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == uniqueViolation {
			return domain.ErrMessageAlreadyProcessed
		}
		return fmt.Errorf("failed to create inbox message %s: %w", msg.ID, err)
	}
	return nil
}

func (r *inboxRepository) UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error {
	query := `
		UPDATE inbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3
	`
	res, err := querier.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update inbox message %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inbox message %s not found for status update", id)
	}
	return nil
}
