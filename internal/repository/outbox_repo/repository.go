package outbox_repo

import (
	"context"

	"ledger/internal/domain"
)

// OutboxRepository stages committed-transaction events. CreateMessageTx
// runs inside the ledger operation's transaction; the relay polls pending
// rows and marks them sent after publishing.
type OutboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	MarkMessagesAsSent(ctx context.Context, querier domain.Querier, ids []string) error
}
