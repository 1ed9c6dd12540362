package inbox_repo

import (
	"context"

	"ledger/internal/domain"
)

// InboxRepository records consumed command messages for exactly-once
// processing. CreateMessageTx returns domain.ErrMessageAlreadyProcessed
// when the message id was seen before.
type InboxRepository interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	UpdateStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.InboxMessageStatus) error
}
