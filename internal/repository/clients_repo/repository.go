package clients_repo

import (
	"context"

	"ledger/internal/domain"
)

// ClientRepository is the back-reference into the client records the ledger
// does not own. Account creation only needs to know the owner exists.
type ClientRepository interface {
	ExistsTx(ctx context.Context, querier domain.Querier, id string) (bool, error)
}
