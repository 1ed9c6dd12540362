package memory

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/domain"
)

type clientRepository struct {
	store *Store
}

func NewClientRepository(store *Store) *clientRepository {
	return &clientRepository{store: store}
}

func (r *clientRepository) ExistsTx(ctx context.Context, _ domain.Querier, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	return ok, nil
}

type inboxRepository struct {
	store *Store
}

func NewInboxRepository(store *Store) *inboxRepository {
	return &inboxRepository{store: store}
}

func (r *inboxRepository) CreateMessageTx(ctx context.Context, _ domain.Querier, msg *domain.InboxMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpCreateInbox); err != nil {
		return err
	}
	if _, exists := s.inbox[msg.ID]; exists {
		return domain.ErrMessageAlreadyProcessed
	}
	s.inbox[msg.ID] = *msg
	return nil
}

func (r *inboxRepository) UpdateStatusTx(ctx context.Context, _ domain.Querier, id string, status domain.InboxMessageStatus) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.inbox[id]
	if !ok {
		return fmt.Errorf("inbox message %s not found for status update", id)
	}
	now := time.Now()
	msg.Status = status
	msg.ProcessedAt = &now
	s.inbox[id] = msg
	return nil
}

type outboxRepository struct {
	store *Store
}

func NewOutboxRepository(store *Store) *outboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) CreateMessageTx(ctx context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(OpCreateOutbox); err != nil {
		return err
	}
	s.outbox = append(s.outbox, *msg)
	return nil
}

func (r *outboxRepository) GetPendingMessages(ctx context.Context, _ domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []domain.OutboxMessage
	for _, msg := range s.outbox {
		if msg.Status != domain.OutboxStatusPending {
			continue
		}
		messages = append(messages, msg)
		if len(messages) == limit {
			break
		}
	}
	return messages, nil
}

func (r *outboxRepository) MarkMessagesAsSent(ctx context.Context, _ domain.Querier, ids []string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	marked := 0
	for i := range s.outbox {
		for _, id := range ids {
			if s.outbox[i].ID == id {
				s.outbox[i].Status = domain.OutboxStatusSent
				s.outbox[i].SentAt = &now
				marked++
			}
		}
	}
	if marked != len(ids) {
		return fmt.Errorf("not all outbox messages were marked as sent; expected %d, got %d", len(ids), marked)
	}
	return nil
}
