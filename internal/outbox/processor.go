// Package outbox relays committed-transaction events from the outbox table
// to Kafka. Rows are written by the ledger engine inside each operation's
// transaction; the relay only ever publishes what has already committed.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ledger/internal/domain"
	kafka_infra "ledger/internal/infrastructure/kafka"
	"ledger/internal/repository/outbox_repo"
)

const batchSize = 50

type Processor struct {
	q            domain.Querier
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafka_infra.Producer
	topic        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger
}

func NewProcessor(
	q domain.Querier,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafka_infra.Producer,
	topic string,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		q:            q,
		outboxRepo:   outboxRepo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.String("topic", p.topic), zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopping.")
			return
		case <-ticker.C:
			p.processPendingMessages(ctx)
		}
	}
}

func (p *Processor) processPendingMessages(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, p.q, batchSize)
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		return
	}

	var sent []string
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, msg.Key, p.topic, msg.Payload); err != nil {
			// Leave the row pending; the next poll retries it.
			p.logger.Error("Failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("topic", p.topic),
				zap.Error(err))
			continue
		}
		sent = append(sent, msg.ID)
	}
	if len(sent) == 0 {
		return
	}

	if err := p.outboxRepo.MarkMessagesAsSent(ctx, p.q, sent); err != nil {
		// Already-published rows stay pending and will be published again;
		// consumers must tolerate duplicate transaction events.
		p.logger.Error("Failed to mark outbox messages as sent", zap.Error(err))
		return
	}
	p.logger.Info("Outbox messages published", zap.Int("count", len(sent)))
}
