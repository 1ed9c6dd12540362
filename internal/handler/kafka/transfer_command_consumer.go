package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
	kafka_infra "ledger/internal/infrastructure/kafka"
)

// TransferCommandMessageHandler turns transfer-command messages into ledger
// transfers. Malformed messages and caller-correctable rejections are
// logged and committed (retrying cannot fix them); infrastructure failures
// leave the offset uncommitted so the command is redelivered.
func TransferCommandMessageHandler(ledgerService ledger.LedgerService, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var command domain.TransferCommandEvent
		if err := json.Unmarshal(msg.Value, &command); err != nil {
			logger.Error("Failed to unmarshal transfer command, skipping message",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		if command.CommandID == "" {
			logger.Error("Transfer command without command_id, skipping message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		logger.Info("Processing transfer command",
			zap.String("command_id", command.CommandID),
			zap.String("from_account_id", command.FromAccountID),
			zap.String("to_account_id", command.ToAccountID),
			zap.String("amount", command.Amount.String()),
		)

		err := ledgerService.ProcessTransferCommand(ctx, command.CommandID, ledger.TransferParams{
			FromAccountID: command.FromAccountID,
			ToAccountID:   command.ToAccountID,
			Amount:        command.Amount,
			Description:   command.Description,
		}, msg.Value)
		if err != nil {
			if domain.IsCallerError(err) {
				logger.Warn("Transfer command rejected",
					zap.String("command_id", command.CommandID),
					zap.Error(err),
				)
				return nil
			}
			return fmt.Errorf("failed to process transfer command %s: %w", command.CommandID, err)
		}
		return nil
	}
}
