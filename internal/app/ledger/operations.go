package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
)

func (s *ledgerService) Deposit(ctx context.Context, p DepositParams) (*domain.Account, error) {
	if p.Amount.Cmp(decimal.Zero) <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unlock, err := s.locks.acquire(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *domain.Account
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		account, err := s.accounts.GetForUpdateTx(ctx, q, p.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return domain.ErrAccountInactive
		}

		updated, err = s.accounts.ApplyDeltaTx(ctx, q, account, p.Amount)
		if err != nil {
			return err
		}

		txn := s.newTransaction("", account.ID, p.Amount, domain.TransactionTypeDeposit, p.Description)
		if err := s.transactions.AppendTx(ctx, q, txn); err != nil {
			return err
		}
		return s.stageCommittedEvent(ctx, q, txn, account.Currency)
	})
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("deposit", err, zap.String("account_id", p.AccountID), zap.String("amount", p.Amount.String()))
		return nil, err
	}

	s.logger.Info("Deposit committed",
		zap.String("account_id", p.AccountID),
		zap.String("amount", p.Amount.String()),
		zap.String("balance", updated.Balance.String()))
	return updated, nil
}

func (s *ledgerService) Withdraw(ctx context.Context, p WithdrawParams) (*domain.Account, error) {
	if p.Amount.Cmp(decimal.Zero) <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unlock, err := s.locks.acquire(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var updated *domain.Account
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		account, err := s.accounts.GetForUpdateTx(ctx, q, p.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return domain.ErrAccountInactive
		}

		updated, err = s.accounts.ApplyDeltaTx(ctx, q, account, p.Amount.Neg())
		if err != nil {
			return err
		}

		txn := s.newTransaction(account.ID, "", p.Amount, domain.TransactionTypeWithdrawal, p.Description)
		if err := s.transactions.AppendTx(ctx, q, txn); err != nil {
			return err
		}
		return s.stageCommittedEvent(ctx, q, txn, account.Currency)
	})
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("withdrawal", err, zap.String("account_id", p.AccountID), zap.String("amount", p.Amount.String()))
		return nil, err
	}

	s.logger.Info("Withdrawal committed",
		zap.String("account_id", p.AccountID),
		zap.String("amount", p.Amount.String()),
		zap.String("balance", updated.Balance.String()))
	return updated, nil
}

func validateTransferParams(p TransferParams) error {
	if p.Amount.Cmp(decimal.Zero) <= 0 {
		return domain.ErrInvalidAmount
	}
	if p.FromAccountID == "" || p.ToAccountID == "" {
		return domain.ErrNoAccountSpecified
	}
	if p.FromAccountID == p.ToAccountID {
		return domain.ErrSameAccount
	}
	return nil
}

func (s *ledgerService) Transfer(ctx context.Context, p TransferParams) (*TransferResult, error) {
	if err := validateTransferParams(p); err != nil {
		return nil, err
	}

	unlock, err := s.locks.acquire(ctx, p.FromAccountID, p.ToAccountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *TransferResult
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		var err error
		result, err = s.transferTx(ctx, q, p)
		return err
	})
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("transfer", err,
			zap.String("from_account_id", p.FromAccountID),
			zap.String("to_account_id", p.ToAccountID),
			zap.String("amount", p.Amount.String()))
		return nil, err
	}

	s.logger.Info("Transfer committed",
		zap.String("transaction_id", result.Transaction.ID),
		zap.String("from_account_id", p.FromAccountID),
		zap.String("to_account_id", p.ToAccountID),
		zap.String("amount", p.Amount.String()))
	return result, nil
}

// transferTx runs the transfer inside an already-started unit of work with
// both account locks held. Both deltas, the log append, and the outbox row
// become visible together or not at all.
func (s *ledgerService) transferTx(ctx context.Context, q domain.Querier, p TransferParams) (*TransferResult, error) {
	// Row locks follow the same ascending-id order as the in-process lock
	// table: other engine instances on the same store share only the row
	// locks, and two instances locking the same pair in opposite orders
	// would deadlock in the database.
	loaded := make(map[string]*domain.Account, 2)
	for _, id := range canonicalOrder([]string{p.FromAccountID, p.ToAccountID}) {
		account, err := s.accounts.GetForUpdateTx(ctx, q, id)
		if err != nil {
			return nil, err
		}
		loaded[id] = account
	}
	from, to := loaded[p.FromAccountID], loaded[p.ToAccountID]
	if !from.IsActive || !to.IsActive {
		return nil, domain.ErrAccountInactive
	}
	if from.Currency != to.Currency {
		return nil, domain.ErrCurrencyMismatch
	}
	if from.Balance.Cmp(p.Amount) < 0 && !from.AllowsNegativeBalance() {
		return nil, domain.ErrInsufficientFunds
	}

	updatedFrom, err := s.accounts.ApplyDeltaTx(ctx, q, from, p.Amount.Neg())
	if err != nil {
		return nil, err
	}
	updatedTo, err := s.accounts.ApplyDeltaTx(ctx, q, to, p.Amount)
	if err != nil {
		return nil, err
	}

	txn := s.newTransaction(from.ID, to.ID, p.Amount, domain.TransactionTypeTransfer, p.Description)
	if err := s.transactions.AppendTx(ctx, q, txn); err != nil {
		return nil, err
	}
	if err := s.stageCommittedEvent(ctx, q, txn, from.Currency); err != nil {
		return nil, err
	}

	return &TransferResult{From: updatedFrom, To: updatedTo, Transaction: txn}, nil
}

func (s *ledgerService) ManualAdjustment(ctx context.Context, p AdjustmentParams) (*AdjustmentResult, error) {
	if p.Amount.Cmp(decimal.Zero) <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if p.FromAccountID == "" && p.ToAccountID == "" {
		return nil, domain.ErrNoAccountSpecified
	}
	if p.FromAccountID != "" && p.FromAccountID == p.ToAccountID {
		return nil, domain.ErrSameAccount
	}
	txType := p.Type
	if txType == "" {
		txType = domain.TransactionTypeManual
	}
	if !txType.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}

	ids := make([]string, 0, 2)
	if p.FromAccountID != "" {
		ids = append(ids, p.FromAccountID)
	}
	if p.ToAccountID != "" {
		ids = append(ids, p.ToAccountID)
	}
	unlock, err := s.locks.acquire(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *AdjustmentResult
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		// Row locks in ascending id order, same as the lock table above.
		loaded := make(map[string]*domain.Account, len(ids))
		for _, id := range canonicalOrder(ids) {
			account, err := s.accounts.GetForUpdateTx(ctx, q, id)
			if err != nil {
				return err
			}
			if !account.IsActive {
				return domain.ErrAccountInactive
			}
			loaded[id] = account
		}
		from, to := loaded[p.FromAccountID], loaded[p.ToAccountID]
		if from != nil && to != nil && from.Currency != to.Currency {
			return domain.ErrCurrencyMismatch
		}

		currency := ""
		var updatedFrom, updatedTo *domain.Account
		var err error
		if from != nil {
			if updatedFrom, err = s.accounts.ApplyDeltaTx(ctx, q, from, p.Amount.Neg()); err != nil {
				return err
			}
			currency = from.Currency
		}
		if to != nil {
			if updatedTo, err = s.accounts.ApplyDeltaTx(ctx, q, to, p.Amount); err != nil {
				return err
			}
			currency = to.Currency
		}

		txn := s.newTransaction(p.FromAccountID, p.ToAccountID, p.Amount, txType, p.Description)
		if err := s.transactions.AppendTx(ctx, q, txn); err != nil {
			return err
		}
		if err := s.stageCommittedEvent(ctx, q, txn, currency); err != nil {
			return err
		}

		result = &AdjustmentResult{From: updatedFrom, To: updatedTo, Transaction: txn}
		return nil
	})
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("manual adjustment", err,
			zap.String("from_account_id", p.FromAccountID),
			zap.String("to_account_id", p.ToAccountID),
			zap.String("amount", p.Amount.String()),
			zap.String("type", string(txType)))
		return nil, err
	}

	s.logger.Info("Manual adjustment committed",
		zap.String("transaction_id", result.Transaction.ID),
		zap.String("from_account_id", p.FromAccountID),
		zap.String("to_account_id", p.ToAccountID),
		zap.String("amount", p.Amount.String()),
		zap.String("type", string(txType)))
	return result, nil
}

func (s *ledgerService) ProcessTransferCommand(ctx context.Context, messageID string, p TransferParams, rawPayload []byte) error {
	if err := validateTransferParams(p); err != nil {
		return err
	}

	unlock, err := s.locks.acquire(ctx, p.FromAccountID, p.ToAccountID)
	if err != nil {
		return err
	}
	defer unlock()

	var result *TransferResult
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		inboxMsg := &domain.InboxMessage{
			ID:         messageID,
			Payload:    rawPayload,
			Status:     domain.InboxStatusNew,
			ReceivedAt: time.Now(),
		}
		if err := s.inbox.CreateMessageTx(ctx, q, inboxMsg); err != nil {
			return err
		}

		var err error
		if result, err = s.transferTx(ctx, q, p); err != nil {
			return err
		}
		return s.inbox.UpdateStatusTx(ctx, q, messageID, domain.InboxStatusProcessed)
	})
	if errors.Is(err, domain.ErrMessageAlreadyProcessed) {
		s.logger.Info("Transfer command already processed, skipping",
			zap.String("message_id", messageID))
		return nil
	}
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("transfer command", err,
			zap.String("message_id", messageID),
			zap.String("from_account_id", p.FromAccountID),
			zap.String("to_account_id", p.ToAccountID))
		return err
	}

	s.logger.Info("Transfer command processed",
		zap.String("message_id", messageID),
		zap.String("transaction_id", result.Transaction.ID))
	return nil
}
