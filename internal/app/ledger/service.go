package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/clients_repo"
	"ledger/internal/repository/inbox_repo"
	"ledger/internal/repository/outbox_repo"
	"ledger/internal/repository/transactions_repo"
	"ledger/internal/util"
)

type CreateAccountParams struct {
	OwnerID        string
	AccountNumber  string
	Type           domain.AccountType
	Currency       string
	InitialBalance decimal.Decimal
}

type DepositParams struct {
	AccountID   string
	Amount      decimal.Decimal
	Description string
}

type WithdrawParams struct {
	AccountID   string
	Amount      decimal.Decimal
	Description string
}

type TransferParams struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Description   string
}

// AdjustmentParams describes a manual ledger movement. Either side may be
// empty, but not both; an empty Type defaults to "manual".
type AdjustmentParams struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Description   string
	Type          domain.TransactionType
}

type ListTransactionsParams struct {
	OwnerID   string
	AccountID string
	Type      domain.TransactionType
}

type TransferResult struct {
	From        *domain.Account
	To          *domain.Account
	Transaction *domain.Transaction
}

type AdjustmentResult struct {
	From        *domain.Account
	To          *domain.Account
	Transaction *domain.Transaction
}

// LedgerService is the engine behind every balance mutation. Each operation
// validates first, acquires the account lock(s) in canonical order, and
// commits balance deltas, the log append, and the outbox event as one unit
// of work; on any failure nothing is persisted.
type LedgerService interface {
	CreateAccount(ctx context.Context, p CreateAccountParams) (*domain.Account, error)
	Deposit(ctx context.Context, p DepositParams) (*domain.Account, error)
	Withdraw(ctx context.Context, p WithdrawParams) (*domain.Account, error)
	Transfer(ctx context.Context, p TransferParams) (*TransferResult, error)
	ManualAdjustment(ctx context.Context, p AdjustmentParams) (*AdjustmentResult, error)

	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID string, typeFilter domain.AccountType) ([]domain.Account, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, p ListTransactionsParams) ([]domain.Transaction, error)

	// Administrative escape hatches. None of them reverse balance effects;
	// callers needing reversal must issue a compensating operation.
	OverrideBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
	DeleteAccount(ctx context.Context, id string) (bool, error)
	DeleteTransaction(ctx context.Context, id string) (bool, error)

	// ProcessTransferCommand applies a transfer exactly once for the given
	// message id: the inbox insert, the transfer, and the inbox status
	// update share one transaction.
	ProcessTransferCommand(ctx context.Context, messageID string, p TransferParams, rawPayload []byte) error
}

type ledgerService struct {
	txm          domain.TxManager
	q            domain.Querier
	clients      clients_repo.ClientRepository
	accounts     accounts_repo.AccountRepository
	transactions transactions_repo.TransactionRepository
	inbox        inbox_repo.InboxRepository
	outbox       outbox_repo.OutboxRepository
	locks        *lockTable
	logger       *zap.Logger
}

// NewLedgerService wires the engine. q is the non-transactional query
// handle used by read paths; it may be nil for backends whose repositories
// do not need one.
func NewLedgerService(
	txm domain.TxManager,
	q domain.Querier,
	clients clients_repo.ClientRepository,
	accounts accounts_repo.AccountRepository,
	transactions transactions_repo.TransactionRepository,
	inbox inbox_repo.InboxRepository,
	outbox outbox_repo.OutboxRepository,
	lockWaitTimeout time.Duration,
	logger *zap.Logger,
) LedgerService {
	return &ledgerService{
		txm:          txm,
		q:            q,
		clients:      clients,
		accounts:     accounts,
		transactions: transactions,
		inbox:        inbox,
		outbox:       outbox,
		locks:        newLockTable(lockWaitTimeout),
		logger:       logger,
	}
}

func (s *ledgerService) CreateAccount(ctx context.Context, p CreateAccountParams) (*domain.Account, error) {
	if !p.Type.Valid() {
		return nil, domain.ErrInvalidAccountType
	}
	currency := strings.ToUpper(p.Currency)
	if money.GetCurrency(currency) == nil {
		return nil, domain.ErrUnknownCurrency
	}
	if p.InitialBalance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if p.OwnerID == "" {
		return nil, domain.ErrOwnerNotFound
	}

	now := time.Now()
	account := &domain.Account{
		ID:            util.GenerateUUID(),
		OwnerID:       p.OwnerID,
		AccountNumber: p.AccountNumber,
		Type:          p.Type,
		Balance:       p.InitialBalance,
		Currency:      currency,
		OpenedDate:    now,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Owner check and insert share one transaction, so a duplicate number
	// cannot slip in between check and insert.
	err := s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		exists, err := s.clients.ExistsTx(ctx, q, p.OwnerID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOwnerNotFound
		}
		return s.accounts.CreateTx(ctx, q, account)
	})
	if err != nil {
		err = s.wrapStorage(err)
		s.logFailure("create account", err,
			zap.String("owner_id", p.OwnerID),
			zap.String("account_number", p.AccountNumber))
		return nil, err
	}

	s.logger.Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("owner_id", account.OwnerID),
		zap.String("account_number", account.AccountNumber),
		zap.String("type", string(account.Type)))
	return account, nil
}

func (s *ledgerService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetTx(ctx, s.q, id)
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return account, nil
}

func (s *ledgerService) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, err := s.accounts.GetByNumberTx(ctx, s.q, accountNumber)
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return account, nil
}

func (s *ledgerService) ListAccounts(ctx context.Context, ownerID string, typeFilter domain.AccountType) ([]domain.Account, error) {
	accounts, err := s.accounts.ListByOwnerTx(ctx, s.q, ownerID, typeFilter)
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return accounts, nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	txn, err := s.transactions.GetTx(ctx, s.q, id)
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return txn, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, p ListTransactionsParams) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	var err error
	if p.OwnerID != "" {
		txns, err = s.transactions.ListForOwnerTx(ctx, s.q, p.OwnerID, p.AccountID, p.Type)
	} else if p.AccountID != "" {
		txns, err = s.transactions.ListForAccountTx(ctx, s.q, p.AccountID, p.Type)
	} else {
		return nil, domain.ErrNoAccountSpecified
	}
	if err != nil {
		return nil, s.wrapStorage(err)
	}
	return txns, nil
}

func (s *ledgerService) OverrideBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	unlock, err := s.locks.acquire(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return s.accounts.SetBalanceTx(ctx, q, accountID, balance)
	})
	if err != nil {
		return s.wrapStorage(err)
	}

	// The balance no longer equals the sum of logged transaction effects;
	// that is the point of the override, but worth shouting about.
	s.logger.Warn("Administrative balance override applied",
		zap.String("account_id", accountID),
		zap.String("balance", balance.String()))
	return nil
}

func (s *ledgerService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	var deleted bool
	err = s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		var err error
		deleted, err = s.accounts.DeleteTx(ctx, q, id)
		return err
	})
	if err != nil {
		return false, s.wrapStorage(err)
	}
	if deleted {
		s.logger.Warn("Account deleted", zap.String("account_id", id))
	}
	return deleted, nil
}

func (s *ledgerService) DeleteTransaction(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.txm.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		var err error
		deleted, err = s.transactions.DeleteTx(ctx, q, id)
		return err
	})
	if err != nil {
		return false, s.wrapStorage(err)
	}
	if deleted {
		s.logger.Warn("Transaction deleted without balance reversal", zap.String("transaction_id", id))
	}
	return deleted, nil
}

func (s *ledgerService) newTransaction(fromID, toID string, amount decimal.Decimal, txType domain.TransactionType, description string) *domain.Transaction {
	now := time.Now()
	txn := &domain.Transaction{
		ID:              util.GenerateUUID(),
		Amount:          amount,
		Type:            txType,
		Description:     description,
		Status:          domain.TransactionStatusCompleted,
		TransactionDate: now,
		CreatedAt:       now,
	}
	if fromID != "" {
		txn.FromAccountID = &fromID
	}
	if toID != "" {
		txn.ToAccountID = &toID
	}
	return txn
}

func (s *ledgerService) stageCommittedEvent(ctx context.Context, q domain.Querier, txn *domain.Transaction, currency string) error {
	event := domain.TransactionCommittedEvent{
		TransactionID: txn.ID,
		Type:          string(txn.Type),
		FromAccountID: txn.FromAccountID,
		ToAccountID:   txn.ToAccountID,
		Amount:        txn.Amount,
		Currency:      currency,
		Description:   txn.Description,
		Timestamp:     txn.TransactionDate,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal committed-transaction event: %w", err)
	}

	msg := &domain.OutboxMessage{
		ID:            util.GenerateUUID(),
		AggregateID:   txn.ID,
		AggregateType: "transaction",
		MessageType:   "TransactionCommitted",
		Key:           txn.ID,
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		CreatedAt:     txn.CreatedAt,
	}
	return s.outbox.CreateMessageTx(ctx, q, msg)
}

// wrapStorage leaves caller-correctable errors alone and folds everything
// else into ErrPersistenceFailure: the unit of work was rolled back, so the
// caller may safely retry.
func (s *ledgerService) wrapStorage(err error) error {
	if err == nil || domain.IsCallerError(err) || errors.Is(err, domain.ErrMessageAlreadyProcessed) {
		return err
	}
	if errors.Is(err, domain.ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
}

func (s *ledgerService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if domain.IsCallerError(err) {
		s.logger.Warn("Operation rejected: "+op, fields...)
		return
	}
	s.logger.Error("Operation failed: "+op, fields...)
}
