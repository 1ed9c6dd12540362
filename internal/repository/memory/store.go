// Package memory provides in-memory implementations of the repository
// contracts. They back the test suite and local runs that have no Postgres;
// transactional semantics come from a whole-store snapshot taken by the
// TxManager before each unit of work.
package memory

import (
	"context"
	"sort"
	"sync"

	"ledger/internal/domain"
)

// Operation names accepted by FailOnce.
const (
	OpCreateAccount     = "accounts.create"
	OpApplyDelta        = "accounts.applyDelta"
	OpAppendTransaction = "transactions.append"
	OpCreateOutbox      = "outbox.create"
	OpCreateInbox       = "inbox.create"
)

type failure struct {
	after int // calls to let through before failing
	err   error
}

type Store struct {
	mu           sync.Mutex
	txMu         sync.Mutex // serializes units of work, see TxManager
	clients      map[string]struct{}
	accounts     map[string]domain.Account
	transactions []domain.Transaction
	inbox        map[string]domain.InboxMessage
	outbox       []domain.OutboxMessage
	failures     map[string]*failure
}

func NewStore() *Store {
	return &Store{
		clients:  make(map[string]struct{}),
		accounts: make(map[string]domain.Account),
		inbox:    make(map[string]domain.InboxMessage),
		failures: make(map[string]*failure),
	}
}

// AddClient registers an owner id so account creation can resolve it.
func (s *Store) AddClient(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = struct{}{}
}

// SetAccountActive flips the active flag directly, bypassing the engine.
func (s *Store) SetAccountActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		account.IsActive = active
		s.accounts[id] = account
	}
}

// FailOnce makes the next call of the named operation return err. Used to
// inject storage failures mid-unit-of-work.
func (s *Store) FailOnce(op string, err error) {
	s.FailOnCall(op, 1, err)
}

// FailOnCall makes the n-th subsequent call of the named operation return
// err, letting the preceding n-1 calls through.
func (s *Store) FailOnCall(op string, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &failure{after: n - 1, err: err}
}

func (s *Store) takeFailure(op string) error {
	f, ok := s.failures[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	delete(s.failures, op)
	return f.err
}

type snapshot struct {
	clients      map[string]struct{}
	accounts     map[string]domain.Account
	transactions []domain.Transaction
	inbox        map[string]domain.InboxMessage
	outbox       []domain.OutboxMessage
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		clients:      make(map[string]struct{}, len(s.clients)),
		accounts:     make(map[string]domain.Account, len(s.accounts)),
		transactions: make([]domain.Transaction, len(s.transactions)),
		inbox:        make(map[string]domain.InboxMessage, len(s.inbox)),
		outbox:       make([]domain.OutboxMessage, len(s.outbox)),
	}
	for id := range s.clients {
		snap.clients[id] = struct{}{}
	}
	for id, account := range s.accounts {
		snap.accounts[id] = account
	}
	copy(snap.transactions, s.transactions)
	for id, msg := range s.inbox {
		snap.inbox[id] = msg
	}
	copy(snap.outbox, s.outbox)
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = snap.clients
	s.accounts = snap.accounts
	s.transactions = snap.transactions
	s.inbox = snap.inbox
	s.outbox = snap.outbox
}

func sortTransactionsNewestFirst(txns []domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].TransactionDate.After(txns[j].TransactionDate)
	})
}

// TxManager implements domain.TxManager over the snapshot/restore pair.
// Units of work run one at a time: a restore rewinds the whole store, so a
// failing unit must not overlap a committing one even when their account
// locks are disjoint.
type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, q domain.Querier) error) error {
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	snap := m.store.snapshot()
	if err := fn(ctx, nil); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}
