package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo"
	"ledger/internal/repository/memory"
)

const testOwner = "3f1c8f0e-5b3a-4a88-9a57-0f6a1f6cfd01"

type testEnv struct {
	store *memory.Store
	svc   LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLockWait(t, 0)
}

func newTestEnvWithLockWait(t *testing.T, lockWait time.Duration) *testEnv {
	t.Helper()
	store := memory.NewStore()
	store.AddClient(testOwner)
	svc := NewLedgerService(
		memory.NewTxManager(store),
		nil,
		memory.NewClientRepository(store),
		memory.NewAccountRepository(store),
		memory.NewTransactionRepository(store),
		memory.NewInboxRepository(store),
		memory.NewOutboxRepository(store),
		lockWait,
		zap.NewNop(),
	)
	return &testEnv{store: store, svc: svc}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// newAccount creates an active checking account and funds it with a
// deposit when balance is non-zero, so the balance invariant holds.
func (e *testEnv) newAccount(t *testing.T, number, balance string) *domain.Account {
	t.Helper()
	return e.newAccountTyped(t, number, balance, domain.AccountTypeChecking, "USD")
}

func (e *testEnv) newAccountTyped(t *testing.T, number, balance string, accType domain.AccountType, currency string) *domain.Account {
	t.Helper()
	ctx := context.Background()
	account, err := e.svc.CreateAccount(ctx, CreateAccountParams{
		OwnerID:       testOwner,
		AccountNumber: number,
		Type:          accType,
		Currency:      currency,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", number, err)
	}
	amount := dec(t, balance)
	if !amount.IsZero() {
		if account, err = e.svc.Deposit(ctx, DepositParams{AccountID: account.ID, Amount: amount}); err != nil {
			t.Fatalf("funding deposit for %s: %v", number, err)
		}
	}
	return account
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	account, err := e.svc.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", accountID, err)
	}
	return account.Balance
}

func (e *testEnv) transactions(t *testing.T, accountID string) []domain.Transaction {
	t.Helper()
	txns, err := e.svc.ListTransactions(context.Background(), ListTransactionsParams{AccountID: accountID})
	if err != nil {
		t.Fatalf("ListTransactions(%s): %v", accountID, err)
	}
	return txns
}

// effectSum replays the committed log for one account.
func effectSum(accountID string, txns []domain.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, txn := range txns {
		if txn.ToAccountID != nil && *txn.ToAccountID == accountID {
			sum = sum.Add(txn.Amount)
		}
		if txn.FromAccountID != nil && *txn.FromAccountID == accountID {
			sum = sum.Sub(txn.Amount)
		}
	}
	return sum
}

func assertBalance(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

func TestDeposit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-001", "0")

	updated, err := e.svc.Deposit(ctx, DepositParams{AccountID: account.ID, Amount: dec(t, "20")})
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	assertBalance(t, updated.Balance, "20")

	txns := e.transactions(t, account.ID)
	if len(txns) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txns))
	}
	if txns[0].Type != domain.TransactionTypeDeposit {
		t.Errorf("transaction type = %s, want deposit", txns[0].Type)
	}
	if txns[0].FromAccountID != nil {
		t.Errorf("deposit has a source account, want none")
	}
	if txns[0].ToAccountID == nil || *txns[0].ToAccountID != account.ID {
		t.Errorf("deposit destination = %v, want %s", txns[0].ToAccountID, account.ID)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-001", "100")

	for _, amount := range []string{"0", "-5"} {
		if _, err := e.svc.Deposit(ctx, DepositParams{AccountID: account.ID, Amount: dec(t, amount)}); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Deposit(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	assertBalance(t, e.balance(t, account.ID), "100")
	if got := len(e.transactions(t, account.ID)); got != 1 {
		t.Errorf("got %d transactions, want only the funding deposit", got)
	}
}

func TestDepositAccountNotFound(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.svc.Deposit(context.Background(), DepositParams{AccountID: "missing", Amount: dec(t, "10")}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestDepositInactiveAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-001", "50")
	e.store.SetAccountActive(account.ID, false)

	if _, err := e.svc.Deposit(ctx, DepositParams{AccountID: account.ID, Amount: dec(t, "10")}); !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("error = %v, want ErrAccountInactive", err)
	}
	assertBalance(t, e.balance(t, account.ID), "50")
}

func TestWithdraw(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-001", "100")

	updated, err := e.svc.Withdraw(ctx, WithdrawParams{AccountID: account.ID, Amount: dec(t, "40")})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	assertBalance(t, updated.Balance, "60")

	txns := e.transactions(t, account.ID)
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	latest := txns[0]
	if latest.Type != domain.TransactionTypeWithdrawal {
		t.Errorf("latest transaction type = %s, want withdrawal", latest.Type)
	}
	if latest.ToAccountID != nil {
		t.Errorf("withdrawal has a destination account, want none")
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-001", "100")

	if _, err := e.svc.Withdraw(ctx, WithdrawParams{AccountID: account.ID, Amount: dec(t, "100.01")}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
	assertBalance(t, e.balance(t, account.ID), "100")
	if got := len(e.transactions(t, account.ID)); got != 1 {
		t.Errorf("got %d transactions, want only the funding deposit", got)
	}
}

func TestCreditAccountMayOverdraft(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccountTyped(t, "CRD-001", "10", domain.AccountTypeCredit, "USD")

	updated, err := e.svc.Withdraw(ctx, WithdrawParams{AccountID: account.ID, Amount: dec(t, "50")})
	if err != nil {
		t.Fatalf("Withdraw on credit account: %v", err)
	}
	assertBalance(t, updated.Balance, "-40")
}

func TestTransfer(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "50")

	result, err := e.svc.Transfer(ctx, TransferParams{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        dec(t, "30"),
		Description:   "rent share",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	assertBalance(t, result.From.Balance, "70")
	assertBalance(t, result.To.Balance, "80")

	// Conservation: 100 + 50 == 70 + 80.
	total := result.From.Balance.Add(result.To.Balance)
	if !total.Equal(dec(t, "150")) {
		t.Errorf("total balance = %s, want 150", total)
	}

	txn := result.Transaction
	if txn.Type != domain.TransactionTypeTransfer {
		t.Errorf("transaction type = %s, want transfer", txn.Type)
	}
	if !txn.Amount.Equal(dec(t, "30")) {
		t.Errorf("transaction amount = %s, want 30", txn.Amount)
	}
	if txn.FromAccountID == nil || *txn.FromAccountID != a.ID || txn.ToAccountID == nil || *txn.ToAccountID != b.ID {
		t.Errorf("transaction endpoints = %v -> %v, want %s -> %s", txn.FromAccountID, txn.ToAccountID, a.ID, b.ID)
	}

	transfers, err := e.svc.ListTransactions(ctx, ListTransactionsParams{AccountID: a.ID, Type: domain.TransactionTypeTransfer})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(transfers) != 1 {
		t.Errorf("got %d transfer rows, want 1", len(transfers))
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "50")

	if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "1000")}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}
	assertBalance(t, e.balance(t, a.ID), "100")
	assertBalance(t, e.balance(t, b.ID), "50")
	if got := len(e.transactions(t, a.ID)); got != 1 {
		t.Errorf("got %d transactions on source, want only the funding deposit", got)
	}
}

func TestTransferMissingDestination(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	x := e.newAccount(t, "ACC-X", "100")

	if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: x.ID, ToAccountID: "no-such-account", Amount: dec(t, "10")}); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
	assertBalance(t, e.balance(t, x.ID), "100")
}

func TestTransferSameAccount(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(t, "ACC-A", "100")

	if _, err := e.svc.Transfer(context.Background(), TransferParams{FromAccountID: a.ID, ToAccountID: a.ID, Amount: dec(t, "10")}); !errors.Is(err, domain.ErrSameAccount) {
		t.Fatalf("error = %v, want ErrSameAccount", err)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "50")

	for _, amount := range []string{"0", "-1"} {
		if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, amount)}); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Transfer(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	assertBalance(t, e.balance(t, a.ID), "100")
	assertBalance(t, e.balance(t, b.ID), "50")
}

func TestTransferCurrencyMismatch(t *testing.T) {
	e := newTestEnv(t)
	usd := e.newAccount(t, "ACC-USD", "100")
	eur := e.newAccountTyped(t, "ACC-EUR", "100", domain.AccountTypeChecking, "EUR")

	if _, err := e.svc.Transfer(context.Background(), TransferParams{FromAccountID: usd.ID, ToAccountID: eur.ID, Amount: dec(t, "10")}); !errors.Is(err, domain.ErrCurrencyMismatch) {
		t.Fatalf("error = %v, want ErrCurrencyMismatch", err)
	}
}

func TestTransferRollsBackOnAppendFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "50")

	e.store.FailOnce(memory.OpAppendTransaction, errors.New("disk full"))

	_, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "30")})
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("error = %v, want ErrPersistenceFailure", err)
	}
	assertBalance(t, e.balance(t, a.ID), "100")
	assertBalance(t, e.balance(t, b.ID), "50")
	if got := len(e.transactions(t, a.ID)); got != 1 {
		t.Errorf("got %d transactions on source, want only the funding deposit", got)
	}
}

func TestTransferRollsBackBetweenBalanceMutations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "50")

	// The debit goes through; the credit fails. Nothing may stick.
	e.store.FailOnCall(memory.OpApplyDelta, 2, errors.New("connection reset"))

	_, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "30")})
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("error = %v, want ErrPersistenceFailure", err)
	}
	assertBalance(t, e.balance(t, a.ID), "100")
	assertBalance(t, e.balance(t, b.ID), "50")
	if got := len(e.transactions(t, b.ID)); got != 1 {
		t.Errorf("got %d transactions on destination, want only the funding deposit", got)
	}
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "1000")
	b := e.newAccount(t, "ACC-B", "1000")

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "1")}); err != nil {
				t.Errorf("A->B transfer: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: b.ID, ToAccountID: a.ID, Amount: dec(t, "1")}); err != nil {
				t.Errorf("B->A transfer: %v", err)
			}
		}()
	}
	wg.Wait()

	// Equal traffic in both directions nets out to the starting balances.
	assertBalance(t, e.balance(t, a.ID), "1000")
	assertBalance(t, e.balance(t, b.ID), "1000")
}

func TestConcurrentBurstKeepsBalanceInvariant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	accounts := []*domain.Account{
		e.newAccount(t, "ACC-A", "500"),
		e.newAccount(t, "ACC-B", "500"),
		e.newAccount(t, "ACC-C", "500"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 120; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := accounts[i%3]
			to := accounts[(i+1)%3]
			amount := dec(t, fmt.Sprintf("%d.25", i%7+1))
			var err error
			switch i % 4 {
			case 0:
				_, err = e.svc.Deposit(ctx, DepositParams{AccountID: to.ID, Amount: amount})
			case 1:
				_, err = e.svc.Withdraw(ctx, WithdrawParams{AccountID: from.ID, Amount: amount})
			default:
				_, err = e.svc.Transfer(ctx, TransferParams{FromAccountID: from.ID, ToAccountID: to.ID, Amount: amount})
			}
			// Insufficient funds is a legitimate outcome of the race.
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("operation %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for _, account := range accounts {
		balance := e.balance(t, account.ID)
		sum := effectSum(account.ID, e.transactions(t, account.ID))
		if !balance.Equal(sum) {
			t.Errorf("account %s: balance %s != sum of committed effects %s", account.AccountNumber, balance, sum)
		}
	}
}

func TestCreateAccountDuplicateNumber(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.newAccount(t, "ACC-001", "0")

	_, err := e.svc.CreateAccount(ctx, CreateAccountParams{
		OwnerID:       testOwner,
		AccountNumber: "ACC-001",
		Type:          domain.AccountTypeSavings,
		Currency:      "USD",
	})
	if !errors.Is(err, domain.ErrDuplicateAccountNumber) {
		t.Fatalf("error = %v, want ErrDuplicateAccountNumber", err)
	}

	accounts, err := e.svc.ListAccounts(ctx, testOwner, "")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("got %d accounts, want 1", len(accounts))
	}
}

func TestCreateAccountValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  CreateAccountParams
		wantErr error
	}{
		{
			name:    "unknown owner",
			params:  CreateAccountParams{OwnerID: "nobody", AccountNumber: "ACC-100", Type: domain.AccountTypeChecking, Currency: "USD"},
			wantErr: domain.ErrOwnerNotFound,
		},
		{
			name:    "unknown currency",
			params:  CreateAccountParams{OwnerID: testOwner, AccountNumber: "ACC-101", Type: domain.AccountTypeChecking, Currency: "XXX-NOPE"},
			wantErr: domain.ErrUnknownCurrency,
		},
		{
			name:    "bad account type",
			params:  CreateAccountParams{OwnerID: testOwner, AccountNumber: "ACC-102", Type: "money-market", Currency: "USD"},
			wantErr: domain.ErrInvalidAccountType,
		},
		{
			name:    "negative initial balance",
			params:  CreateAccountParams{OwnerID: testOwner, AccountNumber: "ACC-103", Type: domain.AccountTypeChecking, Currency: "USD", InitialBalance: decimal.NewFromInt(-1)},
			wantErr: domain.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.svc.CreateAccount(ctx, tt.params); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManualAdjustmentTwoSided(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "0")

	result, err := e.svc.ManualAdjustment(ctx, AdjustmentParams{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        dec(t, "25"),
		Description:   "correction",
	})
	if err != nil {
		t.Fatalf("ManualAdjustment: %v", err)
	}
	assertBalance(t, result.From.Balance, "75")
	assertBalance(t, result.To.Balance, "25")
	if result.Transaction.Type != domain.TransactionTypeManual {
		t.Errorf("transaction type = %s, want manual", result.Transaction.Type)
	}
}

func TestManualAdjustmentOneSided(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "0")

	result, err := e.svc.ManualAdjustment(ctx, AdjustmentParams{
		ToAccountID: a.ID,
		Amount:      dec(t, "12.50"),
		Description: "opening correction",
	})
	if err != nil {
		t.Fatalf("ManualAdjustment: %v", err)
	}
	if result.From != nil {
		t.Errorf("one-sided adjustment returned a source account")
	}
	assertBalance(t, result.To.Balance, "12.50")
	if result.Transaction.FromAccountID != nil {
		t.Errorf("one-sided adjustment logged a source account")
	}
}

func TestManualAdjustmentRequiresAnAccount(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.svc.ManualAdjustment(context.Background(), AdjustmentParams{Amount: dec(t, "5")}); !errors.Is(err, domain.ErrNoAccountSpecified) {
		t.Fatalf("error = %v, want ErrNoAccountSpecified", err)
	}
}

func TestManualAdjustmentRejectsForeignType(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(t, "ACC-A", "10")
	if _, err := e.svc.ManualAdjustment(context.Background(), AdjustmentParams{ToAccountID: a.ID, Amount: dec(t, "5"), Type: "rebate"}); !errors.Is(err, domain.ErrInvalidTransactionType) {
		t.Fatalf("error = %v, want ErrInvalidTransactionType", err)
	}
}

func TestListTransactionsForOwnerFilters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "100")

	if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "10")}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := e.svc.Withdraw(ctx, WithdrawParams{AccountID: a.ID, Amount: dec(t, "5")}); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	all, err := e.svc.ListTransactions(ctx, ListTransactionsParams{OwnerID: testOwner})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	// Two funding deposits, one transfer, one withdrawal.
	if len(all) != 4 {
		t.Fatalf("got %d transactions for owner, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].TransactionDate.Before(all[i].TransactionDate) {
			t.Errorf("transactions not ordered newest first at index %d", i)
		}
	}

	withdrawals, err := e.svc.ListTransactions(ctx, ListTransactionsParams{OwnerID: testOwner, Type: domain.TransactionTypeWithdrawal})
	if err != nil {
		t.Fatalf("ListTransactions(withdrawal): %v", err)
	}
	if len(withdrawals) != 1 {
		t.Errorf("got %d withdrawals, want 1", len(withdrawals))
	}

	onB, err := e.svc.ListTransactions(ctx, ListTransactionsParams{OwnerID: testOwner, AccountID: b.ID})
	if err != nil {
		t.Fatalf("ListTransactions(account B): %v", err)
	}
	if len(onB) != 2 {
		t.Errorf("got %d transactions on account B, want 2", len(onB))
	}
}

func TestGetAccountByNumber(t *testing.T) {
	e := newTestEnv(t)
	created := e.newAccount(t, "ACC-42", "0")

	account, err := e.svc.GetAccountByNumber(context.Background(), "ACC-42")
	if err != nil {
		t.Fatalf("GetAccountByNumber: %v", err)
	}
	if account.ID != created.ID {
		t.Errorf("got account %s, want %s", account.ID, created.ID)
	}

	if _, err := e.svc.GetAccountByNumber(context.Background(), "ACC-404"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestOverrideBalanceBypassesLog(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-A", "100")

	if err := e.svc.OverrideBalance(ctx, account.ID, dec(t, "42.42")); err != nil {
		t.Fatalf("OverrideBalance: %v", err)
	}
	assertBalance(t, e.balance(t, account.ID), "42.42")
	if got := len(e.transactions(t, account.ID)); got != 1 {
		t.Errorf("override appended a transaction row, got %d rows", got)
	}
}

func TestDeleteTransactionKeepsBalances(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-A", "100")
	txns := e.transactions(t, account.ID)

	deleted, err := e.svc.DeleteTransaction(ctx, txns[0].ID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteTransaction reported nothing deleted")
	}
	// Deletion is an escape hatch, not a reversal.
	assertBalance(t, e.balance(t, account.ID), "100")

	if deleted, _ := e.svc.DeleteTransaction(ctx, "no-such-txn"); deleted {
		t.Error("deleting a missing transaction reported success")
	}
}

func TestProcessTransferCommandIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "0")

	params := TransferParams{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(t, "30")}
	payload := []byte(`{"command_id":"cmd-1"}`)

	if err := e.svc.ProcessTransferCommand(ctx, "cmd-1", params, payload); err != nil {
		t.Fatalf("first ProcessTransferCommand: %v", err)
	}
	if err := e.svc.ProcessTransferCommand(ctx, "cmd-1", params, payload); err != nil {
		t.Fatalf("redelivered ProcessTransferCommand: %v", err)
	}

	assertBalance(t, e.balance(t, a.ID), "70")
	assertBalance(t, e.balance(t, b.ID), "30")
	if got := len(e.transactions(t, b.ID)); got != 1 {
		t.Errorf("got %d transactions on destination, want 1", got)
	}
}

// rowLockRecorder wraps an account repository and records the order of
// locked reads. Row-lock order is what keeps independent engine instances
// sharing one database from deadlocking each other.
type rowLockRecorder struct {
	accounts_repo.AccountRepository

	mu    sync.Mutex
	order []string
}

func (r *rowLockRecorder) GetForUpdateTx(ctx context.Context, q domain.Querier, id string) (*domain.Account, error) {
	r.mu.Lock()
	r.order = append(r.order, id)
	r.mu.Unlock()
	return r.AccountRepository.GetForUpdateTx(ctx, q, id)
}

func (r *rowLockRecorder) reset() {
	r.mu.Lock()
	r.order = nil
	r.mu.Unlock()
}

func (r *rowLockRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func newRecordingEnv(t *testing.T) (*testEnv, *rowLockRecorder) {
	t.Helper()
	store := memory.NewStore()
	store.AddClient(testOwner)
	recorder := &rowLockRecorder{AccountRepository: memory.NewAccountRepository(store)}
	svc := NewLedgerService(
		memory.NewTxManager(store),
		nil,
		memory.NewClientRepository(store),
		recorder,
		memory.NewTransactionRepository(store),
		memory.NewInboxRepository(store),
		memory.NewOutboxRepository(store),
		0,
		zap.NewNop(),
	)
	return &testEnv{store: store, svc: svc}, recorder
}

func TestTransferLocksRowsInAscendingIDOrder(t *testing.T) {
	e, recorder := newRecordingEnv(t)
	ctx := context.Background()
	a := e.newAccount(t, "ACC-A", "100")
	b := e.newAccount(t, "ACC-B", "100")

	low, high := a.ID, b.ID
	if low > high {
		low, high = high, low
	}

	// Source id is deliberately the larger one; lock order must not follow
	// the transfer direction.
	recorder.reset()
	if _, err := e.svc.Transfer(ctx, TransferParams{FromAccountID: high, ToAccountID: low, Amount: dec(t, "10")}); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	order := recorder.calls()
	if len(order) != 2 || order[0] != low || order[1] != high {
		t.Fatalf("locked rows in order %v, want [%s %s]", order, low, high)
	}

	recorder.reset()
	if _, err := e.svc.ManualAdjustment(ctx, AdjustmentParams{FromAccountID: high, ToAccountID: low, Amount: dec(t, "5")}); err != nil {
		t.Fatalf("ManualAdjustment: %v", err)
	}
	order = recorder.calls()
	if len(order) != 2 || order[0] != low || order[1] != high {
		t.Fatalf("adjustment locked rows in order %v, want [%s %s]", order, low, high)
	}
}

func TestDepositLocksRowOnce(t *testing.T) {
	e, recorder := newRecordingEnv(t)
	ctx := context.Background()
	account := e.newAccount(t, "ACC-A", "0")

	recorder.reset()
	if _, err := e.svc.Deposit(ctx, DepositParams{AccountID: account.ID, Amount: dec(t, "20")}); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if calls := recorder.calls(); len(calls) != 1 {
		t.Fatalf("deposit issued %d locked reads, want 1", len(calls))
	}

	recorder.reset()
	if _, err := e.svc.Withdraw(ctx, WithdrawParams{AccountID: account.ID, Amount: dec(t, "5")}); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if calls := recorder.calls(); len(calls) != 1 {
		t.Fatalf("withdrawal issued %d locked reads, want 1", len(calls))
	}
}

func TestProcessTransferCommandRejectsInvalid(t *testing.T) {
	e := newTestEnv(t)
	a := e.newAccount(t, "ACC-A", "100")

	err := e.svc.ProcessTransferCommand(context.Background(), "cmd-2", TransferParams{
		FromAccountID: a.ID,
		ToAccountID:   a.ID,
		Amount:        dec(t, "10"),
	}, nil)
	if !errors.Is(err, domain.ErrSameAccount) {
		t.Fatalf("error = %v, want ErrSameAccount", err)
	}
}
