package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
	AccountTypeCredit   AccountType = "credit"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeChecking, AccountTypeSavings, AccountTypeCredit:
		return true
	}
	return false
}

// Account is a client-owned money container. Balance is mutated only
// through ledger operations; it always equals the sum of committed
// transaction effects unless an administrative override was applied.
type Account struct {
	ID            string
	OwnerID       string
	AccountNumber string
	Type          AccountType
	Balance       decimal.Decimal
	Currency      string
	OpenedDate    time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AllowsNegativeBalance reports whether the balance may drop below zero.
// Only credit accounts may overdraft.
func (a *Account) AllowsNegativeBalance() bool {
	return a.Type == AccountTypeCredit
}
