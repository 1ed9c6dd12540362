package domain

import "errors"

var (
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountInactive        = errors.New("account is inactive")
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	ErrOwnerNotFound          = errors.New("owner not found")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSameAccount            = errors.New("source and destination accounts must differ")
	ErrCurrencyMismatch       = errors.New("accounts have different currencies")
	ErrUnknownCurrency        = errors.New("unknown currency code")
	ErrInvalidAccountType     = errors.New("invalid account type")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrNoAccountSpecified     = errors.New("at least one account must be specified")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrConcurrencyTimeout     = errors.New("timed out waiting for account lock")

	// ErrPersistenceFailure wraps unexpected storage errors. The triggering
	// operation has been fully rolled back and is safe to retry.
	ErrPersistenceFailure = errors.New("persistence failure")

	ErrMessageAlreadyProcessed = errors.New("message already processed")
)

var callerErrors = []error{
	ErrInvalidAmount,
	ErrAccountNotFound,
	ErrAccountInactive,
	ErrDuplicateAccountNumber,
	ErrOwnerNotFound,
	ErrInsufficientFunds,
	ErrSameAccount,
	ErrCurrencyMismatch,
	ErrUnknownCurrency,
	ErrInvalidAccountType,
	ErrInvalidTransactionType,
	ErrNoAccountSpecified,
	ErrTransactionNotFound,
	ErrConcurrencyTimeout,
}

// IsCallerError reports whether err is a validation failure the caller can
// correct, as opposed to an infrastructure fault.
func IsCallerError(err error) bool {
	for _, known := range callerErrors {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
