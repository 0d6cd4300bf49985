package domain

import (
	"errors"
	"fmt"
)

// Business-rule errors surfaced by the engines and the account service.
// Storage-level sentinels (not-found, version conflict, duplicate idempotency
// key) live in internal/store next to the repository that produces them.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidOperationKind  = errors.New("invalid operation kind")
	ErrInvalidTier           = errors.New("invalid premium tier")
	ErrInsufficientPoints    = errors.New("insufficient reward points")
	ErrLoanAlreadyActive     = errors.New("an active loan already exists for this account")
	ErrSavingsNotActive      = errors.New("savings account is not active")
	ErrSavingsCollateralized = errors.New("savings deposit is pledged as loan collateral")
	ErrRateLimited           = errors.New("rate limited")
)

// IneligibleLoanError rejects a loan application with a machine-readable
// sub-reason so the caller can render a precise user message.
type IneligibleLoanError struct {
	Reason string
}

func (e *IneligibleLoanError) Error() string {
	return fmt.Sprintf("ineligible for loan: %s", e.Reason)
}

// ErrIneligibleLoan matches any IneligibleLoanError via errors.Is.
var ErrIneligibleLoan = errors.New("ineligible for loan")

func (e *IneligibleLoanError) Is(target error) bool {
	return target == ErrIneligibleLoan
}
