/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the ledger. By defining an interface,
 * we decouple the ledger's business logic from the specific database
 * implementation (PostgreSQL in production, in-memory in tests).
 *
 * The unit of write is `CommitOperation`: every ledger operation commits its
 * account updates, transaction rows, platform-revenue entries, savings/loan
 * changes, and idempotency key as one atomic unit, or not at all.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
)

var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrSavingsNotFound         = errors.New("savings account not found")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrVersionConflict         = errors.New("account version conflict")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// AccountUpdate is one account's new state guarded by its expected version.
// The update fails with ErrVersionConflict if the stored version moved since
// the caller's read.
type AccountUpdate struct {
	AccountID         uuid.UUID
	NewWalletBalance  int64
	NewSavingsBalance int64
	NewRewardPoints   int64
	ExpectedVersion   int64
}

// OperationCommit is the atomic write unit of the ledger. Everything in it is
// applied in a single database transaction; a failure anywhere discards the
// whole operation before any mutation becomes visible.
type OperationCommit struct {
	AccountUpdates []AccountUpdate
	Transactions   []domain.Transaction
	RevenueEntries []domain.RevenueEntry
	SavingsInserts []domain.SavingsAccount
	SavingsUpdates []domain.SavingsAccount
	LoanInserts    []domain.Loan
	LoanUpdates    []domain.Loan

	// Idempotency mapping: when IdempotencyKey is set, the commit registers
	// (IdempotencyAccountID, IdempotencyKey) -> PrimaryTransactionID and fails
	// with ErrDuplicateIdempotencyKey if the pair already exists.
	IdempotencyAccountID uuid.UUID
	IdempotencyKey       string
	PrimaryTransactionID uuid.UUID
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Accounts.
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)

	// Transactions. The page cursor is a composite (created_at, id) keyset:
	// multi-row commits share one created_at, so the timestamp alone cannot
	// address a page boundary inside such a group.
	ListTransactions(ctx context.Context, accountID uuid.UUID, cursor time.Time, cursorID uuid.UUID, limit int) ([]domain.Transaction, error)
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Transaction, error)

	// Savings.
	FindSavingsByID(ctx context.Context, savingsID uuid.UUID) (*domain.SavingsAccount, error)
	ListActiveSavingsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SavingsAccount, error)
	ListMaturedActiveSavings(ctx context.Context, asOf time.Time) ([]domain.SavingsAccount, error)

	// Loans.
	FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	FindOpenLoanByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Loan, error)
	ListLoansPastDue(ctx context.Context, asOf time.Time) ([]domain.Loan, error)

	// Platform revenue.
	PlatformRevenueBalance(ctx context.Context) (int64, error)

	// CommitOperation applies an operation atomically.
	CommitOperation(ctx context.Context, commit OperationCommit) error
}
