package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
)

// MemoryRepository is a mutex-guarded in-memory implementation of Repository.
// It backs the service-level tests and mirrors the Postgres implementation's
// semantics exactly: version-guarded account updates, all-or-nothing commits,
// and unique idempotency keys per account.
type MemoryRepository struct {
	mu             sync.RWMutex
	accounts       map[uuid.UUID]*domain.Account
	transactions   map[uuid.UUID]*domain.Transaction
	txOrder        []uuid.UUID
	savings        map[uuid.UUID]*domain.SavingsAccount
	loans          map[uuid.UUID]*domain.Loan
	idempotency    map[idempotencyRef]uuid.UUID
	revenueEntries []domain.RevenueEntry
	revenueBalance int64
}

type idempotencyRef struct {
	accountID uuid.UUID
	key       string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[uuid.UUID]*domain.Account),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		savings:      make(map[uuid.UUID]*domain.SavingsAccount),
		loans:        make(map[uuid.UUID]*domain.Loan),
		idempotency:  make(map[idempotencyRef]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	account.Version = 1
	account.CreatedAt = now
	account.UpdatedAt = now
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *MemoryRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, cursor time.Time, cursorID uuid.UUID, limit int) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	var out []domain.Transaction
	for _, id := range r.txOrder {
		tx := r.transactions[id]
		if tx.AccountID != accountID {
			continue
		}
		// Keyset predicate on (created_at, id): rows sharing the cursor's
		// timestamp are included only past the cursor's id.
		if !cursor.IsZero() {
			if tx.CreatedAt.After(cursor) {
				continue
			}
			if tx.CreatedAt.Equal(cursor) && bytes.Compare(tx.ID[:], cursorID[:]) >= 0 {
				continue
			}
		}
		out = append(out, *tx)
	}
	// Reverse-chronological, newest first; id breaks timestamp ties the same
	// way Postgres orders uuid columns.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (r *MemoryRepository) FindTransactionByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txID, ok := r.idempotency[idempotencyRef{accountID: accountID, key: key}]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx, ok := r.transactions[txID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (r *MemoryRepository) FindSavingsByID(ctx context.Context, savingsID uuid.UUID) (*domain.SavingsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.savings[savingsID]
	if !ok {
		return nil, ErrSavingsNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *MemoryRepository) ListActiveSavingsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SavingsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SavingsAccount
	for _, s := range r.savings {
		if s.AccountID == accountID && (s.Status == domain.SavingsActive || s.Status == domain.SavingsMatured) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *MemoryRepository) ListMaturedActiveSavings(ctx context.Context, asOf time.Time) ([]domain.SavingsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SavingsAccount
	for _, s := range r.savings {
		if s.Status == domain.SavingsActive && !s.MaturityDate.After(asOf) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaturityDate.Before(out[j].MaturityDate) })
	return out, nil
}

func (r *MemoryRepository) FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loan, ok := r.loans[loanID]
	if !ok {
		return nil, ErrLoanNotFound
	}
	copied := *loan
	return &copied, nil
}

func (r *MemoryRepository) FindOpenLoanByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, loan := range r.loans {
		if loan.AccountID == accountID && (loan.Status == domain.LoanActive || loan.Status == domain.LoanOverdue) {
			copied := *loan
			return &copied, nil
		}
	}
	return nil, ErrLoanNotFound
}

func (r *MemoryRepository) ListLoansPastDue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Loan
	for _, loan := range r.loans {
		if (loan.Status == domain.LoanActive || loan.Status == domain.LoanOverdue) &&
			loan.DueDate.Before(asOf) && loan.RemainingAmount > 0 {
			out = append(out, *loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (r *MemoryRepository) PlatformRevenueBalance(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revenueBalance, nil
}

// RevenueEntries returns a copy of all platform revenue entries, oldest first.
// Test helper for reconciliation checks; not part of the Repository interface.
func (r *MemoryRepository) RevenueEntries() []domain.RevenueEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RevenueEntry, len(r.revenueEntries))
	copy(out, r.revenueEntries)
	return out
}

// CommitOperation applies the whole commit under one lock, validating every
// precondition before mutating anything so a failure leaves no partial state.
func (r *MemoryRepository) CommitOperation(ctx context.Context, commit OperationCommit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if commit.IdempotencyKey != "" {
		ref := idempotencyRef{accountID: commit.IdempotencyAccountID, key: commit.IdempotencyKey}
		if _, exists := r.idempotency[ref]; exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	for _, update := range commit.AccountUpdates {
		account, ok := r.accounts[update.AccountID]
		if !ok {
			return ErrAccountNotFound
		}
		if account.Version != update.ExpectedVersion {
			return ErrVersionConflict
		}
	}

	now := time.Now().UTC()
	if commit.IdempotencyKey != "" {
		ref := idempotencyRef{accountID: commit.IdempotencyAccountID, key: commit.IdempotencyKey}
		r.idempotency[ref] = commit.PrimaryTransactionID
	}
	for _, update := range commit.AccountUpdates {
		account := r.accounts[update.AccountID]
		account.WalletBalance = update.NewWalletBalance
		account.SavingsBalance = update.NewSavingsBalance
		account.RewardPoints = update.NewRewardPoints
		account.Version++
		account.UpdatedAt = now
	}
	for _, tx := range commit.Transactions {
		copied := tx
		r.transactions[tx.ID] = &copied
		r.txOrder = append(r.txOrder, tx.ID)
	}
	for _, entry := range commit.RevenueEntries {
		r.revenueEntries = append(r.revenueEntries, entry)
		r.revenueBalance += entry.Amount
	}
	for _, s := range commit.SavingsInserts {
		copied := s
		copied.CreatedAt = now
		copied.UpdatedAt = now
		r.savings[s.ID] = &copied
	}
	for _, s := range commit.SavingsUpdates {
		if existing, ok := r.savings[s.ID]; ok {
			existing.Status = s.Status
			existing.UpdatedAt = now
		}
	}
	for _, loan := range commit.LoanInserts {
		copied := loan
		copied.CreatedAt = now
		copied.UpdatedAt = now
		r.loans[loan.ID] = &copied
	}
	for _, loan := range commit.LoanUpdates {
		if existing, ok := r.loans[loan.ID]; ok {
			existing.RepaidAmount = loan.RepaidAmount
			existing.RemainingAmount = loan.RemainingAmount
			existing.Status = loan.Status
			existing.UpdatedAt = now
		}
	}
	return nil
}
