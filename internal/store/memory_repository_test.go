package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipay/wallet-service/internal/domain"
)

func seedTestAccount(t *testing.T, repo *MemoryRepository, balance int64) *domain.Account {
	t.Helper()
	account := &domain.Account{ID: uuid.New(), WalletBalance: balance, PremiumTier: domain.TierBasic}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

func TestCommitOperationRejectsStaleVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account := seedTestAccount(t, repo, 1_000)

	err := repo.CommitOperation(ctx, OperationCommit{
		AccountUpdates: []AccountUpdate{{
			AccountID:        account.ID,
			NewWalletBalance: 900,
			ExpectedVersion:  99,
		}},
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.WalletBalance)
	assert.Equal(t, int64(1), got.Version)
}

func TestCommitOperationIsAllOrNothing(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	first := seedTestAccount(t, repo, 1_000)
	second := seedTestAccount(t, repo, 0)

	txID := uuid.New()
	err := repo.CommitOperation(ctx, OperationCommit{
		AccountUpdates: []AccountUpdate{
			{AccountID: first.ID, NewWalletBalance: 500, ExpectedVersion: 1},
			{AccountID: second.ID, NewWalletBalance: 500, ExpectedVersion: 42}, // stale
		},
		Transactions: []domain.Transaction{{
			ID: txID, AccountID: first.ID, Kind: domain.TxSend,
			Amount: 500, NetAmount: 500, Direction: domain.DirectionDebit,
			Status: "completed", CreatedAt: time.Now().UTC(),
		}},
		RevenueEntries: []domain.RevenueEntry{{ID: uuid.New(), Kind: "fee", Amount: 10, TransactionID: txID}},
	})
	require.ErrorIs(t, err, ErrVersionConflict)

	// Nothing moved: not the first account, not the ledger, not revenue.
	got, err := repo.FindAccountByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.WalletBalance)

	_, err = repo.FindTransactionByID(ctx, txID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, revenue)
}

func TestCommitOperationEnforcesIdempotencyKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account := seedTestAccount(t, repo, 1_000)

	commit := func(txID uuid.UUID, version int64) error {
		return repo.CommitOperation(ctx, OperationCommit{
			AccountUpdates: []AccountUpdate{{
				AccountID:        account.ID,
				NewWalletBalance: 900,
				ExpectedVersion:  version,
			}},
			Transactions: []domain.Transaction{{
				ID: txID, AccountID: account.ID, Kind: domain.TxDeposit,
				Amount: 100, NetAmount: 100, Direction: domain.DirectionCredit,
				Status: "completed", CreatedAt: time.Now().UTC(),
			}},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       "only-once",
			PrimaryTransactionID: txID,
		})
	}

	firstTx := uuid.New()
	require.NoError(t, commit(firstTx, 1))

	err := commit(uuid.New(), 2)
	require.ErrorIs(t, err, ErrDuplicateIdempotencyKey)

	// The key resolves to the first transaction.
	tx, err := repo.FindTransactionByIdempotencyKey(ctx, account.ID, "only-once")
	require.NoError(t, err)
	assert.Equal(t, firstTx, tx.ID)

	// A different account may reuse the same key.
	other := seedTestAccount(t, repo, 0)
	otherTx := uuid.New()
	require.NoError(t, repo.CommitOperation(ctx, OperationCommit{
		AccountUpdates: []AccountUpdate{{AccountID: other.ID, NewWalletBalance: 100, ExpectedVersion: 1}},
		Transactions: []domain.Transaction{{
			ID: otherTx, AccountID: other.ID, Kind: domain.TxDeposit,
			Amount: 100, NetAmount: 100, Direction: domain.DirectionCredit,
			Status: "completed", CreatedAt: time.Now().UTC(),
		}},
		IdempotencyAccountID: other.ID,
		IdempotencyKey:       "only-once",
		PrimaryTransactionID: otherTx,
	}))
}

func TestListTransactionsPagination(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account := seedTestAccount(t, repo, 0)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		txID := uuid.New()
		require.NoError(t, repo.CommitOperation(ctx, OperationCommit{
			Transactions: []domain.Transaction{{
				ID: txID, AccountID: account.ID, Kind: domain.TxDeposit,
				Amount: int64(i + 1), NetAmount: int64(i + 1), Direction: domain.DirectionCredit,
				Status: "completed", CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}},
		}))
	}

	page, err := repo.ListTransactions(ctx, account.ID, time.Time{}, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount) // newest first
	assert.Equal(t, int64(4), page[1].Amount)

	next, err := repo.ListTransactions(ctx, account.ID, page[1].CreatedAt, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, int64(3), next[0].Amount)
	assert.Equal(t, int64(2), next[1].Amount)
}

func TestListTransactionsPaginatesThroughSameTimestamp(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	account := seedTestAccount(t, repo, 0)

	// One multi-leg commit: every row shares the same created_at.
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, domain.Transaction{
			ID: uuid.New(), AccountID: account.ID, Kind: domain.TxDeposit,
			Amount: int64(i + 1), NetAmount: int64(i + 1), Direction: domain.DirectionCredit,
			Status: "completed", CreatedAt: at,
		})
	}
	require.NoError(t, repo.CommitOperation(ctx, OperationCommit{Transactions: txs}))

	// Page through with a boundary inside the group; every row must surface
	// exactly once.
	seen := make(map[uuid.UUID]int)
	cursor, cursorID := time.Time{}, uuid.Nil
	for {
		page, err := repo.ListTransactions(ctx, account.ID, cursor, cursorID, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, tx := range page {
			seen[tx.ID]++
		}
		last := page[len(page)-1]
		cursor, cursorID = last.CreatedAt, last.ID
	}
	require.Len(t, seen, 3)
	for _, tx := range txs {
		assert.Equal(t, 1, seen[tx.ID])
	}
}
