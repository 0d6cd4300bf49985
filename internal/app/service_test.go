package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/store"
)

func newTestService(repo store.Repository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, config.DefaultRateTables(), nil, logger)
}

func seedAccount(t *testing.T, repo *store.MemoryRepository, balance int64, tier domain.PremiumTier) *domain.Account {
	t.Helper()
	account := &domain.Account{ID: uuid.New(), WalletBalance: balance, PremiumTier: tier}
	require.NoError(t, repo.CreateAccount(context.Background(), account))
	return account
}

func identityOf(account *domain.Account) domain.AccountIdentity {
	return domain.AccountIdentity{ID: account.ID, PremiumTier: account.PremiumTier}
}

func strPtr(s string) *string { return &s }

func TestTransferAppliesFeeAndRewards(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 10_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:         domain.OpTransfer,
		Amount:       1_000,
		Counterparty: strPtr(recipient.ID.String()),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxSend, tx.Kind)
	assert.Equal(t, int64(1_000), tx.Amount)
	assert.Equal(t, int64(14), tx.Fee)
	assert.Equal(t, domain.DirectionDebit, tx.Direction)

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8_986), gotSender.WalletBalance) // 10000 - 1014
	assert.Equal(t, int64(10), gotSender.RewardPoints)     // 1000 / 100

	gotRecipient, err := repo.FindAccountByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), gotRecipient.WalletBalance)
	assert.Zero(t, gotRecipient.RewardPoints)

	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(14), revenue)

	recipientTxs, err := repo.ListTransactions(ctx, recipient.ID, time.Time{}, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, recipientTxs, 1)
	assert.Equal(t, domain.TxReceive, recipientTxs[0].Kind)
	assert.Equal(t, int64(1_000), recipientTxs[0].NetAmount)
}

func TestTransferInsufficientFundsHasNoSideEffects(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 1_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	// 1000 + 14 fee exceeds the balance.
	_, err := svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:         domain.OpTransfer,
		Amount:       1_000,
		Counterparty: strPtr(recipient.ID.String()),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), gotSender.WalletBalance)
	assert.Equal(t, int64(1), gotSender.Version)

	txs, err := repo.ListTransactions(ctx, sender.ID, time.Time{}, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)

	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Zero(t, revenue)
}

func TestTransferRejectsBadCounterparty(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 10_000, domain.TierBasic)

	_, err := svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:   domain.OpTransfer,
		Amount: 500,
	})
	assert.ErrorIs(t, err, ErrInvalidCounterparty)

	_, err = svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:         domain.OpTransfer,
		Amount:       500,
		Counterparty: strPtr(sender.ID.String()),
	})
	assert.ErrorIs(t, err, ErrInvalidCounterparty)

	_, err = svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:         domain.OpTransfer,
		Amount:       500,
		Counterparty: strPtr(uuid.NewString()),
	})
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestWithdrawalDebitsFullAmount(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := seedAccount(t, repo, 5_000, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(account), domain.OperationRequest{
		Kind:   domain.OpWithdrawal,
		Amount: 1_000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(35), tx.Fee)
	assert.Equal(t, int64(965), tx.NetAmount)
	assert.Equal(t, int64(-1_000), tx.SignedAmount())

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4_000), got.WalletBalance)

	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(35), revenue)
}

func TestDepositCreditsAndEarnsPoints(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := seedAccount(t, repo, 0, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(account), domain.OperationRequest{
		Kind:   domain.OpDeposit,
		Amount: 1_000,
	})
	require.NoError(t, err)
	assert.Zero(t, tx.Fee)

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), got.WalletBalance)
	assert.Equal(t, int64(2), got.RewardPoints) // 1000 / 500
}

func TestAirtimePurchaseIsFeeFree(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := seedAccount(t, repo, 1_000, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(account), domain.OperationRequest{
		Kind:         domain.OpAirtime,
		Amount:       400,
		Counterparty: strPtr("mtn:2348000000000"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxAirtime, tx.Kind)
	assert.Zero(t, tx.Fee)

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.WalletBalance)
	assert.Equal(t, int64(2), got.RewardPoints) // 400 / 200
}

func TestMerchantPaymentBooksFee(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := seedAccount(t, repo, 2_000, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(account), domain.OperationRequest{
		Kind:         domain.OpMerchantQR,
		Amount:       1_000,
		Counterparty: strPtr("merchant:74012"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(13), tx.Fee)

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(987), got.WalletBalance)

	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(13), revenue)
}

func TestScheduledTransferIsFreeForVIP(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 1_000, domain.TierVIP)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	tx, err := svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
		Kind:         domain.OpScheduled,
		Amount:       1_000,
		Counterparty: strPtr(recipient.ID.String()),
	})
	require.NoError(t, err)
	assert.Zero(t, tx.Fee)

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Zero(t, gotSender.WalletBalance)
}

func TestRewardRedeem(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := &domain.Account{ID: uuid.New(), WalletBalance: 0, RewardPoints: 50, PremiumTier: domain.TierBasic}
	require.NoError(t, repo.CreateAccount(ctx, account))
	identity := identityOf(account)

	_, err := svc.ApplyOperation(ctx, identity, domain.OperationRequest{Kind: domain.OpRewardRedeem, Amount: 7})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.ApplyOperation(ctx, identity, domain.OperationRequest{Kind: domain.OpRewardRedeem, Amount: 100})
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)

	tx, err := svc.ApplyOperation(ctx, identity, domain.OperationRequest{Kind: domain.OpRewardRedeem, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, domain.TxReward, tx.Kind)
	assert.Equal(t, int64(5), tx.NetAmount) // 50 points / 10 per unit

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.WalletBalance)
	assert.Zero(t, got.RewardPoints)

	// The payout is a platform expense.
	revenue, err := repo.PlatformRevenueBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), revenue)
	entries := repo.RevenueEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "reward_redemption", entries[0].Kind)
}

func TestIdempotencyKeyReplaysOriginalResult(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 10_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	req := domain.OperationRequest{
		Kind:           domain.OpTransfer,
		Amount:         1_000,
		Counterparty:   strPtr(recipient.ID.String()),
		IdempotencyKey: "transfer-once",
	}

	first, err := svc.ApplyOperation(ctx, identityOf(sender), req)
	require.NoError(t, err)

	second, err := svc.ApplyOperation(ctx, identityOf(sender), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8_986), gotSender.WalletBalance)

	txs, err := repo.ListTransactions(ctx, sender.ID, time.Time{}, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestConcurrentSubmissionsWithSameKeyApplyOnce(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 10_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	req := domain.OperationRequest{
		Kind:           domain.OpTransfer,
		Amount:         1_000,
		Counterparty:   strPtr(recipient.ID.String()),
		IdempotencyKey: "race-key",
	}

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			tx, err := svc.ApplyOperation(ctx, identityOf(sender), req)
			errs[slot] = err
			if err == nil {
				ids[slot] = tx.ID
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8_986), gotSender.WalletBalance)
}

func TestConcurrentTransfersConserveFunds(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	sender := seedAccount(t, repo, 100_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)

	// 100 sits in the free band, so the total debit equals the face amount.
	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, err := svc.ApplyOperation(ctx, identityOf(sender), domain.OperationRequest{
				Kind:           domain.OpTransfer,
				Amount:         100,
				Counterparty:   strPtr(recipient.ID.String()),
				IdempotencyKey: uuid.NewString(),
			})
			errs[slot] = err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	gotSender, err := repo.FindAccountByID(ctx, sender.ID)
	require.NoError(t, err)
	gotRecipient, err := repo.FindAccountByID(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(98_000), gotSender.WalletBalance)
	assert.Equal(t, int64(2_000), gotRecipient.WalletBalance)
	assert.Equal(t, int64(workers+1), gotSender.Version)
}

func TestSignedAmountReplayReconstructsBalance(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	account := seedAccount(t, repo, 10_000, domain.TierBasic)
	recipient := seedAccount(t, repo, 0, domain.TierBasic)
	identity := identityOf(account)

	ops := []domain.OperationRequest{
		{Kind: domain.OpDeposit, Amount: 2_000},
		{Kind: domain.OpTransfer, Amount: 500, Counterparty: strPtr(recipient.ID.String())},
		{Kind: domain.OpWithdrawal, Amount: 300},
		{Kind: domain.OpAirtime, Amount: 200},
	}
	for _, op := range ops {
		_, err := svc.ApplyOperation(ctx, identity, op)
		require.NoError(t, err)
	}

	got, err := repo.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)

	txs, err := repo.ListTransactions(ctx, account.ID, time.Time{}, uuid.Nil, 50)
	require.NoError(t, err)
	var delta int64
	for i := range txs {
		delta += txs[i].SignedAmount()
	}
	assert.Equal(t, got.WalletBalance-int64(10_000), delta)
}

// conflictRepo forces every commit to report a version conflict.
type conflictRepo struct {
	*store.MemoryRepository
}

func (r *conflictRepo) CommitOperation(ctx context.Context, commit store.OperationCommit) error {
	return store.ErrVersionConflict
}

func TestVersionConflictExhaustionReturnsErrBusy(t *testing.T) {
	inner := store.NewMemoryRepository()
	repo := &conflictRepo{MemoryRepository: inner}
	svc := newTestService(repo)
	svc.ConfigureRetries(3, time.Millisecond)
	ctx := context.Background()

	account := seedAccount(t, inner, 10_000, domain.TierBasic)

	_, err := svc.ApplyOperation(ctx, identityOf(account), domain.OperationRequest{
		Kind:   domain.OpDeposit,
		Amount: 1_000,
	})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestApplyOperationRejectsUnknownKind(t *testing.T) {
	repo := store.NewMemoryRepository()
	svc := newTestService(repo)

	account := seedAccount(t, repo, 1_000, domain.TierBasic)

	_, err := svc.ApplyOperation(context.Background(), identityOf(account), domain.OperationRequest{
		Kind:   domain.OperationKind("teleport"),
		Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOperationKind)

	_, err = svc.ApplyOperation(context.Background(), identityOf(account), domain.OperationRequest{
		Kind:   domain.OpDeposit,
		Amount: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
