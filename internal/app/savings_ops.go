package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/savings"
	"github.com/centipay/wallet-service/internal/store"
)

// applySavingsOpen moves wallet funds into a new time-locked deposit. The
// interest rate is resolved from the account's tier at this moment and frozen
// onto the deposit.
func (s *Service) applySavingsOpen(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	if req.LockPeriodMonths < 1 {
		return nil, domain.ErrInvalidAmount
	}

	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if account.WalletBalance < req.Amount {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		rate, err := savings.RateForTier(s.tables, account.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		now := s.now()
		deposit := domain.SavingsAccount{
			ID:                 uuid.New(),
			AccountID:          account.ID,
			Principal:          req.Amount,
			LockPeriodMonths:   req.LockPeriodMonths,
			AnnualInterestRate: rate,
			StartDate:          now,
			MaturityDate:       now.AddDate(0, req.LockPeriodMonths, 0),
			Status:             domain.SavingsActive,
		}

		// The new deposit is worth exactly its principal at t=0.
		existing, err := s.savingsBalanceTotal(ctx, account.ID, now, nil)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		tx := domain.Transaction{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Kind:           domain.TxSavingsDeposit,
			Amount:         req.Amount,
			Fee:            0,
			NetAmount:      req.Amount,
			Direction:      domain.DirectionDebit,
			Status:         "completed",
			SavingsID:      &deposit.ID,
			IdempotencyKey: optionalKey(req.IdempotencyKey),
			CreatedAt:      now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance - req.Amount,
				NewSavingsBalance: existing + req.Amount,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			SavingsInserts:       []domain.SavingsAccount{deposit},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}

// applySavingsWithdraw liquidates one deposit in full. A matured deposit pays
// its compounded maturity value and the interest posts as a platform expense;
// an early withdrawal forfeits all interest and pays principal minus the
// penalty, which posts as platform income.
func (s *Service) applySavingsWithdraw(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	if req.SavingsID == nil {
		return nil, store.ErrSavingsNotFound
	}
	savingsID := *req.SavingsID

	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		deposit, err := s.repo.FindSavingsByID(ctx, savingsID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if deposit.AccountID != account.ID {
			return store.OperationCommit{}, nil, store.ErrSavingsNotFound
		}
		if deposit.Status == domain.SavingsWithdrawn {
			return store.OperationCommit{}, nil, domain.ErrSavingsNotActive
		}

		// An open loan holds a lien on the savings: the deposit can only leave
		// if the remaining collateral still covers the outstanding balance.
		if loan, err := s.repo.FindOpenLoanByAccount(ctx, account.ID); err == nil {
			remaining, err := s.collateralValue(ctx, account.ID, map[uuid.UUID]struct{}{deposit.ID: {}})
			if err != nil {
				return store.OperationCommit{}, nil, err
			}
			if remaining < loan.RemainingAmount {
				return store.OperationCommit{}, nil, domain.ErrSavingsCollateralized
			}
		} else if !errors.Is(err, store.ErrLoanNotFound) {
			return store.OperationCommit{}, nil, err
		}

		now := s.now()
		var tx domain.Transaction
		var revenue []domain.RevenueEntry
		if savings.Matured(deposit, now) {
			maturityValue := savings.MaturityValue(deposit.Principal, deposit.LockPeriodMonths, deposit.AnnualInterestRate)
			interest := maturityValue - deposit.Principal
			tx = domain.Transaction{
				ID:             uuid.New(),
				AccountID:      account.ID,
				Kind:           domain.TxSavingsWithdrawal,
				Amount:         deposit.Principal,
				Fee:            0,
				NetAmount:      maturityValue,
				Direction:      domain.DirectionCredit,
				Status:         "completed",
				SavingsID:      &deposit.ID,
				IdempotencyKey: optionalKey(req.IdempotencyKey),
				CreatedAt:      now,
			}
			if interest > 0 {
				revenue = append(revenue, revenueEntry("savings_interest", -interest, tx.ID, now))
			}
		} else {
			penalty := savings.EarlyWithdrawalPenalty(deposit.Principal, s.tables.EarlyWithdrawalPenaltyRate)
			tx = domain.Transaction{
				ID:             uuid.New(),
				AccountID:      account.ID,
				Kind:           domain.TxSavingsWithdrawal,
				Amount:         deposit.Principal,
				Fee:            penalty,
				NetAmount:      deposit.Principal - penalty,
				Direction:      domain.DirectionCredit,
				Status:         "completed",
				SavingsID:      &deposit.ID,
				IdempotencyKey: optionalKey(req.IdempotencyKey),
				CreatedAt:      now,
			}
			if penalty > 0 {
				revenue = append(revenue, revenueEntry("penalty", penalty, tx.ID, now))
			}
		}

		remaining, err := s.savingsBalanceTotal(ctx, account.ID, now, map[uuid.UUID]struct{}{deposit.ID: {}})
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		withdrawn := *deposit
		withdrawn.Status = domain.SavingsWithdrawn
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance + tx.NetAmount,
				NewSavingsBalance: remaining,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			RevenueEntries:       revenue,
			SavingsUpdates:       []domain.SavingsAccount{withdrawn},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}
