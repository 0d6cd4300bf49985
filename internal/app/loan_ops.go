package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/loans"
	"github.com/centipay/wallet-service/internal/savings"
	"github.com/centipay/wallet-service/internal/store"
)

// applyLoanApply sizes a loan against the account's combined savings
// collateral and disburses it in one commit. The full loan interest posts to
// platform revenue at disbursement.
func (s *Service) applyLoanApply(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		hasActiveLoan := false
		if _, err := s.repo.FindOpenLoanByAccount(ctx, account.ID); err == nil {
			hasActiveLoan = true
		} else if !errors.Is(err, store.ErrLoanNotFound) {
			return store.OperationCommit{}, nil, err
		}

		collateral, err := s.collateralValue(ctx, account.ID, nil)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		eligibility, err := loans.CheckEligibility(req.Amount, collateral, hasActiveLoan, s.tables, account.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		now := s.now()
		loan := loans.NewLoan(account.ID, req.Amount, collateral, eligibility.InterestRate, s.tables, now)
		loan.ID = uuid.New()
		totalInterest := loan.TotalRepayment - loan.Principal

		tx := domain.Transaction{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Kind:           domain.TxLoanDisbursement,
			Amount:         loan.Principal,
			Fee:            0,
			NetAmount:      loan.Principal,
			Direction:      domain.DirectionCredit,
			Status:         "completed",
			LoanID:         &loan.ID,
			IdempotencyKey: optionalKey(req.IdempotencyKey),
			CreatedAt:      now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance + loan.Principal,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions: []domain.Transaction{tx},
			RevenueEntries: []domain.RevenueEntry{
				revenueEntry("loan_interest", totalInterest, tx.ID, now),
			},
			LoanInserts:          []domain.Loan{loan},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}

// applyLoanRepay pays down the account's open loan from the wallet balance.
// Overpayment beyond the remaining balance is rejected rather than refunded.
func (s *Service) applyLoanRepay(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		loan, err := s.repo.FindOpenLoanByAccount(ctx, account.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if req.Amount > loan.RemainingAmount {
			return store.OperationCommit{}, nil, domain.ErrInvalidAmount
		}
		if account.WalletBalance < req.Amount {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		now := s.now()
		updated := loans.ApplyRepayment(*loan, req.Amount)
		tx := domain.Transaction{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Kind:           domain.TxLoanRepayment,
			Amount:         req.Amount,
			Fee:            0,
			NetAmount:      req.Amount,
			Direction:      domain.DirectionDebit,
			Status:         "completed",
			LoanID:         &loan.ID,
			IdempotencyKey: optionalKey(req.IdempotencyKey),
			CreatedAt:      now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance - req.Amount,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			LoanUpdates:          []domain.Loan{updated},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}

// collateralValue is the combined projected maturity value of the account's
// non-withdrawn savings deposits, excluding any ids in excluded.
func (s *Service) collateralValue(ctx context.Context, accountID uuid.UUID, excluded map[uuid.UUID]struct{}) (int64, error) {
	deposits, err := s.repo.ListActiveSavingsByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range deposits {
		if _, skip := excluded[d.ID]; skip {
			continue
		}
		total += savings.MaturityValue(d.Principal, d.LockPeriodMonths, d.AnnualInterestRate)
	}
	return total, nil
}

// settleOverdueLoan liquidates the account's savings deposits at their current
// value and applies the proceeds against the overdue balance, all in one
// commit. Only collateral proceeds are used; the pre-existing wallet balance
// is never touched. If the proceeds cover the remaining balance the loan is
// repaid, otherwise it defaults.
func (s *Service) settleOverdueLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	unlock := s.locks.acquire(loan.AccountID)
	defer unlock()

	var settled domain.Loan
	_, err := s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, loan.AccountID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		current, err := s.repo.FindLoanByID(ctx, loan.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if current.RemainingAmount <= 0 {
			settled = *current
			return store.OperationCommit{}, nil, errAlreadySettled
		}

		deposits, err := s.repo.ListActiveSavingsByAccount(ctx, account.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		now := s.now()
		var transactions []domain.Transaction
		var revenue []domain.RevenueEntry
		var savingsUpdates []domain.SavingsAccount
		var proceeds int64
		for i := range deposits {
			d := deposits[i]
			accrual := savings.CurrentValue(d.Principal, d.StartDate, d.LockPeriodMonths, d.AnnualInterestRate, now)
			liquidation := domain.Transaction{
				ID:        uuid.New(),
				AccountID: account.ID,
				Kind:      domain.TxSavingsWithdrawal,
				Amount:    d.Principal,
				Fee:       0,
				NetAmount: accrual.CurrentValue,
				Direction: domain.DirectionCredit,
				Status:    "completed",
				SavingsID: &d.ID,
				CreatedAt: now,
			}
			transactions = append(transactions, liquidation)
			if accrual.EarnedInterest > 0 {
				revenue = append(revenue, revenueEntry("savings_interest", -accrual.EarnedInterest, liquidation.ID, now))
			}
			withdrawn := d
			withdrawn.Status = domain.SavingsWithdrawn
			savingsUpdates = append(savingsUpdates, withdrawn)
			proceeds += accrual.CurrentValue
		}

		recovered := current.RemainingAmount
		if proceeds < recovered {
			recovered = proceeds
		}
		updated := loans.ApplyRepayment(*current, recovered)
		if updated.RemainingAmount > 0 {
			updated.Status = domain.LoanDefaulted
		}

		repayment := domain.Transaction{
			ID:        uuid.New(),
			AccountID: account.ID,
			Kind:      domain.TxLoanRepayment,
			Amount:    recovered,
			Fee:       0,
			NetAmount: recovered,
			Direction: domain.DirectionDebit,
			Status:    "completed",
			LoanID:    &current.ID,
			CreatedAt: now,
		}
		if recovered > 0 {
			transactions = append(transactions, repayment)
		}

		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance + proceeds - recovered,
				NewSavingsBalance: 0,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:   transactions,
			RevenueEntries: revenue,
			SavingsUpdates: savingsUpdates,
			LoanUpdates:    []domain.Loan{updated},
		}
		settled = updated
		return commit, &repayment, nil
	})
	if errors.Is(err, errAlreadySettled) {
		return settled, nil
	}
	if err != nil {
		return domain.Loan{}, err
	}
	return settled, nil
}

// errAlreadySettled short-circuits a settlement whose loan was repaid between
// the sweep's list query and the commit.
var errAlreadySettled = errors.New("loan already settled")
