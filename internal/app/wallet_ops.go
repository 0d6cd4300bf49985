package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/store"
)

// ErrInvalidCounterparty rejects a transfer whose counterparty is missing,
// malformed, or the sender itself.
var ErrInvalidCounterparty = errors.New("invalid counterparty")

// applyTransfer moves money between two wallet accounts. The sender pays
// amount+fee, the recipient receives the full face amount, and the fee posts
// to platform revenue. Both account writes, both transaction rows, and the
// revenue entry commit as one unit.
func (s *Service) applyTransfer(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest, feeKind domain.FeeKind) (*domain.Transaction, error) {
	if req.Counterparty == nil {
		return nil, ErrInvalidCounterparty
	}
	recipientID, err := uuid.Parse(*req.Counterparty)
	if err != nil || recipientID == identity.ID {
		return nil, ErrInvalidCounterparty
	}

	unlock := s.locks.acquire(identity.ID, recipientID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		sender, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		recipient, err := s.repo.FindAccountByID(ctx, recipientID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		quote, err := s.feeEngine.Quote(req.Amount, feeKind, sender.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if sender.WalletBalance < quote.TotalPayable {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		now := s.now()
		senderRef := recipientID.String()
		recipientRef := identity.ID.String()
		sendTx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       sender.ID,
			Kind:            domain.TxSend,
			Amount:          req.Amount,
			Fee:             quote.TotalFee,
			NetAmount:       quote.NetAmount,
			Direction:       domain.DirectionDebit,
			Status:          "completed",
			CounterpartyRef: &senderRef,
			IdempotencyKey:  optionalKey(req.IdempotencyKey),
			CreatedAt:       now,
		}
		receiveTx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       recipient.ID,
			Kind:            domain.TxReceive,
			Amount:          req.Amount,
			Fee:             0,
			NetAmount:       req.Amount,
			Direction:       domain.DirectionCredit,
			Status:          "completed",
			CounterpartyRef: &recipientRef,
			CreatedAt:       now,
		}

		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{
				{
					AccountID:         sender.ID,
					NewWalletBalance:  sender.WalletBalance - quote.TotalPayable,
					NewSavingsBalance: sender.SavingsBalance,
					NewRewardPoints:   sender.RewardPoints + s.rewardPointsEarned(domain.TxSend, req.Amount),
					ExpectedVersion:   sender.Version,
				},
				{
					AccountID:         recipient.ID,
					NewWalletBalance:  recipient.WalletBalance + req.Amount,
					NewSavingsBalance: recipient.SavingsBalance,
					NewRewardPoints:   recipient.RewardPoints,
					ExpectedVersion:   recipient.Version,
				},
			},
			Transactions:         []domain.Transaction{sendTx, receiveTx},
			IdempotencyAccountID: sender.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: sendTx.ID,
		}
		if quote.TotalFee > 0 {
			commit.RevenueEntries = []domain.RevenueEntry{
				revenueEntry("fee", quote.TotalFee, sendTx.ID, now),
			}
		}
		return commit, &sendTx, nil
	})
}

// applyDeposit credits an externally funded top-up. Deposits are fee-free and
// earn reward points at the deposit divisor.
func (s *Service) applyDeposit(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		now := s.now()
		tx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Kind:            domain.TxDeposit,
			Amount:          req.Amount,
			Fee:             0,
			NetAmount:       req.Amount,
			Direction:       domain.DirectionCredit,
			Status:          "completed",
			CounterpartyRef: req.Counterparty,
			IdempotencyKey:  optionalKey(req.IdempotencyKey),
			CreatedAt:       now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance + req.Amount,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints + s.rewardPointsEarned(domain.TxDeposit, req.Amount),
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}

// applyWithdrawal debits the full requested amount; the user receives
// amount-fee on the external rail and the fee posts to platform revenue.
func (s *Service) applyWithdrawal(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		quote, err := s.feeEngine.Quote(req.Amount, domain.FeeWithdrawal, account.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		// The ledger debit is the full requested amount, not the net payout.
		if account.WalletBalance < quote.TotalPayable {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		now := s.now()
		tx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Kind:            domain.TxWithdrawal,
			Amount:          req.Amount,
			Fee:             quote.TotalFee,
			NetAmount:       quote.NetAmount,
			Direction:       domain.DirectionDebit,
			Status:          "completed",
			CounterpartyRef: req.Counterparty,
			IdempotencyKey:  optionalKey(req.IdempotencyKey),
			CreatedAt:       now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance - quote.TotalPayable,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		if quote.TotalFee > 0 {
			commit.RevenueEntries = []domain.RevenueEntry{
				revenueEntry("fee", quote.TotalFee, tx.ID, now),
			}
		}
		return commit, &tx, nil
	})
}

// applyPurchase handles fee-free provider purchases (airtime, data) that earn
// reward points.
func (s *Service) applyPurchase(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest, feeKind domain.FeeKind, txKind domain.TransactionKind) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		quote, err := s.feeEngine.Quote(req.Amount, feeKind, account.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if account.WalletBalance < quote.TotalPayable {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		now := s.now()
		tx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Kind:            txKind,
			Amount:          req.Amount,
			Fee:             quote.TotalFee,
			NetAmount:       quote.NetAmount,
			Direction:       domain.DirectionDebit,
			Status:          "completed",
			CounterpartyRef: req.Counterparty,
			IdempotencyKey:  optionalKey(req.IdempotencyKey),
			CreatedAt:       now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance - quote.TotalPayable,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints + s.rewardPointsEarned(txKind, req.Amount),
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}

// applyMerchantPayment debits amount+fee for a QR merchant payment. The
// merchant is settled on an external rail, so only the payer side and the
// revenue entry touch this ledger.
func (s *Service) applyMerchantPayment(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}

		quote, err := s.feeEngine.Quote(req.Amount, domain.FeeMerchantQR, account.PremiumTier)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if account.WalletBalance < quote.TotalPayable {
			return store.OperationCommit{}, nil, domain.ErrInsufficientFunds
		}

		now := s.now()
		tx := domain.Transaction{
			ID:              uuid.New(),
			AccountID:       account.ID,
			Kind:            domain.TxSend,
			Amount:          req.Amount,
			Fee:             quote.TotalFee,
			NetAmount:       quote.NetAmount,
			Direction:       domain.DirectionDebit,
			Status:          "completed",
			CounterpartyRef: req.Counterparty,
			IdempotencyKey:  optionalKey(req.IdempotencyKey),
			CreatedAt:       now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance - quote.TotalPayable,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints,
				ExpectedVersion:   account.Version,
			}},
			Transactions:         []domain.Transaction{tx},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		if quote.TotalFee > 0 {
			commit.RevenueEntries = []domain.RevenueEntry{
				revenueEntry("fee", quote.TotalFee, tx.ID, now),
			}
		}
		return commit, &tx, nil
	})
}

// applyRewardRedeem converts reward points to wallet credit at the configured
// conversion rate. The payout is a platform expense.
func (s *Service) applyRewardRedeem(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	points := req.Amount
	perUnit := s.tables.RedemptionPointsPerUnit
	if perUnit <= 0 || points%perUnit != 0 {
		return nil, domain.ErrInvalidAmount
	}
	cash := points / perUnit

	unlock := s.locks.acquire(identity.ID)
	defer unlock()

	return s.commitWithRetry(ctx, func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error) {
		account, err := s.repo.FindAccountByID(ctx, identity.ID)
		if err != nil {
			return store.OperationCommit{}, nil, err
		}
		if account.RewardPoints < points {
			return store.OperationCommit{}, nil, domain.ErrInsufficientPoints
		}

		now := s.now()
		tx := domain.Transaction{
			ID:             uuid.New(),
			AccountID:      account.ID,
			Kind:           domain.TxReward,
			Amount:         cash,
			Fee:            0,
			NetAmount:      cash,
			Direction:      domain.DirectionCredit,
			Status:         "completed",
			IdempotencyKey: optionalKey(req.IdempotencyKey),
			CreatedAt:      now,
		}
		commit := store.OperationCommit{
			AccountUpdates: []store.AccountUpdate{{
				AccountID:         account.ID,
				NewWalletBalance:  account.WalletBalance + cash,
				NewSavingsBalance: account.SavingsBalance,
				NewRewardPoints:   account.RewardPoints - points,
				ExpectedVersion:   account.Version,
			}},
			Transactions: []domain.Transaction{tx},
			RevenueEntries: []domain.RevenueEntry{
				revenueEntry("reward_redemption", -cash, tx.ID, now),
			},
			IdempotencyAccountID: account.ID,
			IdempotencyKey:       req.IdempotencyKey,
			PrimaryTransactionID: tx.ID,
		}
		return commit, &tx, nil
	})
}
