/**
 * @description
 * This file contains the core business logic for the wallet ledger. The
 * `Service` struct orchestrates every money movement: it sequences calls into
 * the fee, savings, and loan engines and commits the results through the
 * repository as single atomic units.
 *
 * Key properties:
 * - Per-account operations are linearizable: an in-process keyed lock
 *   serializes local callers, and every account write carries an optimistic
 *   version predicate that catches external writers.
 * - Version conflicts are retried with backoff up to a bound, then surfaced
 *   as ErrBusy. All other failures abort with zero side effects.
 * - Duplicate idempotency keys replay the original result instead of
 *   double-applying the operation.
 * - Every fee, penalty, and interest movement posts a paired platform-revenue
 *   entry with the opposite economic direction.
 *
 * @dependencies
 * - internal/fees, internal/savings, internal/loans: the pure engines.
 * - internal/store: the atomic ledger repository.
 * - pkg/rabbitmq: post-commit event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/fees"
	"github.com/centipay/wallet-service/internal/metrics"
	"github.com/centipay/wallet-service/internal/savings"
	"github.com/centipay/wallet-service/internal/store"
	"github.com/centipay/wallet-service/pkg/rabbitmq"
)

// ErrBusy is returned when an operation exhausts its version-conflict retries.
// The caller may re-submit; the idempotency key guarantees at-most-once.
var ErrBusy = errors.New("account is busy, please retry")

// EventsExchange is the topic exchange ledger events are published to.
const EventsExchange = "wallet.events"

// Service provides the core business logic for the ledger.
type Service struct {
	repo          store.Repository
	feeEngine     *fees.Engine
	tables        config.RateTables
	eventProducer rabbitmq.Publisher
	locks         *accountLocks
	logger        *slog.Logger

	retryAttempts int
	retryBackoff  time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a new ledger service instance. producer may be nil when
// event publication is disabled.
func NewService(repo store.Repository, tables config.RateTables, producer rabbitmq.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		feeEngine:     fees.NewEngine(tables),
		tables:        tables,
		eventProducer: producer,
		locks:         newAccountLocks(),
		logger:        logger,
		retryAttempts: 5,
		retryBackoff:  25 * time.Millisecond,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ConfigureRetries overrides the bounded retry policy for version conflicts.
func (s *Service) ConfigureRetries(attempts int, backoff time.Duration) {
	if attempts > 0 {
		s.retryAttempts = attempts
	}
	if backoff > 0 {
		s.retryBackoff = backoff
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// QuoteFee exposes the fee engine to the UI layer. Read-only and safe to call
// repeatedly for live estimates.
func (s *Service) QuoteFee(amount int64, kind domain.FeeKind, tier domain.PremiumTier) (domain.FeeBreakdown, error) {
	return s.feeEngine.Quote(amount, kind, tier)
}

// GetAccountSnapshot returns the balance view for an account. The savings
// balance is derived: interest accrues continuously, so the stored column is
// only current as of the last savings operation and the live compounded value
// is recomputed here.
func (s *Service) GetAccountSnapshot(ctx context.Context, accountID uuid.UUID) (*domain.AccountSnapshot, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	savingsBalance, err := s.savingsBalanceTotal(ctx, accountID, s.now(), nil)
	if err != nil {
		return nil, err
	}
	return &domain.AccountSnapshot{
		WalletBalance:  account.WalletBalance,
		SavingsBalance: savingsBalance,
		RewardPoints:   account.RewardPoints,
	}, nil
}

// ListTransactions returns one reverse-chronological page of the ledger,
// addressed by a (created_at, id) keyset cursor.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, cursor time.Time, cursorID uuid.UUID, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, cursor, cursorID, limit)
}

// ApplyOperation validates and applies one client operation against the
// ledger, returning the primary transaction it produced.
func (s *Service) ApplyOperation(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	start := s.now()
	tx, err := s.applyOperation(ctx, identity, req)
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
	}
	metrics.OperationsTotal.WithLabelValues(string(req.Kind), outcome).Inc()
	metrics.OperationDuration.Observe(s.now().Sub(start).Seconds())
	return tx, err
}

func (s *Service) applyOperation(ctx context.Context, identity domain.AccountIdentity, req domain.OperationRequest) (*domain.Transaction, error) {
	// savings_withdraw always liquidates the whole deposit, so it carries no
	// amount. Every other operation must name a positive one.
	if req.Amount <= 0 && req.Kind != domain.OpSavingsWithdraw {
		return nil, domain.ErrInvalidAmount
	}

	// Replay check: a previously committed operation with the same key
	// returns its original result without re-applying anything.
	if req.IdempotencyKey != "" {
		tx, err := s.repo.FindTransactionByIdempotencyKey(ctx, identity.ID, req.IdempotencyKey)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, store.ErrTransactionNotFound) {
			return nil, err
		}
	}

	switch req.Kind {
	case domain.OpTransfer:
		return s.applyTransfer(ctx, identity, req, domain.FeeP2P)
	case domain.OpScheduled:
		return s.applyTransfer(ctx, identity, req, domain.FeeScheduled)
	case domain.OpDeposit:
		return s.applyDeposit(ctx, identity, req)
	case domain.OpWithdrawal:
		return s.applyWithdrawal(ctx, identity, req)
	case domain.OpAirtime:
		return s.applyPurchase(ctx, identity, req, domain.FeeAirtime, domain.TxAirtime)
	case domain.OpData:
		return s.applyPurchase(ctx, identity, req, domain.FeeData, domain.TxData)
	case domain.OpMerchantQR:
		return s.applyMerchantPayment(ctx, identity, req)
	case domain.OpSavingsOpen:
		return s.applySavingsOpen(ctx, identity, req)
	case domain.OpSavingsWithdraw:
		return s.applySavingsWithdraw(ctx, identity, req)
	case domain.OpLoanApply:
		return s.applyLoanApply(ctx, identity, req)
	case domain.OpLoanRepay:
		return s.applyLoanRepay(ctx, identity, req)
	case domain.OpRewardRedeem:
		return s.applyRewardRedeem(ctx, identity, req)
	}
	return nil, domain.ErrInvalidOperationKind
}

// commitBuilder produces one attempt's commit from fresh reads. It is invoked
// again on every version-conflict retry.
type commitBuilder func(ctx context.Context) (store.OperationCommit, *domain.Transaction, error)

// commitWithRetry runs the read-compute-commit cycle under bounded optimistic
// retry. The caller must already hold the relevant account locks.
func (s *Service) commitWithRetry(ctx context.Context, build commitBuilder) (*domain.Transaction, error) {
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		commit, primary, err := build(ctx)
		if err != nil {
			return nil, err
		}

		err = s.repo.CommitOperation(ctx, commit)
		if err == nil {
			s.publishTransactions(ctx, commit.Transactions)
			return primary, nil
		}
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			// A concurrent submission with the same key won the race; its
			// result is the canonical one.
			return s.repo.FindTransactionByIdempotencyKey(ctx, commit.IdempotencyAccountID, commit.IdempotencyKey)
		}
		if errors.Is(err, store.ErrVersionConflict) {
			metrics.VersionConflictRetries.Inc()
			s.logger.Debug("version conflict, retrying commit", "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
			}
			continue
		}
		return nil, err
	}
	return nil, ErrBusy
}

func (s *Service) publishTransactions(ctx context.Context, transactions []domain.Transaction) {
	if s.eventProducer == nil {
		return
	}
	for i := range transactions {
		tx := transactions[i]
		event := rabbitmq.TransactionEvent{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Kind:          string(tx.Kind),
			Amount:        tx.Amount,
			Fee:           tx.Fee,
			Direction:     string(tx.Direction),
			Timestamp:     tx.CreatedAt,
		}
		routingKey := fmt.Sprintf("ledger.transaction.%s", tx.Kind)
		if err := s.eventProducer.Publish(ctx, EventsExchange, routingKey, event); err != nil {
			s.logger.Warn("failed to publish ledger event", "transaction_id", tx.ID, "error", err)
		}
	}
}

// rewardPointsEarned computes the points a transaction earns under the
// configured earn divisors.
func (s *Service) rewardPointsEarned(kind domain.TransactionKind, amount int64) int64 {
	divisor := s.tables.RewardEarnDivisors[kind]
	if divisor <= 0 {
		return 0
	}
	return amount / divisor
}

// savingsBalanceTotal recomputes the derived savings balance: the sum of the
// current compounded values of the account's non-withdrawn deposits,
// excluding any ids in excluded.
func (s *Service) savingsBalanceTotal(ctx context.Context, accountID uuid.UUID, asOf time.Time, excluded map[uuid.UUID]struct{}) (int64, error) {
	deposits, err := s.repo.ListActiveSavingsByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range deposits {
		if _, skip := excluded[d.ID]; skip {
			continue
		}
		accrual := savings.CurrentValue(d.Principal, d.StartDate, d.LockPeriodMonths, d.AnnualInterestRate, asOf)
		total += accrual.CurrentValue
	}
	return total, nil
}

func revenueEntry(kind string, amount int64, transactionID uuid.UUID, at time.Time) domain.RevenueEntry {
	return domain.RevenueEntry{
		ID:            uuid.New(),
		Kind:          kind,
		Amount:        amount,
		TransactionID: transactionID,
		CreatedAt:     at,
	}
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
