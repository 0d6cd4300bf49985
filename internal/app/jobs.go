/**
 * @description
 * Scheduled job implementations for the ledger: the loan maturity sweep and
 * the savings maturity sweep.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/domain"
	"github.com/centipay/wallet-service/internal/loans"
	"github.com/centipay/wallet-service/internal/savings"
	"github.com/centipay/wallet-service/internal/store"
	"github.com/centipay/wallet-service/pkg/rabbitmq"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service  *Service
	repo     store.Repository
	producer rabbitmq.Publisher
	logger   *slog.Logger
}

// NewJobs creates a new Jobs runner. producer may be nil when event
// publication is disabled.
func NewJobs(service *Service, repo store.Repository, producer rabbitmq.Publisher, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobs{
		service:  service,
		repo:     repo,
		producer: producer,
		logger:   logger,
	}
}

// ProcessLoanMaturities marks past-due loans overdue and settles each one by
// liquidating the borrower's savings collateral. A loan whose collateral
// covers the remaining balance ends repaid; otherwise it defaults.
func (j *Jobs) ProcessLoanMaturities() {
	j.logger.Info("starting loan maturity sweep")
	ctx := context.Background()

	pastDue, err := j.repo.ListLoansPastDue(ctx, j.service.now())
	if err != nil {
		j.logger.Error("failed to list past-due loans", "error", err)
		return
	}
	if len(pastDue) == 0 {
		j.logger.Info("no past-due loans to process")
		return
	}
	j.logger.Info("found past-due loans to process", "count", len(pastDue))

	for _, loan := range pastDue {
		if loan.Status == domain.LoanActive {
			marked, err := j.service.markLoanOverdue(ctx, loan.ID)
			if err != nil {
				j.logger.Error("failed to mark loan overdue", "loan_id", loan.ID, "error", err)
				continue
			}
			j.publishLoanStatus(ctx, marked)
		}

		settled, err := j.service.settleOverdueLoan(ctx, loan)
		if err != nil {
			j.logger.Error("failed to settle overdue loan", "loan_id", loan.ID, "account_id", loan.AccountID, "error", err)
			continue
		}
		j.logger.Info("settled overdue loan",
			"loan_id", settled.ID,
			"status", settled.Status,
			"recovered", settled.RepaidAmount,
			"remaining", settled.RemainingAmount)
		j.publishLoanStatus(ctx, settled)
	}

	j.logger.Info("loan maturity sweep finished")
}

// ProcessSavingsMaturities flips deposits past their maturity date from
// active to matured. Funds stay in the deposit at the capped maturity value
// until the owner withdraws.
func (j *Jobs) ProcessSavingsMaturities() {
	j.logger.Info("starting savings maturity sweep")
	ctx := context.Background()

	matured, err := j.repo.ListMaturedActiveSavings(ctx, j.service.now())
	if err != nil {
		j.logger.Error("failed to list matured savings", "error", err)
		return
	}
	if len(matured) == 0 {
		j.logger.Info("no matured savings to process")
		return
	}
	j.logger.Info("found matured savings to process", "count", len(matured))

	for _, deposit := range matured {
		if err := j.service.markSavingsMatured(ctx, deposit); err != nil {
			j.logger.Error("failed to mark savings matured", "savings_id", deposit.ID, "error", err)
			continue
		}
		j.logger.Info("marked savings matured", "savings_id", deposit.ID, "account_id", deposit.AccountID)

		if j.producer != nil {
			event := rabbitmq.SavingsMaturedEvent{
				SavingsID:     deposit.ID,
				AccountID:     deposit.AccountID,
				Principal:     deposit.Principal,
				MaturityValue: savings.MaturityValue(deposit.Principal, deposit.LockPeriodMonths, deposit.AnnualInterestRate),
				Timestamp:     j.service.now(),
			}
			if err := j.producer.Publish(ctx, EventsExchange, "ledger.savings.matured", event); err != nil {
				j.logger.Warn("failed to publish savings matured event", "savings_id", deposit.ID, "error", err)
			}
		}
	}

	j.logger.Info("savings maturity sweep finished")
}

func (j *Jobs) publishLoanStatus(ctx context.Context, loan domain.Loan) {
	if j.producer == nil {
		return
	}
	event := rabbitmq.LoanStatusEvent{
		LoanID:          loan.ID,
		AccountID:       loan.AccountID,
		Status:          string(loan.Status),
		RemainingAmount: loan.RemainingAmount,
		Timestamp:       j.service.now(),
	}
	routingKey := "ledger.loan." + string(loan.Status)
	if err := j.producer.Publish(ctx, EventsExchange, routingKey, event); err != nil {
		j.logger.Warn("failed to publish loan status event", "loan_id", loan.ID, "error", err)
	}
}

// markLoanOverdue persists the active -> overdue transition for a loan that
// has passed its due date with a balance outstanding.
func (s *Service) markLoanOverdue(ctx context.Context, loanID uuid.UUID) (domain.Loan, error) {
	current, err := s.repo.FindLoanByID(ctx, loanID)
	if err != nil {
		return domain.Loan{}, err
	}
	if !loans.Overdue(current, s.now()) || current.Status == domain.LoanOverdue {
		return *current, nil
	}
	updated := *current
	updated.Status = domain.LoanOverdue
	if err := s.repo.CommitOperation(ctx, store.OperationCommit{LoanUpdates: []domain.Loan{updated}}); err != nil {
		return domain.Loan{}, err
	}
	return updated, nil
}

// markSavingsMatured persists the active -> matured transition for a deposit
// past its maturity date.
func (s *Service) markSavingsMatured(ctx context.Context, deposit domain.SavingsAccount) error {
	updated := deposit
	updated.Status = domain.SavingsMatured
	return s.repo.CommitOperation(ctx, store.OperationCommit{SavingsUpdates: []domain.SavingsAccount{updated}})
}
