/**
 * @description
 * The loan engine covers eligibility scoring, sizing, and amortization for
 * savings-collateralized loans. All functions are pure over the injected rate
 * tables and the caller-supplied collateral valuation; the ledger applies the
 * results.
 *
 * Loan lifecycle: active -> repaid, or active -> overdue -> defaulted. The
 * overdue transition happens on a scheduled sweep when the due date has passed
 * with a remaining balance, never on a user request.
 */

package loans

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
)

// Sub-reasons carried by IneligibleLoanError.
const (
	ReasonInsufficientCollat   = "combined savings collateral is below the minimum"
	ReasonBelowMinimumAmount   = "requested amount is below the minimum loan size"
	ReasonExceedsMaximumAmount = "requested amount exceeds the collateral-backed maximum"
)

// Eligibility is the result of sizing a loan against collateral.
type Eligibility struct {
	MaxLoanAmount int64
	InterestRate  float64 // percent annual
}

// RateForTier resolves the annual loan rate for a tier. The ordering is the
// inverse of the savings table: basic borrows at the highest rate, vip at the
// lowest.
func RateForTier(tables config.RateTables, tier domain.PremiumTier) (float64, error) {
	rate, ok := tables.LoanAnnualRates[tier]
	if !ok {
		return 0, domain.ErrInvalidTier
	}
	return rate, nil
}

// MaxLoanAmount sizes the largest loan the collateral supports. The 0.5
// factor pre-amortizes the loan interest against half the term; it is part of
// the product contract and must not be re-derived.
func MaxLoanAmount(collateralValue int64, annualRatePct float64) int64 {
	if collateralValue <= 1 {
		return 0
	}
	rate := annualRatePct / 100
	return int64(float64(collateralValue-1) / (1 + rate*0.5))
}

// CheckEligibility validates a requested loan against the single-loan policy,
// the collateral floor, and the collateral-backed maximum. collateralValue is
// the combined projected maturity value of the account's active savings.
func CheckEligibility(requested, collateralValue int64, hasActiveLoan bool, tables config.RateTables, tier domain.PremiumTier) (Eligibility, error) {
	rate, err := RateForTier(tables, tier)
	if err != nil {
		return Eligibility{}, err
	}
	if hasActiveLoan {
		return Eligibility{}, domain.ErrLoanAlreadyActive
	}
	if collateralValue <= tables.MinCollateralValue {
		return Eligibility{}, &domain.IneligibleLoanError{Reason: ReasonInsufficientCollat}
	}

	maxAmount := MaxLoanAmount(collateralValue, rate)
	if requested < tables.MinLoanAmount {
		return Eligibility{}, &domain.IneligibleLoanError{Reason: ReasonBelowMinimumAmount}
	}
	if requested > maxAmount {
		return Eligibility{}, &domain.IneligibleLoanError{Reason: ReasonExceedsMaximumAmount}
	}
	return Eligibility{MaxLoanAmount: maxAmount, InterestRate: rate}, nil
}

// Installment is one row of the amortization schedule. The interest portion
// is computed against the declining balance even though disbursement is a
// single lump sum.
type Installment struct {
	Number           int   `json:"number"`
	Payment          int64 `json:"payment"`
	InterestPortion  int64 `json:"interest_portion"`
	PrincipalPortion int64 `json:"principal_portion"`
	RemainingBalance int64 `json:"remaining_balance"`
}

// Amortize computes the fixed-term repayment totals:
// totalInterest = principal * (rate/12) * term, equal monthly installments,
// with the last installment absorbing the integer remainder.
func Amortize(principal int64, annualRatePct float64, termMonths int) (totalInterest, totalRepayment int64, schedule []Installment) {
	monthlyRate := annualRatePct / 100 / 12
	totalInterest = int64(math.Round(float64(principal) * monthlyRate * float64(termMonths)))
	totalRepayment = principal + totalInterest

	payment := totalRepayment / int64(termMonths)
	schedule = make([]Installment, 0, termMonths)
	outstandingPrincipal := principal
	remaining := totalRepayment
	for i := 1; i <= termMonths; i++ {
		p := payment
		if i == termMonths {
			p = remaining
		}
		interest := int64(math.Round(float64(outstandingPrincipal) * monthlyRate))
		if interest > p {
			interest = p
		}
		principalPortion := p - interest
		outstandingPrincipal -= principalPortion
		if outstandingPrincipal < 0 {
			outstandingPrincipal = 0
		}
		remaining -= p
		schedule = append(schedule, Installment{
			Number:           i,
			Payment:          p,
			InterestPortion:  interest,
			PrincipalPortion: principalPortion,
			RemainingBalance: remaining,
		})
	}
	return totalInterest, totalRepayment, schedule
}

// NewLoan builds a loan record for a disbursement at the given time.
func NewLoan(accountID uuid.UUID, principal, collateralValue int64, annualRatePct float64, tables config.RateTables, now time.Time) domain.Loan {
	_, totalRepayment, _ := Amortize(principal, annualRatePct, tables.LoanTermMonths)
	return domain.Loan{
		AccountID:              accountID,
		CollateralSavingsValue: collateralValue,
		Principal:              principal,
		InterestRate:           annualRatePct,
		TermMonths:             tables.LoanTermMonths,
		TotalRepayment:         totalRepayment,
		RepaidAmount:           0,
		RemainingAmount:        totalRepayment,
		Status:                 domain.LoanActive,
		DisbursementDate:       now,
		DueDate:                now.AddDate(0, tables.LoanTermMonths, 0),
	}
}

// ApplyRepayment applies a partial or full payment to a loan and returns the
// updated copy. Overpayment beyond the remaining balance is rejected by the
// caller; here remaining never goes below zero.
func ApplyRepayment(loan domain.Loan, amount int64) domain.Loan {
	loan.RepaidAmount += amount
	remaining := loan.TotalRepayment - loan.RepaidAmount
	if remaining < 0 {
		remaining = 0
	}
	loan.RemainingAmount = remaining
	if remaining == 0 {
		loan.Status = domain.LoanRepaid
	}
	return loan
}

// Overdue reports whether an active loan has passed its due date with a
// balance outstanding.
func Overdue(loan *domain.Loan, now time.Time) bool {
	return (loan.Status == domain.LoanActive || loan.Status == domain.LoanOverdue) &&
		now.After(loan.DueDate) && loan.RemainingAmount > 0
}
