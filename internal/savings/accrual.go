/**
 * @description
 * The savings accrual engine computes the time value of a locked deposit:
 * current compounded value, projected maturity value, and the early-withdrawal
 * penalty. It is a set of pure functions over a savings record; the only
 * floating-point arithmetic is the compounding exponent, rounded to minor
 * units at the boundary.
 *
 * Compounding is monthly with fractional months: monthsElapsed is
 * daysElapsed/30.44 capped at the lock period, so partial months accrue
 * proportionally through the fractional exponent rather than being truncated.
 */

package savings

import (
	"math"
	"time"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
)

// daysPerMonth is the average Gregorian month length used to convert elapsed
// days into fractional months.
const daysPerMonth = 30.44

// Accrual is the computed state of a deposit at a point in time.
type Accrual struct {
	CurrentValue   int64
	EarnedInterest int64
	MonthsElapsed  float64
}

// CurrentValue computes the compounded value of a deposit as of the given
// time. Accrual stops at the lock period: a deposit past maturity holds its
// maturity value.
func CurrentValue(principal int64, startDate time.Time, lockMonths int, annualRate float64, asOf time.Time) Accrual {
	monthlyRate := annualRate / 12 / 100
	daysElapsed := asOf.Sub(startDate).Hours() / 24
	if daysElapsed < 0 {
		daysElapsed = 0
	}
	monthsElapsed := daysElapsed / daysPerMonth
	if monthsElapsed > float64(lockMonths) {
		monthsElapsed = float64(lockMonths)
	}

	value := int64(math.Round(float64(principal) * math.Pow(1+monthlyRate, monthsElapsed)))
	return Accrual{
		CurrentValue:   value,
		EarnedInterest: value - principal,
		MonthsElapsed:  monthsElapsed,
	}
}

// MaturityValue is the full compounded value at the end of the lock period.
// It is also the collateral valuation for loan eligibility: projected, not
// current, even before the deposit matures.
func MaturityValue(principal int64, lockMonths int, annualRate float64) int64 {
	monthlyRate := annualRate / 12 / 100
	return int64(math.Round(float64(principal) * math.Pow(1+monthlyRate, float64(lockMonths))))
}

// EarlyWithdrawalPenalty is the charge for breaking the lock. An early
// withdrawal pays principal-penalty and forfeits all accrued interest.
func EarlyWithdrawalPenalty(principal int64, penaltyRate float64) int64 {
	return int64(math.Round(float64(principal) * penaltyRate))
}

// RateForTier resolves the annual savings rate for a tier from the injected
// tables. The result is frozen onto the deposit at creation time; later tier
// changes never reprice an existing deposit.
func RateForTier(tables config.RateTables, tier domain.PremiumTier) (float64, error) {
	rate, ok := tables.SavingsAnnualRates[tier]
	if !ok {
		return 0, domain.ErrInvalidTier
	}
	return rate, nil
}

// Matured reports whether a deposit has reached its maturity date.
func Matured(s *domain.SavingsAccount, asOf time.Time) bool {
	return !asOf.Before(s.MaturityDate)
}
