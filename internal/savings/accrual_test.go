package savings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
)

func TestCurrentValueAtStart(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	got := CurrentValue(10_000, start, 6, 12, start)
	assert.Equal(t, int64(10_000), got.CurrentValue)
	assert.Zero(t, got.EarnedInterest)
	assert.Zero(t, got.MonthsElapsed)
}

func TestCurrentValueCompoundsMonthly(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// Three average months in: 10000 * 1.01^3 = 10303.01.
	asOf := start.Add(time.Duration(3 * 30.44 * 24 * float64(time.Hour)))
	got := CurrentValue(10_000, start, 6, 12, asOf)
	assert.Equal(t, int64(10_303), got.CurrentValue)
	assert.Equal(t, int64(303), got.EarnedInterest)
	assert.InDelta(t, 3.0, got.MonthsElapsed, 0.001)
}

func TestCurrentValueCapsAtLockPeriod(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// Two years past a 6-month lock: value holds at maturity, no further accrual.
	got := CurrentValue(10_000, start, 6, 12, start.AddDate(2, 0, 0))
	assert.Equal(t, int64(10_615), got.CurrentValue)
	assert.Equal(t, 6.0, got.MonthsElapsed)
}

func TestCurrentValueClampsFutureStart(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	got := CurrentValue(10_000, start, 6, 12, start.AddDate(0, -1, 0))
	assert.Equal(t, int64(10_000), got.CurrentValue)
}

func TestMaturityValue(t *testing.T) {
	// 10000 at 12% for 6 months: 10000 * 1.01^6 = 10615.20.
	assert.Equal(t, int64(10_615), MaturityValue(10_000, 6, 12))
	// 3000 at 6% for 12 months: 3000 * 1.005^12 = 3185.03.
	assert.Equal(t, int64(3_185), MaturityValue(3_000, 12, 6))
	assert.Equal(t, int64(10_000), MaturityValue(10_000, 6, 0))
}

func TestEarlyWithdrawalPenalty(t *testing.T) {
	assert.Equal(t, int64(500), EarlyWithdrawalPenalty(10_000, 0.05))
	assert.Equal(t, int64(50), EarlyWithdrawalPenalty(999, 0.05)) // 49.95 rounds up
	assert.Zero(t, EarlyWithdrawalPenalty(0, 0.05))
}

func TestRateForTier(t *testing.T) {
	tables := config.DefaultRateTables()

	basic, err := RateForTier(tables, domain.TierBasic)
	require.NoError(t, err)
	plus, err := RateForTier(tables, domain.TierPlus)
	require.NoError(t, err)
	vip, err := RateForTier(tables, domain.TierVIP)
	require.NoError(t, err)

	// Better tiers earn strictly more.
	assert.Less(t, basic, plus)
	assert.Less(t, plus, vip)

	_, err = RateForTier(tables, domain.PremiumTier("gold"))
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}

func TestMatured(t *testing.T) {
	maturity := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	deposit := &domain.SavingsAccount{MaturityDate: maturity}

	assert.False(t, Matured(deposit, maturity.Add(-time.Second)))
	assert.True(t, Matured(deposit, maturity))
	assert.True(t, Matured(deposit, maturity.Add(time.Hour)))
}
