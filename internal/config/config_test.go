package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipay/wallet-service/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "wallet:rate_limit", cfg.RedisRateLimitPrefix)
	assert.Equal(t, 5, cfg.ConflictRetryAttempts)
	assert.Equal(t, 25, cfg.ConflictRetryBackoffMillis)
	assert.Equal(t, "0 * * * *", cfg.LoanSweepSchedule)
	assert.Equal(t, "30 0 * * *", cfg.SavingsSweepSchedule)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("OPERATION_RATE_LIMIT_PER_MINUTE", "-5")
	t.Setenv("CONFLICT_RETRY_ATTEMPTS", "0")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.ServerPort)
	// Negative limits disable the gate instead of breaking it.
	assert.Zero(t, cfg.OperationRateLimitPerMin)
	// Non-positive retry settings fall back to the defaults.
	assert.Equal(t, 5, cfg.ConflictRetryAttempts)
}

func TestDefaultRateTables(t *testing.T) {
	tables := DefaultRateTables()

	require.NotEmpty(t, tables.P2PBands)
	assert.Zero(t, tables.P2PBands[0].MinAmount)
	// Exactly one open-ended band, and it comes last.
	for i, band := range tables.P2PBands[:len(tables.P2PBands)-1] {
		assert.NotZero(t, band.MaxAmount, "band %d should be bounded", i)
		assert.Equal(t, band.MaxAmount+1, tables.P2PBands[i+1].MinAmount)
	}
	assert.Zero(t, tables.P2PBands[len(tables.P2PBands)-1].MaxAmount)

	for _, tier := range []domain.PremiumTier{domain.TierBasic, domain.TierPlus, domain.TierVIP} {
		assert.Contains(t, tables.SavingsAnnualRates, tier)
		assert.Contains(t, tables.LoanAnnualRates, tier)
	}

	assert.Equal(t, 6, tables.LoanTermMonths)
	assert.Equal(t, 0.05, tables.EarlyWithdrawalPenaltyRate)
	assert.Equal(t, int64(10), tables.RedemptionPointsPerUnit)
}
