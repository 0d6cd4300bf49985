package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
)

func newTestEngine() *Engine {
	return NewEngine(config.DefaultRateTables())
}

func TestQuoteP2PBands(t *testing.T) {
	engine := newTestEngine()

	tests := []struct {
		name    string
		amount  int64
		wantFee int64
	}{
		{"free band upper edge", 100, 0},
		{"second band lower edge", 101, 3},   // 1% + 2 = 3.01
		{"second band upper edge", 500, 7},   // 5 + 2
		{"third band lower edge", 501, 10},   // 4.509 + 5
		{"third band upper edge", 1_000, 14}, // 9 + 5
		{"fourth band", 5_000, 45},           // 35 + 10
		{"fifth band", 20_000, 115},          // 100 + 15
		{"sixth band", 50_000, 170},          // 150 + 20
		{"open band below cap", 200_000, 420},
		{"open band at cap", 500_000, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Quote(tt.amount, domain.FeeP2P, domain.TierBasic)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFee, got.TotalFee)
			assert.Equal(t, tt.amount, got.NetAmount)
			assert.Equal(t, tt.amount+tt.wantFee, got.TotalPayable)
			assert.Equal(t, got.TotalFee, got.PercentFee+got.FixedFee-got.PremiumDiscount)
		})
	}
}

func TestQuoteP2PTierDiscounts(t *testing.T) {
	engine := newTestEngine()

	basic, err := engine.Quote(1_000, domain.FeeP2P, domain.TierBasic)
	require.NoError(t, err)
	plus, err := engine.Quote(1_000, domain.FeeP2P, domain.TierPlus)
	require.NoError(t, err)
	vip, err := engine.Quote(1_000, domain.FeeP2P, domain.TierVIP)
	require.NoError(t, err)

	assert.Equal(t, int64(14), basic.TotalFee)
	assert.Equal(t, int64(11), plus.TotalFee) // 14 * 0.75 rounded
	assert.Equal(t, int64(7), vip.TotalFee)   // 14 * 0.50
	assert.Equal(t, int64(3), plus.PremiumDiscount)
	assert.Equal(t, int64(7), vip.PremiumDiscount)
}

func TestQuoteDiscountAppliesAfterCap(t *testing.T) {
	engine := newTestEngine()

	// 500k lands in the open band where the raw fee (1020) exceeds the 600 cap.
	basic, err := engine.Quote(500_000, domain.FeeP2P, domain.TierBasic)
	require.NoError(t, err)
	require.Equal(t, int64(600), basic.TotalFee)

	vip, err := engine.Quote(500_000, domain.FeeP2P, domain.TierVIP)
	require.NoError(t, err)
	assert.Equal(t, int64(300), vip.TotalFee)
}

func TestQuoteWithdrawalNetSemantics(t *testing.T) {
	engine := newTestEngine()

	got, err := engine.Quote(1_000, domain.FeeWithdrawal, domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(35), got.TotalFee) // 15 + 20
	assert.Equal(t, int64(965), got.NetAmount)
	assert.Equal(t, int64(1_000), got.TotalPayable)

	vip, err := engine.Quote(1_000, domain.FeeWithdrawal, domain.TierVIP)
	require.NoError(t, err)
	assert.Equal(t, int64(14), vip.TotalFee) // 35 * 0.40

	capped, err := engine.Quote(100_000, domain.FeeWithdrawal, domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(250), capped.TotalFee)
}

func TestQuoteWithdrawalRejectsAmountsTheFeeWouldEat(t *testing.T) {
	engine := newTestEngine()

	// The fixed component alone is 20: anything at or below it pays out
	// nothing or less.
	_, err := engine.Quote(10, domain.FeeWithdrawal, domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = engine.Quote(20, domain.FeeWithdrawal, domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// 21 squeaks through: fee 1.5%*21+20 rounds to 20, net 1.
	got, err := engine.Quote(21, domain.FeeWithdrawal, domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.TotalFee)
	assert.Equal(t, int64(1), got.NetAmount)
}

func TestQuoteMerchantQR(t *testing.T) {
	engine := newTestEngine()

	got, err := engine.Quote(1_000, domain.FeeMerchantQR, domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(13), got.TotalFee) // 7.5 + 5 rounded
	assert.Equal(t, int64(1_013), got.TotalPayable)
}

func TestQuoteFreeKinds(t *testing.T) {
	engine := newTestEngine()

	for _, kind := range []domain.FeeKind{domain.FeeAirtime, domain.FeeData, domain.FeeDeposit} {
		got, err := engine.Quote(5_000, kind, domain.TierBasic)
		require.NoError(t, err)
		assert.Zero(t, got.TotalFee, "kind %s should be free", kind)
		assert.Equal(t, int64(5_000), got.NetAmount)
	}
}

func TestQuoteScheduledPricesOffP2PBands(t *testing.T) {
	engine := newTestEngine()

	basic, err := engine.Quote(1_000, domain.FeeScheduled, domain.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, int64(14), basic.TotalFee)

	// Plus gets no scheduled discount; vip rides free.
	plus, err := engine.Quote(1_000, domain.FeeScheduled, domain.TierPlus)
	require.NoError(t, err)
	assert.Equal(t, int64(14), plus.TotalFee)

	vip, err := engine.Quote(1_000, domain.FeeScheduled, domain.TierVIP)
	require.NoError(t, err)
	assert.Zero(t, vip.TotalFee)
	assert.Equal(t, int64(1_000), vip.TotalPayable)
}

func TestQuoteRejectsInvalidInput(t *testing.T) {
	engine := newTestEngine()

	_, err := engine.Quote(0, domain.FeeP2P, domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = engine.Quote(-5, domain.FeeP2P, domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = engine.Quote(1_000, domain.FeeKind("bogus"), domain.TierBasic)
	assert.ErrorIs(t, err, domain.ErrInvalidOperationKind)

	_, err = engine.Quote(1_000, domain.FeeP2P, domain.PremiumTier("gold"))
	assert.ErrorIs(t, err, domain.ErrInvalidTier)
}
