package config

import (
	"github.com/centipay/wallet-service/internal/domain"
)

// FeeBand is one amount range of the banded fee table. MaxAmount of 0 means
// the band is open-ended. Percent is expressed as a percentage (1 = 1%).
type FeeBand struct {
	MinAmount int64
	MaxAmount int64
	Percent   float64
	Fixed     int64
	Cap       int64
}

// FlatFeeRule is a single percent+fixed formula with a cap, independent of
// amount bands.
type FlatFeeRule struct {
	Percent float64
	Fixed   int64
	Cap     int64
}

// RateTables is the single versioned configuration object injected into the
// fee, savings, and loan engines. All pricing and rate decisions resolve
// through this struct so that no rate constant is duplicated at a call site.
type RateTables struct {
	// Fee engine.
	P2PBands      []FeeBand
	Withdrawal    FlatFeeRule
	MerchantQR    FlatFeeRule
	TierDiscounts map[domain.PremiumTier]map[domain.FeeKind]float64 // percent off, 0-100

	// Savings engine. Rates are annual percentages, frozen onto a deposit at
	// creation time.
	SavingsAnnualRates         map[domain.PremiumTier]float64
	EarlyWithdrawalPenaltyRate float64 // fraction of principal, e.g. 0.05

	// Loan engine. Loan rates are the inverse ordering of savings rates:
	// better tiers borrow cheaper.
	LoanAnnualRates    map[domain.PremiumTier]float64
	LoanTermMonths     int
	MinLoanAmount      int64
	MinCollateralValue int64

	// Reward points.
	RewardEarnDivisors      map[domain.TransactionKind]int64 // 1 point per N minor units
	RedemptionPointsPerUnit int64                            // points needed per 1 minor unit
}

// DefaultRateTables returns the canonical rate schedule. The savings table is
// 6/12/18% and the loan table 20/18/15% for basic/plus/vip; competing legacy
// tables are intentionally not merged.
func DefaultRateTables() RateTables {
	return RateTables{
		P2PBands: []FeeBand{
			{MinAmount: 0, MaxAmount: 100, Percent: 0, Fixed: 0, Cap: 0},
			{MinAmount: 101, MaxAmount: 500, Percent: 1.0, Fixed: 2, Cap: 20},
			{MinAmount: 501, MaxAmount: 1_000, Percent: 0.9, Fixed: 5, Cap: 40},
			{MinAmount: 1_001, MaxAmount: 5_000, Percent: 0.7, Fixed: 10, Cap: 80},
			{MinAmount: 5_001, MaxAmount: 20_000, Percent: 0.5, Fixed: 15, Cap: 200},
			{MinAmount: 20_001, MaxAmount: 50_000, Percent: 0.3, Fixed: 20, Cap: 350},
			{MinAmount: 50_001, MaxAmount: 0, Percent: 0.2, Fixed: 20, Cap: 600},
		},
		Withdrawal: FlatFeeRule{Percent: 1.5, Fixed: 20, Cap: 250},
		MerchantQR: FlatFeeRule{Percent: 0.75, Fixed: 5, Cap: 50},
		TierDiscounts: map[domain.PremiumTier]map[domain.FeeKind]float64{
			domain.TierBasic: {},
			domain.TierPlus: {
				domain.FeeP2P:        25,
				domain.FeeWithdrawal: 30,
				domain.FeeMerchantQR: 25,
				domain.FeeScheduled:  0,
			},
			domain.TierVIP: {
				domain.FeeP2P:        50,
				domain.FeeWithdrawal: 60,
				domain.FeeMerchantQR: 50,
				domain.FeeScheduled:  100,
			},
		},
		SavingsAnnualRates: map[domain.PremiumTier]float64{
			domain.TierBasic: 6,
			domain.TierPlus:  12,
			domain.TierVIP:   18,
		},
		EarlyWithdrawalPenaltyRate: 0.05,
		LoanAnnualRates: map[domain.PremiumTier]float64{
			domain.TierBasic: 20,
			domain.TierPlus:  18,
			domain.TierVIP:   15,
		},
		LoanTermMonths:     6,
		MinLoanAmount:      1_000,
		MinCollateralValue: 2_000,
		RewardEarnDivisors: map[domain.TransactionKind]int64{
			domain.TxSend:    100,
			domain.TxDeposit: 500,
			domain.TxAirtime: 200,
			domain.TxData:    200,
		},
		RedemptionPointsPerUnit: 10,
	}
}
