/**
 * @description
 * The fee engine prices wallet operations. It is a pure calculator over the
 * injected RateTables: banded percent+fixed fees for p2p-style transfers, flat
 * capped rules for withdrawals and merchant QR payments, and tier discounts
 * applied after the band/cap computation.
 *
 * Net-amount semantics differ by kind and are a named contract:
 *   - withdrawal: the user receives amount-fee, the ledger debit is amount.
 *   - p2p / merchant_qr / scheduled / deposit: the counterparty receives the
 *     full face amount, the payer's total debit is amount+fee.
 */

package fees

import (
	"math"

	"github.com/centipay/wallet-service/internal/config"
	"github.com/centipay/wallet-service/internal/domain"
)

// Engine quotes fees for wallet operations. It carries no state beyond the
// rate tables and performs no I/O.
type Engine struct {
	tables config.RateTables
}

// NewEngine creates a fee engine bound to one rate-table version.
func NewEngine(tables config.RateTables) *Engine {
	return &Engine{tables: tables}
}

// Quote computes the fee breakdown for an operation of the given kind and
// amount under the caller's tier. Amounts are minor units. The only failure
// modes are an invalid enum input or a non-positive amount.
func (e *Engine) Quote(amount int64, kind domain.FeeKind, tier domain.PremiumTier) (domain.FeeBreakdown, error) {
	if !domain.ValidFeeKind(kind) {
		return domain.FeeBreakdown{}, domain.ErrInvalidOperationKind
	}
	if !domain.ValidTier(tier) {
		return domain.FeeBreakdown{}, domain.ErrInvalidTier
	}
	if amount <= 0 {
		return domain.FeeBreakdown{}, domain.ErrInvalidAmount
	}

	percentFee, fixedFee := e.baseFee(amount, kind)
	baseFee := percentFee + fixedFee

	discountPct := e.tables.TierDiscounts[tier][kind]
	discounted := roundHalfUp(float64(baseFee) * (1 - discountPct/100))
	if discounted < 0 {
		discounted = 0
	}

	b := domain.FeeBreakdown{
		PercentFee:      percentFee,
		FixedFee:        fixedFee,
		TotalFee:        discounted,
		PremiumDiscount: baseFee - discounted,
	}

	// The side that absorbs the fee depends on the kind.
	if kind == domain.FeeWithdrawal {
		// The user receives amount-fee, so the flat fixed component can eat a
		// tiny withdrawal whole. Nothing (or less) to pay out is invalid.
		if b.TotalFee >= amount {
			return domain.FeeBreakdown{}, domain.ErrInvalidAmount
		}
		b.NetAmount = amount - b.TotalFee
		b.TotalPayable = amount
	} else {
		b.NetAmount = amount
		b.TotalPayable = amount + b.TotalFee
	}
	return b, nil
}

// baseFee computes the pre-discount percent and fixed components, with the
// percent component already clamped so percent+fixed never exceeds the cap.
func (e *Engine) baseFee(amount int64, kind domain.FeeKind) (percentFee, fixedFee int64) {
	switch kind {
	case domain.FeeAirtime, domain.FeeData, domain.FeeDeposit:
		return 0, 0
	case domain.FeeWithdrawal:
		return applyFlatRule(amount, e.tables.Withdrawal)
	case domain.FeeMerchantQR:
		return applyFlatRule(amount, e.tables.MerchantQR)
	case domain.FeeP2P, domain.FeeScheduled:
		// Scheduled transfers price off the p2p band table; the scheduled
		// discount column (vip 100%) is what differentiates them.
		band, ok := findBand(amount, e.tables.P2PBands)
		if !ok {
			return 0, 0
		}
		return applyFlatRule(amount, config.FlatFeeRule{Percent: band.Percent, Fixed: band.Fixed, Cap: band.Cap})
	}
	return 0, 0
}

func findBand(amount int64, bands []config.FeeBand) (config.FeeBand, bool) {
	for _, band := range bands {
		if amount < band.MinAmount {
			continue
		}
		if band.MaxAmount == 0 || amount <= band.MaxAmount {
			return band, true
		}
	}
	return config.FeeBand{}, false
}

func applyFlatRule(amount int64, rule config.FlatFeeRule) (percentFee, fixedFee int64) {
	if rule.Percent == 0 && rule.Fixed == 0 {
		return 0, 0
	}
	raw := float64(amount)*rule.Percent/100 + float64(rule.Fixed)
	if rule.Cap > 0 && raw > float64(rule.Cap) {
		raw = float64(rule.Cap)
	}
	total := roundHalfUp(raw)
	fixedFee = rule.Fixed
	if fixedFee > total {
		fixedFee = total
	}
	return total - fixedFee, fixedFee
}

func roundHalfUp(v float64) int64 {
	return int64(math.Round(v))
}
