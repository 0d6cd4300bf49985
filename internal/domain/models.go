/**
 * @description
 * This file defines the core domain models for the wallet ledger engine.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (minor units),
 *   which avoids floating-point inaccuracies with financial data. Interest rates
 *   are the only floating-point values and are converted to minor units at the
 *   ledger boundary.
 * - Using distinct types for API requests and database models keeps the
 *   separation of concerns between layers explicit.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PremiumTier is a user's subscription level. It affects fee discounts,
// savings interest rates, and loan interest rates.
type PremiumTier string

const (
	TierBasic PremiumTier = "basic"
	TierPlus  PremiumTier = "plus"
	TierVIP   PremiumTier = "vip"
)

// ValidTier reports whether t is one of the known premium tiers.
func ValidTier(t PremiumTier) bool {
	switch t {
	case TierBasic, TierPlus, TierVIP:
		return true
	}
	return false
}

// FeeKind identifies the pricing class of an operation for the fee engine.
type FeeKind string

const (
	FeeP2P        FeeKind = "p2p"
	FeeWithdrawal FeeKind = "withdrawal"
	FeeMerchantQR FeeKind = "merchant_qr"
	FeeAirtime    FeeKind = "airtime"
	FeeData       FeeKind = "data"
	FeeDeposit    FeeKind = "deposit"
	FeeScheduled  FeeKind = "scheduled"
)

// ValidFeeKind reports whether k is a known fee pricing class.
func ValidFeeKind(k FeeKind) bool {
	switch k {
	case FeeP2P, FeeWithdrawal, FeeMerchantQR, FeeAirtime, FeeData, FeeDeposit, FeeScheduled:
		return true
	}
	return false
}

// OperationKind identifies a client-requested ledger operation.
type OperationKind string

const (
	OpTransfer        OperationKind = "transfer"
	OpDeposit         OperationKind = "deposit"
	OpWithdrawal      OperationKind = "withdrawal"
	OpAirtime         OperationKind = "airtime"
	OpData            OperationKind = "data"
	OpMerchantQR      OperationKind = "merchant_qr"
	OpScheduled       OperationKind = "scheduled"
	OpSavingsOpen     OperationKind = "savings_open"
	OpSavingsWithdraw OperationKind = "savings_withdraw"
	OpLoanApply       OperationKind = "loan_apply"
	OpLoanRepay       OperationKind = "loan_repay"
	OpRewardRedeem    OperationKind = "reward_redeem"
)

// Account is the per-user wallet aggregate. WalletBalance is the spendable
// balance; SavingsBalance is derived from the user's active savings deposits;
// Version supports optimistic concurrency on ledger commits.
type Account struct {
	ID             uuid.UUID   `json:"id"`
	WalletBalance  int64       `json:"wallet_balance"`  // in minor units, never negative
	SavingsBalance int64       `json:"savings_balance"` // derived, in minor units
	RewardPoints   int64       `json:"reward_points"`
	PremiumTier    PremiumTier `json:"premium_tier"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// AccountIdentity is the read-only identity supplied by the upstream
// auth/session layer for every engine call.
type AccountIdentity struct {
	ID          uuid.UUID   `json:"id"`
	PremiumTier PremiumTier `json:"premium_tier"`
}

// AccountSnapshot is the balance view exposed to the UI/reporting layer.
type AccountSnapshot struct {
	WalletBalance  int64 `json:"wallet_balance"`
	SavingsBalance int64 `json:"savings_balance"`
	RewardPoints   int64 `json:"reward_points"`
}

// TransactionKind classifies a ledger transaction row.
type TransactionKind string

const (
	TxSend              TransactionKind = "send"
	TxReceive           TransactionKind = "receive"
	TxDeposit           TransactionKind = "deposit"
	TxWithdrawal        TransactionKind = "withdrawal"
	TxAirtime           TransactionKind = "airtime"
	TxData              TransactionKind = "data"
	TxSavingsDeposit    TransactionKind = "savings_deposit"
	TxSavingsWithdrawal TransactionKind = "savings_withdrawal"
	TxReward            TransactionKind = "reward"
	TxLoanDisbursement  TransactionKind = "loan_disbursement"
	TxLoanRepayment     TransactionKind = "loan_repayment"
	TxSubscription      TransactionKind = "subscription"
)

// Direction is the economic direction of a transaction on the account's wallet.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Transaction is the immutable ledger record for one account-side movement.
// Amount is always the face amount of the operation; Fee and NetAmount carry
// the fee-engine breakdown for the kind.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	Kind            TransactionKind `json:"kind"`
	Amount          int64           `json:"amount"`
	Fee             int64           `json:"fee"`
	NetAmount       int64           `json:"net_amount"`
	Direction       Direction       `json:"direction"`
	Status          string          `json:"status"` // 'pending', 'completed', 'failed'
	CounterpartyRef *string         `json:"counterparty_ref,omitempty"`
	LoanID          *uuid.UUID      `json:"loan_id,omitempty"`
	SavingsID       *uuid.UUID      `json:"savings_id,omitempty"`
	IdempotencyKey  *string         `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SignedAmount is the exact wallet delta this transaction applied. Replaying
// all of an account's transactions in order and summing SignedAmount must
// reconstruct the wallet balance.
//
// The fee asymmetry is deliberate: a withdrawal debits the full requested
// amount and the user receives amount-fee, while send-style operations debit
// amount+fee and the counterparty receives the full face amount.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionCredit {
		return t.NetAmount
	}
	if t.Kind == TxWithdrawal {
		return -t.Amount
	}
	return -(t.Amount + t.Fee)
}

// SavingsStatus is the lifecycle state of a savings deposit.
type SavingsStatus string

const (
	SavingsActive    SavingsStatus = "active"
	SavingsMatured   SavingsStatus = "matured"
	SavingsWithdrawn SavingsStatus = "withdrawn"
)

// SavingsAccount is one time-locked deposit. AnnualInterestRate is resolved
// from the account's tier at creation and frozen for the life of the deposit,
// even if the tier later changes.
type SavingsAccount struct {
	ID                 uuid.UUID     `json:"id"`
	AccountID          uuid.UUID     `json:"account_id"`
	Principal          int64         `json:"principal"` // in minor units
	LockPeriodMonths   int           `json:"lock_period_months"`
	AnnualInterestRate float64       `json:"annual_interest_rate"` // percent, e.g. 12 = 12%
	StartDate          time.Time     `json:"start_date"`
	MaturityDate       time.Time     `json:"maturity_date"`
	Status             SavingsStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanOverdue   LoanStatus = "overdue"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

// Loan is one collateralized disbursement. CollateralSavingsValue is the
// projected maturity valuation snapshot taken at application time.
type Loan struct {
	ID                     uuid.UUID  `json:"id"`
	AccountID              uuid.UUID  `json:"account_id"`
	CollateralSavingsValue int64      `json:"collateral_savings_value"`
	Principal              int64      `json:"principal"`
	InterestRate           float64    `json:"interest_rate"` // percent annual
	TermMonths             int        `json:"term_months"`
	TotalRepayment         int64      `json:"total_repayment"`
	RepaidAmount           int64      `json:"repaid_amount"`
	RemainingAmount        int64      `json:"remaining_amount"`
	Status                 LoanStatus `json:"status"`
	DisbursementDate       time.Time  `json:"disbursement_date"`
	DueDate                time.Time  `json:"due_date"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// RevenueEntry is one movement on the platform revenue ledger. Amount is
// signed: positive entries are platform income (fees, penalties, loan
// interest), negative entries are platform expenses (maturity interest,
// reward redemptions).
type RevenueEntry struct {
	ID            uuid.UUID `json:"id"`
	Kind          string    `json:"kind"` // e.g. 'fee', 'penalty', 'loan_interest', 'savings_interest', 'reward_redemption'
	Amount        int64     `json:"amount"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// FeeBreakdown is the fee engine's quote for one operation.
type FeeBreakdown struct {
	PercentFee      int64 `json:"percent_fee"`
	FixedFee        int64 `json:"fixed_fee"`
	TotalFee        int64 `json:"total_fee"`
	NetAmount       int64 `json:"net_amount"`
	TotalPayable    int64 `json:"total_payable"`
	PremiumDiscount int64 `json:"premium_discount"`
}

// OperationRequest is the client DTO for a ledger operation. Amount is in
// minor units except for reward_redeem, where it is a point count.
type OperationRequest struct {
	Kind             OperationKind `json:"kind"`
	Amount           int64         `json:"amount"`
	Counterparty     *string       `json:"counterparty,omitempty"`
	SavingsID        *uuid.UUID    `json:"savings_id,omitempty"`
	LockPeriodMonths int           `json:"lock_period_months,omitempty"`
	Description      string        `json:"description,omitempty"`
	IdempotencyKey   string        `json:"idempotency_key,omitempty"`
}

// TransactionPage is one reverse-chronological page of an account's ledger.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
}
