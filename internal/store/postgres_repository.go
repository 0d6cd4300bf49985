/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for the ledger tables: accounts,
 * transactions, savings_accounts, loans, platform_revenue, and
 * idempotency_keys.
 *
 * Atomicity: CommitOperation runs every statement of an operation inside one
 * pgx transaction. Account rows carry a `version` column and updates use a
 * version predicate; zero affected rows aborts the transaction with
 * ErrVersionConflict so the caller can re-read and retry.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/centipay/wallet-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a new wallet account with a starting version of 1.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, wallet_balance, savings_balance, reward_points, premium_tier, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, NOW(), NOW())
		RETURNING version, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		account.ID, account.WalletBalance, account.SavingsBalance, account.RewardPoints, account.PremiumTier,
	).Scan(&account.Version, &account.CreatedAt, &account.UpdatedAt)
}

// FindAccountByID retrieves an account, including its current version for
// optimistic concurrency.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `
		SELECT id, wallet_balance, savings_balance, reward_points, premium_tier, version, created_at, updated_at
		FROM accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.WalletBalance, &account.SavingsBalance, &account.RewardPoints,
		&account.PremiumTier, &account.Version, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListTransactions returns one reverse-chronological page of an account's
// ledger. A zero cursor starts from the newest transaction; otherwise the
// (created_at, id) keyset matches the ORDER BY, so a page boundary inside a
// group of same-timestamp rows resumes at the right row.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, cursor time.Time, cursorID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, account_id, kind, amount, fee, net_amount, direction, status,
		       counterparty_ref, loan_id, savings_id, created_at
		FROM transactions
		WHERE account_id = $1
		  AND ($2::timestamptz IS NULL OR created_at < $2 OR (created_at = $2 AND id < $3::uuid))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`
	var cursorArg, cursorIDArg interface{}
	if !cursor.IsZero() {
		cursorArg = cursor
		cursorIDArg = cursorID
	}
	rows, err := r.db.Query(ctx, query, accountID, cursorArg, cursorIDArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Fee, &tx.NetAmount, &tx.Direction,
			&tx.Status, &tx.CounterpartyRef, &tx.LoanID, &tx.SavingsID, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// FindTransactionByID retrieves a single ledger transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT id, account_id, kind, amount, fee, net_amount, direction, status,
		       counterparty_ref, loan_id, savings_id, created_at
		FROM transactions WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID, &tx.AccountID, &tx.Kind, &tx.Amount, &tx.Fee, &tx.NetAmount, &tx.Direction,
		&tx.Status, &tx.CounterpartyRef, &tx.LoanID, &tx.SavingsID, &tx.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindTransactionByIdempotencyKey resolves a previously committed operation by
// its client-supplied idempotency token.
func (r *PostgresRepository) FindTransactionByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*domain.Transaction, error) {
	var transactionID uuid.UUID
	query := `SELECT transaction_id FROM idempotency_keys WHERE account_id = $1 AND idempotency_key = $2`
	err := r.db.QueryRow(ctx, query, accountID, key).Scan(&transactionID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return r.FindTransactionByID(ctx, transactionID)
}

// FindSavingsByID retrieves a single savings deposit.
func (r *PostgresRepository) FindSavingsByID(ctx context.Context, savingsID uuid.UUID) (*domain.SavingsAccount, error) {
	var s domain.SavingsAccount
	query := `
		SELECT id, account_id, principal, lock_period_months, annual_interest_rate,
		       start_date, maturity_date, status, created_at, updated_at
		FROM savings_accounts WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, savingsID).Scan(
		&s.ID, &s.AccountID, &s.Principal, &s.LockPeriodMonths, &s.AnnualInterestRate,
		&s.StartDate, &s.MaturityDate, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSavingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListActiveSavingsByAccount returns all active (non-withdrawn) deposits for
// an account. Matured deposits still count: they remain collateral until
// withdrawn.
func (r *PostgresRepository) ListActiveSavingsByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.SavingsAccount, error) {
	query := `
		SELECT id, account_id, principal, lock_period_months, annual_interest_rate,
		       start_date, maturity_date, status, created_at, updated_at
		FROM savings_accounts
		WHERE account_id = $1 AND status IN ('active', 'matured')
		ORDER BY start_date ASC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSavingsRows(rows)
}

// ListMaturedActiveSavings returns active deposits whose maturity date has
// passed, for the maturity sweep job.
func (r *PostgresRepository) ListMaturedActiveSavings(ctx context.Context, asOf time.Time) ([]domain.SavingsAccount, error) {
	query := `
		SELECT id, account_id, principal, lock_period_months, annual_interest_rate,
		       start_date, maturity_date, status, created_at, updated_at
		FROM savings_accounts
		WHERE status = 'active' AND maturity_date <= $1
		ORDER BY maturity_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSavingsRows(rows)
}

func scanSavingsRows(rows pgx.Rows) ([]domain.SavingsAccount, error) {
	var out []domain.SavingsAccount
	for rows.Next() {
		var s domain.SavingsAccount
		if err := rows.Scan(
			&s.ID, &s.AccountID, &s.Principal, &s.LockPeriodMonths, &s.AnnualInterestRate,
			&s.StartDate, &s.MaturityDate, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindLoanByID retrieves a single loan.
func (r *PostgresRepository) FindLoanByID(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	query := loanSelect + ` WHERE id = $1`
	row := r.db.QueryRow(ctx, query, loanID)
	loan, err := scanLoanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// FindOpenLoanByAccount returns the account's active or overdue loan, if any.
// At most one can exist under the single-loan policy.
func (r *PostgresRepository) FindOpenLoanByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Loan, error) {
	query := loanSelect + ` WHERE account_id = $1 AND status IN ('active', 'overdue') LIMIT 1`
	row := r.db.QueryRow(ctx, query, accountID)
	loan, err := scanLoanRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListLoansPastDue returns active/overdue loans whose due date has passed
// with a balance outstanding, for the overdue/default sweep.
func (r *PostgresRepository) ListLoansPastDue(ctx context.Context, asOf time.Time) ([]domain.Loan, error) {
	query := loanSelect + `
		WHERE status IN ('active', 'overdue') AND due_date < $1 AND remaining_amount > 0
		ORDER BY due_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		loan, err := scanLoanRow(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

const loanSelect = `
	SELECT id, account_id, collateral_savings_value, principal, interest_rate, term_months,
	       total_repayment, repaid_amount, remaining_amount, status, disbursement_date, due_date,
	       created_at, updated_at
	FROM loans`

func scanLoanRow(row pgx.Row) (*domain.Loan, error) {
	var loan domain.Loan
	err := row.Scan(
		&loan.ID, &loan.AccountID, &loan.CollateralSavingsValue, &loan.Principal, &loan.InterestRate,
		&loan.TermMonths, &loan.TotalRepayment, &loan.RepaidAmount, &loan.RemainingAmount,
		&loan.Status, &loan.DisbursementDate, &loan.DueDate, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// PlatformRevenueBalance returns the operator ledger balance: the running sum
// of all fee/interest/penalty entries minus all payouts.
func (r *PostgresRepository) PlatformRevenueBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM platform_revenue WHERE id = 1`).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// CommitOperation applies a full ledger operation inside one database
// transaction. On any failure nothing is applied.
func (r *PostgresRepository) CommitOperation(ctx context.Context, commit OperationCommit) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	// Register the idempotency key first so duplicate submissions fail before
	// touching balances.
	if commit.IdempotencyKey != "" {
		_, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (account_id, idempotency_key, transaction_id, created_at)
			VALUES ($1, $2, $3, NOW())
		`, commit.IdempotencyAccountID, commit.IdempotencyKey, commit.PrimaryTransactionID)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("register idempotency key: %w", err)
		}
	}

	for _, update := range commit.AccountUpdates {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET wallet_balance = $1, savings_balance = $2, reward_points = $3,
			    version = version + 1, updated_at = NOW()
			WHERE id = $4 AND version = $5
		`, update.NewWalletBalance, update.NewSavingsBalance, update.NewRewardPoints,
			update.AccountID, update.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("update account %s: %w", update.AccountID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrVersionConflict
		}
	}

	for _, txRecord := range commit.Transactions {
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, account_id, kind, amount, fee, net_amount, direction,
			                          status, counterparty_ref, loan_id, savings_id, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, txRecord.ID, txRecord.AccountID, txRecord.Kind, txRecord.Amount, txRecord.Fee,
			txRecord.NetAmount, txRecord.Direction, txRecord.Status, txRecord.CounterpartyRef,
			txRecord.LoanID, txRecord.SavingsID, txRecord.IdempotencyKey, txRecord.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", txRecord.ID, err)
		}
	}

	for _, entry := range commit.RevenueEntries {
		_, err := tx.Exec(ctx, `
			INSERT INTO platform_revenue_entries (id, kind, amount, transaction_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.ID, entry.Kind, entry.Amount, entry.TransactionID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert revenue entry %s: %w", entry.ID, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO platform_revenue (id, balance, updated_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET balance = platform_revenue.balance + $1, updated_at = NOW()
		`, entry.Amount)
		if err != nil {
			return fmt.Errorf("update platform revenue balance: %w", err)
		}
	}

	for _, s := range commit.SavingsInserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO savings_accounts (id, account_id, principal, lock_period_months,
			                              annual_interest_rate, start_date, maturity_date, status,
			                              created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		`, s.ID, s.AccountID, s.Principal, s.LockPeriodMonths, s.AnnualInterestRate,
			s.StartDate, s.MaturityDate, s.Status)
		if err != nil {
			return fmt.Errorf("insert savings %s: %w", s.ID, err)
		}
	}

	for _, s := range commit.SavingsUpdates {
		_, err := tx.Exec(ctx, `
			UPDATE savings_accounts SET status = $1, updated_at = NOW() WHERE id = $2
		`, s.Status, s.ID)
		if err != nil {
			return fmt.Errorf("update savings %s: %w", s.ID, err)
		}
	}

	for _, loan := range commit.LoanInserts {
		_, err := tx.Exec(ctx, `
			INSERT INTO loans (id, account_id, collateral_savings_value, principal, interest_rate,
			                   term_months, total_repayment, repaid_amount, remaining_amount, status,
			                   disbursement_date, due_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		`, loan.ID, loan.AccountID, loan.CollateralSavingsValue, loan.Principal, loan.InterestRate,
			loan.TermMonths, loan.TotalRepayment, loan.RepaidAmount, loan.RemainingAmount,
			loan.Status, loan.DisbursementDate, loan.DueDate)
		if err != nil {
			return fmt.Errorf("insert loan %s: %w", loan.ID, err)
		}
	}

	for _, loan := range commit.LoanUpdates {
		_, err := tx.Exec(ctx, `
			UPDATE loans SET repaid_amount = $1, remaining_amount = $2, status = $3, updated_at = NOW()
			WHERE id = $4
		`, loan.RepaidAmount, loan.RemainingAmount, loan.Status, loan.ID)
		if err != nil {
			return fmt.Errorf("update loan %s: %w", loan.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
