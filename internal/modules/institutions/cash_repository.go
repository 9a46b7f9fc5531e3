// This file implements the CashRepository, which handles per-currency cash
// balances for institutions. Cash balances represent current holdings in
// various currencies (EUR, USD, HKD, GBP, etc.) at one bank or broker.
package institutions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CashRepository handles institution cash balance persistence in portfolio.db.
// This follows the "cash-as-balances" architecture where cash is tracked
// separately from holdings, allowing for multi-currency portfolios.
type CashRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCashRepository creates a new institution cash repository
func NewCashRepository(db *sql.DB, log zerolog.Logger) *CashRepository {
	return &CashRepository{
		db:  db,
		log: log.With().Str("repo", "institution_cash").Logger(),
	}
}

// Get returns the cash balance of an institution for the given currency.
// Returns 0.0 if no row exists (not an error - zero balance is valid).
func (r *CashRepository) Get(institutionID int64, currency string) (float64, error) {
	var balance float64
	err := r.db.QueryRow(
		"SELECT balance FROM institution_cash WHERE institution_id = ? AND currency = ?",
		institutionID, currency,
	).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0.0, nil // No balance = zero, not an error
	}
	if err != nil {
		return 0.0, fmt.Errorf("failed to get cash balance for institution %d %s: %w", institutionID, currency, err)
	}

	return balance, nil
}

// GetAll returns all cash balances of an institution as a map of currency -> balance
func (r *CashRepository) GetAll(institutionID int64) (map[string]float64, error) {
	rows, err := r.db.Query(
		"SELECT currency, balance FROM institution_cash WHERE institution_id = ?",
		institutionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]float64)
	for rows.Next() {
		var currency string
		var balance float64
		if err := rows.Scan(&currency, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan cash balance: %w", err)
		}
		balances[currency] = balance
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash balances: %w", err)
	}

	return balances, nil
}

// AdjustTx adds delta (may be negative) to an institution's balance in the
// given currency, creating the row if needed. Runs inside the caller's SQL
// transaction so institution cash moves atomically with portfolio cash.
func (r *CashRepository) AdjustTx(tx *sql.Tx, institutionID int64, currency string, delta float64) error {
	now := time.Now().Unix()

	query := `
		INSERT INTO institution_cash (institution_id, currency, balance, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(institution_id, currency) DO UPDATE SET
			balance = balance + excluded.balance,
			last_updated = excluded.last_updated
	`

	_, err := tx.Exec(query, institutionID, currency, delta, now)
	if err != nil {
		return fmt.Errorf("failed to adjust cash balance for institution %d %s: %w", institutionID, currency, err)
	}

	return nil
}

// Upsert inserts or updates a cash balance for the given currency
func (r *CashRepository) Upsert(institutionID int64, currency string, balance float64) error {
	now := time.Now().Unix()

	query := `
		INSERT INTO institution_cash (institution_id, currency, balance, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(institution_id, currency) DO UPDATE SET
			balance = excluded.balance,
			last_updated = excluded.last_updated
	`

	_, err := r.db.Exec(query, institutionID, currency, balance, now)
	if err != nil {
		return fmt.Errorf("failed to upsert cash balance for institution %d %s: %w", institutionID, currency, err)
	}

	r.log.Debug().
		Int64("institution_id", institutionID).
		Str("currency", currency).
		Float64("balance", balance).
		Msg("Upserted cash balance")

	return nil
}

// Delete removes a cash balance row for the given currency.
// This operation is idempotent - it does not error if the row doesn't exist.
func (r *CashRepository) Delete(institutionID int64, currency string) error {
	result, err := r.db.Exec(
		"DELETE FROM institution_cash WHERE institution_id = ? AND currency = ?",
		institutionID, currency,
	)
	if err != nil {
		return fmt.Errorf("failed to delete cash balance for institution %d %s: %w", institutionID, currency, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.log.Debug().
			Int64("institution_id", institutionID).
			Str("currency", currency).
			Msg("Deleted cash balance")
	}

	return nil
}
