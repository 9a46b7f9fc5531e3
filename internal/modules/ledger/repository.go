// Package ledger provides the repository for the immutable transaction
// audit trail in ledger.db. Rows are inserted when a transaction is booked
// and removed only when the impact service has reversed their effect on
// portfolio state.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
)

// Repository handles transaction persistence in ledger.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Filter narrows transaction queries
type Filter struct {
	PortfolioID int64  // 0 = all portfolios
	AssetID     int64  // 0 = all assets
	Type        string // "" = all types
	FromDate    string // inclusive, YYYY-MM-DD, "" = open
	ToDate      string // inclusive, YYYY-MM-DD, "" = open
	Limit       int    // 0 = default 100
}

// InsertTx inserts a transaction row within an SQL transaction.
// Used by the impact service so the ledger row and its portfolio-state
// effects commit or roll back together.
func (r *Repository) InsertTx(tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, portfolio_id, asset_id, institution_id, type,
			quantity, price, amount, fees, tax, currency, currency_rate,
			realized_gain, prior_avg_cost, trade_date, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.PortfolioID, t.AssetID, t.InstitutionID, string(t.Type),
		t.Quantity, t.Price, t.Amount, t.Fees, t.Tax, string(t.Currency), t.CurrencyRate,
		t.RealizedGain, t.PriorAvgCost, t.TradeDate, t.Note, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}

	return nil
}

// DeleteTx removes a transaction row within an SQL transaction
func (r *Repository) DeleteTx(tx *sql.Tx, id string) error {
	result, err := tx.Exec("DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}

	return nil
}

// GetByID returns a transaction by ID.
// Returns nil if the transaction doesn't exist (not an error).
func (r *Repository) GetByID(id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(selectTransactionQuery+" WHERE id = ?", id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return t, nil
}

// GetAll returns transactions matching the filter, newest first
func (r *Repository) GetAll(f Filter) ([]domain.Transaction, error) {
	query := selectTransactionQuery + " WHERE 1=1"
	args := []interface{}{}

	if f.PortfolioID > 0 {
		query += " AND portfolio_id = ?"
		args = append(args, f.PortfolioID)
	}
	if f.AssetID > 0 {
		query += " AND asset_id = ?"
		args = append(args, f.AssetID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.FromDate != "" {
		query += " AND trade_date >= ?"
		args = append(args, f.FromDate)
	}
	if f.ToDate != "" {
		query += " AND trade_date <= ?"
		args = append(args, f.ToDate)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY trade_date DESC, created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// Summary holds aggregate counts and totals over the whole ledger
type Summary struct {
	TotalCount       int64   `json:"total_count"`
	BuyCount         int64   `json:"buy_count"`
	SellCount        int64   `json:"sell_count"`
	TotalBought      float64 `json:"total_bought"`
	TotalSold        float64 `json:"total_sold"`
	TotalDeposits    float64 `json:"total_deposits"`
	TotalWithdrawals float64 `json:"total_withdrawals"`
	TotalDividends   float64 `json:"total_dividends"`
	TotalInterest    float64 `json:"total_interest"`
	TotalFees        float64 `json:"total_fees"`
}

// GetSummary returns aggregate ledger statistics for a portfolio
// (portfolioID 0 = all portfolios). Monetary totals are in transaction
// currency converted at the booked currency rate, i.e. portfolio currency.
// Dividend and interest totals are gross amounts before tax, matching the
// figures booked on each row; the P&L report is the net-of-tax view.
func (r *Repository) GetSummary(portfolioID int64) (*Summary, error) {
	query := `
		SELECT
			COUNT(*),
			SUM(CASE WHEN type = 'BUY' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'SELL' THEN 1 ELSE 0 END),
			SUM(CASE WHEN type = 'BUY' THEN (quantity * price + fees + tax) * currency_rate ELSE 0 END),
			SUM(CASE WHEN type = 'SELL' THEN (quantity * price - fees - tax) * currency_rate ELSE 0 END),
			SUM(CASE WHEN type = 'DEPOSIT' THEN amount * currency_rate ELSE 0 END),
			SUM(CASE WHEN type = 'WITHDRAWAL' THEN amount * currency_rate ELSE 0 END),
			SUM(CASE WHEN type = 'DIVIDEND' THEN amount * currency_rate ELSE 0 END),
			SUM(CASE WHEN type = 'INTEREST' THEN amount * currency_rate ELSE 0 END),
			SUM(fees * currency_rate)
		FROM transactions WHERE 1=1
	`
	args := []interface{}{}
	if portfolioID > 0 {
		query += " AND portfolio_id = ?"
		args = append(args, portfolioID)
	}

	var s Summary
	var buyCount, sellCount sql.NullInt64
	var bought, sold, deposits, withdrawals, dividends, interest, fees sql.NullFloat64

	err := r.db.QueryRow(query, args...).Scan(&s.TotalCount, &buyCount, &sellCount,
		&bought, &sold, &deposits, &withdrawals, &dividends, &interest, &fees)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions summary: %w", err)
	}

	s.BuyCount = buyCount.Int64
	s.SellCount = sellCount.Int64
	s.TotalBought = bought.Float64
	s.TotalSold = sold.Float64
	s.TotalDeposits = deposits.Float64
	s.TotalWithdrawals = withdrawals.Float64
	s.TotalDividends = dividends.Float64
	s.TotalInterest = interest.Float64
	s.TotalFees = fees.Float64

	return &s, nil
}

const selectTransactionQuery = `
	SELECT id, portfolio_id, asset_id, institution_id, type, quantity, price,
	       amount, fees, tax, currency, currency_rate, realized_gain,
	       prior_avg_cost, trade_date, note, created_at
	FROM transactions`

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var txType, currency string
	var assetID, institutionID sql.NullInt64
	var note sql.NullString
	var createdAt int64

	err := s.Scan(&t.ID, &t.PortfolioID, &assetID, &institutionID, &txType,
		&t.Quantity, &t.Price, &t.Amount, &t.Fees, &t.Tax, &currency, &t.CurrencyRate,
		&t.RealizedGain, &t.PriorAvgCost, &t.TradeDate, &note, &createdAt)
	if err != nil {
		return nil, err
	}

	t.Type = domain.TransactionType(txType)
	t.Currency = domain.Currency(currency)
	if assetID.Valid {
		t.AssetID = &assetID.Int64
	}
	if institutionID.Valid {
		t.InstitutionID = &institutionID.Int64
	}
	if note.Valid {
		t.Note = note.String
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &t, nil
}
