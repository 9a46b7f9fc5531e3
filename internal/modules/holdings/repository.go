// Package holdings provides the repository for aggregated positions.
// A holding is one asset's aggregated position within one portfolio:
// quantity, average cost basis, cumulative realized gain and dividends.
// Holdings are mutated only by the impact service, atomically with the
// ledger transaction that causes the change.
package holdings

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
)

// Repository handles holding persistence in portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// HoldingWithAsset joins a holding with its asset for valuation and display
type HoldingWithAsset struct {
	domain.Holding
	Symbol       string           `json:"symbol"`
	AssetName    string           `json:"asset_name"`
	AssetType    domain.AssetType `json:"asset_type"`
	Currency     domain.Currency  `json:"currency"`
	CurrentPrice float64          `json:"current_price"`
}

// Get returns the holding for a portfolio/asset pair.
// Returns nil if no holding exists (not an error - flat position).
func (r *Repository) Get(portfolioID, assetID int64) (*domain.Holding, error) {
	var h domain.Holding
	var updatedAt int64

	err := r.db.QueryRow(`
		SELECT portfolio_id, asset_id, quantity, avg_cost_basis, realized_gain_loss, total_dividends, updated_at
		FROM holdings WHERE portfolio_id = ? AND asset_id = ?
	`, portfolioID, assetID).Scan(
		&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgCostBasis,
		&h.RealizedGainLoss, &h.TotalDividends, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %d/%d: %w", portfolioID, assetID, err)
	}

	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &h, nil
}

// GetTx returns the holding for a portfolio/asset pair within a transaction.
// Used by the impact service so read-modify-write stays atomic.
func (r *Repository) GetTx(tx *sql.Tx, portfolioID, assetID int64) (*domain.Holding, error) {
	var h domain.Holding
	var updatedAt int64

	err := tx.QueryRow(`
		SELECT portfolio_id, asset_id, quantity, avg_cost_basis, realized_gain_loss, total_dividends, updated_at
		FROM holdings WHERE portfolio_id = ? AND asset_id = ?
	`, portfolioID, assetID).Scan(
		&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgCostBasis,
		&h.RealizedGainLoss, &h.TotalDividends, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %d/%d: %w", portfolioID, assetID, err)
	}

	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &h, nil
}

// UpsertTx inserts or updates a holding within a transaction
func (r *Repository) UpsertTx(tx *sql.Tx, h domain.Holding) error {
	now := time.Now().Unix()

	_, err := tx.Exec(`
		INSERT INTO holdings (portfolio_id, asset_id, quantity, avg_cost_basis, realized_gain_loss, total_dividends, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, asset_id) DO UPDATE SET
			quantity = excluded.quantity,
			avg_cost_basis = excluded.avg_cost_basis,
			realized_gain_loss = excluded.realized_gain_loss,
			total_dividends = excluded.total_dividends,
			updated_at = excluded.updated_at
	`, h.PortfolioID, h.AssetID, h.Quantity, h.AvgCostBasis, h.RealizedGainLoss, h.TotalDividends, now)
	if err != nil {
		return fmt.Errorf("failed to upsert holding %d/%d: %w", h.PortfolioID, h.AssetID, err)
	}

	return nil
}

// GetByPortfolio returns all holdings for a portfolio joined with asset info.
// Holdings with zero quantity and zero realized amounts are included so that
// fully sold positions still show their realized history.
func (r *Repository) GetByPortfolio(portfolioID int64) ([]HoldingWithAsset, error) {
	rows, err := r.db.Query(`
		SELECT h.portfolio_id, h.asset_id, h.quantity, h.avg_cost_basis,
		       h.realized_gain_loss, h.total_dividends, h.updated_at,
		       a.symbol, a.name, a.type, a.currency, a.current_price
		FROM holdings h
		JOIN assets a ON a.id = h.asset_id
		WHERE h.portfolio_id = ?
		ORDER BY a.symbol
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for portfolio %d: %w", portfolioID, err)
	}
	defer rows.Close()

	result := make([]HoldingWithAsset, 0)
	for rows.Next() {
		var h HoldingWithAsset
		var assetType, currency string
		var updatedAt int64

		err := rows.Scan(
			&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgCostBasis,
			&h.RealizedGainLoss, &h.TotalDividends, &updatedAt,
			&h.Symbol, &h.AssetName, &assetType, &currency, &h.CurrentPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding row: %w", err)
		}

		h.AssetType = domain.AssetType(assetType)
		h.Currency = domain.Currency(currency)
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return result, nil
}

// DeleteEmptyTx removes a holding row when everything it tracks is back to
// zero (after reversing the only transaction that created it). Keeps the
// holdings table free of all-zero rows.
func (r *Repository) DeleteEmptyTx(tx *sql.Tx, portfolioID, assetID int64) error {
	_, err := tx.Exec(`
		DELETE FROM holdings
		WHERE portfolio_id = ? AND asset_id = ?
		  AND quantity = 0 AND avg_cost_basis = 0
		  AND realized_gain_loss = 0 AND total_dividends = 0
	`, portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to delete empty holding %d/%d: %w", portfolioID, assetID, err)
	}
	return nil
}
