// Package assets provides the repository for tradeable and deposit instruments.
package assets

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
)

// Repository handles asset persistence in portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new asset repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "assets").Logger(),
	}
}

// Create inserts a new asset and returns it with its assigned ID
func (r *Repository) Create(a domain.Asset) (*domain.Asset, error) {
	now := time.Now()

	var depositStatus *string
	if a.DepositStatus != nil {
		s := string(*a.DepositStatus)
		depositStatus = &s
	}

	result, err := r.db.Exec(`
		INSERT INTO assets (symbol, name, type, currency, current_price,
			deposit_principal, deposit_annual_rate, deposit_start_date,
			deposit_maturity_date, deposit_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Symbol, a.Name, string(a.Type), string(a.Currency), a.CurrentPrice,
		a.DepositPrincipal, a.DepositAnnualRate, a.DepositStartDate,
		a.DepositMaturityDate, depositStatus, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create asset %s: %w", a.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get asset id: %w", err)
	}

	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now

	r.log.Info().Int64("id", id).Str("symbol", a.Symbol).Str("type", string(a.Type)).Msg("Created asset")

	return &a, nil
}

// GetByID returns an asset by ID.
// Returns nil if the asset doesn't exist (not an error).
func (r *Repository) GetByID(id int64) (*domain.Asset, error) {
	row := r.db.QueryRow(selectAssetQuery+" WHERE id = ?", id)

	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %d: %w", id, err)
	}
	return a, nil
}

// GetBySymbol returns an asset by symbol.
// Returns nil if the asset doesn't exist (not an error).
func (r *Repository) GetBySymbol(symbol string) (*domain.Asset, error) {
	row := r.db.QueryRow(selectAssetQuery+" WHERE symbol = ?", symbol)

	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return a, nil
}

// GetAll returns all assets, optionally filtered by type
func (r *Repository) GetAll(assetType string) ([]domain.Asset, error) {
	query := selectAssetQuery
	args := []interface{}{}

	if assetType != "" {
		query += " WHERE type = ?"
		args = append(args, assetType)
	}
	query += " ORDER BY symbol"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return result, nil
}

// UpdatePrice updates the current price of an asset
func (r *Repository) UpdatePrice(id int64, price float64) error {
	result, err := r.db.Exec(`
		UPDATE assets SET current_price = ?, updated_at = ? WHERE id = ?
	`, price, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update price for asset %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", id)
	}

	r.log.Debug().Int64("id", id).Float64("price", price).Msg("Updated asset price")
	return nil
}

// UpdateDepositStatus updates the lifecycle status of a fixed-deposit asset
func (r *Repository) UpdateDepositStatus(id int64, status domain.DepositStatus) error {
	result, err := r.db.Exec(`
		UPDATE assets SET deposit_status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update deposit status for asset %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d not found", id)
	}

	r.log.Info().Int64("id", id).Str("status", string(status)).Msg("Updated deposit status")
	return nil
}

// GetFixedDeposits returns all fixed-deposit assets, optionally filtered by status
func (r *Repository) GetFixedDeposits(status string) ([]domain.Asset, error) {
	query := selectAssetQuery + " WHERE type = ?"
	args := []interface{}{string(domain.AssetTypeFixedDeposit)}

	if status != "" {
		query += " AND deposit_status = ?"
		args = append(args, status)
	}
	query += " ORDER BY deposit_maturity_date"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fixed deposits: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fixed deposit row: %w", err)
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fixed deposits: %w", err)
	}

	return result, nil
}

// Delete removes an asset. Fails on foreign key constraint if holdings
// still reference it.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM assets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete asset %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		r.log.Info().Int64("id", id).Msg("Deleted asset")
	}

	return nil
}

const selectAssetQuery = `
	SELECT id, symbol, name, type, currency, current_price,
	       deposit_principal, deposit_annual_rate, deposit_start_date,
	       deposit_maturity_date, deposit_status, created_at, updated_at
	FROM assets`

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAsset(s scanner) (*domain.Asset, error) {
	var a domain.Asset
	var assetType, currency string
	var depositStatus sql.NullString
	var principal, annualRate sql.NullFloat64
	var startDate, maturityDate sql.NullString
	var createdAt, updatedAt int64

	err := s.Scan(&a.ID, &a.Symbol, &a.Name, &assetType, &currency, &a.CurrentPrice,
		&principal, &annualRate, &startDate, &maturityDate, &depositStatus,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.Type = domain.AssetType(assetType)
	a.Currency = domain.Currency(currency)
	if principal.Valid {
		a.DepositPrincipal = &principal.Float64
	}
	if annualRate.Valid {
		a.DepositAnnualRate = &annualRate.Float64
	}
	if startDate.Valid {
		a.DepositStartDate = &startDate.String
	}
	if maturityDate.Valid {
		a.DepositMaturityDate = &maturityDate.String
	}
	if depositStatus.Valid {
		status := domain.DepositStatus(depositStatus.String)
		a.DepositStatus = &status
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	a.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &a, nil
}
