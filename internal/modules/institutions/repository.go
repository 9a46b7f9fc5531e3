// Package institutions provides repositories for banks/brokers and their
// per-currency cash balances. When a portfolio has cash discipline enabled,
// institution-level cash balances mirror every cash effect the impact
// service applies at the portfolio level, in the transaction's currency.
package institutions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
)

// Repository handles institution persistence in portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new institution repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "institutions").Logger(),
	}
}

// Create inserts a new institution for a portfolio
func (r *Repository) Create(portfolioID int64, name string) (*domain.Institution, error) {
	now := time.Now()

	result, err := r.db.Exec(`
		INSERT INTO institutions (portfolio_id, name, created_at)
		VALUES (?, ?, ?)
	`, portfolioID, name, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create institution %s: %w", name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get institution id: %w", err)
	}

	r.log.Info().Int64("id", id).Int64("portfolio_id", portfolioID).Str("name", name).Msg("Created institution")

	return &domain.Institution{
		ID:          id,
		PortfolioID: portfolioID,
		Name:        name,
		CreatedAt:   now,
	}, nil
}

// GetByID returns an institution by ID.
// Returns nil if the institution doesn't exist (not an error).
func (r *Repository) GetByID(id int64) (*domain.Institution, error) {
	var inst domain.Institution
	var createdAt int64

	err := r.db.QueryRow(`
		SELECT id, portfolio_id, name, created_at FROM institutions WHERE id = ?
	`, id).Scan(&inst.ID, &inst.PortfolioID, &inst.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution %d: %w", id, err)
	}

	inst.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &inst, nil
}

// GetByPortfolio returns all institutions for a portfolio
func (r *Repository) GetByPortfolio(portfolioID int64) ([]domain.Institution, error) {
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, name, created_at
		FROM institutions WHERE portfolio_id = ? ORDER BY name
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query institutions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Institution, 0)
	for rows.Next() {
		var inst domain.Institution
		var createdAt int64
		if err := rows.Scan(&inst.ID, &inst.PortfolioID, &inst.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan institution row: %w", err)
		}
		inst.CreatedAt = time.Unix(createdAt, 0).UTC()
		result = append(result, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating institutions: %w", err)
	}

	return result, nil
}

// Delete removes an institution. Its cash rows are removed by cascade.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM institutions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete institution %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		r.log.Info().Int64("id", id).Msg("Deleted institution")
	}

	return nil
}
