// Package portfolio provides repositories and services for portfolio state.
// A portfolio is one family member's account: a cash balance in the main
// currency plus holdings across institutions. Portfolio rows live in
// portfolio.db and are mutated by the impact service when transactions are
// applied or reversed.
package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
)

// Repository handles portfolio persistence in portfolio.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio and returns it with its assigned ID
func (r *Repository) Create(name string, mainCurrency domain.Currency, cashDiscipline bool) (*domain.Portfolio, error) {
	now := time.Now()

	discipline := 0
	if cashDiscipline {
		discipline = 1
	}

	result, err := r.db.Exec(`
		INSERT INTO portfolios (name, main_currency, cash_balance, cash_discipline, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
	`, name, string(mainCurrency), discipline, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio %s: %w", name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio id: %w", err)
	}

	r.log.Info().Int64("id", id).Str("name", name).Msg("Created portfolio")

	return &domain.Portfolio{
		ID:             id,
		Name:           name,
		MainCurrency:   mainCurrency,
		CashBalance:    0,
		CashDiscipline: cashDiscipline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetByID returns a portfolio by ID.
// Returns nil if the portfolio doesn't exist (not an error).
func (r *Repository) GetByID(id int64) (*domain.Portfolio, error) {
	row := r.db.QueryRow(`
		SELECT id, name, main_currency, cash_balance, cash_discipline, created_at, updated_at
		FROM portfolios WHERE id = ?
	`, id)

	p, err := scanPortfolio(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}
	return p, nil
}

// GetAll returns all portfolios ordered by name
func (r *Repository) GetAll() ([]domain.Portfolio, error) {
	rows, err := r.db.Query(`
		SELECT id, name, main_currency, cash_balance, cash_discipline, created_at, updated_at
		FROM portfolios ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
		}
		portfolios = append(portfolios, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// AdjustCash adds delta (may be negative) to the portfolio's cash balance.
// Must run inside the same SQL transaction as the ledger mutation, so it
// takes a *sql.Tx rather than using the repository connection.
func (r *Repository) AdjustCash(tx *sql.Tx, portfolioID int64, delta float64) error {
	result, err := tx.Exec(`
		UPDATE portfolios SET cash_balance = cash_balance + ?, updated_at = ?
		WHERE id = ?
	`, delta, time.Now().Unix(), portfolioID)
	if err != nil {
		return fmt.Errorf("failed to adjust cash for portfolio %d: %w", portfolioID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("portfolio %d not found", portfolioID)
	}

	return nil
}

// Delete removes a portfolio. Institutions, holdings and institution cash
// rows are removed by ON DELETE CASCADE.
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Exec("DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		r.log.Info().Int64("id", id).Msg("Deleted portfolio")
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(s scanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var currency string
	var discipline int
	var createdAt, updatedAt int64

	if err := s.Scan(&p.ID, &p.Name, &currency, &p.CashBalance, &discipline, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.MainCurrency = domain.Currency(currency)
	p.CashDiscipline = discipline == 1
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &p, nil
}
