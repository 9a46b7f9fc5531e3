// Package snapshots persists end-of-day portfolio valuations so value
// history survives price changes. Snapshot payloads are stored as
// MessagePack blobs in cache.db, one row per portfolio per day.
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/apostolou/hestia/internal/modules/portfolio"
)

// Repository handles valuation snapshot persistence in cache.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshots repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Snapshot is one stored portfolio valuation
type Snapshot struct {
	ID           int64               `json:"id"`
	PortfolioID  int64               `json:"portfolio_id"`
	SnapshotDate string              `json:"snapshot_date"` // YYYY-MM-DD
	Valuation    portfolio.Valuation `json:"valuation"`
	CreatedAt    time.Time           `json:"created_at"`
}

// Point is a compact (date, value) pair for history charts
type Point struct {
	SnapshotDate string  `json:"snapshot_date"`
	TotalValue   float64 `json:"total_value"`
	CashBalance  float64 `json:"cash_balance"`
}

// Store saves a valuation for a date, replacing any snapshot already
// taken for that portfolio on the same day.
func (r *Repository) Store(snapshotDate string, v portfolio.Valuation) error {
	blob, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO valuation_snapshots (portfolio_id, snapshot_date, data, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, snapshot_date) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at
	`, v.PortfolioID, snapshotDate, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// GetHistory returns (date, value) points for a portfolio over an
// optional inclusive date range, oldest first.
func (r *Repository) GetHistory(portfolioID int64, fromDate, toDate string) ([]Point, error) {
	query := `
		SELECT snapshot_date, data FROM valuation_snapshots
		WHERE portfolio_id = ?
	`
	args := []interface{}{portfolioID}
	if fromDate != "" {
		query += " AND snapshot_date >= ?"
		args = append(args, fromDate)
	}
	if toDate != "" {
		query += " AND snapshot_date <= ?"
		args = append(args, toDate)
	}
	query += " ORDER BY snapshot_date ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var date string
		var blob []byte
		if err := rows.Scan(&date, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}

		var v portfolio.Valuation
		if err := msgpack.Unmarshal(blob, &v); err != nil {
			r.log.Warn().Err(err).Str("date", date).Msg("Skipping undecodable snapshot")
			continue
		}

		points = append(points, Point{
			SnapshotDate: date,
			TotalValue:   v.TotalValue,
			CashBalance:  v.CashBalance,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return points, nil
}

// Get returns the full snapshot for a portfolio and date.
// Returns nil if no snapshot exists for that day (not an error).
func (r *Repository) Get(portfolioID int64, snapshotDate string) (*Snapshot, error) {
	var s Snapshot
	var blob []byte
	var createdAt int64

	err := r.db.QueryRow(`
		SELECT id, portfolio_id, snapshot_date, data, created_at
		FROM valuation_snapshots
		WHERE portfolio_id = ? AND snapshot_date = ?
	`, portfolioID, snapshotDate).Scan(&s.ID, &s.PortfolioID, &s.SnapshotDate, &blob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if err := msgpack.Unmarshal(blob, &s.Valuation); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &s, nil
}

// DeleteOlderThan removes snapshots before a cutoff date across all
// portfolios. Returns the number of rows removed.
func (r *Repository) DeleteOlderThan(cutoffDate string) (int64, error) {
	result, err := r.db.Exec(
		"DELETE FROM valuation_snapshots WHERE snapshot_date < ?", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return result.RowsAffected()
}
