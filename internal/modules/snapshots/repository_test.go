package snapshots

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apostolou/hestia/internal/modules/portfolio"
)

func setupTestRepo(t *testing.T) *Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE valuation_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio_id INTEGER NOT NULL,
			snapshot_date TEXT NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(portfolio_id, snapshot_date)
		);
	`)
	require.NoError(t, err)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewRepository(db, logger)
}

func testValuation(portfolioID int64, total, cash float64) portfolio.Valuation {
	return portfolio.Valuation{
		PortfolioID:   portfolioID,
		Name:          "Family",
		MainCurrency:  "EUR",
		CashBalance:   cash,
		HoldingsValue: total - cash,
		TotalValue:    total,
		Positions: []portfolio.Position{
			{AssetID: 1, Symbol: "VWCE.DE", Quantity: 10, MarketValue: total - cash},
		},
	}
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	v := testValuation(1, 5000, 1000)
	require.NoError(t, repo.Store("2026-03-10", v))

	s, err := repo.Get(1, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(1), s.PortfolioID)
	assert.Equal(t, "2026-03-10", s.SnapshotDate)
	assert.InDelta(t, 5000.0, s.Valuation.TotalValue, 1e-9)
	require.Len(t, s.Valuation.Positions, 1)
	assert.Equal(t, "VWCE.DE", s.Valuation.Positions[0].Symbol)
}

func TestStoreReplacesSameDay(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("2026-03-10", testValuation(1, 5000, 1000)))
	require.NoError(t, repo.Store("2026-03-10", testValuation(1, 5200, 1000)))

	s, err := repo.Get(1, "2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.InDelta(t, 5200.0, s.Valuation.TotalValue, 1e-9)

	points, err := repo.GetHistory(1, "", "")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)

	s, err := repo.Get(1, "2026-03-10")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetHistoryRangeAndOrder(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("2026-03-12", testValuation(1, 5100, 1000)))
	require.NoError(t, repo.Store("2026-03-10", testValuation(1, 5000, 1000)))
	require.NoError(t, repo.Store("2026-03-14", testValuation(1, 5300, 1000)))
	require.NoError(t, repo.Store("2026-03-10", testValuation(2, 900, 900)))

	points, err := repo.GetHistory(1, "", "")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "2026-03-10", points[0].SnapshotDate) // oldest first
	assert.Equal(t, "2026-03-14", points[2].SnapshotDate)

	ranged, err := repo.GetHistory(1, "2026-03-11", "2026-03-13")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "2026-03-12", ranged[0].SnapshotDate)
	assert.InDelta(t, 5100.0, ranged[0].TotalValue, 1e-9)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Store("2025-01-01", testValuation(1, 4000, 500)))
	require.NoError(t, repo.Store("2026-03-10", testValuation(1, 5000, 1000)))

	deleted, err := repo.DeleteOlderThan("2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	points, err := repo.GetHistory(1, "", "")
	require.NoError(t, err)
	assert.Len(t, points, 1)
}
