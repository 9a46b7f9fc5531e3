package portfolio

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/holdings"
)

// rateConverter converts using a fixed rate table keyed "FROM:TO"
type rateConverter struct {
	rates map[string]float64
}

func (c *rateConverter) Convert(amount float64, fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return amount, nil
	}
	rate, ok := c.rates[fromCurrency+":"+toCurrency]
	if !ok {
		return 0, fmt.Errorf("no rate for %s:%s", fromCurrency, toCurrency)
	}
	return amount * rate, nil
}

func setupValuationTest(t *testing.T) (*Service, *Repository, *holdings.Repository, *sql.DB) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE portfolios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			main_currency TEXT NOT NULL,
			cash_balance REAL NOT NULL DEFAULT 0,
			cash_discipline INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE assets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			currency TEXT NOT NULL,
			current_price REAL NOT NULL DEFAULT 0,
			deposit_principal REAL,
			deposit_annual_rate REAL,
			deposit_start_date TEXT,
			deposit_maturity_date TEXT,
			deposit_status TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE holdings (
			portfolio_id INTEGER NOT NULL,
			asset_id INTEGER NOT NULL,
			quantity REAL NOT NULL DEFAULT 0,
			avg_cost_basis REAL NOT NULL DEFAULT 0,
			realized_gain_loss REAL NOT NULL DEFAULT 0,
			total_dividends REAL NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (portfolio_id, asset_id)
		);
	`)
	require.NoError(t, err)

	repo := NewRepository(db, logger)
	holdingsRepo := holdings.NewRepository(db, logger)
	converter := &rateConverter{rates: map[string]float64{"USD:EUR": 0.9}}
	service := NewService(repo, holdingsRepo, converter, logger)

	return service, repo, holdingsRepo, db
}

func seedAsset(t *testing.T, db *sql.DB, symbol, assetType, currency string, price float64) int64 {
	res, err := db.Exec(`
		INSERT INTO assets (symbol, name, type, currency, current_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0)
	`, symbol, symbol, assetType, currency, price)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func seedHolding(t *testing.T, db *sql.DB, holdingsRepo *holdings.Repository, h domain.Holding) {
	err := database.WithTransaction(db, func(tx *sql.Tx) error {
		return holdingsRepo.UpsertTx(tx, h)
	})
	require.NoError(t, err)
}

func TestComputeValuation(t *testing.T) {
	service, repo, holdingsRepo, db := setupValuationTest(t)

	p, err := repo.Create("Family", domain.CurrencyEUR, false)
	require.NoError(t, err)

	err = database.WithTransaction(db, func(tx *sql.Tx) error {
		return repo.AdjustCash(tx, p.ID, 1000)
	})
	require.NoError(t, err)

	etf := seedAsset(t, db, "VWCE.DE", "ETF", "EUR", 120)
	seedHolding(t, db, holdingsRepo, domain.Holding{
		PortfolioID: p.ID, AssetID: etf, Quantity: 10, AvgCostBasis: 100,
		RealizedGainLoss: 50, TotalDividends: 20,
	})

	v, err := service.ComputeValuation(p.ID)
	require.NoError(t, err)

	assert.InDelta(t, 1000.0, v.CashBalance, 1e-9)
	assert.InDelta(t, 1200.0, v.HoldingsValue, 1e-9)
	assert.InDelta(t, 2200.0, v.TotalValue, 1e-9)
	assert.InDelta(t, 1000.0, v.CostBasis, 1e-9)
	assert.InDelta(t, 200.0, v.UnrealizedGain, 1e-9)
	assert.InDelta(t, 50.0, v.RealizedGain, 1e-9)
	assert.InDelta(t, 20.0, v.TotalDividends, 1e-9)

	require.Len(t, v.Positions, 1)
	pos := v.Positions[0]
	assert.Equal(t, "VWCE.DE", pos.Symbol)
	assert.InDelta(t, 1200.0/2200.0, pos.Weight, 1e-9)
}

func TestComputeValuationConvertsForeignHoldings(t *testing.T) {
	service, repo, holdingsRepo, db := setupValuationTest(t)

	p, err := repo.Create("Family", domain.CurrencyEUR, false)
	require.NoError(t, err)

	aapl := seedAsset(t, db, "AAPL", "STOCK", "USD", 200)
	seedHolding(t, db, holdingsRepo, domain.Holding{
		PortfolioID: p.ID, AssetID: aapl, Quantity: 10, AvgCostBasis: 150,
	})

	v, err := service.ComputeValuation(p.ID)
	require.NoError(t, err)

	// 10 * 200 USD at 0.9
	assert.InDelta(t, 1800.0, v.HoldingsValue, 1e-9)
	// 10 * 150 USD at 0.9
	assert.InDelta(t, 1350.0, v.CostBasis, 1e-9)
	assert.InDelta(t, 450.0, v.UnrealizedGain, 1e-9)
}

func TestComputeValuationMissingPortfolio(t *testing.T) {
	service, _, _, _ := setupValuationTest(t)

	_, err := service.ComputeValuation(42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestComputeValuationEmptyPortfolio(t *testing.T) {
	service, repo, _, _ := setupValuationTest(t)

	p, err := repo.Create("Empty", domain.CurrencyEUR, false)
	require.NoError(t, err)

	v, err := service.ComputeValuation(p.ID)
	require.NoError(t, err)
	assert.Zero(t, v.TotalValue)
	assert.Empty(t, v.Positions)
}

func TestComputeAllValuations(t *testing.T) {
	service, repo, _, _ := setupValuationTest(t)

	_, err := repo.Create("One", domain.CurrencyEUR, false)
	require.NoError(t, err)
	_, err = repo.Create("Two", domain.CurrencyUSD, false)
	require.NoError(t, err)

	all, err := service.ComputeAllValuations()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
