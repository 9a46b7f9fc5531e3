package impact

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/institutions"
	"github.com/apostolou/hestia/internal/modules/ledger"
	"github.com/apostolou/hestia/internal/modules/portfolio"
)

// fixedConverter returns the same rate for every pair
type fixedConverter struct {
	rate float64
}

func (c *fixedConverter) GetRate(fromCurrency, toCurrency string) (float64, error) {
	return c.rate, nil
}

type testEnv struct {
	service      *Service
	portfolios   *portfolio.Repository
	holdings     *holdings.Repository
	assets       *assets.Repository
	institutions *institutions.Repository
	cash         *institutions.CashRepository
	ledger       *ledger.Repository
	portfolioDB  *sql.DB
	ledgerDB     *sql.DB
}

func setupTestEnv(t *testing.T, rate float64) *testEnv {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	portfolioDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database
	portfolioDB.SetMaxOpenConns(1)
	t.Cleanup(func() { portfolioDB.Close() })

	_, err = portfolioDB.Exec(`
		CREATE TABLE portfolios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			main_currency TEXT NOT NULL,
			cash_balance REAL NOT NULL DEFAULT 0,
			cash_discipline INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE institutions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			portfolio_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE institution_cash (
			institution_id INTEGER NOT NULL,
			currency TEXT NOT NULL,
			balance REAL NOT NULL DEFAULT 0,
			last_updated INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (institution_id, currency)
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

	ledgerDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	ledgerDB.SetMaxOpenConns(1)
	t.Cleanup(func() { ledgerDB.Close() })

	_, err = ledgerDB.Exec(`
		CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			portfolio_id INTEGER NOT NULL,
			asset_id INTEGER,
			institution_id INTEGER,
			type TEXT NOT NULL,
			quantity REAL NOT NULL DEFAULT 0,
			price REAL NOT NULL DEFAULT 0,
			amount REAL NOT NULL DEFAULT 0,
			fees REAL NOT NULL DEFAULT 0,
			tax REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			currency_rate REAL NOT NULL DEFAULT 1.0,
			realized_gain REAL NOT NULL DEFAULT 0,
			prior_avg_cost REAL NOT NULL DEFAULT 0,
			trade_date TEXT NOT NULL,
			note TEXT,
			created_at INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	portfolioRepo := portfolio.NewRepository(portfolioDB, logger)
	holdingsRepo := holdings.NewRepository(portfolioDB, logger)
	assetsRepo := assets.NewRepository(portfolioDB, logger)
	institutionsRepo := institutions.NewRepository(portfolioDB, logger)
	cashRepo := institutions.NewCashRepository(portfolioDB, logger)
	ledgerRepo := ledger.NewRepository(ledgerDB, logger)

	service := NewService(
		portfolioDB, ledgerDB,
		ledgerRepo, portfolioRepo, holdingsRepo, assetsRepo, cashRepo,
		&fixedConverter{rate: rate}, logger,
	)

	return &testEnv{
		service:      service,
		portfolios:   portfolioRepo,
		holdings:     holdingsRepo,
		assets:       assetsRepo,
		institutions: institutionsRepo,
		cash:         cashRepo,
		ledger:       ledgerRepo,
		portfolioDB:  portfolioDB,
		ledgerDB:     ledgerDB,
	}
}

func (e *testEnv) createPortfolio(t *testing.T, currency domain.Currency, discipline bool) *domain.Portfolio {
	p, err := e.portfolios.Create("Test Portfolio", currency, discipline)
	require.NoError(t, err)
	return p
}

func (e *testEnv) createStock(t *testing.T, symbol string, currency domain.Currency) *domain.Asset {
	a, err := e.assets.Create(domain.Asset{
		Symbol:   symbol,
		Name:     symbol,
		Type:     domain.AssetTypeStock,
		Currency: currency,
	})
	require.NoError(t, err)
	return a
}

func TestRecordBuyCreatesHolding(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "VWCE.DE", domain.CurrencyEUR)

	tx, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       100,
		Fees:        5,
		Currency:    "EUR",
		TradeDate:   "2026-03-10",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx.ID)
	assert.Equal(t, 1.0, tx.CurrencyRate)

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.InDelta(t, 10.0, h.Quantity, 1e-9)
	assert.InDelta(t, 100.5, h.AvgCostBasis, 1e-9) // (10*100 + 5) / 10

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, -1005.0, updated.CashBalance, 1e-9)

	row, err := env.ledger.GetByID(tx.ID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, domain.TransactionBuy, row.Type)
}

func TestRecordBuyAveragesCostBasis(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "IWDA.AS", domain.CurrencyEUR)

	buy := func(qty, price, fees float64) {
		_, err := env.service.Record(CreateRequest{
			PortfolioID: p.ID,
			AssetID:     &a.ID,
			Type:        "BUY",
			Quantity:    qty,
			Price:       price,
			Fees:        fees,
			Currency:    "EUR",
			TradeDate:   "2026-03-10",
		})
		require.NoError(t, err)
	}

	buy(10, 100, 0)
	buy(10, 120, 0)

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.InDelta(t, 20.0, h.Quantity, 1e-9)
	assert.InDelta(t, 110.0, h.AvgCostBasis, 1e-9)
}

func TestRecordSellStampsRealizedGain(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "ASML.AS", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       100,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	sell, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "SELL",
		Quantity:    4,
		Price:       150,
		Fees:        3,
		Tax:         7,
		Currency:    "EUR",
		TradeDate:   "2026-03-12",
	})
	require.NoError(t, err)

	// (150 - 100) * 4 - 3 - 7
	assert.InDelta(t, 190.0, sell.RealizedGain, 1e-9)

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.InDelta(t, 6.0, h.Quantity, 1e-9)
	assert.InDelta(t, 100.0, h.AvgCostBasis, 1e-9)
	assert.InDelta(t, 190.0, h.RealizedGainLoss, 1e-9)

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	// -1000 (buy) + 600 - 3 - 7 (sell)
	assert.InDelta(t, -410.0, updated.CashBalance, 1e-9)
}

func TestRecordSellAllRemovesHolding(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "SAP.DE", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    5,
		Price:       50,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "SELL",
		Quantity:    5,
		Price:       60,
		Currency:    "EUR",
		TradeDate:   "2026-02-01",
	})
	require.NoError(t, err)

	// Fully sold positions keep their row so realized history stays visible
	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Zero(t, h.Quantity)
	assert.InDelta(t, 50.0, h.RealizedGainLoss, 1e-9)
}

func TestRecordSellExceedingQuantityClampsToZero(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "NESN.SW", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    3,
		Price:       10,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "SELL",
		Quantity:    5,
		Price:       10,
		Currency:    "EUR",
		TradeDate:   "2026-02-01",
	})
	require.NoError(t, err)

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Zero(t, h.Quantity) // clamped, never negative
}

func TestRecordDividendAccumulates(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "SHEL.AS", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    100,
		Price:       30,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "DIVIDEND",
		Quantity:    100,
		Amount:      50,
		Tax:         10,
		Currency:    "EUR",
		TradeDate:   "2026-03-15",
	})
	require.NoError(t, err)

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.InDelta(t, 50.0, h.TotalDividends, 1e-9) // gross dividend

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	// -3000 (buy) + 40 (net dividend)
	assert.InDelta(t, -2960.0, updated.CashBalance, 1e-9)
}

func TestRecordForeignCurrencyStampsRate(t *testing.T) {
	env := setupTestEnv(t, 0.9)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "AAPL", domain.CurrencyUSD)

	tx, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       200,
		Currency:    "USD",
		TradeDate:   "2026-03-10",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, tx.CurrencyRate, 1e-9)

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	// 2000 USD at 0.9 in portfolio currency
	assert.InDelta(t, -1800.0, updated.CashBalance, 1e-9)
}

func TestRecordDepositAndWithdrawal(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		Type:        "DEPOSIT",
		Amount:      1000,
		Currency:    "EUR",
		TradeDate:   "2026-01-02",
	})
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		Type:        "WITHDRAWAL",
		Amount:      300,
		Fees:        2,
		Currency:    "EUR",
		TradeDate:   "2026-02-02",
	})
	require.NoError(t, err)

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 698.0, updated.CashBalance, 1e-9)
}

func TestRecordCashDisciplineMirrorsInstitution(t *testing.T) {
	env := setupTestEnv(t, 0.9)
	p := env.createPortfolio(t, domain.CurrencyEUR, true)
	inst, err := env.institutions.Create(p.ID, "Interactive Brokers")
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID:   p.ID,
		InstitutionID: &inst.ID,
		Type:          "DEPOSIT",
		Amount:        1000,
		Currency:      "USD",
		TradeDate:     "2026-01-02",
	})
	require.NoError(t, err)

	// Institution cash moves in the transaction currency
	balance, err := env.cash.Get(inst.ID, "USD")
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, balance, 1e-9)

	// Portfolio cash moves at the booked rate
	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 900.0, updated.CashBalance, 1e-9)
}

func TestReverseRestoresState(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "VWCE.DE", domain.CurrencyEUR)

	buy, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       100,
		Fees:        5,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	sell, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "SELL",
		Quantity:    4,
		Price:       150,
		Currency:    "EUR",
		TradeDate:   "2026-02-05",
	})
	require.NoError(t, err)

	require.NoError(t, env.service.Reverse(sell.ID))
	require.NoError(t, env.service.Reverse(buy.ID))

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	assert.Nil(t, h)

	updated, err := env.portfolios.GetByID(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, updated.CashBalance, 1e-9)

	rows, err := env.ledger.GetAll(ledger.Filter{PortfolioID: p.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReverseBuyRestoresPriorAverage(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "IWDA.AS", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       100,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	second, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    10,
		Price:       120,
		Currency:    "EUR",
		TradeDate:   "2026-02-05",
	})
	require.NoError(t, err)

	require.NoError(t, env.service.Reverse(second.ID))

	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.InDelta(t, 10.0, h.Quantity, 1e-9)
	assert.InDelta(t, 100.0, h.AvgCostBasis, 1e-9)
}

func TestReverseBuyOnClosedPositionKeepsPreservedBasis(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	p := env.createPortfolio(t, domain.CurrencyEUR, false)
	a := env.createStock(t, "ASML.AS", domain.CurrencyEUR)

	_, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    5,
		Price:       10,
		Currency:    "EUR",
		TradeDate:   "2026-01-05",
	})
	require.NoError(t, err)

	_, err = env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "SELL",
		Quantity:    5,
		Price:       12,
		Currency:    "EUR",
		TradeDate:   "2026-02-05",
	})
	require.NoError(t, err)

	// The fully sold row keeps its cost basis
	h, err := env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Zero(t, h.Quantity)
	assert.InDelta(t, 10.0, h.AvgCostBasis, 1e-9)

	reopen, err := env.service.Record(CreateRequest{
		PortfolioID: p.ID,
		AssetID:     &a.ID,
		Type:        "BUY",
		Quantity:    3,
		Price:       20,
		Currency:    "EUR",
		TradeDate:   "2026-03-05",
	})
	require.NoError(t, err)

	require.NoError(t, env.service.Reverse(reopen.ID))

	h, err = env.holdings.Get(p.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Zero(t, h.Quantity)
	assert.InDelta(t, 10.0, h.AvgCostBasis, 1e-9)
}

func TestReverseUnknownTransaction(t *testing.T) {
	env := setupTestEnv(t, 1.0)
	err := env.service.Reverse("no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateRejectsBadRequests(t *testing.T) {
	assetID := int64(1)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"unknown type", CreateRequest{Type: "SPLIT", Amount: 1, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"buy without asset", CreateRequest{Type: "BUY", Quantity: 1, Price: 1, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"buy without quantity", CreateRequest{Type: "BUY", AssetID: &assetID, Price: 1, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"deposit without amount", CreateRequest{Type: "DEPOSIT", Currency: "EUR", TradeDate: "2026-01-02"}},
		{"negative fees", CreateRequest{Type: "DEPOSIT", Amount: 100, Fees: -1, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"bad trade date", CreateRequest{Type: "DEPOSIT", Amount: 100, Currency: "EUR", TradeDate: "02/01/2026"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestValidateAcceptsAmountOnlyTypes(t *testing.T) {
	assetID := int64(1)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"fd withdrawal", CreateRequest{Type: "FD_WITHDRAWAL", AssetID: &assetID, Amount: 5100, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"fixed deposit", CreateRequest{Type: "FIXED_DEPOSIT", AssetID: &assetID, Amount: 5000, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"dividend", CreateRequest{Type: "DIVIDEND", AssetID: &assetID, Amount: 40, Currency: "EUR", TradeDate: "2026-01-02"}},
		{"interest", CreateRequest{Type: "INTEREST", Amount: 12, Currency: "EUR", TradeDate: "2026-01-02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, tt.req.Validate())
		})
	}
}
