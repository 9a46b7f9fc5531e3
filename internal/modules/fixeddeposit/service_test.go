package fixeddeposit

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/impact"
	"github.com/apostolou/hestia/internal/modules/institutions"
	"github.com/apostolou/hestia/internal/modules/ledger"
	"github.com/apostolou/hestia/internal/modules/portfolio"
)

type unitConverter struct{}

func (unitConverter) GetRate(fromCurrency, toCurrency string) (float64, error) {
	return 1.0, nil
}

func setupTestService(t *testing.T) (*Service, *assets.Repository, *portfolio.Repository) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	portfolioDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
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
	cashRepo := institutions.NewCashRepository(portfolioDB, logger)
	ledgerRepo := ledger.NewRepository(ledgerDB, logger)

	impactSvc := impact.NewService(
		portfolioDB, ledgerDB,
		ledgerRepo, portfolioRepo, holdingsRepo, assetsRepo, cashRepo,
		unitConverter{}, logger,
	)

	return NewService(assetsRepo, impactSvc, logger), assetsRepo, portfolioRepo
}

func createDeposit(t *testing.T, repo *assets.Repository, symbol string, principal, rate float64, start, maturity string, status domain.DepositStatus) *domain.Asset {
	a, err := repo.Create(domain.Asset{
		Symbol:              symbol,
		Name:                symbol,
		Type:                domain.AssetTypeFixedDeposit,
		Currency:            domain.CurrencyEUR,
		DepositPrincipal:    &principal,
		DepositAnnualRate:   &rate,
		DepositStartDate:    &start,
		DepositMaturityDate: &maturity,
		DepositStatus:       &status,
	})
	require.NoError(t, err)
	return a
}

func TestAccruedInterestSimple(t *testing.T) {
	// One full non-leap year at 5%
	asOf := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	interest, err := AccruedInterest(10000, 0.05, "2023-01-01", "2024-01-01", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, interest, 1e-9)
}

func TestAccruedInterestCappedAtMaturity(t *testing.T) {
	// asOf years past maturity still yields the full-term interest
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	interest, err := AccruedInterest(10000, 0.05, "2023-01-01", "2024-01-01", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 500.0, interest, 1e-9)
}

func TestAccruedInterestBeforeStart(t *testing.T) {
	asOf := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	interest, err := AccruedInterest(10000, 0.05, "2023-01-01", "2024-01-01", asOf)
	require.NoError(t, err)
	assert.Zero(t, interest)
}

func TestAccruedInterestPartialTerm(t *testing.T) {
	// 73 days = exactly a fifth of a year
	asOf := time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)
	interest, err := AccruedInterest(10000, 0.05, "2023-01-01", "2024-01-01", asOf)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, interest, 1e-9)
}

func TestAccruedInterestInvalidDates(t *testing.T) {
	_, err := AccruedInterest(10000, 0.05, "not-a-date", "2024-01-01", time.Now())
	assert.Error(t, err)
}

func TestWithdrawMaturedDeposit(t *testing.T) {
	service, assetsRepo, portfolioRepo := setupTestService(t)

	p, err := portfolioRepo.Create("Maria", domain.CurrencyEUR, false)
	require.NoError(t, err)

	// Matured long ago: full-term interest of exactly 500
	a := createDeposit(t, assetsRepo, "FD-ALPHA-2023", 10000, 0.05,
		"2023-01-01", "2024-01-01", domain.DepositMatured)

	tx, err := service.Withdraw(WithdrawRequest{
		AssetID:     a.ID,
		PortfolioID: p.ID,
		PenaltyRate: 0.5, // no penalty applies after maturity
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFDWithdrawal, tx.Type)
	assert.InDelta(t, 10500.0, tx.Amount, 1e-9)

	updated, err := portfolioRepo.GetByID(p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10500.0, updated.CashBalance, 1e-9)

	withdrawn, err := assetsRepo.GetByID(a.ID)
	require.NoError(t, err)
	require.NotNil(t, withdrawn.DepositStatus)
	assert.Equal(t, domain.DepositWithdrawn, *withdrawn.DepositStatus)
}

func TestWithdrawEarlyFullPenalty(t *testing.T) {
	service, assetsRepo, portfolioRepo := setupTestService(t)

	p, err := portfolioRepo.Create("Nikos", domain.CurrencyEUR, false)
	require.NoError(t, err)

	// Still running: a full penalty forfeits all accrued interest
	a := createDeposit(t, assetsRepo, "FD-BETA-2026", 5000, 0.04,
		"2026-01-01", "2030-01-01", domain.DepositActive)

	tx, err := service.Withdraw(WithdrawRequest{
		AssetID:     a.ID,
		PortfolioID: p.ID,
		PenaltyRate: 1.0,
	})
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, tx.Amount, 1e-9)
}

func TestWithdrawTwiceFails(t *testing.T) {
	service, assetsRepo, portfolioRepo := setupTestService(t)

	p, err := portfolioRepo.Create("Eleni", domain.CurrencyEUR, false)
	require.NoError(t, err)

	a := createDeposit(t, assetsRepo, "FD-GAMMA-2023", 1000, 0.03,
		"2023-01-01", "2024-01-01", domain.DepositMatured)

	_, err = service.Withdraw(WithdrawRequest{AssetID: a.ID, PortfolioID: p.ID})
	require.NoError(t, err)

	_, err = service.Withdraw(WithdrawRequest{AssetID: a.ID, PortfolioID: p.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already withdrawn")
}

func TestWithdrawRejectsBadPenaltyRate(t *testing.T) {
	service, assetsRepo, portfolioRepo := setupTestService(t)

	p, err := portfolioRepo.Create("Sofia", domain.CurrencyEUR, false)
	require.NoError(t, err)

	a := createDeposit(t, assetsRepo, "FD-DELTA-2026", 1000, 0.03,
		"2026-01-01", "2030-01-01", domain.DepositActive)

	_, err = service.Withdraw(WithdrawRequest{AssetID: a.ID, PortfolioID: p.ID, PenaltyRate: 1.5})
	assert.Error(t, err)
}

func TestWithdrawNonDepositAsset(t *testing.T) {
	service, assetsRepo, portfolioRepo := setupTestService(t)

	p, err := portfolioRepo.Create("Kostas", domain.CurrencyEUR, false)
	require.NoError(t, err)

	stock, err := assetsRepo.Create(domain.Asset{
		Symbol: "VWCE.DE", Type: domain.AssetTypeETF, Currency: domain.CurrencyEUR,
	})
	require.NoError(t, err)

	_, err = service.Withdraw(WithdrawRequest{AssetID: stock.ID, PortfolioID: p.ID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a fixed deposit")
}

func TestMarkMatured(t *testing.T) {
	service, assetsRepo, _ := setupTestService(t)

	createDeposit(t, assetsRepo, "FD-PAST", 1000, 0.03,
		"2023-01-01", "2024-01-01", domain.DepositActive)
	createDeposit(t, assetsRepo, "FD-FUTURE", 1000, 0.03,
		"2026-01-01", "2030-01-01", domain.DepositActive)

	flipped, err := service.MarkMatured()
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	matured, err := assetsRepo.GetFixedDeposits(string(domain.DepositMatured))
	require.NoError(t, err)
	require.Len(t, matured, 1)
	assert.Equal(t, "FD-PAST", matured[0].Symbol)

	// Second scan finds nothing new
	flipped, err = service.MarkMatured()
	require.NoError(t, err)
	assert.Zero(t, flipped)
}
