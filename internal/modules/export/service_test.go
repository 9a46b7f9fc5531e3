package export

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/ledger"
)

func setupTestService(t *testing.T) (*Service, *ledger.Repository, *sql.DB, *sql.DB) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

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

	portfolioDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	portfolioDB.SetMaxOpenConns(1)
	t.Cleanup(func() { portfolioDB.Close() })

	_, err = portfolioDB.Exec(`
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

	ledgerRepo := ledger.NewRepository(ledgerDB, logger)
	holdingsRepo := holdings.NewRepository(portfolioDB, logger)

	return NewService(ledgerRepo, holdingsRepo, logger), ledgerRepo, ledgerDB, portfolioDB
}

func TestWriteTransactionsCSV(t *testing.T) {
	service, ledgerRepo, ledgerDB, _ := setupTestService(t)

	assetID := int64(3)
	err := database.WithTransaction(ledgerDB, func(tx *sql.Tx) error {
		return ledgerRepo.InsertTx(tx, domain.Transaction{
			ID: uuid.New().String(), PortfolioID: 1, AssetID: &assetID,
			Type: domain.TransactionBuy, Quantity: 10, Price: 99.5, Fees: 2,
			Currency: domain.CurrencyEUR, CurrencyRate: 1.0,
			TradeDate: "2026-03-10", Note: "monthly savings",
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, service.WriteTransactionsCSV(&buf, ledger.Filter{PortfolioID: 1}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2) // header + one row

	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "trade_date", records[0][13])

	row := records[1]
	assert.Equal(t, "1", row[1])
	assert.Equal(t, "3", row[2])
	assert.Equal(t, "", row[3]) // no institution
	assert.Equal(t, "BUY", row[4])
	assert.Equal(t, "10", row[5])
	assert.Equal(t, "99.5", row[6])
	assert.Equal(t, "2026-03-10", row[13])
	assert.Equal(t, "monthly savings", row[14])
}

func TestWriteTransactionsCSVEmpty(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	var buf bytes.Buffer
	require.NoError(t, service.WriteTransactionsCSV(&buf, ledger.Filter{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1) // header only
}

func TestWriteHoldingsCSV(t *testing.T) {
	service, _, _, portfolioDB := setupTestService(t)

	_, err := portfolioDB.Exec(`
		INSERT INTO assets (symbol, name, type, currency, current_price, created_at, updated_at)
		VALUES ('VWCE.DE', 'Vanguard FTSE All-World', 'ETF', 'EUR', 120, 0, 0)
	`)
	require.NoError(t, err)
	_, err = portfolioDB.Exec(`
		INSERT INTO holdings (portfolio_id, asset_id, quantity, avg_cost_basis, realized_gain_loss, total_dividends)
		VALUES (1, 1, 10, 100, 50, 20)
	`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, service.WriteHoldingsCSV(&buf, 1))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	row := records[1]
	assert.Equal(t, "VWCE.DE", row[0])
	assert.Equal(t, "ETF", row[2])
	assert.Equal(t, "10", row[4])
	assert.Equal(t, "1200", row[7]) // quantity * current price
}
