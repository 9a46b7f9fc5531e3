package reliability

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apostolou/hestia/internal/database"
)

func openTestDB(t *testing.T, dir, name string, profile database.DatabaseProfile) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func setupJSONBackup(t *testing.T) (*JSONBackupService, *database.DB, *database.DB, *database.DB) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	dir := t.TempDir()

	configDB := openTestDB(t, dir, "config", database.ProfileStandard)
	ledgerDB := openTestDB(t, dir, "ledger", database.ProfileLedger)
	portfolioDB := openTestDB(t, dir, "portfolio", database.ProfileStandard)

	service := NewJSONBackupService(configDB, ledgerDB, portfolioDB, logger)
	return service, configDB, ledgerDB, portfolioDB
}

func seedTestData(t *testing.T, configDB, ledgerDB, portfolioDB *database.DB) string {
	now := time.Now().Unix()

	_, err := configDB.Exec(
		"INSERT INTO settings (key, value, updated_at) VALUES ('base_currency', 'EUR', ?)", now)
	require.NoError(t, err)

	_, err = portfolioDB.Exec(`
		INSERT INTO portfolios (id, name, main_currency, cash_balance, cash_discipline, created_at, updated_at)
		VALUES (1, 'Maria', 'EUR', 2500, 1, ?, ?)
	`, now, now)
	require.NoError(t, err)

	_, err = portfolioDB.Exec(
		"INSERT INTO institutions (id, portfolio_id, name, created_at) VALUES (1, 1, 'Eurobank', ?)", now)
	require.NoError(t, err)
	_, err = portfolioDB.Exec(`
		INSERT INTO institution_cash (institution_id, currency, balance, last_updated)
		VALUES (1, 'EUR', 1800, ?)
	`, now)
	require.NoError(t, err)

	_, err = portfolioDB.Exec(`
		INSERT INTO assets (id, symbol, name, type, currency, current_price, created_at, updated_at)
		VALUES (1, 'VWCE.DE', 'Vanguard FTSE All-World', 'ETF', 'EUR', 120, ?, ?)
	`, now, now)
	require.NoError(t, err)

	_, err = portfolioDB.Exec(`
		INSERT INTO holdings (portfolio_id, asset_id, quantity, avg_cost_basis, realized_gain_loss, total_dividends, updated_at)
		VALUES (1, 1, 10, 100, 50, 20, ?)
	`, now)
	require.NoError(t, err)

	txID := uuid.New().String()
	_, err = ledgerDB.Exec(`
		INSERT INTO transactions (id, portfolio_id, asset_id, institution_id, type,
			quantity, price, amount, fees, tax, currency, currency_rate,
			realized_gain, trade_date, note, created_at)
		VALUES (?, 1, 1, 1, 'BUY', 10, 100, 0, 2, 0, 'EUR', 1.0, 0, '2026-01-10', 'seed', ?)
	`, txID, now)
	require.NoError(t, err)

	return txID
}

func TestExportBuildsFullDocument(t *testing.T) {
	service, configDB, ledgerDB, portfolioDB := setupJSONBackup(t)
	txID := seedTestData(t, configDB, ledgerDB, portfolioDB)

	var buf bytes.Buffer
	require.NoError(t, service.Export(&buf))

	out := buf.String()
	assert.Contains(t, out, `"base_currency"`)
	assert.Contains(t, out, `"Maria"`)
	assert.Contains(t, out, `"Eurobank"`)
	assert.Contains(t, out, `"VWCE.DE"`)
	assert.Contains(t, out, txID)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	service, configDB, ledgerDB, portfolioDB := setupJSONBackup(t)
	txID := seedTestData(t, configDB, ledgerDB, portfolioDB)

	var buf bytes.Buffer
	require.NoError(t, service.Export(&buf))

	// Wipe everything and mutate a setting so the restore has to undo it
	_, err := configDB.Exec("UPDATE settings SET value = 'USD' WHERE key = 'base_currency'")
	require.NoError(t, err)
	for _, stmt := range []string{
		"DELETE FROM holdings", "DELETE FROM institution_cash",
		"DELETE FROM institutions", "DELETE FROM assets", "DELETE FROM portfolios",
	} {
		_, err = portfolioDB.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = ledgerDB.Exec("DELETE FROM transactions")
	require.NoError(t, err)

	require.NoError(t, service.Restore(&buf))

	var baseCurrency string
	require.NoError(t, configDB.QueryRow(
		"SELECT value FROM settings WHERE key = 'base_currency'").Scan(&baseCurrency))
	assert.Equal(t, "EUR", baseCurrency)

	var name string
	var cash float64
	require.NoError(t, portfolioDB.QueryRow(
		"SELECT name, cash_balance FROM portfolios WHERE id = 1").Scan(&name, &cash))
	assert.Equal(t, "Maria", name)
	assert.Equal(t, 2500.0, cash)

	var instCash float64
	require.NoError(t, portfolioDB.QueryRow(
		"SELECT balance FROM institution_cash WHERE institution_id = 1 AND currency = 'EUR'").Scan(&instCash))
	assert.Equal(t, 1800.0, instCash)

	var quantity, dividends float64
	require.NoError(t, portfolioDB.QueryRow(
		"SELECT quantity, total_dividends FROM holdings WHERE portfolio_id = 1 AND asset_id = 1").Scan(&quantity, &dividends))
	assert.Equal(t, 10.0, quantity)
	assert.Equal(t, 20.0, dividends)

	var gotID string
	require.NoError(t, ledgerDB.QueryRow(
		"SELECT id FROM transactions WHERE portfolio_id = 1").Scan(&gotID))
	assert.Equal(t, txID, gotID)
}

func TestRestoreKeepsPasscodeHash(t *testing.T) {
	service, configDB, ledgerDB, portfolioDB := setupJSONBackup(t)
	seedTestData(t, configDB, ledgerDB, portfolioDB)

	var buf bytes.Buffer
	require.NoError(t, service.Export(&buf))

	// Passcode set after the export must survive the restore
	_, err := configDB.Exec(
		"INSERT INTO settings (key, value, updated_at) VALUES ('passcode_hash', 'hash-after-export', ?)",
		time.Now().Unix())
	require.NoError(t, err)

	require.NoError(t, service.Restore(&buf))

	var hash string
	require.NoError(t, configDB.QueryRow(
		"SELECT value FROM settings WHERE key = 'passcode_hash'").Scan(&hash))
	assert.Equal(t, "hash-after-export", hash)
}

func TestRestoreRejectsUnknownVersion(t *testing.T) {
	service, _, _, _ := setupJSONBackup(t)

	err := service.Restore(strings.NewReader(`{"version": 99}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestRestoreRejectsMalformedJSON(t *testing.T) {
	service, _, _, _ := setupJSONBackup(t)

	err := service.Restore(strings.NewReader("not json"))
	require.Error(t, err)
}
