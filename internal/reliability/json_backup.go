package reliability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/domain"
)

// DocumentVersion is the format version written into JSON exports
const DocumentVersion = 1

// Document is a portable JSON export of the full data graph. It carries
// original row IDs so a restore reproduces the exact database state.
type Document struct {
	Version      int                  `json:"version"`
	ExportedAt   time.Time            `json:"exported_at"`
	Settings     map[string]string    `json:"settings"`
	Portfolios   []PortfolioRecord    `json:"portfolios"`
	Assets       []domain.Asset       `json:"assets"`
	Transactions []domain.Transaction `json:"transactions"`
}

// PortfolioRecord bundles a portfolio with its institutions and holdings
type PortfolioRecord struct {
	domain.Portfolio
	Institutions []InstitutionRecord `json:"institutions"`
	Holdings     []domain.Holding    `json:"holdings"`
}

// InstitutionRecord bundles an institution with its per-currency cash
type InstitutionRecord struct {
	domain.Institution
	Cash map[string]float64 `json:"cash"`
}

// JSONBackupService exports and restores the full data graph as JSON
type JSONBackupService struct {
	configDB    *database.DB
	ledgerDB    *database.DB
	portfolioDB *database.DB
	log         zerolog.Logger
}

// NewJSONBackupService creates a new JSON backup service
func NewJSONBackupService(configDB, ledgerDB, portfolioDB *database.DB, log zerolog.Logger) *JSONBackupService {
	return &JSONBackupService{
		configDB:    configDB,
		ledgerDB:    ledgerDB,
		portfolioDB: portfolioDB,
		log:         log.With().Str("service", "json_backup").Logger(),
	}
}

// Export writes the full data graph as indented JSON
func (s *JSONBackupService) Export(w io.Writer) error {
	doc, err := s.buildDocument()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode backup document: %w", err)
	}

	s.log.Info().
		Int("portfolios", len(doc.Portfolios)).
		Int("assets", len(doc.Assets)).
		Int("transactions", len(doc.Transactions)).
		Msg("JSON backup exported")

	return nil
}

// Restore replaces all data with the contents of a JSON export. Each
// database is rewritten in its own transaction; the passcode hash is
// kept so a restore cannot lock the operator out.
func (s *JSONBackupService) Restore(r io.Reader) error {
	var doc Document
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode backup document: %w", err)
	}
	if doc.Version != DocumentVersion {
		return fmt.Errorf("unsupported backup document version %d", doc.Version)
	}

	if err := s.restoreSettings(doc.Settings); err != nil {
		return err
	}
	if err := s.restorePortfolioGraph(doc); err != nil {
		return err
	}
	if err := s.restoreTransactions(doc.Transactions); err != nil {
		return err
	}

	s.log.Info().
		Int("portfolios", len(doc.Portfolios)).
		Int("assets", len(doc.Assets)).
		Int("transactions", len(doc.Transactions)).
		Msg("JSON backup restored")

	return nil
}

func (s *JSONBackupService) buildDocument() (*Document, error) {
	doc := &Document{
		Version:    DocumentVersion,
		ExportedAt: time.Now().UTC(),
		Settings:   make(map[string]string),
	}

	rows, err := s.configDB.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		doc.Settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.exportAssets(doc); err != nil {
		return nil, err
	}
	if err := s.exportPortfolios(doc); err != nil {
		return nil, err
	}
	if err := s.exportTransactions(doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (s *JSONBackupService) exportAssets(doc *Document) error {
	rows, err := s.portfolioDB.Query(`
		SELECT id, symbol, name, type, currency, current_price,
		       deposit_principal, deposit_annual_rate, deposit_start_date,
		       deposit_maturity_date, deposit_status, created_at, updated_at
		FROM assets ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to read assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.Asset
		var assetType, currency string
		var status sql.NullString
		var createdAt, updatedAt int64
		err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &assetType, &currency, &a.CurrentPrice,
			&a.DepositPrincipal, &a.DepositAnnualRate, &a.DepositStartDate,
			&a.DepositMaturityDate, &status, &createdAt, &updatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan asset: %w", err)
		}
		a.Type = domain.AssetType(assetType)
		a.Currency = domain.Currency(currency)
		if status.Valid {
			ds := domain.DepositStatus(status.String)
			a.DepositStatus = &ds
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		doc.Assets = append(doc.Assets, a)
	}
	return rows.Err()
}

func (s *JSONBackupService) exportPortfolios(doc *Document) error {
	rows, err := s.portfolioDB.Query(`
		SELECT id, name, main_currency, cash_balance, cash_discipline, created_at, updated_at
		FROM portfolios ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to read portfolios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec PortfolioRecord
		var currency string
		var discipline int
		var createdAt, updatedAt int64
		err := rows.Scan(&rec.ID, &rec.Name, &currency, &rec.CashBalance, &discipline, &createdAt, &updatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan portfolio: %w", err)
		}
		rec.MainCurrency = domain.Currency(currency)
		rec.CashDiscipline = discipline != 0
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		doc.Portfolios = append(doc.Portfolios, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range doc.Portfolios {
		if err := s.exportInstitutions(&doc.Portfolios[i]); err != nil {
			return err
		}
		if err := s.exportHoldings(&doc.Portfolios[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONBackupService) exportInstitutions(rec *PortfolioRecord) error {
	rows, err := s.portfolioDB.Query(
		"SELECT id, portfolio_id, name, created_at FROM institutions WHERE portfolio_id = ? ORDER BY id", rec.ID)
	if err != nil {
		return fmt.Errorf("failed to read institutions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inst InstitutionRecord
		var createdAt int64
		if err := rows.Scan(&inst.ID, &inst.PortfolioID, &inst.Name, &createdAt); err != nil {
			return fmt.Errorf("failed to scan institution: %w", err)
		}
		inst.CreatedAt = time.Unix(createdAt, 0).UTC()
		inst.Cash = make(map[string]float64)
		rec.Institutions = append(rec.Institutions, inst)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range rec.Institutions {
		cashRows, err := s.portfolioDB.Query(
			"SELECT currency, balance FROM institution_cash WHERE institution_id = ?",
			rec.Institutions[i].ID)
		if err != nil {
			return fmt.Errorf("failed to read institution cash: %w", err)
		}
		for cashRows.Next() {
			var currency string
			var balance float64
			if err := cashRows.Scan(&currency, &balance); err != nil {
				cashRows.Close()
				return fmt.Errorf("failed to scan institution cash: %w", err)
			}
			rec.Institutions[i].Cash[currency] = balance
		}
		if err := cashRows.Err(); err != nil {
			cashRows.Close()
			return err
		}
		cashRows.Close()
	}
	return nil
}

func (s *JSONBackupService) exportHoldings(rec *PortfolioRecord) error {
	rows, err := s.portfolioDB.Query(`
		SELECT portfolio_id, asset_id, quantity, avg_cost_basis,
		       realized_gain_loss, total_dividends, updated_at
		FROM holdings WHERE portfolio_id = ? ORDER BY asset_id
	`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to read holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.Holding
		var updatedAt int64
		err := rows.Scan(&h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgCostBasis,
			&h.RealizedGainLoss, &h.TotalDividends, &updatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan holding: %w", err)
		}
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		rec.Holdings = append(rec.Holdings, h)
	}
	return rows.Err()
}

func (s *JSONBackupService) exportTransactions(doc *Document) error {
	rows, err := s.ledgerDB.Query(`
		SELECT id, portfolio_id, asset_id, institution_id, type, quantity, price,
		       amount, fees, tax, currency, currency_rate, realized_gain,
		       prior_avg_cost, trade_date, note, created_at
		FROM transactions ORDER BY trade_date, created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to read transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Transaction
		var txType, currency string
		var assetID, institutionID sql.NullInt64
		var note sql.NullString
		var createdAt int64
		err := rows.Scan(&t.ID, &t.PortfolioID, &assetID, &institutionID, &txType,
			&t.Quantity, &t.Price, &t.Amount, &t.Fees, &t.Tax, &currency, &t.CurrencyRate,
			&t.RealizedGain, &t.PriorAvgCost, &t.TradeDate, &note, &createdAt)
		if err != nil {
			return fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = domain.TransactionType(txType)
		t.Currency = domain.Currency(currency)
		if assetID.Valid {
			t.AssetID = &assetID.Int64
		}
		if institutionID.Valid {
			t.InstitutionID = &institutionID.Int64
		}
		if note.Valid {
			t.Note = note.String
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		doc.Transactions = append(doc.Transactions, t)
	}
	return rows.Err()
}

func (s *JSONBackupService) restoreSettings(settings map[string]string) error {
	return database.WithTransaction(s.configDB.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM settings WHERE key != 'passcode_hash'"); err != nil {
			return fmt.Errorf("failed to clear settings: %w", err)
		}
		now := time.Now().Unix()
		for key, value := range settings {
			if key == "passcode_hash" {
				continue
			}
			_, err := tx.Exec(`
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, value, now)
			if err != nil {
				return fmt.Errorf("failed to restore setting %s: %w", key, err)
			}
		}
		return nil
	})
}

func (s *JSONBackupService) restorePortfolioGraph(doc Document) error {
	return database.WithTransaction(s.portfolioDB.Conn(), func(tx *sql.Tx) error {
		for _, table := range []string{"holdings", "institution_cash", "institutions", "assets", "portfolios"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for _, a := range doc.Assets {
			var status interface{}
			if a.DepositStatus != nil {
				status = string(*a.DepositStatus)
			}
			_, err := tx.Exec(`
				INSERT INTO assets (id, symbol, name, type, currency, current_price,
					deposit_principal, deposit_annual_rate, deposit_start_date,
					deposit_maturity_date, deposit_status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, a.ID, a.Symbol, a.Name, string(a.Type), string(a.Currency), a.CurrentPrice,
				a.DepositPrincipal, a.DepositAnnualRate, a.DepositStartDate,
				a.DepositMaturityDate, status, a.CreatedAt.Unix(), a.UpdatedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to restore asset %s: %w", a.Symbol, err)
			}
		}

		for _, rec := range doc.Portfolios {
			discipline := 0
			if rec.CashDiscipline {
				discipline = 1
			}
			_, err := tx.Exec(`
				INSERT INTO portfolios (id, name, main_currency, cash_balance, cash_discipline, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, rec.Name, string(rec.MainCurrency), rec.CashBalance, discipline,
				rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to restore portfolio %s: %w", rec.Name, err)
			}

			for _, inst := range rec.Institutions {
				_, err := tx.Exec(
					"INSERT INTO institutions (id, portfolio_id, name, created_at) VALUES (?, ?, ?, ?)",
					inst.ID, inst.PortfolioID, inst.Name, inst.CreatedAt.Unix())
				if err != nil {
					return fmt.Errorf("failed to restore institution %s: %w", inst.Name, err)
				}
				for currency, balance := range inst.Cash {
					_, err := tx.Exec(`
						INSERT INTO institution_cash (institution_id, currency, balance, last_updated)
						VALUES (?, ?, ?, ?)
					`, inst.ID, currency, balance, time.Now().Unix())
					if err != nil {
						return fmt.Errorf("failed to restore institution cash: %w", err)
					}
				}
			}

			for _, h := range rec.Holdings {
				_, err := tx.Exec(`
					INSERT INTO holdings (portfolio_id, asset_id, quantity, avg_cost_basis,
						realized_gain_loss, total_dividends, updated_at)
					VALUES (?, ?, ?, ?, ?, ?, ?)
				`, h.PortfolioID, h.AssetID, h.Quantity, h.AvgCostBasis,
					h.RealizedGainLoss, h.TotalDividends, h.UpdatedAt.Unix())
				if err != nil {
					return fmt.Errorf("failed to restore holding: %w", err)
				}
			}
		}

		return nil
	})
}

func (s *JSONBackupService) restoreTransactions(transactions []domain.Transaction) error {
	return database.WithTransaction(s.ledgerDB.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM transactions"); err != nil {
			return fmt.Errorf("failed to clear transactions: %w", err)
		}
		for _, t := range transactions {
			_, err := tx.Exec(`
				INSERT INTO transactions (id, portfolio_id, asset_id, institution_id, type,
					quantity, price, amount, fees, tax, currency, currency_rate,
					realized_gain, prior_avg_cost, trade_date, note, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, t.ID, t.PortfolioID, t.AssetID, t.InstitutionID, string(t.Type),
				t.Quantity, t.Price, t.Amount, t.Fees, t.Tax, string(t.Currency), t.CurrencyRate,
				t.RealizedGain, t.PriorAvgCost, t.TradeDate, t.Note, t.CreatedAt.Unix())
			if err != nil {
				return fmt.Errorf("failed to restore transaction %s: %w", t.ID, err)
			}
		}
		return nil
	})
}
