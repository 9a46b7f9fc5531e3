// Package export renders ledger and holdings data as CSV for use in
// spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/ledger"
)

// Service writes CSV exports
type Service struct {
	ledgerRepo   *ledger.Repository
	holdingsRepo *holdings.Repository
	log          zerolog.Logger
}

// NewService creates a new export service
func NewService(ledgerRepo *ledger.Repository, holdingsRepo *holdings.Repository, log zerolog.Logger) *Service {
	return &Service{
		ledgerRepo:   ledgerRepo,
		holdingsRepo: holdingsRepo,
		log:          log.With().Str("service", "export").Logger(),
	}
}

// WriteTransactionsCSV streams transactions matching the filter as CSV
func (s *Service) WriteTransactionsCSV(w io.Writer, f ledger.Filter) error {
	if f.Limit <= 0 {
		f.Limit = 100000
	}
	transactions, err := s.ledgerRepo.GetAll(f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "portfolio_id", "asset_id", "institution_id", "type",
		"quantity", "price", "amount", "fees", "tax", "currency", "currency_rate",
		"realized_gain", "trade_date", "note"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, t := range transactions {
		assetID, institutionID := "", ""
		if t.AssetID != nil {
			assetID = strconv.FormatInt(*t.AssetID, 10)
		}
		if t.InstitutionID != nil {
			institutionID = strconv.FormatInt(*t.InstitutionID, 10)
		}

		record := []string{
			t.ID,
			strconv.FormatInt(t.PortfolioID, 10),
			assetID,
			institutionID,
			string(t.Type),
			formatFloat(t.Quantity),
			formatFloat(t.Price),
			formatFloat(t.Amount),
			formatFloat(t.Fees),
			formatFloat(t.Tax),
			string(t.Currency),
			formatFloat(t.CurrencyRate),
			formatFloat(t.RealizedGain),
			t.TradeDate,
			t.Note,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteHoldingsCSV streams a portfolio's holdings as CSV
func (s *Service) WriteHoldingsCSV(w io.Writer, portfolioID int64) error {
	rows, err := s.holdingsRepo.GetByPortfolio(portfolioID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"symbol", "name", "asset_type", "currency", "quantity",
		"avg_cost_basis", "current_price", "market_value", "realized_gain_loss",
		"total_dividends"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, h := range rows {
		record := []string{
			h.Symbol,
			h.AssetName,
			string(h.AssetType),
			string(h.Currency),
			formatFloat(h.Quantity),
			formatFloat(h.AvgCostBasis),
			formatFloat(h.CurrentPrice),
			formatFloat(h.Quantity * h.CurrentPrice),
			formatFloat(h.RealizedGainLoss),
			formatFloat(h.TotalDividends),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
