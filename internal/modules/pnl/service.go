// Package pnl computes realized profit-and-loss reports from the ledger.
// Realized gains are read from the figures stamped on sell rows at
// booking time, so reports are stable even after asset prices move.
package pnl

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/ledger"
)

// Service computes realized P&L reports
type Service struct {
	ledgerRepo *ledger.Repository
	assetsRepo *assets.Repository
	log        zerolog.Logger
}

// NewService creates a new P&L service
func NewService(ledgerRepo *ledger.Repository, assetsRepo *assets.Repository, log zerolog.Logger) *Service {
	return &Service{
		ledgerRepo: ledgerRepo,
		assetsRepo: assetsRepo,
		log:        log.With().Str("service", "pnl").Logger(),
	}
}

// AssetPnL is the realized result for a single asset
type AssetPnL struct {
	AssetID      int64   `json:"asset_id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	AssetType    string  `json:"asset_type"`
	RealizedGain float64 `json:"realized_gain"`
	Dividends    float64 `json:"dividends"`
	SellCount    int     `json:"sell_count"`
}

// MonthlyPnL is the realized result for one calendar month
type MonthlyPnL struct {
	Month        string  `json:"month"` // YYYY-MM
	RealizedGain float64 `json:"realized_gain"`
	Dividends    float64 `json:"dividends"`
	Interest     float64 `json:"interest"`
	Total        float64 `json:"total"`
}

// Report is a realized P&L breakdown over a date range.
// All figures are in the portfolio main currency, converted at the
// rate booked on each transaction.
type Report struct {
	PortfolioID    int64              `json:"portfolio_id"`
	FromDate       string             `json:"from_date,omitempty"`
	ToDate         string             `json:"to_date,omitempty"`
	RealizedGain   float64            `json:"realized_gain"`
	TotalDividends float64            `json:"total_dividends"`
	TotalInterest  float64            `json:"total_interest"`
	TotalFees      float64            `json:"total_fees"`
	TotalTax       float64            `json:"total_tax"`
	NetResult      float64            `json:"net_result"`
	ByAssetType    map[string]float64 `json:"by_asset_type"`
	ByAsset        []AssetPnL         `json:"by_asset"`
	Monthly        []MonthlyPnL       `json:"monthly"`
	MonthlyMean    float64            `json:"monthly_mean"`
	MonthlyStdDev  float64            `json:"monthly_std_dev"`
	BestMonth      string             `json:"best_month,omitempty"`
	WorstMonth     string             `json:"worst_month,omitempty"`
}

// ComputeReport builds a realized P&L report for a portfolio over an
// optional inclusive date range (empty strings leave the range open).
func (s *Service) ComputeReport(portfolioID int64, fromDate, toDate string) (*Report, error) {
	transactions, err := s.ledgerRepo.GetAll(ledger.Filter{
		PortfolioID: portfolioID,
		FromDate:    fromDate,
		ToDate:      toDate,
		Limit:       100000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions for report: %w", err)
	}

	assetIndex, err := s.buildAssetIndex()
	if err != nil {
		return nil, err
	}

	report := &Report{
		PortfolioID: portfolioID,
		FromDate:    fromDate,
		ToDate:      toDate,
		ByAssetType: make(map[string]float64),
	}

	byAsset := make(map[int64]*AssetPnL)
	byMonth := make(map[string]*MonthlyPnL)

	for _, t := range transactions {
		rate := t.CurrencyRate
		month := monthOf(t.TradeDate)
		m := byMonth[month]
		if m == nil {
			m = &MonthlyPnL{Month: month}
			byMonth[month] = m
		}

		report.TotalFees += t.Fees * rate
		report.TotalTax += t.Tax * rate

		switch t.Type {
		case domain.TransactionSell:
			realized := t.RealizedGain * rate
			report.RealizedGain += realized
			m.RealizedGain += realized
			if t.AssetID != nil {
				entry := s.assetEntry(byAsset, *t.AssetID, assetIndex)
				entry.RealizedGain += realized
				entry.SellCount++
				report.ByAssetType[entry.AssetType] += realized
			}

		case domain.TransactionDividend:
			net := (t.Amount - t.Tax) * rate
			report.TotalDividends += net
			m.Dividends += net
			if t.AssetID != nil {
				entry := s.assetEntry(byAsset, *t.AssetID, assetIndex)
				entry.Dividends += net
			}

		case domain.TransactionInterest:
			net := (t.Amount - t.Tax) * rate
			report.TotalInterest += net
			m.Interest += net

		case domain.TransactionFDWithdrawal:
			// Only the interest earned over the principal counts as income.
			// An early withdrawal penalty can push this negative.
			if t.AssetID == nil {
				continue
			}
			a, ok := assetIndex[*t.AssetID]
			if !ok || a.DepositPrincipal == nil {
				continue
			}
			net := (t.Amount - *a.DepositPrincipal - t.Tax) * rate
			report.TotalInterest += net
			m.Interest += net
		}
	}

	report.NetResult = report.RealizedGain + report.TotalDividends + report.TotalInterest

	for _, entry := range byAsset {
		report.ByAsset = append(report.ByAsset, *entry)
	}
	sort.Slice(report.ByAsset, func(i, j int) bool {
		return report.ByAsset[i].RealizedGain > report.ByAsset[j].RealizedGain
	})

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	totals := make([]float64, 0, len(months))
	for _, month := range months {
		m := byMonth[month]
		m.Total = m.RealizedGain + m.Dividends + m.Interest
		report.Monthly = append(report.Monthly, *m)
		totals = append(totals, m.Total)
	}

	if len(totals) > 0 {
		report.MonthlyMean = stat.Mean(totals, nil)
		if len(totals) > 1 {
			report.MonthlyStdDev = stat.StdDev(totals, nil)
		}

		best, worst := 0, 0
		for i, v := range totals {
			if v > totals[best] {
				best = i
			}
			if v < totals[worst] {
				worst = i
			}
		}
		report.BestMonth = months[best]
		report.WorstMonth = months[worst]
	}

	return report, nil
}

func (s *Service) buildAssetIndex() (map[int64]domain.Asset, error) {
	all, err := s.assetsRepo.GetAll("")
	if err != nil {
		return nil, fmt.Errorf("failed to load assets for report: %w", err)
	}
	index := make(map[int64]domain.Asset, len(all))
	for _, a := range all {
		index[a.ID] = a
	}
	return index, nil
}

func (s *Service) assetEntry(byAsset map[int64]*AssetPnL, assetID int64, index map[int64]domain.Asset) *AssetPnL {
	entry := byAsset[assetID]
	if entry != nil {
		return entry
	}
	entry = &AssetPnL{AssetID: assetID, AssetType: string(domain.AssetTypeUnknown)}
	if a, ok := index[assetID]; ok {
		entry.Symbol = a.Symbol
		entry.Name = a.Name
		entry.AssetType = string(a.Type)
	}
	byAsset[assetID] = entry
	return entry
}

func monthOf(tradeDate string) string {
	if len(tradeDate) >= 7 {
		return tradeDate[:7]
	}
	return tradeDate
}
