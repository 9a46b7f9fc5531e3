package portfolio

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/holdings"
)

// Converter resolves exchange rates between currencies
type Converter interface {
	Convert(amount float64, fromCurrency, toCurrency string) (float64, error)
}

// Service computes portfolio valuations from holdings and current prices
type Service struct {
	repo      *Repository
	holdings  *holdings.Repository
	converter Converter
	log       zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(repo *Repository, holdingsRepo *holdings.Repository, converter Converter, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		holdings:  holdingsRepo,
		converter: converter,
		log:       log.With().Str("service", "portfolio").Logger(),
	}
}

// Position is one holding valued at current prices, in the portfolio
// main currency.
type Position struct {
	AssetID        int64   `json:"asset_id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	AssetType      string  `json:"asset_type"`
	Currency       string  `json:"currency"`
	Quantity       float64 `json:"quantity"`
	CurrentPrice   float64 `json:"current_price"`
	AvgCostBasis   float64 `json:"avg_cost_basis"`
	MarketValue    float64 `json:"market_value"`
	CostValue      float64 `json:"cost_value"`
	UnrealizedGain float64 `json:"unrealized_gain"`
	Weight         float64 `json:"weight"` // share of total portfolio value, 0..1
}

// Valuation is a full portfolio valuation in its main currency
type Valuation struct {
	PortfolioID    int64      `json:"portfolio_id"`
	Name           string     `json:"name"`
	MainCurrency   string     `json:"main_currency"`
	CashBalance    float64    `json:"cash_balance"`
	HoldingsValue  float64    `json:"holdings_value"`
	TotalValue     float64    `json:"total_value"`
	CostBasis      float64    `json:"cost_basis"`
	UnrealizedGain float64    `json:"unrealized_gain"`
	RealizedGain   float64    `json:"realized_gain"`
	TotalDividends float64    `json:"total_dividends"`
	Positions      []Position `json:"positions"`
}

// ComputeValuation values every holding at its current price, converted
// to the portfolio main currency at current rates. Prices and cost bases
// are stored in the asset's own currency.
func (s *Service) ComputeValuation(portfolioID int64) (*Valuation, error) {
	p, err := s.repo.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("portfolio %d not found", portfolioID)
	}

	rows, err := s.holdings.GetByPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		PortfolioID:  p.ID,
		Name:         p.Name,
		MainCurrency: string(p.MainCurrency),
		CashBalance:  p.CashBalance,
		Positions:    make([]Position, 0, len(rows)),
	}

	for _, h := range rows {
		marketValue, err := s.converter.Convert(h.Quantity*h.CurrentPrice, string(h.Currency), v.MainCurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s position value: %w", h.Symbol, err)
		}
		costValue, err := s.converter.Convert(h.Quantity*h.AvgCostBasis, string(h.Currency), v.MainCurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s cost basis: %w", h.Symbol, err)
		}

		pos := Position{
			AssetID:        h.AssetID,
			Symbol:         h.Symbol,
			Name:           h.AssetName,
			AssetType:      string(h.AssetType),
			Currency:       string(h.Currency),
			Quantity:       h.Quantity,
			CurrentPrice:   h.CurrentPrice,
			AvgCostBasis:   h.AvgCostBasis,
			MarketValue:    marketValue,
			CostValue:      costValue,
			UnrealizedGain: marketValue - costValue,
		}

		v.HoldingsValue += marketValue
		v.CostBasis += costValue
		v.RealizedGain += h.RealizedGainLoss
		v.TotalDividends += h.TotalDividends
		v.Positions = append(v.Positions, pos)
	}

	v.TotalValue = v.HoldingsValue + v.CashBalance
	v.UnrealizedGain = v.HoldingsValue - v.CostBasis

	if v.TotalValue > 0 {
		for i := range v.Positions {
			v.Positions[i].Weight = v.Positions[i].MarketValue / v.TotalValue
		}
	}

	return v, nil
}

// ComputeAllValuations values every portfolio
func (s *Service) ComputeAllValuations() ([]Valuation, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	valuations := make([]Valuation, 0, len(all))
	for _, p := range all {
		v, err := s.ComputeValuation(p.ID)
		if err != nil {
			return nil, err
		}
		valuations = append(valuations, *v)
	}

	return valuations, nil
}
