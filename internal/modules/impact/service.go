// Package impact books transactions and applies their effect on portfolio
// state. Every booking writes an immutable ledger row and mutates holdings,
// portfolio cash, and per-institution cash in lockstep; reversing a
// transaction undoes every mutation and removes the row.
package impact

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/database"
	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/institutions"
	"github.com/apostolou/hestia/internal/modules/ledger"
	"github.com/apostolou/hestia/internal/modules/portfolio"
)

// Converter resolves exchange rates between currencies
type Converter interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// Service applies and reverses transaction effects on portfolio state
type Service struct {
	portfolioDB *sql.DB
	ledgerDB    *sql.DB
	ledgerRepo  *ledger.Repository
	portfolios  *portfolio.Repository
	holdings    *holdings.Repository
	assets      *assets.Repository
	cash        *institutions.CashRepository
	converter   Converter
	log         zerolog.Logger
}

// NewService creates a new transaction impact service
func NewService(
	portfolioDB, ledgerDB *sql.DB,
	ledgerRepo *ledger.Repository,
	portfolios *portfolio.Repository,
	holdingsRepo *holdings.Repository,
	assetsRepo *assets.Repository,
	cash *institutions.CashRepository,
	converter Converter,
	log zerolog.Logger,
) *Service {
	return &Service{
		portfolioDB: portfolioDB,
		ledgerDB:    ledgerDB,
		ledgerRepo:  ledgerRepo,
		portfolios:  portfolios,
		holdings:    holdingsRepo,
		assets:      assetsRepo,
		cash:        cash,
		converter:   converter,
		log:         log.With().Str("service", "impact").Logger(),
	}
}

// CreateRequest describes a transaction to book
type CreateRequest struct {
	PortfolioID   int64   `json:"portfolio_id"`
	AssetID       *int64  `json:"asset_id,omitempty"`
	InstitutionID *int64  `json:"institution_id,omitempty"`
	Type          string  `json:"type"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Amount        float64 `json:"amount"`
	Fees          float64 `json:"fees"`
	Tax           float64 `json:"tax"`
	Currency      string  `json:"currency"`
	TradeDate     string  `json:"trade_date"`
	Note          string  `json:"note,omitempty"`
}

// Validate checks the request for structural problems before booking
func (req CreateRequest) Validate() error {
	txType := domain.TransactionType(req.Type)
	if !txType.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", req.Type)
	}
	if txType.RequiresAsset() && req.AssetID == nil {
		return fmt.Errorf("transaction type %s requires an asset", req.Type)
	}
	// Buys and sells move quantity at a price; every other type moves an amount
	switch txType {
	case domain.TransactionBuy, domain.TransactionSell:
		if req.Quantity <= 0 {
			return fmt.Errorf("transaction type %s requires a positive quantity", req.Type)
		}
	default:
		if req.Amount <= 0 {
			return fmt.Errorf("transaction type %s requires a positive amount", req.Type)
		}
	}
	if req.Fees < 0 || req.Tax < 0 {
		return fmt.Errorf("fees and tax must not be negative")
	}
	if _, err := time.Parse("2006-01-02", req.TradeDate); err != nil {
		return fmt.Errorf("invalid trade date %q: expected YYYY-MM-DD", req.TradeDate)
	}
	return nil
}

// Record books a transaction: it applies the state mutations in one SQL
// transaction on portfolio.db, then writes the ledger row. The exchange
// rate from the transaction currency to the portfolio main currency is
// resolved once and stamped on the row so reversal replays the exact
// booked conversion.
func (s *Service) Record(req CreateRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.portfolios.GetByID(req.PortfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("portfolio %d not found", req.PortfolioID)
	}

	if req.AssetID != nil {
		a, err := s.assets.GetByID(*req.AssetID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("asset %d not found", *req.AssetID)
		}
	}

	rate := 1.0
	if domain.Currency(req.Currency) != p.MainCurrency {
		rate, err = s.converter.GetRate(req.Currency, string(p.MainCurrency))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve exchange rate %s->%s: %w",
				req.Currency, p.MainCurrency, err)
		}
	}

	t := domain.Transaction{
		ID:            uuid.New().String(),
		PortfolioID:   req.PortfolioID,
		AssetID:       req.AssetID,
		InstitutionID: req.InstitutionID,
		Type:          domain.TransactionType(req.Type),
		Quantity:      req.Quantity,
		Price:         req.Price,
		Amount:        req.Amount,
		Fees:          req.Fees,
		Tax:           req.Tax,
		Currency:      domain.Currency(req.Currency),
		CurrencyRate:  rate,
		TradeDate:     req.TradeDate,
		Note:          req.Note,
		CreatedAt:     time.Now().UTC(),
	}

	err = database.WithTransaction(s.portfolioDB, func(tx *sql.Tx) error {
		return s.apply(tx, &t, p)
	})
	if err != nil {
		return nil, err
	}

	err = database.WithTransaction(s.ledgerDB, func(tx *sql.Tx) error {
		return s.ledgerRepo.InsertTx(tx, t)
	})
	if err != nil {
		// Ledger and portfolio state live in separate database files, so
		// a failed ledger write leaves applied state behind. Compensate by
		// replaying the inverse mutations.
		compErr := database.WithTransaction(s.portfolioDB, func(tx *sql.Tx) error {
			return s.reverse(tx, &t, p)
		})
		if compErr != nil {
			s.log.Error().Err(compErr).Str("transaction_id", t.ID).
				Msg("Failed to compensate portfolio state after ledger write failure")
		}
		return nil, fmt.Errorf("failed to write ledger row: %w", err)
	}

	s.log.Info().
		Str("transaction_id", t.ID).
		Str("type", string(t.Type)).
		Int64("portfolio_id", t.PortfolioID).
		Float64("realized_gain", t.RealizedGain).
		Msg("Transaction booked")

	return &t, nil
}

// Reverse undoes a booked transaction and removes its ledger row
func (s *Service) Reverse(id string) error {
	t, err := s.ledgerRepo.GetByID(id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("transaction %s not found", id)
	}

	p, err := s.portfolios.GetByID(t.PortfolioID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("portfolio %d not found", t.PortfolioID)
	}

	err = database.WithTransaction(s.portfolioDB, func(tx *sql.Tx) error {
		return s.reverse(tx, t, p)
	})
	if err != nil {
		return err
	}

	err = database.WithTransaction(s.ledgerDB, func(tx *sql.Tx) error {
		return s.ledgerRepo.DeleteTx(tx, id)
	})
	if err != nil {
		compErr := database.WithTransaction(s.portfolioDB, func(tx *sql.Tx) error {
			return s.apply(tx, t, p)
		})
		if compErr != nil {
			s.log.Error().Err(compErr).Str("transaction_id", id).
				Msg("Failed to compensate portfolio state after ledger delete failure")
		}
		return fmt.Errorf("failed to delete ledger row: %w", err)
	}

	s.log.Info().
		Str("transaction_id", id).
		Str("type", string(t.Type)).
		Msg("Transaction reversed")

	return nil
}

// apply mutates holdings and cash for a transaction. Cash deltas in the
// transaction currency mirror onto institution cash when the portfolio
// enforces cash discipline; the portfolio balance moves by the same delta
// converted at the booked rate.
func (s *Service) apply(tx *sql.Tx, t *domain.Transaction, p *domain.Portfolio) error {
	rate := t.CurrencyRate

	var cashDelta float64 // transaction currency

	switch t.Type {
	case domain.TransactionBuy:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h == nil {
			h = &domain.Holding{PortfolioID: t.PortfolioID, AssetID: *t.AssetID}
		}
		// A buy on a closed position overwrites the preserved basis, so
		// stamp the prior value on the row for reversal
		t.PriorAvgCost = h.AvgCostBasis
		newQty := h.Quantity + t.Quantity
		h.AvgCostBasis = (h.Quantity*h.AvgCostBasis + t.Quantity*t.Price + t.Fees) / newQty
		h.Quantity = newQty
		if err := s.holdings.UpsertTx(tx, *h); err != nil {
			return err
		}
		cashDelta = -(t.Quantity*t.Price + t.Fees + t.Tax)

	case domain.TransactionSell:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h == nil {
			s.log.Warn().
				Int64("portfolio_id", t.PortfolioID).
				Int64("asset_id", *t.AssetID).
				Msg("Sell against missing holding, skipping holding mutation")
		} else {
			realized := (t.Price-h.AvgCostBasis)*t.Quantity - t.Fees - t.Tax
			t.RealizedGain = realized
			h.Quantity -= t.Quantity
			if h.Quantity < 0 {
				s.log.Warn().
					Int64("asset_id", *t.AssetID).
					Float64("quantity", h.Quantity).
					Msg("Sell exceeds held quantity, clamping to zero")
				h.Quantity = 0
			}
			h.RealizedGainLoss += realized * rate
			if err := s.holdings.UpsertTx(tx, *h); err != nil {
				return err
			}
			if err := s.holdings.DeleteEmptyTx(tx, t.PortfolioID, *t.AssetID); err != nil {
				return err
			}
		}
		cashDelta = t.Quantity*t.Price - t.Fees - t.Tax

	case domain.TransactionDividend:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h == nil {
			s.log.Warn().
				Int64("asset_id", *t.AssetID).
				Msg("Dividend against missing holding, skipping holding mutation")
		} else {
			h.TotalDividends += t.Amount * rate
			if err := s.holdings.UpsertTx(tx, *h); err != nil {
				return err
			}
		}
		cashDelta = t.Amount - t.Tax - t.Fees

	case domain.TransactionInterest:
		cashDelta = t.Amount - t.Tax - t.Fees

	case domain.TransactionDeposit:
		cashDelta = t.Amount - t.Fees

	case domain.TransactionWithdrawal:
		cashDelta = -(t.Amount + t.Fees)

	case domain.TransactionFixedDeposit:
		cashDelta = -t.Amount

	case domain.TransactionFDWithdrawal:
		cashDelta = t.Amount - t.Tax - t.Fees

	default:
		return fmt.Errorf("unsupported transaction type: %s", t.Type)
	}

	return s.moveCash(tx, t, p, cashDelta)
}

// reverse undoes the mutations of apply. Buys restore the prior average
// cost from the booked figures; sells put the quantity back and unwind
// the realized gain recorded on the row.
func (s *Service) reverse(tx *sql.Tx, t *domain.Transaction, p *domain.Portfolio) error {
	rate := t.CurrencyRate

	var cashDelta float64 // transaction currency

	switch t.Type {
	case domain.TransactionBuy:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h == nil {
			s.log.Warn().
				Int64("asset_id", *t.AssetID).
				Str("transaction_id", t.ID).
				Msg("Reversing buy against missing holding, skipping holding mutation")
		} else {
			oldQty := h.Quantity - t.Quantity
			if oldQty <= 0 {
				h.Quantity = 0
				h.AvgCostBasis = t.PriorAvgCost
			} else {
				h.AvgCostBasis = (h.Quantity*h.AvgCostBasis - t.Quantity*t.Price - t.Fees) / oldQty
				h.Quantity = oldQty
			}
			if err := s.holdings.UpsertTx(tx, *h); err != nil {
				return err
			}
			if err := s.holdings.DeleteEmptyTx(tx, t.PortfolioID, *t.AssetID); err != nil {
				return err
			}
		}
		cashDelta = t.Quantity*t.Price + t.Fees + t.Tax

	case domain.TransactionSell:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h == nil {
			h = &domain.Holding{PortfolioID: t.PortfolioID, AssetID: *t.AssetID}
		}
		h.Quantity += t.Quantity
		h.RealizedGainLoss -= t.RealizedGain * rate
		if err := s.holdings.UpsertTx(tx, *h); err != nil {
			return err
		}
		cashDelta = -(t.Quantity*t.Price - t.Fees - t.Tax)

	case domain.TransactionDividend:
		h, err := s.holdings.GetTx(tx, t.PortfolioID, *t.AssetID)
		if err != nil {
			return err
		}
		if h != nil {
			h.TotalDividends -= t.Amount * rate
			if err := s.holdings.UpsertTx(tx, *h); err != nil {
				return err
			}
		}
		cashDelta = -(t.Amount - t.Tax - t.Fees)

	case domain.TransactionInterest:
		cashDelta = -(t.Amount - t.Tax - t.Fees)

	case domain.TransactionDeposit:
		cashDelta = -(t.Amount - t.Fees)

	case domain.TransactionWithdrawal:
		cashDelta = t.Amount + t.Fees

	case domain.TransactionFixedDeposit:
		cashDelta = t.Amount

	case domain.TransactionFDWithdrawal:
		cashDelta = -(t.Amount - t.Tax - t.Fees)

	default:
		return fmt.Errorf("unsupported transaction type: %s", t.Type)
	}

	return s.moveCash(tx, t, p, cashDelta)
}

// moveCash applies a cash delta (in transaction currency) to the portfolio
// balance and, under cash discipline, the institution balance for that
// currency.
func (s *Service) moveCash(tx *sql.Tx, t *domain.Transaction, p *domain.Portfolio, delta float64) error {
	if delta == 0 {
		return nil
	}

	if err := s.portfolios.AdjustCash(tx, t.PortfolioID, delta*t.CurrencyRate); err != nil {
		return err
	}

	if p.CashDiscipline && t.InstitutionID != nil {
		if err := s.cash.AdjustTx(tx, *t.InstitutionID, string(t.Currency), delta); err != nil {
			return err
		}
	}

	return nil
}
