// Package fixeddeposit tracks term deposits held as assets: interest
// accrual, maturity detection, and withdrawal back into portfolio cash.
package fixeddeposit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
	"github.com/apostolou/hestia/internal/modules/impact"
)

const dateLayout = "2006-01-02"

// Service manages fixed deposit lifecycle
type Service struct {
	assetsRepo *assets.Repository
	impact     *impact.Service
	log        zerolog.Logger
}

// NewService creates a new fixed deposit service
func NewService(assetsRepo *assets.Repository, impactSvc *impact.Service, log zerolog.Logger) *Service {
	return &Service{
		assetsRepo: assetsRepo,
		impact:     impactSvc,
		log:        log.With().Str("service", "fixeddeposit").Logger(),
	}
}

// DepositStatus is the computed state of a single deposit
type DepositStatus struct {
	Asset           domain.Asset `json:"asset"`
	AccruedInterest float64      `json:"accrued_interest"`
	MaturityValue   float64      `json:"maturity_value"`
	DaysElapsed     int          `json:"days_elapsed"`
	DaysToMaturity  int          `json:"days_to_maturity"`
	Matured         bool         `json:"matured"`
}

// GetAll returns every fixed deposit with accrued figures as of today
// (statusFilter "" = all statuses).
func (s *Service) GetAll(statusFilter string) ([]DepositStatus, error) {
	deposits, err := s.assetsRepo.GetFixedDeposits(statusFilter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := make([]DepositStatus, 0, len(deposits))
	for _, a := range deposits {
		status, err := s.computeStatus(a, now)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", a.Symbol).Msg("Skipping deposit with invalid dates")
			continue
		}
		result = append(result, *status)
	}

	return result, nil
}

// GetByID returns the computed state of one deposit
func (s *Service) GetByID(assetID int64) (*DepositStatus, error) {
	a, err := s.assetsRepo.GetByID(assetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("asset %d not found", assetID)
	}
	if !a.IsFixedDeposit() {
		return nil, fmt.Errorf("asset %d is not a fixed deposit", assetID)
	}

	return s.computeStatus(*a, time.Now().UTC())
}

// AccruedInterest computes simple interest earned between the deposit
// start date and asOf, capped at the maturity date, on an actual/365 basis.
func AccruedInterest(principal, annualRate float64, startDate, maturityDate string, asOf time.Time) (float64, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return 0, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	maturity, err := time.Parse(dateLayout, maturityDate)
	if err != nil {
		return 0, fmt.Errorf("invalid maturity date %q: %w", maturityDate, err)
	}

	end := asOf
	if end.After(maturity) {
		end = maturity
	}
	if end.Before(start) {
		return 0, nil
	}

	days := end.Sub(start).Hours() / 24
	return principal * annualRate * days / 365.0, nil
}

// WithdrawRequest describes an early or at-maturity withdrawal
type WithdrawRequest struct {
	AssetID       int64   `json:"asset_id"`
	PortfolioID   int64   `json:"portfolio_id"`
	InstitutionID *int64  `json:"institution_id,omitempty"`
	PenaltyRate   float64 `json:"penalty_rate"` // fraction of accrued interest forfeited on early withdrawal
	Tax           float64 `json:"tax"`
	Note          string  `json:"note,omitempty"`
}

// Withdraw closes a deposit: it books an FD_WITHDRAWAL crediting principal
// plus accrued interest back to portfolio cash and marks the asset
// withdrawn. Withdrawing before maturity forfeits PenaltyRate of the
// accrued interest.
func (s *Service) Withdraw(req WithdrawRequest) (*domain.Transaction, error) {
	a, err := s.assetsRepo.GetByID(req.AssetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("asset %d not found", req.AssetID)
	}
	if !a.IsFixedDeposit() {
		return nil, fmt.Errorf("asset %d is not a fixed deposit", req.AssetID)
	}
	if a.DepositStatus != nil && *a.DepositStatus == domain.DepositWithdrawn {
		return nil, fmt.Errorf("deposit %s already withdrawn", a.Symbol)
	}
	if req.PenaltyRate < 0 || req.PenaltyRate > 1 {
		return nil, fmt.Errorf("penalty rate must be between 0 and 1")
	}

	now := time.Now().UTC()
	status, err := s.computeStatus(*a, now)
	if err != nil {
		return nil, err
	}

	interest := status.AccruedInterest
	if !status.Matured {
		interest *= 1 - req.PenaltyRate
	}

	t, err := s.impact.Record(impact.CreateRequest{
		PortfolioID:   req.PortfolioID,
		AssetID:       &req.AssetID,
		InstitutionID: req.InstitutionID,
		Type:          string(domain.TransactionFDWithdrawal),
		Amount:        *a.DepositPrincipal + interest,
		Tax:           req.Tax,
		Currency:      string(a.Currency),
		TradeDate:     now.Format(dateLayout),
		Note:          req.Note,
	})
	if err != nil {
		return nil, err
	}

	if err := s.assetsRepo.UpdateDepositStatus(req.AssetID, domain.DepositWithdrawn); err != nil {
		return nil, fmt.Errorf("failed to mark deposit withdrawn: %w", err)
	}

	s.log.Info().
		Str("symbol", a.Symbol).
		Float64("principal", *a.DepositPrincipal).
		Float64("interest", interest).
		Bool("matured", status.Matured).
		Msg("Fixed deposit withdrawn")

	return t, nil
}

// MarkMatured scans active deposits and flips the ones past their
// maturity date to MATURED. Returns the number of deposits flipped.
func (s *Service) MarkMatured() (int, error) {
	deposits, err := s.assetsRepo.GetFixedDeposits(string(domain.DepositActive))
	if err != nil {
		return 0, err
	}

	today := time.Now().UTC().Format(dateLayout)
	matured := 0
	for _, a := range deposits {
		if a.DepositMaturityDate == nil || *a.DepositMaturityDate > today {
			continue
		}
		if err := s.assetsRepo.UpdateDepositStatus(a.ID, domain.DepositMatured); err != nil {
			return matured, err
		}
		s.log.Info().
			Str("symbol", a.Symbol).
			Str("maturity_date", *a.DepositMaturityDate).
			Msg("Fixed deposit matured")
		matured++
	}

	return matured, nil
}

func (s *Service) computeStatus(a domain.Asset, now time.Time) (*DepositStatus, error) {
	if a.DepositPrincipal == nil || a.DepositAnnualRate == nil ||
		a.DepositStartDate == nil || a.DepositMaturityDate == nil {
		return nil, fmt.Errorf("deposit %s is missing term fields", a.Symbol)
	}

	accrued, err := AccruedInterest(*a.DepositPrincipal, *a.DepositAnnualRate,
		*a.DepositStartDate, *a.DepositMaturityDate, now)
	if err != nil {
		return nil, err
	}

	start, _ := time.Parse(dateLayout, *a.DepositStartDate)
	maturity, _ := time.Parse(dateLayout, *a.DepositMaturityDate)

	fullTerm, err := AccruedInterest(*a.DepositPrincipal, *a.DepositAnnualRate,
		*a.DepositStartDate, *a.DepositMaturityDate, maturity)
	if err != nil {
		return nil, err
	}

	status := &DepositStatus{
		Asset:           a,
		AccruedInterest: accrued,
		MaturityValue:   *a.DepositPrincipal + fullTerm,
		Matured:         !now.Before(maturity),
	}
	if now.After(start) {
		status.DaysElapsed = int(now.Sub(start).Hours() / 24)
	}
	if maturity.After(now) {
		status.DaysToMaturity = int(maturity.Sub(now).Hours() / 24)
	}

	return status, nil
}
