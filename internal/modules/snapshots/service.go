package snapshots

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/portfolio"
)

// Service captures daily valuation snapshots for every portfolio
type Service struct {
	repo       *Repository
	portfolios *portfolio.Service
	log        zerolog.Logger
}

// NewService creates a new snapshots service
func NewService(repo *Repository, portfolios *portfolio.Service, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		portfolios: portfolios,
		log:        log.With().Str("service", "snapshots").Logger(),
	}
}

// CaptureAll values every portfolio and stores a snapshot dated today.
// Running twice on the same day replaces the earlier snapshot.
func (s *Service) CaptureAll() (int, error) {
	valuations, err := s.portfolios.ComputeAllValuations()
	if err != nil {
		return 0, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	stored := 0
	for _, v := range valuations {
		if err := s.repo.Store(today, v); err != nil {
			return stored, err
		}
		stored++
	}

	s.log.Info().Int("portfolios", stored).Str("date", today).Msg("Valuation snapshots captured")
	return stored, nil
}
