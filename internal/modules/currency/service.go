// Package currency provides currency conversion for transaction and
// reporting amounts. Rates come from the exchange-rate API client with
// manual overrides and hardcoded fallbacks as lower tiers.
package currency

import (
	"fmt"

	"github.com/rs/zerolog"
)

// RateProvider fetches an exchange rate for a currency pair
type RateProvider interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// OverrideStore reads manually configured rates (settings repository)
type OverrideStore interface {
	GetFloat(key string, defaultValue float64) (float64, error)
}

// fallbackRates are last-resort rates used when every other tier fails.
// Stale beats zero: a rough conversion is better than refusing to book
// a transaction.
var fallbackRates = map[string]float64{
	"USD:EUR": 0.92,
	"EUR:USD": 1.09,
	"GBP:EUR": 1.17,
	"EUR:GBP": 0.85,
	"HKD:EUR": 0.12,
	"EUR:HKD": 8.50,
}

// Service converts amounts between currencies with tiered rate lookup:
// 1. Manual override from settings (rate_override_<FROM>_<TO>)
// 2. Exchange-rate API client (with its own persistent cache)
// 3. Hardcoded fallback rates
type Service struct {
	provider  RateProvider
	overrides OverrideStore
	log       zerolog.Logger
}

// NewService creates a new currency service.
// provider and overrides are both optional - nil disables that tier.
func NewService(provider RateProvider, overrides OverrideStore, log zerolog.Logger) *Service {
	return &Service{
		provider:  provider,
		overrides: overrides,
		log:       log.With().Str("service", "currency").Logger(),
	}
}

// GetRate returns the exchange rate from one currency to another
func (s *Service) GetRate(fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	// Tier 1: manual override from settings
	if s.overrides != nil {
		key := fmt.Sprintf("rate_override_%s_%s", fromCurrency, toCurrency)
		if rate, err := s.overrides.GetFloat(key, 0); err == nil && rate > 0 {
			s.log.Debug().
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Float64("rate", rate).
				Str("source", "override").
				Msg("Using manual rate override")
			return rate, nil
		}
	}

	// Tier 2: exchange-rate API (client handles its own caching)
	if s.provider != nil {
		rate, err := s.provider.GetRate(fromCurrency, toCurrency)
		if err == nil && rate > 0 {
			return rate, nil
		}
		s.log.Warn().Err(err).
			Str("from", fromCurrency).
			Str("to", toCurrency).
			Msg("Rate provider failed, trying fallback rates")
	}

	// Tier 3: hardcoded fallbacks
	if rate, ok := fallbackRates[fromCurrency+":"+toCurrency]; ok {
		s.log.Warn().
			Str("from", fromCurrency).
			Str("to", toCurrency).
			Float64("rate", rate).
			Msg("Using hardcoded fallback rate")
		return rate, nil
	}

	return 0, fmt.Errorf("no exchange rate available for %s->%s", fromCurrency, toCurrency)
}

// Convert converts an amount from one currency to another
func (s *Service) Convert(amount float64, fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return amount, nil
	}

	rate, err := s.GetRate(fromCurrency, toCurrency)
	if err != nil {
		return 0, err
	}

	return amount * rate, nil
}
