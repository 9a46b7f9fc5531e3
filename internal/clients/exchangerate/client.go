// Package exchangerate fetches currency exchange rates from a
// frankfurter-style JSON API, with cache-first reads through cache.db.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/clientdata"
)

const cacheSource = "exchangerate"

// Client fetches exchange rates for a base currency. One API call returns
// the full rate table for that base, so the table is cached as a whole and
// later pairs with the same base are served from cache.db.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *clientdata.Repository
	log     zerolog.Logger
}

// NewClient creates a rate client. An empty baseURL selects the public
// exchangerate-api endpoint. cache may be nil, which disables caching.
func NewClient(baseURL string, cache *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.exchangerate-api.com/v4/latest"
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		log:     log.With().Str("client", "exchangerate").Logger(),
	}
}

// GetRate returns the rate from one currency to another. When the API is
// unreachable a stale cached table is used, on the grounds that an old rate
// beats no rate for a household valuation.
func (c *Client) GetRate(fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	if table, ok := c.cachedTable(fromCurrency, true); ok {
		if rate, ok := table[toCurrency]; ok {
			return rate, nil
		}
	}

	table, err := c.fetchTable(fromCurrency)
	if err != nil {
		if stale, ok := c.cachedTable(fromCurrency, false); ok {
			if rate, ok := stale[toCurrency]; ok {
				c.log.Warn().
					Err(err).
					Str("from", fromCurrency).
					Str("to", toCurrency).
					Float64("rate", rate).
					Msg("Rate fetch failed, using stale cached rate")
				return rate, nil
			}
		}
		return 0, err
	}

	rate, ok := table[toCurrency]
	if !ok {
		return 0, fmt.Errorf("no rate from %s to %s in API response", fromCurrency, toCurrency)
	}
	return rate, nil
}

// fetchTable retrieves and caches the full rate table for a base currency
func (c *Client) fetchTable(baseCurrency string) (map[string]float64, error) {
	url := c.baseURL + "/" + baseCurrency

	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates for %s: %w", baseCurrency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate API returned status %d for %s", resp.StatusCode, baseCurrency)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse rate response for %s: %w", baseCurrency, err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("rate API returned no rates for %s", baseCurrency)
	}

	if c.cache != nil {
		if err := c.cache.Store(cacheSource, baseCurrency, payload.Rates, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("base", baseCurrency).Msg("Failed to cache rate table")
		}
	}

	c.log.Info().
		Str("base", baseCurrency).
		Int("rates", len(payload.Rates)).
		Msg("Fetched rate table")

	return payload.Rates, nil
}

// cachedTable loads a rate table from the cache. freshOnly skips entries
// past their TTL; stale entries are only served as an API-failure fallback.
func (c *Client) cachedTable(baseCurrency string, freshOnly bool) (map[string]float64, bool) {
	if c.cache == nil {
		return nil, false
	}

	var (
		data json.RawMessage
		err  error
	)
	if freshOnly {
		data, err = c.cache.GetIfFresh(cacheSource, baseCurrency)
	} else {
		data, err = c.cache.Get(cacheSource, baseCurrency)
	}
	if err != nil || data == nil {
		return nil, false
	}

	var table map[string]float64
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, false
	}
	return table, true
}
