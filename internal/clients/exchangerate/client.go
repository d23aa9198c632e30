// Package exchangerate provides currency exchange rate fetching and caching functionality.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/clientdata"
)

// Client for exchangerate-api.com
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchangerate-api.com client
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://api.exchangerate-api.com/v4/latest",
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchangerate-api").Logger(),
		cacheRepo: cacheRepo,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// cachedExchangeRate is the structure stored in the cache
type cachedExchangeRate struct {
	Rate string `msgpack:"rate"`
}

// GetRate fetches an exchange rate with cache-first behavior.
// If the API fails, returns stale cached data if available (stale data > no
// data). The bool result reports whether the rate came from a stale cache.
func (c *Client) GetRate(fromCurrency, toCurrency string) (decimal.Decimal, bool, error) {
	if fromCurrency == toCurrency {
		return decimal.NewFromInt(1), false, nil
	}

	cacheKey := fromCurrency + ":" + toCurrency

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		var cached cachedExchangeRate
		fresh, err := c.cacheRepo.GetIfFresh("exchangerate", cacheKey, &cached)
		if err == nil && fresh {
			if rate, parseErr := decimal.NewFromString(cached.Rate); parseErr == nil {
				c.log.Debug().
					Str("from", fromCurrency).
					Str("to", toCurrency).
					Str("rate", cached.Rate).
					Msg("Cache hit")
				return rate, false, nil
			}
		}
	}

	rate, err := c.fetchRate(fromCurrency, toCurrency)
	if err != nil {
		if staleRate, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().
				Err(err).
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Str("rate", staleRate.String()).
				Msg("API failed, using stale cached rate")
			return staleRate, true, nil
		}
		return decimal.Zero, false, err
	}

	// Cache persistently
	if c.cacheRepo != nil {
		cached := cachedExchangeRate{Rate: rate.String()}
		if err := c.cacheRepo.Store("exchangerate", cacheKey, cached, clientdata.TTLExchangeRate); err != nil {
			c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache exchange rate")
		}
	}

	c.log.Info().
		Str("from", fromCurrency).
		Str("to", toCurrency).
		Str("rate", rate.String()).
		Msg("Fetched rate")

	return rate, false, nil
}

// fetchRate does the actual API call.
func (c *Client) fetchRate(fromCurrency, toCurrency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	resp, err := c.client.Get(url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse response: %w", err)
	}

	raw, exists := result.Rates[toCurrency]
	if !exists {
		return decimal.Zero, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q for %s->%s: %w", raw.String(), fromCurrency, toCurrency, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for %s->%s", rate, fromCurrency, toCurrency)
	}
	return rate, nil
}

// getStaleFromCache retrieves a cached rate even if expired.
func (c *Client) getStaleFromCache(cacheKey string) (decimal.Decimal, bool) {
	if c.cacheRepo == nil {
		return decimal.Zero, false
	}

	var cached cachedExchangeRate
	found, err := c.cacheRepo.Get("exchangerate", cacheKey, &cached)
	if err != nil || !found {
		return decimal.Zero, false
	}

	rate, err := decimal.NewFromString(cached.Rate)
	if err != nil {
		return decimal.Zero, false
	}
	return rate, true
}
