// Package marketdata fetches market prices for stocks, crypto and gold from
// the price provider, with persistent cache-first fallback.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rezapram/arta/internal/clientdata"
	"github.com/rezapram/arta/internal/domain"
)

// Client is the REST price client.
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new price client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL, apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "marketdata").Logger(),
		cacheRepo: cacheRepo,
	}
}

// cachedQuote is the structure stored in the current_prices cache table.
type cachedQuote struct {
	Price         string `msgpack:"price"`
	Currency      string `msgpack:"currency"`
	ChangePercent string `msgpack:"change_percent"`
	AsOf          int64  `msgpack:"as_of"`
}

// quoteResponse is one entry of the provider's /quotes payload. Prices come
// as JSON numbers; json.Number keeps them intact for decimal parsing.
type quoteResponse struct {
	Symbol        string      `json:"symbol"`
	Price         json.Number `json:"price"`
	Currency      string      `json:"currency"`
	ChangePercent json.Number `json:"change_percent"`
}

// GetQuotes fetches current prices for the given symbols. Symbols the
// provider does not know are simply absent from the result. On API failure
// the persistent cache is consulted per symbol, stale entries included.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	if len(symbols) == 0 {
		return map[string]domain.PriceQuote{}, nil
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		normalized = append(normalized, domain.NormalizeSymbol(s))
	}

	quotes, err := c.fetchQuotes(ctx, normalized)
	if err != nil {
		cached := c.quotesFromCache(normalized)
		if len(cached) > 0 {
			c.log.Warn().
				Err(err).
				Int("cached", len(cached)).
				Int("requested", len(normalized)).
				Msg("API failed, serving cached quotes")
			return cached, nil
		}
		return nil, err
	}

	// Cache persistently for the fallback path
	if c.cacheRepo != nil {
		for symbol, quote := range quotes {
			entry := cachedQuote{
				Price:         quote.Price.String(),
				Currency:      string(quote.Currency),
				ChangePercent: quote.ChangePercent.String(),
				AsOf:          quote.AsOf.Unix(),
			}
			if err := c.cacheRepo.Store("current_prices", symbol, entry, clientdata.TTLCurrentPrice); err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
			}
		}
	}

	c.log.Debug().
		Int("requested", len(normalized)).
		Int("received", len(quotes)).
		Msg("Fetched quotes")
	return quotes, nil
}

// fetchQuotes performs the actual API call.
func (c *Client) fetchQuotes(ctx context.Context, symbols []string) (map[string]domain.PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/v1/quotes?symbols=%s", c.baseURL, url.QueryEscape(strings.Join(symbols, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quotes request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quotes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Quotes []quoteResponse `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse quotes response: %w", err)
	}

	now := time.Now()
	quotes := make(map[string]domain.PriceQuote, len(payload.Quotes))
	for _, q := range payload.Quotes {
		price, err := decimal.NewFromString(q.Price.String())
		if err != nil || !price.IsPositive() {
			c.log.Warn().
				Str("symbol", q.Symbol).
				Str("price", q.Price.String()).
				Msg("Skipping quote with invalid price")
			continue
		}
		change := decimal.Zero
		if q.ChangePercent != "" {
			if parsed, err := decimal.NewFromString(q.ChangePercent.String()); err == nil {
				change = parsed
			}
		}
		quotes[domain.NormalizeSymbol(q.Symbol)] = domain.PriceQuote{
			Price:         price,
			Currency:      domain.Currency(strings.ToUpper(q.Currency)),
			ChangePercent: change,
			AsOf:          now,
		}
	}
	return quotes, nil
}

// quotesFromCache loads whatever the persistent cache has for the symbols,
// expired entries included. Stale data is better than no data.
func (c *Client) quotesFromCache(symbols []string) map[string]domain.PriceQuote {
	if c.cacheRepo == nil {
		return nil
	}

	quotes := make(map[string]domain.PriceQuote)
	for _, symbol := range symbols {
		var entry cachedQuote
		found, err := c.cacheRepo.Get("current_prices", symbol, &entry)
		if err != nil || !found {
			continue
		}
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			continue
		}
		change, err := decimal.NewFromString(entry.ChangePercent)
		if err != nil {
			change = decimal.Zero
		}
		quotes[symbol] = domain.PriceQuote{
			Price:         price,
			Currency:      domain.Currency(entry.Currency),
			ChangePercent: change,
			AsOf:          time.Unix(entry.AsOf, 0),
		}
	}
	return quotes
}
