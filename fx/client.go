/*
Package fx fetches the ARS/USD reference exchange rate.

PURPOSE:
  The dashboard shows peso amounts alongside their dollar equivalent. This
  client pulls the informal sell rate from a public quote API and caches the
  last successful value so a flaky upstream never blanks the dashboard.

FALLBACK BEHAVIOR:
  Any fetch failure (network, non-200, bad body, non-positive rate) returns
  the last known good rate with Stale set. Callers render the stale value
  with a timestamp rather than an error.
*/
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultQuoteURL is the public blue-rate quote endpoint.
const DefaultQuoteURL = "https://dolarapi.com/v1/dolares/blue"

// Rate is an ARS per USD sell rate.
type Rate struct {
	Sell      decimal.Decimal `json:"venta"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale"`
}

// Client fetches the sell rate, remembering the last good value.
type Client struct {
	url  string
	http *http.Client

	mu   sync.Mutex
	last *Rate
}

// NewClient creates a client for the given quote URL. An empty url uses
// DefaultQuoteURL.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultQuoteURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type quoteResponse struct {
	Sell float64 `json:"venta"`
}

// SellRate returns the current ARS/USD sell rate. On any upstream failure it
// falls back to the last successful fetch, marked Stale; if there has never
// been one, the error is returned.
func (c *Client) SellRate(ctx context.Context) (Rate, error) {
	rate, err := c.fetch(ctx)
	if err == nil {
		c.mu.Lock()
		c.last = &rate
		c.mu.Unlock()
		return rate, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil {
		stale := *c.last
		stale.Stale = true
		return stale, nil
	}
	return Rate{}, err
}

func (c *Client) fetch(ctx context.Context) (Rate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Rate{}, fmt.Errorf("quote endpoint returned %d", resp.StatusCode)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return Rate{}, fmt.Errorf("failed to decode quote: %w", err)
	}
	if quote.Sell <= 0 {
		return Rate{}, fmt.Errorf("quote endpoint returned non-positive rate %v", quote.Sell)
	}

	return Rate{
		Sell:      decimal.NewFromFloat(quote.Sell),
		FetchedAt: time.Now().UTC(),
	}, nil
}
