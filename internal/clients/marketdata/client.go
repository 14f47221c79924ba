// Package marketdata implements the MarketDataSource interface against a
// Yahoo-Finance-compatible chart API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"marketmind/internal/analysis"
	"marketmind/internal/domain"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client fetches OHLCV series and quotes from the chart API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a market data client. An empty baseURL selects the
// public endpoint; tests point it at a local server.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "marketdata").Logger(),
	}
}

// Fetch returns the daily OHLCV series for a symbol, oldest bar first.
// Six months of history covers every indicator look-back the engine uses.
// Failures are classified per the coordinator's error taxonomy.
func (c *Client) Fetch(ctx context.Context, symbol, exchange string) (domain.Series, error) {
	result, err := c.chart(ctx, symbol, "6mo", "1d")
	if err != nil {
		return nil, err
	}

	if len(result.Indicators.Quote) == 0 {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable,
			fmt.Errorf("chart response carries no quote data"))
	}
	quote := result.Indicators.Quote[0]

	series := make(domain.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Providers null out fields for non-trading periods; skip
		// incomplete bars rather than fabricating zeros
		if i >= len(quote.Close) || quote.Close[i] == nil || quote.Open[i] == nil ||
			quote.High[i] == nil || quote.Low[i] == nil {
			continue
		}

		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}

		series = append(series, domain.Bar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	if len(series) == 0 {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchNotFound,
			fmt.Errorf("no usable bars for %s", symbol))
	}

	c.log.Debug().Str("symbol", symbol).Int("bars", len(series)).Msg("Fetched series")
	return series, nil
}

// GetQuote returns the current price and day change for a symbol.
// Used by the indices summary and the P&L review job.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	result, err := c.chart(ctx, symbol, "5d", "1d")
	if err != nil {
		return nil, err
	}

	price := result.Meta.RegularMarketPrice
	prev := result.Meta.PreviousClose
	if price == 0 {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable,
			fmt.Errorf("chart meta carries no market price"))
	}

	quote := &Quote{Symbol: symbol, Price: price}
	if prev != 0 {
		quote.Change = price - prev
		quote.ChangePercent = (price - prev) / prev * 100
	}

	return quote, nil
}

// FetchRange returns daily bars between two dates inclusive. Used by the
// weekly reconciliation job to read a completed week.
func (c *Client) FetchRange(ctx context.Context, symbol string, from, to time.Time) (domain.Series, error) {
	series, err := c.Fetch(ctx, symbol, "")
	if err != nil {
		return nil, err
	}

	var window domain.Series
	for _, bar := range series {
		if !bar.Date.Before(from) && !bar.Date.After(to) {
			window = append(window, bar)
		}
	}
	return window, nil
}

// chart performs one chart API call and classifies failures.
func (c *Client) chart(ctx context.Context, symbol, rng, interval string) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		c.baseURL, url.PathEscape(symbol), rng, interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable, err)
	}
	req.Header.Set("User-Agent", "marketmind/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchNotFound,
			fmt.Errorf("symbol not known to provider"))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchRateLimited,
			fmt.Errorf("provider rate limit hit"))
	case resp.StatusCode != http.StatusOK:
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable,
			fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable, err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchUnavailable,
			fmt.Errorf("failed to parse chart response: %w", err))
	}

	if parsed.Chart.Error != nil {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchNotFound,
			fmt.Errorf("provider error %s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description))
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, analysis.NewDataFetchError(symbol, analysis.FetchNotFound,
			fmt.Errorf("empty chart result"))
	}

	return &parsed.Chart.Result[0], nil
}
