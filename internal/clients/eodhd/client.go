// Package eodhd provides a client for the EODHD end-of-day price API
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/famfolio/internal/common"
	"github.com/bobmcallan/famfolio/internal/interfaces"
	"github.com/bobmcallan/famfolio/internal/models"
)

// flexDecimal handles JSON values that may be a number, a numeric string, or "N/A".
type flexDecimal struct {
	decimal.Decimal
	Valid bool
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" || s == "N/A" {
		f.Valid = false
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("cannot unmarshal %s into decimal: %w", string(data), err)
	}
	f.Decimal = d
	f.Valid = true
	return nil
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements interfaces.PriceProvider against EODHD
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-200 response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// eodBarResponse is one row of the /eod endpoint
type eodBarResponse struct {
	Date          string      `json:"date"`
	Close         flexDecimal `json:"close"`
	AdjustedClose flexDecimal `json:"adjusted_close"`
}

// FetchDailyPrices returns daily closes for symbol in [start, end], ascending.
// Failures are returned as *common.ProviderError.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyPrice, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	params.Set("from", common.FormatDate(start))
	params.Set("to", common.FormatDate(end))

	path := fmt.Sprintf("/eod/%s", url.PathEscape(ProviderSymbol(symbol)))

	var bars []eodBarResponse
	if err := c.get(ctx, path, params, &bars); err != nil {
		return nil, classify(symbol, err)
	}

	prices := make([]models.DailyPrice, 0, len(bars))
	for _, bar := range bars {
		if !bar.Close.Valid {
			continue
		}
		date, err := common.ParseDate(bar.Date)
		if err != nil {
			c.logger.Warn().Str("symbol", symbol).Str("date", bar.Date).Msg("Skipping bar with unparseable date")
			continue
		}
		prices = append(prices, models.DailyPrice{Date: date, Close: bar.Close.Decimal})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })

	return prices, nil
}

// ProviderSymbol maps a ledger symbol to its EODHD code. Bare symbols are
// listed on US exchanges; "-T" is the TSX shorthand.
func ProviderSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "-T") {
		return strings.TrimSuffix(s, "-T") + ".TO"
	}
	if strings.Contains(s, ".") {
		return s
	}
	return s + ".US"
}

// classify converts a transport or API error into a ProviderError.
func classify(symbol string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return common.NewProviderError(common.ProviderNotFound, symbol, apiErr.StatusCode, err)
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusPaymentRequired:
			return common.NewProviderError(common.ProviderRateLimited, symbol, apiErr.StatusCode, err)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return common.NewProviderError(common.ProviderRejected, symbol, apiErr.StatusCode, err)
		default:
			return common.NewProviderError(common.ProviderTransient, symbol, apiErr.StatusCode, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return common.NewProviderError(common.ProviderTimedOut, symbol, 0, err)
	}
	return common.NewProviderError(common.ProviderTransient, symbol, 0, err)
}

// Compile-time check
var _ interfaces.PriceProvider = (*Client)(nil)
