package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mvrv/internal/adapters/httpapi"
	"mvrv/internal/adapters/ratelimit"
	"mvrv/internal/domain/mvrv"
	"mvrv/pkg/errors"
)

// Config configures the CoinGecko client
type Config struct {
	BaseURL    string
	APIKey     string // optional demo/pro key
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerMinute paces calls; the public tier allows roughly 30/min
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client implements mvrv.PriceProvider for bitcoin against the CoinGecko v3 API
type Client struct {
	api *httpapi.Client
	now func() time.Time
}

// NewClient creates a CoinGecko client
func NewClient(cfg Config) *Client {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-cg-demo-api-key"] = cfg.APIKey
	}

	var limiter *ratelimit.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = ratelimit.NewLimiter("coingecko", cfg.RequestsPerMinute)
	}

	return &Client{
		api: httpapi.New(httpapi.Config{
			Provider:   "coingecko",
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Headers:    headers,
			Limiter:    limiter,
			HTTPClient: cfg.HTTPClient,
		}),
		now: time.Now,
	}
}

type marketData struct {
	CurrentPrice      map[string]float64 `json:"current_price"`
	CirculatingSupply float64            `json:"circulating_supply"`
}

type coinResponse struct {
	MarketData *marketData `json:"market_data"`
}

type rangeResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// GetSpotPrice returns the current USD price and circulating supply
func (c *Client) GetSpotPrice(ctx context.Context) (*mvrv.MarketSnapshot, error) {
	query := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"community_data": {"false"},
		"developer_data": {"false"},
	}

	var resp coinResponse
	if err := c.api.GetJSON(ctx, "coin", "/coins/bitcoin", query, &resp); err != nil {
		return nil, err
	}

	if resp.MarketData == nil {
		return nil, errors.Wrap(errors.ErrNoData, "coingecko spot: no market data")
	}
	price, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok || price <= 0 {
		return nil, errors.Wrap(errors.ErrNoData, "coingecko spot: no usd price")
	}
	if resp.MarketData.CirculatingSupply <= 0 {
		return nil, errors.Wrap(errors.ErrNoData, "coingecko spot: no circulating supply")
	}

	return &mvrv.MarketSnapshot{
		At:                c.now().UTC(),
		PriceUSD:          price,
		CirculatingSupply: resp.MarketData.CirculatingSupply,
	}, nil
}

// GetHistoricalPrice returns the USD price for a UTC calendar date
func (c *Client) GetHistoricalPrice(ctx context.Context, date time.Time) (float64, error) {
	query := url.Values{
		"date":         {date.UTC().Format("02-01-2006")},
		"localization": {"false"},
	}

	var resp coinResponse
	if err := c.api.GetJSON(ctx, "history", "/coins/bitcoin/history", query, &resp); err != nil {
		return 0, err
	}

	if resp.MarketData == nil {
		return 0, errors.Wrapf(errors.ErrNoData, "coingecko history %s", date.UTC().Format("2006-01-02"))
	}
	price, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok || price <= 0 {
		return 0, errors.Wrapf(errors.ErrNoData, "coingecko history %s: no usd price", date.UTC().Format("2006-01-02"))
	}
	return price, nil
}

// GetPriceRange returns USD prices between from and to.
// CoinGecko picks the granularity (hourly for ranges up to 90 days).
func (c *Client) GetPriceRange(ctx context.Context, from, to time.Time) ([]mvrv.PricePoint, error) {
	query := url.Values{
		"vs_currency": {"usd"},
		"from":        {strconv.FormatInt(from.Unix(), 10)},
		"to":          {strconv.FormatInt(to.Unix(), 10)},
	}

	var resp rangeResponse
	if err := c.api.GetJSON(ctx, "market_chart_range", "/coins/bitcoin/market_chart/range", query, &resp); err != nil {
		return nil, err
	}

	points := make([]mvrv.PricePoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		if p[1] <= 0 {
			continue
		}
		points = append(points, mvrv.PricePoint{
			At:     time.UnixMilli(int64(p[0])).UTC(),
			Price:  p[1],
			Source: mvrv.PriceSourceProvider,
		})
	}
	return points, nil
}

// HTTPClient exposes the underlying client
func (c *Client) HTTPClient() *http.Client {
	return c.api.HTTPClient()
}
