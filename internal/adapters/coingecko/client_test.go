package coingecko

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/pkg/errors"
)

const baseURL = "https://coingecko.test/api/v3"

func newTestClient(t *testing.T, apiKey string) *Client {
	t.Helper()

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient(Config{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Timeout:    time.Second,
		HTTPClient: httpClient,
	})
}

func TestGetSpotPrice(t *testing.T) {
	t.Run("price and supply", func(t *testing.T) {
		c := newTestClient(t, "")
		httpmock.RegisterResponder("GET", baseURL+"/coins/bitcoin",
			httpmock.NewStringResponder(200, `{"market_data":{"current_price":{"usd":65000.5},"circulating_supply":19700000}}`))

		snap, err := c.GetSpotPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 65000.5, snap.PriceUSD)
		assert.Equal(t, 19_700_000.0, snap.CirculatingSupply)
		assert.InDelta(t, 65000.5*19_700_000, snap.MarketValue(), 1)
	})

	t.Run("api key header", func(t *testing.T) {
		c := newTestClient(t, "demo-key")
		httpmock.RegisterResponder("GET", baseURL+"/coins/bitcoin",
			func(req *http.Request) (*http.Response, error) {
				if req.Header.Get("x-cg-demo-api-key") != "demo-key" {
					return httpmock.NewStringResponse(401, `unauthorized`), nil
				}
				return httpmock.NewStringResponse(200, `{"market_data":{"current_price":{"usd":1},"circulating_supply":1}}`), nil
			})

		_, err := c.GetSpotPrice(context.Background())
		require.NoError(t, err)
	})

	t.Run("missing supply", func(t *testing.T) {
		c := newTestClient(t, "")
		httpmock.RegisterResponder("GET", baseURL+"/coins/bitcoin",
			httpmock.NewStringResponder(200, `{"market_data":{"current_price":{"usd":65000}}}`))

		_, err := c.GetSpotPrice(context.Background())
		assert.ErrorIs(t, err, errors.ErrNoData)
	})

	t.Run("rate limited", func(t *testing.T) {
		c := newTestClient(t, "")
		httpmock.RegisterResponder("GET", baseURL+"/coins/bitcoin",
			httpmock.NewStringResponder(429, `{"status":{"error_code":429}}`))

		_, err := c.GetSpotPrice(context.Background())
		assert.ErrorIs(t, err, errors.ErrProviderUnavailable)
	})
}

func TestGetHistoricalPrice(t *testing.T) {
	date := time.Date(2023, 3, 9, 17, 45, 0, 0, time.UTC)

	t.Run("formats date as dd-mm-yyyy", func(t *testing.T) {
		c := newTestClient(t, "")
		httpmock.RegisterResponderWithQuery("GET", baseURL+"/coins/bitcoin/history",
			"date=09-03-2023&localization=false",
			httpmock.NewStringResponder(200, `{"id":"bitcoin","market_data":{"current_price":{"usd":21700.25}}}`))

		price, err := c.GetHistoricalPrice(context.Background(), date)
		require.NoError(t, err)
		assert.Equal(t, 21700.25, price)
	})

	t.Run("no market data", func(t *testing.T) {
		c := newTestClient(t, "")
		httpmock.RegisterResponder("GET", baseURL+"/coins/bitcoin/history",
			httpmock.NewStringResponder(200, `{"id":"bitcoin","name":"Bitcoin"}`))

		_, err := c.GetHistoricalPrice(context.Background(), date)
		assert.ErrorIs(t, err, errors.ErrNoData)
	})
}

func TestGetPriceRange(t *testing.T) {
	c := newTestClient(t, "")
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	httpmock.RegisterResponderWithQuery("GET", baseURL+"/coins/bitcoin/market_chart/range",
		map[string]string{
			"vs_currency": "usd",
			"from":        "1704067200",
			"to":          "1704240000",
		},
		httpmock.NewStringResponder(200, `{"prices":[[1704067200000,42280.2],[1704153600000,0],[1704240000000,44950.1]]}`))

	points, err := c.GetPriceRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, from, points[0].At)
	assert.Equal(t, 42280.2, points[0].Price)
	assert.Equal(t, to, points[1].At)
}
