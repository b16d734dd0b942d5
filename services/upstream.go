package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketdash/models"
)

// Upstream HTTP clients for split deployments: a gateway instance can
// point its pollers at separate market-data and analytics services
// instead of the in-process implementations. The REST shapes match
// this service's own API, so instances chain together.

const upstreamRequestTimeout = 10 * time.Second

// MarketDataClient is a thin HTTP client for a remote market-data
// service. Implements the realtime CandleSource interface.
type MarketDataClient struct {
	baseURL string
	client  *http.Client
}

// NewMarketDataClient creates a client against baseURL
func NewMarketDataClient(baseURL string) *MarketDataClient {
	return &MarketDataClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: upstreamRequestTimeout},
	}
}

// LatestCandle fetches the latest candle for a feed. A feed with no
// data yet comes back as (nil, nil).
func (c *MarketDataClient) LatestCandle(ctx context.Context, symbol, interval string) (*models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	reqURL := c.baseURL + "/api/v1/candles/latest?" + params.Encode()

	var body struct {
		Data *models.Candle `json:"data"`
	}
	if err := getJSON(ctx, c.client, reqURL, &body); err != nil {
		return nil, fmt.Errorf("market data service: %w", err)
	}
	return body.Data, nil
}

// AnalyticsClient is a thin HTTP client for a remote analytics
// service. Implements the realtime SignalSource interface.
type AnalyticsClient struct {
	baseURL string
	client  *http.Client
}

// NewAnalyticsClient creates a client against baseURL
func NewAnalyticsClient(baseURL string) *AnalyticsClient {
	return &AnalyticsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: upstreamRequestTimeout},
	}
}

// Signals queries the analytics service for signals in [from, to)
func (c *AnalyticsClient) Signals(ctx context.Context, provider, symbol, interval string, from, to time.Time, strategyID string) ([]models.Signal, error) {
	params := url.Values{}
	params.Set("provider", provider)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("strategy", strategyID)
	params.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	params.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	reqURL := c.baseURL + "/api/v1/signals?" + params.Encode()

	var body struct {
		Data []models.Signal `json:"data"`
	}
	if err := getJSON(ctx, c.client, reqURL, &body); err != nil {
		return nil, fmt.Errorf("analytics service: %w", err)
	}
	return body.Data, nil
}

func getJSON(ctx context.Context, client *http.Client, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
