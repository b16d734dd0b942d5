package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"marketdash/models"
)

// CoinbaseAPIURL is the Coinbase Exchange products endpoint
const CoinbaseAPIURL = "https://api.exchange.coinbase.com"

// Coinbase only exposes a fixed set of candle granularities
var coinbaseGranularities = map[string]int{
	models.Interval1m:  60,
	models.Interval5m:  300,
	models.Interval15m: 900,
	models.Interval1h:  3600,
	models.Interval1d:  86400,
}

// CoinbaseProvider fetches candles from the Coinbase Exchange REST API
type CoinbaseProvider struct {
	baseURL string
	client  *http.Client
}

// NewCoinbaseProvider creates a Coinbase provider against the public API
func NewCoinbaseProvider() *CoinbaseProvider {
	return &CoinbaseProvider{
		baseURL: CoinbaseAPIURL,
		client:  newHTTPClient(),
	}
}

// Name returns the provider name
func (p *CoinbaseProvider) Name() string {
	return models.ProviderCoinbase
}

// FetchCandles fetches up to limit candles for symbol/interval, oldest
// first. Coinbase has no 30m/4h/1w granularity; those intervals error.
func (p *CoinbaseProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	granularity, ok := coinbaseGranularities[interval]
	if !ok {
		return nil, fmt.Errorf("interval %s not supported by coinbase", interval)
	}
	if limit <= 0 || limit > 300 {
		limit = 100
	}

	reqURL := fmt.Sprintf("%s/products/%s/candles?granularity=%d",
		p.baseURL, coinbaseSymbol(symbol), granularity)

	// Coinbase returns [time, low, high, open, close, volume] rows,
	// newest first, time in epoch seconds
	var rows [][]float64
	err := withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "marketdash/1.0")
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("coinbase request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("coinbase returned status %d", resp.StatusCode)
		}
		rows = rows[:0]
		return json.NewDecoder(resp.Body).Decode(&rows)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			Timestamp: int64(row[0]) * 1000,
			Low:       row[1],
			High:      row[2],
			Open:      row[3],
			Close:     row[4],
			Volume:    row[5],
			Provider:  models.ProviderCoinbase,
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// coinbaseSymbol normalizes "BTC/USDT" to Coinbase's "BTC-USDT" form
func coinbaseSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}
