package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marketdash/models"
)

// BinanceAPIURL is the Binance spot kline endpoint
const BinanceAPIURL = "https://api.binance.com/api/v3/klines"

// BinanceProvider fetches candles from the Binance public REST API
type BinanceProvider struct {
	baseURL string
	client  *http.Client
}

// NewBinanceProvider creates a Binance provider against the public API
func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{
		baseURL: BinanceAPIURL,
		client:  newHTTPClient(),
	}
}

// Name returns the provider name
func (p *BinanceProvider) Name() string {
	return models.ProviderBinance
}

// FetchCandles fetches up to limit candles for symbol/interval, oldest first.
// Binance kline intervals match ours one to one.
func (p *BinanceProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if !models.ValidInterval(interval) {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	if limit <= 0 {
		limit = 100
	}

	params := url.Values{}
	params.Set("symbol", binanceSymbol(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	reqURL := p.baseURL + "?" + params.Encode()

	// Binance returns each kline as a positional JSON array with
	// numbers encoded as strings
	var klines [][]json.RawMessage
	err := withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("binance request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("binance returned status %d", resp.StatusCode)
		}
		klines = klines[:0]
		return json.NewDecoder(resp.Body).Decode(&klines)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		if len(k) < 6 {
			continue
		}
		candle := models.Candle{
			Symbol:   symbol,
			Interval: interval,
			Provider: models.ProviderBinance,
		}
		if err := json.Unmarshal(k[0], &candle.Timestamp); err != nil {
			continue
		}
		fields := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		ok := true
		for i, dst := range fields {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			*dst = v
		}
		if ok {
			candles = append(candles, candle)
		}
	}
	return candles, nil
}

// binanceSymbol normalizes "BTC/USDT" to Binance's "BTCUSDT" form
func binanceSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}
