package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"marketdash/models"
)

// Provider fetches OHLCV candles from one upstream exchange. Candles
// come back oldest first; the last one may still be forming.
type Provider interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

const (
	requestTimeout = 10 * time.Second
	maxFetchTries  = 3
)

// ForName returns the provider adapter for a provider name
func ForName(name string) (Provider, error) {
	switch name {
	case models.ProviderBinance:
		return NewBinanceProvider(), nil
	case models.ProviderCoinbase:
		return NewCoinbaseProvider(), nil
	case models.ProviderMock:
		return NewMockProvider(), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// withRetry runs fn up to maxFetchTries times with exponential backoff.
// Rate-limit pressure and transient network errors are the common case
// on public exchange APIs.
func withRetry(ctx context.Context, fn func() error) error {
	cfg := backoff.NewExponentialBackOff()
	cfg.InitialInterval = 200 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxFetchTries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		sleep := cfg.NextBackOff()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}
