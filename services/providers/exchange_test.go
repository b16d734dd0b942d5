package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketdash/models"
)

func TestBinanceFetchCandlesParsesKlines(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[
			[1700000000000,"100.5","101.0","99.5","100.8","12.5",1700000059999,"0","0","0","0","0"],
			[1700000060000,"100.8","102.0","100.1","101.9","8.25",1700000119999,"0","0","0","0","0"]
		]`))
	}))
	defer server.Close()

	p := NewBinanceProvider()
	p.baseURL = server.URL

	candles, err := p.FetchCandles(context.Background(), "BTC/USDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	require.Contains(t, gotQuery, "symbol=BTCUSDT")
	require.Contains(t, gotQuery, "interval=1m")
	require.Contains(t, gotQuery, "limit=2")

	first := candles[0]
	require.Equal(t, "BTC/USDT", first.Symbol)
	require.Equal(t, models.ProviderBinance, first.Provider)
	require.Equal(t, int64(1700000000000), first.Timestamp)
	require.Equal(t, 100.5, first.Open)
	require.Equal(t, 101.0, first.High)
	require.Equal(t, 99.5, first.Low)
	require.Equal(t, 100.8, first.Close)
	require.Equal(t, 12.5, first.Volume)
	require.Equal(t, int64(1700000060000), candles[1].Timestamp)
}

func TestBinanceFetchCandlesSkipsMalformedRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			[1700000000000,"100.5","101.0","99.5","100.8","12.5"],
			[1700000060000,"not-a-number","102.0","100.1","101.9","8.25"],
			[1700000120000]
		]`))
	}))
	defer server.Close()

	p := NewBinanceProvider()
	p.baseURL = server.URL

	candles, err := p.FetchCandles(context.Background(), "BTC/USDT", "1m", 3)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.Equal(t, int64(1700000000000), candles[0].Timestamp)
}

func TestBinanceFetchCandlesRejectsBadInterval(t *testing.T) {
	p := NewBinanceProvider()
	_, err := p.FetchCandles(context.Background(), "BTC/USDT", "2m", 10)
	require.Error(t, err)
}

func TestCoinbaseFetchCandlesSortsAscending(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		// Coinbase responds newest first: [time, low, high, open, close, volume]
		w.Write([]byte(`[
			[1700000120, 99.0, 103.0, 101.9, 102.5, 3.5],
			[1700000060, 100.1, 102.0, 100.8, 101.9, 8.25],
			[1700000000, 99.5, 101.0, 100.5, 100.8, 12.5]
		]`))
	}))
	defer server.Close()

	p := NewCoinbaseProvider()
	p.baseURL = server.URL

	candles, err := p.FetchCandles(context.Background(), "BTC/USDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.Equal(t, "/products/BTC-USDT/candles", gotPath)

	// Chronological, timestamps converted to milliseconds, columns
	// mapped through Coinbase's low-before-open ordering
	require.Equal(t, int64(1700000000000), candles[0].Timestamp)
	require.Equal(t, int64(1700000120000), candles[2].Timestamp)
	require.Equal(t, 100.5, candles[0].Open)
	require.Equal(t, 99.5, candles[0].Low)
	require.Equal(t, models.ProviderCoinbase, candles[0].Provider)
}

func TestCoinbaseFetchCandlesTrimsToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			[1700000120, 99.0, 103.0, 101.9, 102.5, 3.5],
			[1700000060, 100.1, 102.0, 100.8, 101.9, 8.25],
			[1700000000, 99.5, 101.0, 100.5, 100.8, 12.5]
		]`))
	}))
	defer server.Close()

	p := NewCoinbaseProvider()
	p.baseURL = server.URL

	candles, err := p.FetchCandles(context.Background(), "BTC/USDT", "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// The most recent bars survive the trim
	require.Equal(t, int64(1700000060000), candles[0].Timestamp)
	require.Equal(t, int64(1700000120000), candles[1].Timestamp)
}

func TestCoinbaseFetchCandlesRejectsUnsupportedGranularity(t *testing.T) {
	p := NewCoinbaseProvider()
	for _, interval := range []string{models.Interval30m, models.Interval4h, models.Interval1w} {
		_, err := p.FetchCandles(context.Background(), "BTC/USDT", interval, 10)
		require.Error(t, err, interval)
	}
}

func TestSymbolNormalization(t *testing.T) {
	require.Equal(t, "BTCUSDT", binanceSymbol("btc/usdt"))
	require.Equal(t, "BTC-USDT", coinbaseSymbol("btc/usdt"))
	require.Equal(t, "ETHUSD", binanceSymbol("ETH/USD"))
}
