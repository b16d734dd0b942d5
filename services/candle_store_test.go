package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/models"
)

func newTestStore(t *testing.T) *CandleStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.db")
	require.NoError(t, InitCandleStore(path))
	store := GlobalCandleStore
	t.Cleanup(func() { store.Close() })
	return store
}

func storeCandle(ts int64, close float64) models.Candle {
	return models.Candle{
		Provider:  "binance",
		Symbol:    "BTC/USDT",
		Interval:  "1m",
		Timestamp: ts,
		Open:      100,
		High:      110,
		Low:       90,
		Close:     close,
		Volume:    5,
	}
}

func TestCandleStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	batch := []models.Candle{
		storeCandle(60000, 101),
		storeCandle(120000, 102),
		storeCandle(180000, 103),
	}
	require.NoError(t, store.SaveCandles(batch))

	candles, err := store.Candles("binance", "BTC/USDT", "1m", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	// Chronological order regardless of the descending index scan
	require.Equal(t, int64(60000), candles[0].Timestamp)
	require.Equal(t, int64(180000), candles[2].Timestamp)
	require.Equal(t, 103.0, candles[2].Close)
}

func TestCandleStoreUpsertOverwrites(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveCandles([]models.Candle{storeCandle(60000, 101)}))
	require.NoError(t, store.SaveCandles([]models.Candle{storeCandle(60000, 105)}))

	count, err := store.CandleCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	latest, err := store.LatestCandle("binance", "BTC/USDT", "1m")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, 105.0, latest.Close)
}

func TestCandleStoreWindowAndLimit(t *testing.T) {
	store := newTestStore(t)

	var batch []models.Candle
	for i := int64(1); i <= 10; i++ {
		batch = append(batch, storeCandle(i*60000, 100+float64(i)))
	}
	require.NoError(t, store.SaveCandles(batch))

	// Half-open window [from, to)
	candles, err := store.Candles("binance", "BTC/USDT", "1m", 120000, 300000, 10)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.Equal(t, int64(120000), candles[0].Timestamp)
	require.Equal(t, int64(240000), candles[2].Timestamp)

	// Limit keeps the most recent rows, returned chronologically
	candles, err = store.Candles("binance", "BTC/USDT", "1m", 0, 0, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.Equal(t, int64(480000), candles[0].Timestamp)
	require.Equal(t, int64(600000), candles[2].Timestamp)
}

func TestCandleStoreFeedsAreIsolated(t *testing.T) {
	store := newTestStore(t)

	btc := storeCandle(60000, 101)
	eth := storeCandle(60000, 2500)
	eth.Symbol = "ETH/USDT"
	other := storeCandle(60000, 99)
	other.Provider = "coinbase"
	require.NoError(t, store.SaveCandles([]models.Candle{btc, eth, other}))

	candles, err := store.Candles("binance", "BTC/USDT", "1m", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.Equal(t, 101.0, candles[0].Close)
}

func TestCandleStoreLatestCandleEmptyFeed(t *testing.T) {
	store := newTestStore(t)

	latest, err := store.LatestCandle("binance", "NOPE/USDT", "1m")
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestCandleStoreDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)

	old := storeCandle(60000, 101)
	recent := storeCandle(time.Now().UnixMilli(), 102)
	require.NoError(t, store.SaveCandles([]models.Candle{old, recent}))

	deleted, err := store.DeleteOlderThan(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	count, err := store.CandleCount()
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestCandleStoreEmptyBatchIsNoOp(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveCandles(nil))

	count, err := store.CandleCount()
	require.NoError(t, err)
	require.Zero(t, count)
}
