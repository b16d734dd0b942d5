package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCandleFingerprintDetectsFieldChanges(t *testing.T) {
	base := Candle{
		Symbol:    "BTC/USDT",
		Interval:  "1m",
		Timestamp: 1700000000000,
		Open:      100.5,
		High:      101,
		Low:       99.25,
		Close:     100.75,
		Volume:    12.5,
		Provider:  "binance",
	}

	same := base
	require.Equal(t, base.Fingerprint(), same.Fingerprint())

	closeChanged := base
	closeChanged.Close = 100.76
	require.NotEqual(t, base.Fingerprint(), closeChanged.Fingerprint())

	volumeChanged := base
	volumeChanged.Volume = 12.6
	require.NotEqual(t, base.Fingerprint(), volumeChanged.Fingerprint())

	newBar := base
	newBar.Timestamp += 60000
	require.NotEqual(t, base.Fingerprint(), newBar.Fingerprint())

	otherProvider := base
	otherProvider.Provider = "coinbase"
	require.NotEqual(t, base.Fingerprint(), otherProvider.Fingerprint())
}

func TestValidInterval(t *testing.T) {
	for _, interval := range Intervals {
		require.True(t, ValidInterval(interval), interval)
	}
	require.False(t, ValidInterval(""))
	require.False(t, ValidInterval("2m"))
	require.False(t, ValidInterval("1M"))
}

func TestValidProvider(t *testing.T) {
	for _, provider := range Providers {
		require.True(t, ValidProvider(provider), provider)
	}
	require.False(t, ValidProvider(""))
	require.False(t, ValidProvider("kraken"))
}

func TestIntervalDuration(t *testing.T) {
	require.Equal(t, time.Minute, IntervalDuration(Interval1m))
	require.Equal(t, 4*time.Hour, IntervalDuration(Interval4h))
	require.Equal(t, 7*24*time.Hour, IntervalDuration(Interval1w))

	// Unknown intervals fall back to a minute
	require.Equal(t, time.Minute, IntervalDuration("bogus"))
}

func TestCandleOpenTime(t *testing.T) {
	c := Candle{Timestamp: 1700000000000}
	require.Equal(t, time.UnixMilli(1700000000000), c.OpenTime())
}
