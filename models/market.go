package models

import (
	"strconv"
	"strings"
	"time"
)

// Supported candle intervals
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
	Interval30m = "30m"
	Interval1h  = "1h"
	Interval4h  = "4h"
	Interval1d  = "1d"
	Interval1w  = "1w"
)

// Supported market data providers
const (
	ProviderBinance  = "binance"
	ProviderCoinbase = "coinbase"
	ProviderMock     = "mock"
)

// Signal actions
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// DefaultStrategyID is used when a signal subscription omits the strategy
const DefaultStrategyID = "ema_crossover_rsi"

// Intervals lists all supported candle intervals in ascending order
var Intervals = []string{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval4h, Interval1d, Interval1w,
}

// Providers lists all supported market data providers
var Providers = []string{ProviderBinance, ProviderCoinbase, ProviderMock}

var intervalDurations = map[string]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// ValidInterval reports whether s is a supported candle interval
func ValidInterval(s string) bool {
	_, ok := intervalDurations[s]
	return ok
}

// ValidProvider reports whether s is a supported provider name
func ValidProvider(s string) bool {
	switch s {
	case ProviderBinance, ProviderCoinbase, ProviderMock:
		return true
	}
	return false
}

// IntervalDuration returns the wall-clock length of an interval,
// defaulting to one minute for unknown values
func IntervalDuration(s string) time.Duration {
	if d, ok := intervalDurations[s]; ok {
		return d
	}
	return time.Minute
}

// Candle represents one OHLCV bar for a symbol/interval pair.
// Timestamp is the bar open time in epoch milliseconds.
type Candle struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Provider  string  `json:"provider,omitempty"`
}

// Fingerprint returns an order-sensitive concatenation of all numeric
// fields plus the provider. Two candles with the same fingerprint are
// considered unchanged for broadcast deduplication; a still-forming
// candle whose volume ticks up produces a new fingerprint on purpose.
func (c *Candle) Fingerprint() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(c.Timestamp, 10))
	for _, f := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte('|')
	b.WriteString(c.Provider)
	return b.String()
}

// OpenTime returns the bar open time as a time.Time
func (c *Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Signal represents a strategy-generated trading signal.
// Timestamp is the candle time the signal was derived from, in epoch
// milliseconds. Consumers deduplicate by (symbol, timestamp, strategyId).
type Signal struct {
	Symbol     string                 `json:"symbol"`
	Timestamp  int64                  `json:"timestamp"`
	Action     string                 `json:"action"`
	Confidence float64                `json:"confidence"`
	StrategyID string                 `json:"strategyId"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
