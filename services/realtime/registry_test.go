package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySubscribeCandlesIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)

	r.SubscribeCandles(c, "BTC/USDT", "1m")
	r.SubscribeCandles(c, "BTC/USDT", "1m")

	require.Equal(t, 1, r.SubscriptionCount())
	require.Len(t, r.CandleSubscribers("BTC/USDT", "1m"), 1)

	candles, signals := r.ClientSubscriptions(c)
	require.Equal(t, []CandleFeed{{Symbol: "BTC/USDT", Interval: "1m"}}, candles)
	require.Empty(t, signals)
}

func TestRegistryCandleFeedsAreIsolatedByInterval(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := newClient(nil)
	b := newClient(nil)
	r.AddClient(a)
	r.AddClient(b)

	r.SubscribeCandles(a, "BTC/USDT", "1m")
	r.SubscribeCandles(b, "BTC/USDT", "5m")

	require.Len(t, r.CandleFeeds(), 2)
	require.Equal(t, []*Client{a}, r.CandleSubscribers("BTC/USDT", "1m"))
	require.Equal(t, []*Client{b}, r.CandleSubscribers("BTC/USDT", "5m"))
}

func TestRegistryUnsubscribeCandlesKeepsFeedEntry(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)

	r.SubscribeCandles(c, "ETH/USDT", "1h")
	r.UnsubscribeCandles(c, "ETH/USDT", "1h")

	// Feed remains enumerable with zero subscribers until the client
	// disconnects; the poller uses the empty set to prune its cache
	require.Len(t, r.CandleFeeds(), 1)
	require.Equal(t, 0, r.CandleSubscriberCount(CandleFeed{Symbol: "ETH/USDT", Interval: "1h"}))
	require.Equal(t, 0, r.SubscriptionCount())

	r.RemoveClient(c)
	require.Empty(t, r.CandleFeeds())
}

func TestRegistryUnsubscribeUnknownFeedIsNoOp(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)

	r.UnsubscribeCandles(c, "BTC/USDT", "1m")
	r.UnsubscribeSignals(c, "binance", "BTC/USDT", "1m", "rsi_reversal")
	r.RemoveClient(newClient(nil))
	r.SubscribeCandles(nil, "BTC/USDT", "1m")

	require.Equal(t, 1, r.ConnectionCount())
	require.Equal(t, 0, r.SubscriptionCount())
}

func TestRegistrySignalCursorSeededWithLookback(t *testing.T) {
	lookback := time.Minute
	r := NewRegistry(lookback)
	c := newClient(nil)
	r.AddClient(c)

	before := time.Now()
	r.SubscribeSignals(c, "binance", "BTC/USDT", "1m", "ema_crossover_rsi")

	feed := SignalFeed{Provider: "binance", Symbol: "BTC/USDT", Interval: "1m", StrategyID: "ema_crossover_rsi"}
	now := time.Now()
	from, ok := r.SwapSignalCursor(feed, now)
	require.True(t, ok)
	require.WithinDuration(t, before.Add(-lookback), from, time.Second)

	// Second swap reads exactly the previous advance point
	from2, ok := r.SwapSignalCursor(feed, now.Add(time.Second))
	require.True(t, ok)
	require.True(t, from2.Equal(now))
}

func TestRegistrySignalCursorSurvivesLateSubscriber(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := newClient(nil)
	b := newClient(nil)
	r.AddClient(a)
	r.AddClient(b)

	feed := SignalFeed{Provider: "binance", Symbol: "BTC/USDT", Interval: "1m", StrategyID: "ema_crossover_rsi"}
	r.SubscribeSignals(a, feed.Provider, feed.Symbol, feed.Interval, feed.StrategyID)

	now := time.Now()
	_, ok := r.SwapSignalCursor(feed, now)
	require.True(t, ok)

	// A second subscriber joins an existing feed; the cursor must not
	// be reseeded backwards
	r.SubscribeSignals(b, feed.Provider, feed.Symbol, feed.Interval, feed.StrategyID)
	from, ok := r.SwapSignalCursor(feed, now.Add(time.Second))
	require.True(t, ok)
	require.True(t, from.Equal(now))
	require.Len(t, r.SignalSubscribers(feed), 2)
}

func TestRegistrySignalFeedPrunedWithLastSubscriber(t *testing.T) {
	r := NewRegistry(time.Hour)
	c := newClient(nil)
	r.AddClient(c)

	feed := SignalFeed{Provider: "binance", Symbol: "BTC/USDT", Interval: "1m", StrategyID: "ema_crossover_rsi"}
	r.SubscribeSignals(c, feed.Provider, feed.Symbol, feed.Interval, feed.StrategyID)
	r.UnsubscribeSignals(c, feed.Provider, feed.Symbol, feed.Interval, feed.StrategyID)

	require.Empty(t, r.SignalFeedKeys())
	_, ok := r.SwapSignalCursor(feed, time.Now())
	require.False(t, ok)

	// Resubscribing reseeds the cursor from scratch
	before := time.Now()
	r.SubscribeSignals(c, feed.Provider, feed.Symbol, feed.Interval, feed.StrategyID)
	from, ok := r.SwapSignalCursor(feed, time.Now())
	require.True(t, ok)
	require.WithinDuration(t, before.Add(-time.Hour), from, time.Second)
}

func TestRegistryRemoveClientPurgesAllSubscriptions(t *testing.T) {
	r := NewRegistry(time.Minute)
	a := newClient(nil)
	b := newClient(nil)
	r.AddClient(a)
	r.AddClient(b)

	r.SubscribeCandles(a, "BTC/USDT", "1m")
	r.SubscribeCandles(b, "BTC/USDT", "1m")
	r.SubscribeSignals(a, "binance", "BTC/USDT", "1m", "ema_crossover_rsi")

	r.RemoveClient(a)
	r.RemoveClient(a)

	require.Equal(t, 1, r.ConnectionCount())
	require.Equal(t, []*Client{b}, r.CandleSubscribers("BTC/USDT", "1m"))
	require.Empty(t, r.SignalFeedKeys())

	// b's state is untouched
	candles, _ := r.ClientSubscriptions(b)
	require.Len(t, candles, 1)
}
