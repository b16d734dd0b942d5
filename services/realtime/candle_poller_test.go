package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdash/models"
)

// stubCandleSource serves canned candles keyed by symbol and counts
// fetches per symbol
type stubCandleSource struct {
	mu      sync.Mutex
	candles map[string]*models.Candle
	errs    map[string]error
	fetches map[string]int
}

func newStubCandleSource() *stubCandleSource {
	return &stubCandleSource{
		candles: make(map[string]*models.Candle),
		errs:    make(map[string]error),
		fetches: make(map[string]int),
	}
}

func (s *stubCandleSource) set(symbol string, c *models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[symbol] = c
}

func (s *stubCandleSource) LatestCandle(_ context.Context, symbol, _ string) (*models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[symbol]++
	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	return s.candles[symbol], nil
}

func (s *stubCandleSource) fetchCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[symbol]
}

func drainFrames(t *testing.T, c *Client) []OutboundMessage {
	t.Helper()
	var out []OutboundMessage
	for {
		select {
		case data := <-c.send:
			var msg OutboundMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func testCandle(symbol string, ts int64, close float64) *models.Candle {
	return &models.Candle{
		Symbol:    symbol,
		Interval:  "1m",
		Timestamp: ts,
		Open:      100,
		High:      110,
		Low:       90,
		Close:     close,
		Volume:    42,
		Provider:  "binance",
	}
}

func TestCandlePollerDedupesUnchangedCandles(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)
	r.SubscribeCandles(c, "BTC/USDT", "1m")

	source := newStubCandleSource()
	source.set("BTC/USDT", testCandle("BTC/USDT", 1000, 105))

	p := NewCandlePoller(r, source, time.Second)
	cache := make(map[CandleFeed]string)

	p.poll(cache)
	p.poll(cache)

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	require.Equal(t, TypeCandleUpdate, frames[0].Type)

	// Any field change produces a new broadcast, same bar or not
	source.set("BTC/USDT", testCandle("BTC/USDT", 1000, 106))
	p.poll(cache)
	require.Len(t, drainFrames(t, c), 1)
}

func TestCandlePollerStopsFetchingWithoutSubscribers(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)
	r.SubscribeCandles(c, "BTC/USDT", "1m")

	source := newStubCandleSource()
	source.set("BTC/USDT", testCandle("BTC/USDT", 1000, 105))

	p := NewCandlePoller(r, source, time.Second)
	cache := make(map[CandleFeed]string)

	p.poll(cache)
	require.Equal(t, 1, source.fetchCount("BTC/USDT"))
	require.Len(t, cache, 1)

	r.UnsubscribeCandles(c, "BTC/USDT", "1m")
	p.poll(cache)
	require.Equal(t, 1, source.fetchCount("BTC/USDT"))
	require.Empty(t, cache, "fingerprint cache must be pruned with the last subscriber")

	// Resubscribing after the prune broadcasts again even for the same
	// candle content
	r.SubscribeCandles(c, "BTC/USDT", "1m")
	drainFrames(t, c)
	p.poll(cache)
	require.Len(t, drainFrames(t, c), 1)
}

func TestCandlePollerClearsCacheWhenRegistryEmpty(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)
	r.SubscribeCandles(c, "BTC/USDT", "1m")

	source := newStubCandleSource()
	source.set("BTC/USDT", testCandle("BTC/USDT", 1000, 105))

	p := NewCandlePoller(r, source, time.Second)
	cache := make(map[CandleFeed]string)
	p.poll(cache)
	require.Len(t, cache, 1)

	r.RemoveClient(c)
	p.poll(cache)
	require.Empty(t, cache)
}

func TestCandlePollerIsolatesFeedErrors(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)
	r.SubscribeCandles(c, "BTC/USDT", "1m")
	r.SubscribeCandles(c, "ETH/USDT", "1m")

	source := newStubCandleSource()
	source.set("ETH/USDT", testCandle("ETH/USDT", 1000, 2500))
	source.errs["BTC/USDT"] = errors.New("upstream down")

	p := NewCandlePoller(r, source, time.Second)
	cache := make(map[CandleFeed]string)
	p.poll(cache)

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)

	payload, err := json.Marshal(frames[0].Payload)
	require.NoError(t, err)
	var candle models.Candle
	require.NoError(t, json.Unmarshal(payload, &candle))
	require.Equal(t, "ETH/USDT", candle.Symbol)
}

func TestCandlePollerSkipsNilCandle(t *testing.T) {
	r := NewRegistry(time.Minute)
	c := newClient(nil)
	r.AddClient(c)
	r.SubscribeCandles(c, "NEW/USDT", "1m")

	source := newStubCandleSource()

	p := NewCandlePoller(r, source, time.Second)
	cache := make(map[CandleFeed]string)
	p.poll(cache)

	require.Empty(t, drainFrames(t, c))
	require.Empty(t, cache)
}

func TestCandlePollerStartStopIdempotent(t *testing.T) {
	r := NewRegistry(time.Minute)
	p := NewCandlePoller(r, newStubCandleSource(), 10*time.Millisecond)

	require.False(t, p.Running())
	p.Start()
	p.Start()
	require.True(t, p.Running())

	p.Stop()
	p.Stop()
	require.False(t, p.Running())
}
