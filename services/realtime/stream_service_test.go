package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStream() *StreamService {
	return NewStreamService(Options{
		CandleSource:       newStubCandleSource(),
		SignalSource:       &stubSignalSource{},
		CandlePollInterval: time.Second,
		SignalPollInterval: time.Second,
		SignalLookback:     time.Minute,
		DefaultProvider:    "binance",
	})
}

func connectTestClient(s *StreamService) *Client {
	c := newClient(nil)
	s.registry.AddClient(c)
	return c
}

func requireErrorFrame(t *testing.T, c *Client, code string) {
	t.Helper()
	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	require.Equal(t, TypeError, frames[0].Type)

	raw, err := json.Marshal(frames[0].Payload)
	require.NoError(t, err)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, code, payload.Code)
}

func TestHandleMessageRejectsMalformedJSON(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte("{not json"))
	requireErrorFrame(t, c, CodeInvalidMessage)

	// The connection survives; a valid frame afterwards still works
	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"symbol":"BTC/USDT","interval":"1m"}}`))
	require.Equal(t, 1, s.registry.SubscriptionCount())
}

func TestHandleMessageRejectsUnknownType(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte(`{"type":"subscribe_trades","payload":{}}`))
	requireErrorFrame(t, c, CodeUnknownType)
}

func TestHandleMessageValidatesCandlePayload(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"interval":"1m"}}`))
	requireErrorFrame(t, c, CodeInvalidPayload)

	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"symbol":"BTC/USDT","interval":"2m"}}`))
	requireErrorFrame(t, c, CodeInvalidPayload)

	require.Equal(t, 0, s.registry.SubscriptionCount())
}

func TestHandleMessageCandleSubscribeRoundTrip(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"symbol":"BTC/USDT","interval":"1m"}}`))
	require.Len(t, s.registry.CandleSubscribers("BTC/USDT", "1m"), 1)

	s.handleMessage(c, []byte(`{"type":"unsubscribe_candles","payload":{"symbol":"BTC/USDT","interval":"1m"}}`))
	require.Empty(t, s.registry.CandleSubscribers("BTC/USDT", "1m"))
	require.Empty(t, drainFrames(t, c))
}

func TestHandleMessageSignalSubscribeAppliesDefaults(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte(`{"type":"subscribe_signals","payload":{"symbol":"BTC/USDT"}}`))

	feeds := s.registry.SignalFeedKeys()
	require.Len(t, feeds, 1)
	require.Equal(t, SignalFeed{
		Provider:   "binance",
		Symbol:     "BTC/USDT",
		Interval:   "1m",
		StrategyID: "ema_crossover_rsi",
	}, feeds[0])
}

func TestHandleMessageSignalSubscribeRejectsBadProvider(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)

	s.handleMessage(c, []byte(`{"type":"subscribe_signals","payload":{"symbol":"BTC/USDT","provider":"kraken"}}`))
	requireErrorFrame(t, c, CodeInvalidPayload)
	require.Empty(t, s.registry.SignalFeedKeys())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)
	s.mu.Lock()
	s.clientCount = 1
	s.mu.Unlock()

	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"symbol":"BTC/USDT","interval":"1m"}}`))
	s.handleMessage(c, []byte(`{"type":"subscribe_signals","payload":{"symbol":"BTC/USDT"}}`))

	s.disconnect(c)
	s.disconnect(c)

	require.Equal(t, 0, s.registry.ConnectionCount())
	require.Equal(t, 0, s.registry.SubscriptionCount())
	require.Empty(t, s.registry.CandleFeeds())
	require.Empty(t, s.registry.SignalFeedKeys())
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s := newTestStream()
	a := connectTestClient(s)
	b := connectTestClient(s)

	s.Broadcast(TypeAlertTriggered, map[string]interface{}{"symbol": "BTC/USDT"})

	for _, c := range []*Client{a, b} {
		frames := drainFrames(t, c)
		require.Len(t, frames, 1)
		require.Equal(t, TypeAlertTriggered, frames[0].Type)
	}
}

func TestStatusReportsCounters(t *testing.T) {
	s := newTestStream()
	c := connectTestClient(s)
	s.handleMessage(c, []byte(`{"type":"subscribe_candles","payload":{"symbol":"BTC/USDT","interval":"1m"}}`))

	status := s.Status()
	require.Equal(t, 1, status["connections"])
	require.Equal(t, 1, status["subscriptions"])
	require.Equal(t, MaxClients, status["max_clients"])
	require.Equal(t, false, status["candle_poller_running"])
}

func TestClientSendDropsWhenClosed(t *testing.T) {
	c := newClient(nil)
	c.close()

	c.Send(errorMessage(CodeInvalidMessage, "x"))
	select {
	case <-c.send:
		t.Fatal("closed client must not accept frames")
	default:
	}
}
