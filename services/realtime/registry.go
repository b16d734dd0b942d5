package realtime

import (
	"sync"
	"time"
)

// CandleFeed identifies one pollable candle stream and its broadcast group
type CandleFeed struct {
	Symbol   string
	Interval string
}

// SignalFeed identifies one pollable signal stream and its broadcast group
type SignalFeed struct {
	Provider   string
	Symbol     string
	Interval   string
	StrategyID string
}

// signalFeedState carries the per-feed query cursor alongside its
// subscriber set. The cursor is seeded to now-lookback when the feed's
// first subscriber appears so a new subscriber immediately sees recent
// signals, and it only ever moves forward after that.
type signalFeedState struct {
	clients   map[*Client]struct{}
	lastCheck time.Time
}

// Registry is the single owner of client⇄feed interest for both candle
// and signal feeds. The signal pollers query it by reference; they keep
// no subscription state of their own.
//
// All methods are safe for concurrent use. Misuse (removing an unknown
// client, unsubscribing a key never subscribed) is a silent no-op: this
// is a bookkeeping structure, not a validating API.
type Registry struct {
	mu       sync.RWMutex
	lookback time.Duration

	// forward and reverse candle maps; kept mutually consistent.
	// Reverse entries may linger with an empty subscriber set after an
	// unsubscribe; the candle poller garbage-collects its cache off
	// that state and RemoveClient prunes them fully.
	candlesByClient map[*Client]map[CandleFeed]struct{}
	clientsByCandle map[CandleFeed]map[*Client]struct{}

	// signal feeds are pruned eagerly when the last subscriber leaves,
	// dropping the cursor with them
	signalsByClient map[*Client]map[SignalFeed]struct{}
	signalFeeds     map[SignalFeed]*signalFeedState
}

// NewRegistry creates an empty registry. lookback is the initial
// backward offset applied to a signal feed's cursor.
func NewRegistry(lookback time.Duration) *Registry {
	return &Registry{
		lookback:        lookback,
		candlesByClient: make(map[*Client]map[CandleFeed]struct{}),
		clientsByCandle: make(map[CandleFeed]map[*Client]struct{}),
		signalsByClient: make(map[*Client]map[SignalFeed]struct{}),
		signalFeeds:     make(map[SignalFeed]*signalFeedState),
	}
}

// AddClient registers an empty subscription set for the client
func (r *Registry) AddClient(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.candlesByClient[c]; !ok {
		r.candlesByClient[c] = make(map[CandleFeed]struct{})
	}
	if _, ok := r.signalsByClient[c]; !ok {
		r.signalsByClient[c] = make(map[SignalFeed]struct{})
	}
}

// RemoveClient purges the client from every feed, deleting reverse
// entries that become empty. Safe to call for a client that was never
// added, and safe to call twice.
func (r *Registry) RemoveClient(c *Client) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for feed := range r.candlesByClient[c] {
		if subs, ok := r.clientsByCandle[feed]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(r.clientsByCandle, feed)
			}
		}
	}
	delete(r.candlesByClient, c)

	for feed := range r.signalsByClient[c] {
		if state, ok := r.signalFeeds[feed]; ok {
			delete(state.clients, c)
			if len(state.clients) == 0 {
				delete(r.signalFeeds, feed)
			}
		}
	}
	delete(r.signalsByClient, c)
}

// SubscribeCandles adds the (symbol, interval) feed to the client's
// candle subscriptions. Subscribing twice is idempotent.
func (r *Registry) SubscribeCandles(c *Client, symbol, interval string) {
	if c == nil {
		return
	}
	feed := CandleFeed{Symbol: symbol, Interval: interval}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.candlesByClient[c]; !ok {
		r.candlesByClient[c] = make(map[CandleFeed]struct{})
	}
	r.candlesByClient[c][feed] = struct{}{}

	if _, ok := r.clientsByCandle[feed]; !ok {
		r.clientsByCandle[feed] = make(map[*Client]struct{})
	}
	r.clientsByCandle[feed][c] = struct{}{}
}

// UnsubscribeCandles removes the feed from the client's candle
// subscriptions. The reverse entry is kept even when it becomes empty;
// the candle poller stops fetching for it on its next tick.
func (r *Registry) UnsubscribeCandles(c *Client, symbol, interval string) {
	if c == nil {
		return
	}
	feed := CandleFeed{Symbol: symbol, Interval: interval}

	r.mu.Lock()
	defer r.mu.Unlock()

	if feeds, ok := r.candlesByClient[c]; ok {
		delete(feeds, feed)
	}
	if subs, ok := r.clientsByCandle[feed]; ok {
		delete(subs, c)
	}
}

// SubscribeSignals adds the (provider, symbol, interval, strategy) feed
// to the client's signal subscriptions, seeding the feed cursor to
// now-lookback when this is the feed's first subscriber.
func (r *Registry) SubscribeSignals(c *Client, provider, symbol, interval, strategyID string) {
	if c == nil {
		return
	}
	feed := SignalFeed{Provider: provider, Symbol: symbol, Interval: interval, StrategyID: strategyID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.signalsByClient[c]; !ok {
		r.signalsByClient[c] = make(map[SignalFeed]struct{})
	}
	r.signalsByClient[c][feed] = struct{}{}

	state, ok := r.signalFeeds[feed]
	if !ok {
		state = &signalFeedState{
			clients:   make(map[*Client]struct{}),
			lastCheck: time.Now().Add(-r.lookback),
		}
		r.signalFeeds[feed] = state
	}
	state.clients[c] = struct{}{}
}

// UnsubscribeSignals removes the feed from the client's signal
// subscriptions, pruning the feed (and its cursor) when the last
// subscriber leaves.
func (r *Registry) UnsubscribeSignals(c *Client, provider, symbol, interval, strategyID string) {
	if c == nil {
		return
	}
	feed := SignalFeed{Provider: provider, Symbol: symbol, Interval: interval, StrategyID: strategyID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if feeds, ok := r.signalsByClient[c]; ok {
		delete(feeds, feed)
	}
	if state, ok := r.signalFeeds[feed]; ok {
		delete(state.clients, c)
		if len(state.clients) == 0 {
			delete(r.signalFeeds, feed)
		}
	}
}

// CandleFeeds returns every candle feed currently known to the
// registry, including feeds whose subscriber set has gone empty
func (r *Registry) CandleFeeds() []CandleFeed {
	r.mu.RLock()
	defer r.mu.RUnlock()

	feeds := make([]CandleFeed, 0, len(r.clientsByCandle))
	for feed := range r.clientsByCandle {
		feeds = append(feeds, feed)
	}
	return feeds
}

// SignalFeedKeys returns every signal feed with at least one subscriber
func (r *Registry) SignalFeedKeys() []SignalFeed {
	r.mu.RLock()
	defer r.mu.RUnlock()

	feeds := make([]SignalFeed, 0, len(r.signalFeeds))
	for feed := range r.signalFeeds {
		feeds = append(feeds, feed)
	}
	return feeds
}

// CandleSubscribers returns a copy of the feed's current subscriber set
func (r *Registry) CandleSubscribers(symbol, interval string) []*Client {
	feed := CandleFeed{Symbol: symbol, Interval: interval}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return clientSlice(r.clientsByCandle[feed])
}

// SignalSubscribers returns a copy of the feed's current subscriber set
func (r *Registry) SignalSubscribers(feed SignalFeed) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if state, ok := r.signalFeeds[feed]; ok {
		return clientSlice(state.clients)
	}
	return nil
}

// CandleSubscriberCount returns the number of current subscribers for a feed
func (r *Registry) CandleSubscriberCount(feed CandleFeed) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clientsByCandle[feed])
}

// SwapSignalCursor atomically reads the feed cursor and advances it to
// now. Returns ok=false when the feed no longer exists (all subscribers
// left between enumeration and the poll), in which case the poll for
// this feed must be skipped.
func (r *Registry) SwapSignalCursor(feed SignalFeed, now time.Time) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.signalFeeds[feed]
	if !ok {
		return time.Time{}, false
	}
	from := state.lastCheck
	if now.After(from) {
		state.lastCheck = now
	}
	return from, true
}

// ClientSubscriptions returns the client's current candle and signal
// feed sets, for the stream status endpoint
func (r *Registry) ClientSubscriptions(c *Client) ([]CandleFeed, []SignalFeed) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candles := make([]CandleFeed, 0, len(r.candlesByClient[c]))
	for feed := range r.candlesByClient[c] {
		candles = append(candles, feed)
	}
	signals := make([]SignalFeed, 0, len(r.signalsByClient[c]))
	for feed := range r.signalsByClient[c] {
		signals = append(signals, feed)
	}
	return candles, signals
}

// Clients returns a copy of every registered client
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.candlesByClient))
	for c := range r.candlesByClient {
		clients = append(clients, c)
	}
	return clients
}

// ConnectionCount returns the number of registered clients
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.candlesByClient)
}

// SubscriptionCount returns the total number of candle and signal
// subscriptions across all clients
func (r *Registry) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, feeds := range r.candlesByClient {
		total += len(feeds)
	}
	for _, feeds := range r.signalsByClient {
		total += len(feeds)
	}
	return total
}

func clientSlice(set map[*Client]struct{}) []*Client {
	if len(set) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
