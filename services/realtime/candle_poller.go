package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"marketdash/models"
)

// CandleSource is the upstream the candle poller reads from. A nil
// candle with a nil error means the feed has no data yet.
type CandleSource interface {
	LatestCandle(ctx context.Context, symbol, interval string) (*models.Candle, error)
}

// CandlePoller bridges the pull-based candle source to push-based
// websocket clients. On every tick it fetches the latest candle for
// each feed with at least one subscriber and broadcasts it when its
// content changed since the last broadcast.
type CandlePoller struct {
	registry *Registry
	source   CandleSource
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewCandlePoller creates a stopped poller ticking at the given interval
func NewCandlePoller(registry *Registry, source CandleSource, interval time.Duration) *CandlePoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &CandlePoller{
		registry: registry,
		source:   source,
		interval: interval,
	}
}

// Start begins polling. Idempotent: calling Start on a running poller
// has no additional effect. One poll fires immediately, before the
// first tick.
func (p *CandlePoller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.run(stop)
	log.Printf("Candle poller started (interval: %v)", p.interval)
}

// Stop cancels the polling timer. Idempotent. In-flight fetches from
// the current tick finish on their own; their broadcasts are no-ops
// once subscribers are gone.
func (p *CandlePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
	log.Println("Candle poller stopped")
}

// Running reports whether the poller is currently started
func (p *CandlePoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *CandlePoller) run(stop chan struct{}) {
	// The last-broadcast fingerprint cache is owned exclusively by this
	// goroutine; entries are created on first broadcast and garbage
	// collected each tick once a feed loses its subscribers.
	cache := make(map[CandleFeed]string)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(cache)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll(cache)
		}
	}
}

func (p *CandlePoller) poll(cache map[CandleFeed]string) {
	feeds := p.registry.CandleFeeds()
	if len(feeds) == 0 {
		// Nobody has ever subscribed (or everyone disconnected):
		// drop any residual cache so it cannot grow unbounded
		for feed := range cache {
			delete(cache, feed)
		}
		return
	}

	ctx := context.Background()
	active := make(map[CandleFeed]struct{}, len(feeds))

	for _, feed := range feeds {
		// Stop polling upstream the instant the last subscriber
		// leaves; leaving the feed out of the active set prunes its
		// cache entry below
		if p.registry.CandleSubscriberCount(feed) == 0 {
			continue
		}
		active[feed] = struct{}{}

		candle, err := p.source.LatestCandle(ctx, feed.Symbol, feed.Interval)
		if err != nil {
			log.Printf("Error fetching candle for %s %s: %v", feed.Symbol, feed.Interval, err)
			continue
		}
		if candle == nil {
			continue
		}

		fp := candle.Fingerprint()
		if cache[feed] == fp {
			continue
		}
		cache[feed] = fp

		// Re-read subscribers at broadcast time: the set may have
		// changed while the fetch was in flight, and broadcasting to
		// an empty set is harmless
		msg := OutboundMessage{Type: TypeCandleUpdate, Payload: candle}
		for _, client := range p.registry.CandleSubscribers(feed.Symbol, feed.Interval) {
			client.Send(msg)
		}
	}

	for feed := range cache {
		if _, ok := active[feed]; !ok {
			delete(cache, feed)
		}
	}
}
