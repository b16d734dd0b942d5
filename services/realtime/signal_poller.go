package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"marketdash/models"
)

// SignalSource is the upstream the signal poller queries. It returns
// every signal for the feed whose timestamp falls in [from, to).
type SignalSource interface {
	Signals(ctx context.Context, provider, symbol, interval string, from, to time.Time, strategyID string) ([]models.Signal, error)
}

// SignalPoller bridges the analytics source to subscribed clients using
// a time-window query model: each feed's cursor advances to the poll
// time on every tick, found signals or not, so nothing is re-delivered.
// Subscription state lives in the registry; the poller only reads it.
type SignalPoller struct {
	registry *Registry
	source   SignalSource
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewSignalPoller creates a stopped poller ticking at the given interval
func NewSignalPoller(registry *Registry, source SignalSource, interval time.Duration) *SignalPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SignalPoller{
		registry: registry,
		source:   source,
		interval: interval,
	}
}

// Start begins polling. Idempotent; fires one immediate poll before the
// first tick.
func (p *SignalPoller) Start() {
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
	log.Printf("Signal poller started (interval: %v)", p.interval)
}

// Stop cancels the polling timer. Idempotent.
func (p *SignalPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
	log.Println("Signal poller stopped")
}

// Running reports whether the poller is currently started
func (p *SignalPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SignalPoller) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *SignalPoller) poll() {
	ctx := context.Background()

	for _, feed := range p.registry.SignalFeedKeys() {
		now := time.Now()

		// Advance the cursor before querying so a failed query is not
		// retried over the same window; ok=false means every
		// subscriber left since enumeration
		from, ok := p.registry.SwapSignalCursor(feed, now)
		if !ok {
			continue
		}

		signals, err := p.source.Signals(ctx, feed.Provider, feed.Symbol, feed.Interval, from, now, feed.StrategyID)
		if err != nil {
			log.Printf("Error generating signals for %s %s %s: %v",
				feed.Symbol, feed.Interval, feed.StrategyID, err)
			continue
		}

		if len(signals) == 0 {
			continue
		}

		// Broadcast each signal individually, to the subscriber set as
		// it stands at delivery time
		subscribers := p.registry.SignalSubscribers(feed)
		for i := range signals {
			msg := OutboundMessage{Type: TypeSignalUpdate, Payload: &signals[i]}
			for _, client := range subscribers {
				client.Send(msg)
			}
		}
	}
}
