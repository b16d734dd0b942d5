package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketdash/models"
)

// MaxClients is the maximum number of concurrent websocket clients
const MaxClients = 256

// StreamService owns the websocket surface: it upgrades connections,
// parses and dispatches inbound frames against the registry, and runs
// the candle and signal pollers that push updates back out.
type StreamService struct {
	registry        *Registry
	candlePoller    *CandlePoller
	signalPoller    *SignalPoller
	upgrader        websocket.Upgrader
	defaultProvider string

	mu          sync.RWMutex
	clientCount int
}

// Options configures a StreamService
type Options struct {
	CandleSource       CandleSource
	SignalSource       SignalSource
	CandlePollInterval time.Duration
	SignalPollInterval time.Duration
	SignalLookback     time.Duration
	DefaultProvider    string
}

// NewStreamService wires the registry and pollers together. Pollers are
// created stopped; call Start.
func NewStreamService(opts Options) *StreamService {
	if opts.SignalLookback <= 0 {
		opts.SignalLookback = 60 * time.Second
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = models.ProviderBinance
	}

	registry := NewRegistry(opts.SignalLookback)

	return &StreamService{
		registry:        registry,
		candlePoller:    NewCandlePoller(registry, opts.CandleSource, opts.CandlePollInterval),
		signalPoller:    NewSignalPoller(registry, opts.SignalSource, opts.SignalPollInterval),
		defaultProvider: opts.DefaultProvider,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Registry exposes the subscription registry (status endpoint, tests)
func (s *StreamService) Registry() *Registry {
	return s.registry
}

// Start starts both pollers. Idempotent.
func (s *StreamService) Start() {
	s.candlePoller.Start()
	s.signalPoller.Start()
}

// Stop stops both pollers and disconnects every client
func (s *StreamService) Stop() {
	s.candlePoller.Stop()
	s.signalPoller.Stop()

	for _, client := range s.registry.Clients() {
		s.disconnect(client)
	}
	log.Println("Stream service shutdown complete")
}

// HandleWebSocket upgrades the request and registers the client
func (s *StreamService) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	atCapacity := s.clientCount >= MaxClients
	s.mu.RUnlock()

	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(conn)

	s.mu.Lock()
	s.clientCount++
	count := s.clientCount
	s.mu.Unlock()

	s.registry.AddClient(client)
	log.Printf("WebSocket client %s connected. Total clients: %d", client.ID, count)

	go client.writePump()
	go client.readPump(s)
}

// disconnect tears a client down. Unconditional and idempotent: a
// client that never subscribed, or one already disconnected, is fine.
func (s *StreamService) disconnect(client *Client) {
	client.close()
	s.registry.RemoveClient(client)

	s.mu.Lock()
	if s.clientCount > 0 {
		s.clientCount--
	}
	count := s.clientCount
	s.mu.Unlock()

	log.Printf("WebSocket client %s disconnected. Total clients: %d", client.ID, count)
}

// handleMessage parses one inbound frame and dispatches it. Malformed
// input is answered with an error frame; the connection stays open.
func (s *StreamService) handleMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		client.Send(errorMessage(CodeInvalidMessage, "invalid JSON message"))
		return
	}

	switch msg.Type {
	case TypeSubscribeCandles, TypeUnsubscribeCandles:
		payload, ok := s.candlePayload(client, msg.Payload)
		if !ok {
			return
		}
		if msg.Type == TypeSubscribeCandles {
			s.registry.SubscribeCandles(client, payload.Symbol, payload.Interval)
		} else {
			s.registry.UnsubscribeCandles(client, payload.Symbol, payload.Interval)
		}

	case TypeSubscribeSignals, TypeUnsubscribeSignals:
		payload, ok := s.signalPayload(client, msg.Payload)
		if !ok {
			return
		}
		if msg.Type == TypeSubscribeSignals {
			s.registry.SubscribeSignals(client, payload.Provider, payload.Symbol, payload.Interval, payload.StrategyID)
		} else {
			s.registry.UnsubscribeSignals(client, payload.Provider, payload.Symbol, payload.Interval, payload.StrategyID)
		}

	default:
		client.Send(errorMessage(CodeUnknownType, "unknown message type: "+msg.Type))
	}
}

// candlePayload validates a candle subscribe/unsubscribe payload
func (s *StreamService) candlePayload(client *Client, raw json.RawMessage) (SubscribePayload, bool) {
	var payload SubscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.Send(errorMessage(CodeInvalidPayload, "invalid payload"))
		return payload, false
	}
	if payload.Symbol == "" {
		client.Send(errorMessage(CodeInvalidPayload, "symbol is required"))
		return payload, false
	}
	if !models.ValidInterval(payload.Interval) {
		client.Send(errorMessage(CodeInvalidPayload, "invalid interval: "+payload.Interval))
		return payload, false
	}
	return payload, true
}

// signalPayload validates a signal subscribe/unsubscribe payload and
// fills in the optional fields
func (s *StreamService) signalPayload(client *Client, raw json.RawMessage) (SubscribePayload, bool) {
	var payload SubscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		client.Send(errorMessage(CodeInvalidPayload, "invalid payload"))
		return payload, false
	}
	if payload.Symbol == "" {
		client.Send(errorMessage(CodeInvalidPayload, "symbol is required"))
		return payload, false
	}
	if payload.Interval == "" {
		payload.Interval = models.Interval1m
	}
	if !models.ValidInterval(payload.Interval) {
		client.Send(errorMessage(CodeInvalidPayload, "invalid interval: "+payload.Interval))
		return payload, false
	}
	if payload.StrategyID == "" {
		payload.StrategyID = models.DefaultStrategyID
	}
	if payload.Provider == "" {
		payload.Provider = s.defaultProvider
	}
	if !models.ValidProvider(payload.Provider) {
		client.Send(errorMessage(CodeInvalidPayload, "invalid provider: "+payload.Provider))
		return payload, false
	}
	return payload, true
}

// Broadcast sends a message to every connected client, regardless of
// subscriptions. Used by the scheduler for triggered price alerts.
func (s *StreamService) Broadcast(msgType string, payload interface{}) {
	msg := OutboundMessage{Type: msgType, Payload: payload}
	for _, client := range s.registry.Clients() {
		client.Send(msg)
	}
}

// Status returns counters for the stream status endpoint
func (s *StreamService) Status() map[string]interface{} {
	s.mu.RLock()
	count := s.clientCount
	s.mu.RUnlock()

	return map[string]interface{}{
		"client_count":          count,
		"max_clients":           MaxClients,
		"connections":           s.registry.ConnectionCount(),
		"subscriptions":         s.registry.SubscriptionCount(),
		"candle_feeds":          len(s.registry.CandleFeeds()),
		"signal_feeds":          len(s.registry.SignalFeedKeys()),
		"candle_poller_running": s.candlePoller.Running(),
		"signal_poller_running": s.signalPoller.Running(),
	}
}
