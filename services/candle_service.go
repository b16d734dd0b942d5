package services

import (
	"context"
	"fmt"
	"log"

	"marketdash/models"
	"marketdash/services/providers"
)

// CandleService is the market-data facade: provider adapters in front,
// the SQLite store behind, and the optional Redis cache for the hot
// latest-candle path. It implements the realtime poller's CandleSource.
type CandleService struct {
	defaultProvider string
	providers       map[string]providers.Provider
}

// Global candle service
var GlobalCandleService *CandleService

// InitCandleService initializes the candle service with every known
// provider adapter
func InitCandleService(defaultProvider string) error {
	if !models.ValidProvider(defaultProvider) {
		return fmt.Errorf("invalid default provider: %s", defaultProvider)
	}

	adapters := make(map[string]providers.Provider, len(models.Providers))
	for _, name := range models.Providers {
		p, err := providers.ForName(name)
		if err != nil {
			return err
		}
		adapters[name] = p
	}

	GlobalCandleService = &CandleService{
		defaultProvider: defaultProvider,
		providers:       adapters,
	}
	log.Printf("Candle service initialized (default provider: %s)", defaultProvider)
	return nil
}

// DefaultProvider returns the configured default provider name
func (s *CandleService) DefaultProvider() string {
	return s.defaultProvider
}

// LatestCandle returns the latest candle for a feed from the default
// provider. Satisfies the realtime CandleSource interface.
func (s *CandleService) LatestCandle(ctx context.Context, symbol, interval string) (*models.Candle, error) {
	return s.LatestCandleFrom(ctx, s.defaultProvider, symbol, interval)
}

// LatestCandleFrom returns the latest candle for a feed from a named
// provider: cache first, then a live fetch. A provider outage falls
// back to the newest stored candle when one exists.
func (s *CandleService) LatestCandleFrom(ctx context.Context, provider, symbol, interval string) (*models.Candle, error) {
	if cached := GlobalCandleCache.GetLatest(ctx, provider, symbol, interval); cached != nil {
		return cached, nil
	}

	adapter, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	candles, err := adapter.FetchCandles(ctx, symbol, interval, 2)
	if err != nil {
		if stored, storeErr := GlobalCandleStore.LatestCandle(provider, symbol, interval); storeErr == nil && stored != nil {
			log.Printf("Warning: %s fetch failed for %s %s, serving stored candle: %v", provider, symbol, interval, err)
			return stored, nil
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}

	latest := candles[len(candles)-1]
	if err := GlobalCandleStore.SaveCandles(candles); err != nil {
		log.Printf("Warning: failed to store candles for %s %s: %v", symbol, interval, err)
	}
	GlobalCandleCache.SetLatest(ctx, &latest)
	return &latest, nil
}

// HistoricalCandles returns stored candles for a feed, backfilling from
// the provider when the store has nothing for the window
func (s *CandleService) HistoricalCandles(ctx context.Context, provider, symbol, interval string, from, to int64, limit int) ([]models.Candle, error) {
	candles, err := GlobalCandleStore.Candles(provider, symbol, interval, from, to, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		return candles, nil
	}

	if err := s.SyncCandles(ctx, provider, symbol, interval, limit); err != nil {
		return nil, err
	}
	return GlobalCandleStore.Candles(provider, symbol, interval, from, to, limit)
}

// SyncCandles fetches recent candles from a provider and upserts them
// into the store. Used directly by the scheduler.
func (s *CandleService) SyncCandles(ctx context.Context, provider, symbol, interval string, limit int) error {
	adapter, ok := s.providers[provider]
	if !ok {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	candles, err := adapter.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return fmt.Errorf("failed to fetch candles from %s: %w", provider, err)
	}
	if len(candles) == 0 {
		return nil
	}
	return GlobalCandleStore.SaveCandles(candles)
}
