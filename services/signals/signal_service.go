package signals

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"marketdash/models"
	"marketdash/services"
)

// SignalService evaluates registered strategies over stored candles
// and answers time-window queries. It implements the realtime poller's
// SignalSource interface.
type SignalService struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// Global signal service instance
var GlobalSignalService *SignalService

// InitSignalService initializes the signal service with the builtin
// strategies
func InitSignalService() error {
	strategies, err := builtinStrategies()
	if err != nil {
		return err
	}

	svc := &SignalService{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		svc.strategies[s.ID()] = s
	}

	GlobalSignalService = svc
	log.Printf("Signal service initialized with %d strategies", len(strategies))
	return nil
}

// Strategies lists the registered strategies
func (s *SignalService) Strategies() []StrategyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StrategyInfo, 0, len(s.strategies))
	for _, strat := range s.strategies {
		out = append(out, StrategyInfo{ID: strat.ID(), Description: strat.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Signals evaluates a strategy for the feed and returns every signal
// whose timestamp falls in [from, to). Strategies are stateless, so
// re-evaluating overlapping windows yields consistent results.
func (s *SignalService) Signals(ctx context.Context, provider, symbol, interval string, from, to time.Time, strategyID string) ([]models.Signal, error) {
	s.mu.RLock()
	strategy, ok := s.strategies[strategyID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", strategyID)
	}

	step := models.IntervalDuration(interval)
	warmupStart := from.Add(-time.Duration(WarmupBars) * step)
	windowBars := int(to.Sub(from)/step) + 2
	limit := WarmupBars + windowBars
	if limit > 500 {
		limit = 500
	}

	candles, err := services.GlobalCandleService.HistoricalCandles(
		ctx, provider, symbol, interval, warmupStart.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles for %s %s: %w", symbol, interval, err)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	all, err := strategy.Evaluate(candles)
	if err != nil {
		return nil, err
	}

	fromMs := from.UnixMilli()
	toMs := to.UnixMilli()
	var out []models.Signal
	for _, sig := range all {
		if sig.Timestamp >= fromMs && sig.Timestamp < toMs {
			out = append(out, sig)
		}
	}

	if len(out) > 0 {
		services.GlobalSignalArchive.SaveSignals(ctx, provider, interval, out)
	}
	return out, nil
}
