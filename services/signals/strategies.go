package signals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketdash/models"
	"marketdash/services/analysis"
)

// Strategy evaluates a chronological candle series and emits trading
// signals. Implementations must be stateless: the same series always
// yields the same signals, which is what makes windowed re-evaluation
// by the signal poller safe.
type Strategy interface {
	ID() string
	Description() string
	Evaluate(candles []models.Candle) ([]models.Signal, error)
}

// WarmupBars is how many extra bars a strategy needs in front of the
// window it is asked about, to stabilize its indicators
const WarmupBars = 60

const (
	emaFastPeriod = 12
	emaSlowPeriod = 26
	rsiPeriod     = 14

	rsiOverbought = 70
	rsiOversold   = 30
)

// EMACrossoverRSI signals on fast/slow EMA crossovers, filtered by RSI
// so that crossovers into exhausted territory are ignored
type EMACrossoverRSI struct{}

// ID returns the strategy identifier
func (s *EMACrossoverRSI) ID() string { return "ema_crossover_rsi" }

// Description returns a human-readable summary
func (s *EMACrossoverRSI) Description() string {
	return "EMA 12/26 crossover confirmed by RSI 14"
}

// Evaluate emits a buy on a bullish crossover with RSI below the
// overbought level, and a sell on a bearish crossover with RSI above
// the oversold level
func (s *EMACrossoverRSI) Evaluate(candles []models.Candle) ([]models.Signal, error) {
	closes := analysis.Closes(candles)

	fast, err := analysis.EMASeries(closes, emaFastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := analysis.EMASeries(closes, emaSlowPeriod)
	if err != nil {
		return nil, err
	}
	rsi, err := analysis.RSISeries(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}

	start := emaSlowPeriod
	if start <= rsiPeriod {
		start = rsiPeriod + 1
	}

	var out []models.Signal
	for i := start; i < len(candles); i++ {
		prevDiff := fast[i-1].Sub(slow[i-1])
		diff := fast[i].Sub(slow[i])
		rsiVal := rsi[i].InexactFloat64()

		var action string
		switch {
		case prevDiff.LessThanOrEqual(decimal.Zero) && diff.GreaterThan(decimal.Zero) && rsiVal < rsiOverbought:
			action = models.ActionBuy
		case prevDiff.GreaterThanOrEqual(decimal.Zero) && diff.LessThan(decimal.Zero) && rsiVal > rsiOversold:
			action = models.ActionSell
		default:
			continue
		}

		out = append(out, models.Signal{
			Symbol:     candles[i].Symbol,
			Timestamp:  candles[i].Timestamp,
			Action:     action,
			Confidence: crossoverConfidence(diff, closes[i], rsiVal, action),
			StrategyID: s.ID(),
			Metadata: map[string]interface{}{
				"ema_fast": fast[i].InexactFloat64(),
				"ema_slow": slow[i].InexactFloat64(),
				"rsi":      rsiVal,
			},
		})
	}
	return out, nil
}

// crossoverConfidence grades a crossover by its magnitude relative to
// price and by how much RSI headroom the move has. Always in [0, 1].
func crossoverConfidence(diff, price decimal.Decimal, rsi float64, action string) float64 {
	confidence := 0.5

	if price.GreaterThan(decimal.Zero) {
		spread, _ := diff.Abs().Div(price).Float64()
		confidence += min(spread*50, 0.25)
	}

	// More headroom toward the opposing RSI band, more confidence
	switch action {
	case models.ActionBuy:
		confidence += min((rsiOverbought-rsi)/100, 0.25)
	case models.ActionSell:
		confidence += min((rsi-rsiOversold)/100, 0.25)
	}

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// RSIReversal signals mean reversion: a buy when RSI recovers up
// through the oversold level, a sell when it falls down through the
// overbought level
type RSIReversal struct{}

// ID returns the strategy identifier
func (s *RSIReversal) ID() string { return "rsi_reversal" }

// Description returns a human-readable summary
func (s *RSIReversal) Description() string {
	return "RSI 14 reversal out of oversold/overbought territory"
}

// Evaluate emits signals on RSI band exits
func (s *RSIReversal) Evaluate(candles []models.Candle) ([]models.Signal, error) {
	closes := analysis.Closes(candles)

	rsi, err := analysis.RSISeries(closes, rsiPeriod)
	if err != nil {
		return nil, err
	}

	var out []models.Signal
	for i := rsiPeriod + 1; i < len(candles); i++ {
		prev := rsi[i-1].InexactFloat64()
		cur := rsi[i].InexactFloat64()

		var action string
		var depth float64
		switch {
		case prev < rsiOversold && cur >= rsiOversold:
			action = models.ActionBuy
			depth = rsiOversold - prev
		case prev > rsiOverbought && cur <= rsiOverbought:
			action = models.ActionSell
			depth = prev - rsiOverbought
		default:
			continue
		}

		confidence := 0.5 + min(depth/30, 0.5)
		out = append(out, models.Signal{
			Symbol:     candles[i].Symbol,
			Timestamp:  candles[i].Timestamp,
			Action:     action,
			Confidence: confidence,
			StrategyID: s.ID(),
			Metadata: map[string]interface{}{
				"rsi":      cur,
				"rsi_prev": prev,
			},
		})
	}
	return out, nil
}

// StrategyInfo describes a registered strategy for the REST API
type StrategyInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// builtinStrategies returns every strategy shipped with the dashboard
func builtinStrategies() ([]Strategy, error) {
	strategies := []Strategy{
		&EMACrossoverRSI{},
		&RSIReversal{},
	}
	for _, s := range strategies {
		if s.ID() == "" {
			return nil, fmt.Errorf("strategy with empty ID")
		}
	}
	return strategies, nil
}
