package providers

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"marketdash/models"
)

// MockProvider generates deterministic synthetic candles for local
// development and tests. The same symbol/interval/timestamp always
// yields the same candle, so change detection behaves as it would
// against a real exchange: the current bar keeps mutating until its
// interval rolls over.
type MockProvider struct {
	basePrice float64
	now       func() time.Time
}

// NewMockProvider creates a mock provider using wall-clock time
func NewMockProvider() *MockProvider {
	return &MockProvider{basePrice: 50000, now: time.Now}
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return models.ProviderMock
}

// FetchCandles generates limit candles ending at the current bar
func (p *MockProvider) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	step := models.IntervalDuration(interval)
	now := p.now()
	barStart := now.Truncate(step)

	candles := make([]models.Candle, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		open := barStart.Add(-time.Duration(i) * step)
		candles = append(candles, p.candleAt(symbol, interval, open, now))
	}
	return candles, nil
}

// candleAt builds the synthetic bar opening at open. For the current
// bar, elapsed time within the bar feeds the close and volume so the
// candle visibly ticks.
func (p *MockProvider) candleAt(symbol, interval string, open time.Time, now time.Time) models.Candle {
	seed := float64(symbolSeed(symbol)%1000) + 1
	base := p.basePrice * seed / 500

	t := float64(open.Unix())
	wave := math.Sin(t/3600) * base * 0.01
	drift := math.Sin(t/86400) * base * 0.03

	o := base + drift + wave
	c := o + math.Sin(t/600)*base*0.005
	vol := 10 + math.Abs(math.Sin(t/300))*100

	// Still-forming bar: let close and volume track elapsed time
	step := models.IntervalDuration(interval)
	if elapsed := now.Sub(open); elapsed >= 0 && elapsed < step {
		frac := elapsed.Seconds() / step.Seconds()
		c = o + math.Sin(t/600+frac*10)*base*0.005
		vol *= frac + 0.01
	}

	h := math.Max(o, c) * 1.001
	l := math.Min(o, c) * 0.999

	return models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: open.UnixMilli(),
		Open:      round2(o),
		High:      round2(h),
		Low:       round2(l),
		Close:     round2(c),
		Volume:    round2(vol),
		Provider:  models.ProviderMock,
	}
}

func symbolSeed(symbol string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return h.Sum32()
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
