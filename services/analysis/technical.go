package analysis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketdash/models"
)

// Closes extracts the close series from a chronological candle slice
func Closes(candles []models.Candle) []decimal.Decimal {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = decimal.NewFromFloat(c.Close)
	}
	return closes
}

// SMA calculates the Simple Moving Average over the last period values
func SMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 || len(values) < period {
		return decimal.Zero, fmt.Errorf("insufficient data for SMA%d calculation", period)
	}

	sum := decimal.Zero
	for _, v := range values[len(values)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// EMASeries calculates the Exponential Moving Average at every index.
// The first period-1 entries are seeded with the running SMA.
func EMASeries(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 || len(values) < period {
		return nil, fmt.Errorf("insufficient data for EMA%d calculation", period)
	}

	out := make([]decimal.Decimal, len(values))
	multiplier := decimal.NewFromFloat(2.0 / float64(period+1))

	// Seed with the SMA of the first period values
	sum := decimal.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(values[i])
		out[i] = sum.Div(decimal.NewFromInt(int64(i + 1)))
	}

	ema := out[period-1]
	for i := period; i < len(values); i++ {
		ema = values[i].Sub(ema).Mul(multiplier).Add(ema)
		out[i] = ema
	}
	return out, nil
}

// RSISeries calculates the Relative Strength Index at every index using
// Wilder smoothing. Entries before index period are zero.
func RSISeries(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 || len(values) < period+1 {
		return nil, fmt.Errorf("insufficient data for RSI%d calculation", period)
	}

	out := make([]decimal.Decimal, len(values))
	hundred := decimal.NewFromInt(100)
	periodDec := decimal.NewFromInt(int64(period))

	avgGain := decimal.Zero
	avgLoss := decimal.Zero
	for i := 1; i <= period; i++ {
		change := values[i].Sub(values[i-1])
		if change.GreaterThan(decimal.Zero) {
			avgGain = avgGain.Add(change)
		} else {
			avgLoss = avgLoss.Add(change.Abs())
		}
	}
	avgGain = avgGain.Div(periodDec)
	avgLoss = avgLoss.Div(periodDec)
	out[period] = rsiValue(avgGain, avgLoss, hundred)

	smoothing := periodDec.Sub(decimal.NewFromInt(1))
	for i := period + 1; i < len(values); i++ {
		change := values[i].Sub(values[i-1])
		gain := decimal.Zero
		loss := decimal.Zero
		if change.GreaterThan(decimal.Zero) {
			gain = change
		} else {
			loss = change.Abs()
		}
		avgGain = avgGain.Mul(smoothing).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(smoothing).Add(loss).Div(periodDec)
		out[i] = rsiValue(avgGain, avgLoss, hundred)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss, hundred decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACD calculates the 12/26/9 MACD line, signal line and histogram for
// the last value of the series
func MACD(values []decimal.Decimal) (macd, signal, hist decimal.Decimal, err error) {
	fast, err := EMASeries(values, 12)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	slow, err := EMASeries(values, 26)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	macdSeries := make([]decimal.Decimal, len(values))
	for i := range values {
		macdSeries[i] = fast[i].Sub(slow[i])
	}

	signalSeries, err := EMASeries(macdSeries, 9)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	last := len(values) - 1
	macd = macdSeries[last]
	signal = signalSeries[last]
	hist = macd.Sub(signal)
	return macd, signal, hist, nil
}

// IndicatorSummary bundles the indicator values the dashboard shows
// for one feed
type IndicatorSummary struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	SMA20    float64 `json:"sma_20"`
	EMA12    float64 `json:"ema_12"`
	EMA26    float64 `json:"ema_26"`
	RSI14    float64 `json:"rsi_14"`
	MACD     float64 `json:"macd"`
	MACDSig  float64 `json:"macd_signal"`
	MACDHist float64 `json:"macd_hist"`
}

// Summarize computes the dashboard indicator summary over a
// chronological candle slice
func Summarize(candles []models.Candle) (*IndicatorSummary, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to analyze")
	}
	closes := Closes(candles)

	sma20, err := SMA(closes, 20)
	if err != nil {
		return nil, err
	}
	ema12, err := EMASeries(closes, 12)
	if err != nil {
		return nil, err
	}
	ema26, err := EMASeries(closes, 26)
	if err != nil {
		return nil, err
	}
	rsi14, err := RSISeries(closes, 14)
	if err != nil {
		return nil, err
	}
	macd, sig, hist, err := MACD(closes)
	if err != nil {
		return nil, err
	}

	last := len(closes) - 1
	return &IndicatorSummary{
		Symbol:   candles[last].Symbol,
		Interval: candles[last].Interval,
		SMA20:    sma20.InexactFloat64(),
		EMA12:    ema12[last].InexactFloat64(),
		EMA26:    ema26[last].InexactFloat64(),
		RSI14:    rsi14[last].InexactFloat64(),
		MACD:     macd.InexactFloat64(),
		MACDSig:  sig.InexactFloat64(),
		MACDHist: hist.InexactFloat64(),
	}, nil
}
