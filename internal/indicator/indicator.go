// Package indicator provides technical indicators as pure functions over a
// candle series. Every series function returns a slice aligned to the input
// length, with NaN entries until the indicator's warm-up period is satisfied.
// Callers must check Valid before using a value.
package indicator

import (
	"math"

	"regime-engine/internal/market"
)

// Valid reports whether an indicator value is past its warm-up period
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries calculates the Simple Moving Average series.
// Defined from index period-1.
func SMASeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries calculates the Exponential Moving Average series.
// Seeded with the SMA at index period-1, defined from there on.
func EMASeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	// Initial SMA as starting point
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		ema = (closes[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}
	return out
}

// RSISeries calculates the Relative Strength Index series using Wilder
// smoothing. Defined from index period.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD holds the three MACD series, each aligned to the input length
type MACD struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACDSeries calculates MACD line, signal line, and histogram series.
// The line is defined from index slowPeriod-1; the signal and histogram from
// index slowPeriod+signalPeriod-2.
func MACDSeries(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACD {
	n := len(closes)
	result := MACD{
		Line:      nanSlice(n),
		Signal:    nanSlice(n),
		Histogram: nanSlice(n),
	}
	if n < slowPeriod || fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 {
		return result
	}

	fast := EMASeries(closes, fastPeriod)
	slow := EMASeries(closes, slowPeriod)
	for i := slowPeriod - 1; i < n; i++ {
		result.Line[i] = fast[i] - slow[i]
	}

	// Signal line is an EMA of the MACD line, seeded with an SMA of the
	// first signalPeriod defined values.
	signalStart := slowPeriod + signalPeriod - 2
	if signalStart >= n {
		return result
	}

	sum := 0.0
	for i := slowPeriod - 1; i <= signalStart; i++ {
		sum += result.Line[i]
	}
	signal := sum / float64(signalPeriod)
	result.Signal[signalStart] = signal
	result.Histogram[signalStart] = result.Line[signalStart] - signal

	multiplier := 2.0 / float64(signalPeriod+1)
	for i := signalStart + 1; i < n; i++ {
		signal = (result.Line[i] * multiplier) + (signal * (1 - multiplier))
		result.Signal[i] = signal
		result.Histogram[i] = result.Line[i] - signal
	}
	return result
}

// ATRSeries calculates the Average True Range series from high/low/close
// triplets. Defined from index period. With emaSmoothed the running value
// uses an EMA instead of Wilder smoothing.
func ATRSeries(candles []market.Candle, period int, emaSmoothed bool) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close
		tr[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(candles); i++ {
		if emaSmoothed {
			multiplier := 2.0 / float64(period+1)
			atr = (tr[i] * multiplier) + (atr * (1 - multiplier))
		} else {
			atr = (atr*float64(period-1) + tr[i]) / float64(period)
		}
		out[i] = atr
	}
	return out
}

// MomentumSeries calculates the relative price change over period bars.
// Defined from index period.
func MomentumSeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	for i := period; i < len(closes); i++ {
		past := closes[i-period]
		if past == 0 {
			continue
		}
		out[i] = (closes[i] - past) / past
	}
	return out
}
