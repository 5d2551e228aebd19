package indicator

import (
	"math"
	"testing"
	"time"

	"regime-engine/internal/market"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMASeries(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}
	sma := SMASeries(closes, 3)

	if len(sma) != len(closes) {
		t.Fatalf("expected %d values, got %d", len(closes), len(sma))
	}
	for i := 0; i < 2; i++ {
		if Valid(sma[i]) {
			t.Errorf("sma[%d] should be NaN during warm-up", i)
		}
	}
	want := []float64{2, 3, 4, 5}
	for i, w := range want {
		if !almostEqual(sma[i+2], w) {
			t.Errorf("sma[%d] = %v, want %v", i+2, sma[i+2], w)
		}
	}
}

func TestEMASeriesSeedsWithSMA(t *testing.T) {
	closes := []float64{2, 4, 6, 8, 10}
	ema := EMASeries(closes, 3)

	if Valid(ema[0]) || Valid(ema[1]) {
		t.Error("ema should be NaN before the seed bar")
	}
	// Seed at period-1 is the SMA of the first period closes
	if !almostEqual(ema[2], 4) {
		t.Errorf("ema seed = %v, want 4", ema[2])
	}
	// alpha = 2/(3+1) = 0.5: ema[3] = 8*0.5 + 4*0.5 = 6
	if !almostEqual(ema[3], 6) {
		t.Errorf("ema[3] = %v, want 6", ema[3])
	}
	if !almostEqual(ema[4], 8) {
		t.Errorf("ema[4] = %v, want 8", ema[4])
	}
}

func TestRSISeriesBounds(t *testing.T) {
	// Strictly rising closes: RSI must hit 100
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	rsi := RSISeries(rising, 14)
	last := rsi[len(rsi)-1]
	if !almostEqual(last, 100) {
		t.Errorf("rsi of strictly rising series = %v, want 100", last)
	}

	// Strictly falling closes: RSI must hit 0
	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	rsi = RSISeries(falling, 14)
	last = rsi[len(rsi)-1]
	if !almostEqual(last, 0) {
		t.Errorf("rsi of strictly falling series = %v, want 0", last)
	}

	for i := 0; i < 14; i++ {
		if Valid(rsi[i]) {
			t.Errorf("rsi[%d] should be NaN during warm-up", i)
		}
	}
}

func TestMACDSeriesAlignment(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	macd := MACDSeries(closes, 12, 26, 9)

	if len(macd.Line) != len(closes) || len(macd.Signal) != len(closes) || len(macd.Histogram) != len(closes) {
		t.Fatal("macd series must align with input length")
	}

	// In a steady uptrend the fast EMA leads the slow one
	last := len(closes) - 1
	if !Valid(macd.Line[last]) || macd.Line[last] <= 0 {
		t.Errorf("macd line in uptrend = %v, want > 0", macd.Line[last])
	}
	if !Valid(macd.Histogram[last]) {
		t.Error("histogram should be defined at the last bar")
	}
	if !almostEqual(macd.Histogram[last], macd.Line[last]-macd.Signal[last]) {
		t.Error("histogram must equal line minus signal")
	}
}

func TestATRSeries(t *testing.T) {
	stepMs := market.Interval1h.Duration().Milliseconds()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	candles := make([]market.Candle, 30)
	for i := range candles {
		price := 100.0
		candles[i] = market.Candle{
			OpenTime:  start + int64(i)*stepMs,
			Open:      price,
			High:      price + 2,
			Low:       price - 2,
			Close:     price,
			CloseTime: start + int64(i+1)*stepMs - 1,
		}
	}

	atr := ATRSeries(candles, 14, false)
	if len(atr) != len(candles) {
		t.Fatalf("expected %d values, got %d", len(candles), len(atr))
	}
	// Constant 4-point range: ATR converges to exactly 4
	last := atr[len(atr)-1]
	if !almostEqual(last, 4) {
		t.Errorf("atr of constant-range series = %v, want 4", last)
	}

	ema := ATRSeries(candles, 14, true)
	if !almostEqual(ema[len(ema)-1], 4) {
		t.Errorf("ema-smoothed atr = %v, want 4", ema[len(ema)-1])
	}
}

func TestMomentumSeries(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 110}
	mom := MomentumSeries(closes, 5)

	for i := 0; i < 5; i++ {
		if Valid(mom[i]) {
			t.Errorf("momentum[%d] should be NaN during warm-up", i)
		}
	}
	if !almostEqual(mom[5], 0.10) {
		t.Errorf("momentum[5] = %v, want 0.10", mom[5])
	}
}
