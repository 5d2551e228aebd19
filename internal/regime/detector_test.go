package regime

import (
	"math"
	"testing"
	"time"

	"regime-engine/internal/market"
)

func seriesFromCloses(closes []float64) []market.Candle {
	stepMs := market.Interval1h.Duration().Milliseconds()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime:  start + int64(i)*stepMs,
			Open:      c,
			High:      c * 1.002,
			Low:       c * 0.998,
			Close:     c,
			Volume:    1000,
			CloseTime: start + int64(i+1)*stepMs - 1,
		}
	}
	return candles
}

func trendingCloses(n int, start, perBar float64) []float64 {
	closes := make([]float64, n)
	price := start
	for i := range closes {
		closes[i] = price
		price *= 1 + perBar
	}
	return closes
}

func TestDetectWarmupIsNeutral(t *testing.T) {
	candles := seriesFromCloses(trendingCloses(300, 100, 0.01))
	ctx := NewContext(candles)
	d := NewDetector(nil)

	for i := 0; i < DefaultConfig().WarmupBars; i++ {
		sig := d.Detect(ctx, i)
		if sig.Regime != Neutral {
			t.Fatalf("bar %d inside warm-up classified %s, want neutral", i, sig.Regime)
		}
		if sig.Confidence != 0 {
			t.Fatalf("bar %d inside warm-up has confidence %v, want 0", i, sig.Confidence)
		}
	}
}

func TestDetectUptrendIsBullish(t *testing.T) {
	candles := seriesFromCloses(trendingCloses(300, 100, 0.01))
	ctx := NewContext(candles)
	d := NewDetector(nil)

	sig := d.Detect(ctx, len(candles)-1)
	if sig.Regime != Bullish {
		t.Fatalf("steady uptrend classified %s (trend %.3f momentum %.3f)", sig.Regime, sig.Trend, sig.Momentum)
	}
	if sig.Confidence <= 0 || sig.Confidence > 1 {
		t.Errorf("confidence %v out of (0,1]", sig.Confidence)
	}
	if sig.Trend <= 0 {
		t.Errorf("trend composite %v, want > 0", sig.Trend)
	}
	if sig.Momentum <= 0 {
		t.Errorf("momentum composite %v, want > 0", sig.Momentum)
	}
}

func TestDetectDowntrendIsBearish(t *testing.T) {
	candles := seriesFromCloses(trendingCloses(300, 100, -0.01))
	ctx := NewContext(candles)
	d := NewDetector(nil)

	sig := d.Detect(ctx, len(candles)-1)
	if sig.Regime != Bearish {
		t.Fatalf("steady downtrend classified %s", sig.Regime)
	}
	if sig.Trend >= 0 {
		t.Errorf("trend composite %v, want < 0", sig.Trend)
	}
}

func TestDetectFlatSeriesStaysNeutral(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 * (1 + 0.001*math.Sin(float64(i)/3))
	}
	candles := seriesFromCloses(closes)
	ctx := NewContext(candles)
	d := NewDetector(nil)

	for i := range candles {
		sig := d.Detect(ctx, i)
		if sig.Regime != Neutral {
			t.Fatalf("flat series bar %d classified %s (trend %.3f momentum %.3f strength %.3f)",
				i, sig.Regime, sig.Trend, sig.Momentum, sig.Strength)
		}
	}
}

func TestDetectIsDeterministicAndCached(t *testing.T) {
	candles := seriesFromCloses(trendingCloses(300, 100, 0.005))
	ctx := NewContext(candles)
	d := NewDetector(nil)

	first := d.Detect(ctx, 250)
	second := d.Detect(ctx, 250)
	if first != second {
		t.Fatalf("repeated detect differs: %+v vs %+v", first, second)
	}
}

func TestContextUpdatePreservesSignalsOnExtension(t *testing.T) {
	closes := trendingCloses(300, 100, 0.005)
	candles := seriesFromCloses(closes)
	ctx := NewContext(candles[:280])
	d := NewDetector(nil)

	before := d.Detect(ctx, 250)

	ctx.Update(candles) // append-only extension
	after := d.Detect(ctx, 250)
	if before != after {
		t.Fatalf("signal changed after append-only extension: %+v vs %+v", before, after)
	}

	// A rewritten series must invalidate the cache
	rewritten := seriesFromCloses(trendingCloses(300, 100, -0.005))
	ctx.Update(rewritten)
	changed := d.Detect(ctx, 250)
	if changed == before {
		t.Fatal("cache survived a non-extension update")
	}
}

func TestMultiplierRange(t *testing.T) {
	cases := []struct {
		name       string
		confidence float64
		strength   float64
	}{
		{"zero", 0, 0},
		{"mid", 0.5, 0.3},
		{"max", 1, 1},
		{"negative strength", 0.8, -0.9},
	}
	for _, tc := range cases {
		sig := Signal{Confidence: tc.confidence}
		m := Multiplier(sig, tc.strength)
		if m < 0.5 || m > 1.0 {
			t.Errorf("%s: multiplier %v out of [0.5,1.0]", tc.name, m)
		}
	}

	if m := Multiplier(Signal{Confidence: 0}, 0); m != 0.5 {
		t.Errorf("zero inputs should give the floor multiplier 0.5, got %v", m)
	}
	if m := Multiplier(Signal{Confidence: 1}, 1); m != 1.0 {
		t.Errorf("max inputs should give 1.0, got %v", m)
	}
}
