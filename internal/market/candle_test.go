package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func makeSeries(n int, interval Interval, startPrice float64) []Candle {
	stepMs := interval.Duration().Milliseconds()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	candles := make([]Candle, n)
	price := startPrice
	for i := 0; i < n; i++ {
		candles[i] = Candle{
			OpenTime:  start + int64(i)*stepMs,
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000,
			CloseTime: start + int64(i+1)*stepMs - 1,
		}
	}
	return candles
}

func TestValidateSeries(t *testing.T) {
	candles := makeSeries(10, Interval1h, 100)
	if err := ValidateSeries(candles, Interval1h); err != nil {
		t.Fatalf("valid series rejected: %v", err)
	}

	if err := ValidateSeries(nil, Interval1h); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("expected ErrEmptySeries, got %v", err)
	}

	if err := ValidateSeries(candles, Interval("3w")); !errors.Is(err, ErrUnknownInterval) {
		t.Errorf("expected ErrUnknownInterval, got %v", err)
	}

	gapped := makeSeries(10, Interval1h, 100)
	gapped[5].OpenTime += Interval1h.Duration().Milliseconds()
	if err := ValidateSeries(gapped, Interval1h); !errors.Is(err, ErrSeriesGap) {
		t.Errorf("expected ErrSeriesGap, got %v", err)
	}

	unsorted := makeSeries(10, Interval1h, 100)
	unsorted[3], unsorted[4] = unsorted[4], unsorted[3]
	if err := ValidateSeries(unsorted, Interval1h); !errors.Is(err, ErrUnsortedSeries) {
		t.Errorf("expected ErrUnsortedSeries, got %v", err)
	}
}

func TestIsExtensionOf(t *testing.T) {
	base := makeSeries(20, Interval1h, 100)

	extended := make([]Candle, len(base))
	copy(extended, base)
	extended = append(extended, makeSeries(25, Interval1h, 100)[20:]...)

	if !IsExtensionOf(extended, base) {
		t.Error("extended series should extend base")
	}
	if !IsExtensionOf(base, base) {
		t.Error("a series extends itself")
	}
	if IsExtensionOf(base, extended) {
		t.Error("shorter series cannot extend longer one")
	}

	rewritten := make([]Candle, len(base))
	copy(rewritten, base)
	rewritten[len(rewritten)-1].Close += 5
	if IsExtensionOf(rewritten, base) {
		t.Error("series with modified history is not an extension")
	}
}

func TestMockSourceDeterministicAndValid(t *testing.T) {
	src := NewMockSource(100)

	a, err := src.Klines(context.Background(), "BTCUSDT", Interval1h, 200)
	if err != nil {
		t.Fatalf("Klines failed: %v", err)
	}
	if len(a) != 200 {
		t.Fatalf("expected 200 candles, got %d", len(a))
	}
	if err := ValidateSeries(a, Interval1h); err != nil {
		t.Fatalf("mock series should validate: %v", err)
	}

	b, err := src.Klines(context.Background(), "BTCUSDT", Interval1h, 200)
	if err != nil {
		t.Fatalf("Klines failed: %v", err)
	}
	for i := range a {
		if a[i].Close != b[i].Close {
			t.Fatalf("mock source not deterministic at bar %d: %v vs %v", i, a[i].Close, b[i].Close)
		}
	}

	for i, c := range a {
		if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
			t.Fatalf("bar %d violates OHLC ordering: %+v", i, c)
		}
	}

	if _, err := src.Klines(context.Background(), "BTCUSDT", Interval("bogus"), 10); err == nil {
		t.Error("expected error for unknown interval")
	}
}
