package market

import (
	"errors"
	"fmt"
	"time"
)

// Candle represents a single OHLCV price candle
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// Interval represents a supported candle interval
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock length of one candle
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Data-quality errors surfaced by ValidateSeries. The engine rejects a bad
// series at session start; it never discovers one mid-loop.
var (
	ErrEmptySeries     = errors.New("candle series is empty")
	ErrUnsortedSeries  = errors.New("candle series is not sorted by open time")
	ErrSeriesGap       = errors.New("candle series has a gap")
	ErrUnknownInterval = errors.New("unknown candle interval")
)

// ValidateSeries checks that a candle series is sorted ascending by open time
// and spaced at exactly one interval per candle.
func ValidateSeries(candles []Candle, interval Interval) error {
	if len(candles) == 0 {
		return ErrEmptySeries
	}

	step := interval.Duration()
	if step == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownInterval, interval)
	}
	stepMs := step.Milliseconds()

	for i := 1; i < len(candles); i++ {
		diff := candles[i].OpenTime - candles[i-1].OpenTime
		if diff <= 0 {
			return fmt.Errorf("%w: index %d open time %d <= previous %d",
				ErrUnsortedSeries, i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
		if diff != stepMs {
			return fmt.Errorf("%w: index %d expected spacing %dms, got %dms",
				ErrSeriesGap, i, stepMs, diff)
		}
	}

	return nil
}

// Closes extracts the close prices from a candle series
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// IsExtensionOf reports whether series has prev as a strict prefix, i.e. the
// series was extended append-only. Used to decide whether per-bar caches can
// survive a series refresh.
func IsExtensionOf(series, prev []Candle) bool {
	if len(series) < len(prev) {
		return false
	}
	if len(prev) == 0 {
		return true
	}
	// Comparing the endpoints is enough for fixed-interval sorted series.
	return series[0].OpenTime == prev[0].OpenTime &&
		series[len(prev)-1].OpenTime == prev[len(prev)-1].OpenTime &&
		series[len(prev)-1].Close == prev[len(prev)-1].Close
}
