package strategy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig marks strategy configuration errors. They are fatal at
// session-start validation and never surface mid-run.
var ErrInvalidConfig = errors.New("invalid strategy config")

// IndicatorKind enumerates the supported weighted-indicator types
type IndicatorKind string

const (
	KindSMA      IndicatorKind = "sma"
	KindEMA      IndicatorKind = "ema"
	KindRSI      IndicatorKind = "rsi"
	KindMACD     IndicatorKind = "macd"
	KindATR      IndicatorKind = "atr"
	KindMomentum IndicatorKind = "momentum"
)

// WeightedIndicator is one entry of a strategy's indicator mix. Weights are
// relative scores; they need not sum to 1.
type WeightedIndicator struct {
	Kind   IndicatorKind `json:"kind"`
	Period int           `json:"period,omitempty"` // ignored for macd

	// MACD-specific parameters; zero values fall back to 12/26/9
	FastPeriod   int `json:"fast_period,omitempty"`
	SlowPeriod   int `json:"slow_period,omitempty"`
	SignalPeriod int `json:"signal_period,omitempty"`

	Weight float64 `json:"weight"`
}

// MACDPeriods returns the configured MACD periods, with 12/26/9 substituted
// for zero values.
func (w WeightedIndicator) MACDPeriods() (fast, slow, signal int) {
	fast, slow, signal = w.FastPeriod, w.SlowPeriod, w.SignalPeriod
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signal <= 0 {
		signal = 9
	}
	return fast, slow, signal
}

func (w WeightedIndicator) validate() error {
	switch w.Kind {
	case KindSMA, KindEMA, KindRSI, KindATR, KindMomentum:
		if w.Period <= 0 {
			return fmt.Errorf("%w: %s requires a positive period, got %d", ErrInvalidConfig, w.Kind, w.Period)
		}
	case KindMACD:
		if w.FastPeriod < 0 || w.SlowPeriod < 0 || w.SignalPeriod < 0 {
			return fmt.Errorf("%w: macd periods must not be negative, got %d/%d/%d",
				ErrInvalidConfig, w.FastPeriod, w.SlowPeriod, w.SignalPeriod)
		}
		if fast, slow, _ := w.MACDPeriods(); fast >= slow {
			return fmt.Errorf("%w: macd fast period %d must be below slow period %d",
				ErrInvalidConfig, fast, slow)
		}
	default:
		return fmt.Errorf("%w: unknown indicator kind %q", ErrInvalidConfig, w.Kind)
	}

	if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) || w.Weight <= 0 {
		return fmt.Errorf("%w: %s weight must be a positive finite number, got %v", ErrInvalidConfig, w.Kind, w.Weight)
	}
	return nil
}

// Config is one strategy personality: a named weighted indicator mix with
// thresholds and position limits.
type Config struct {
	Name           string              `json:"name"`
	Indicators     []WeightedIndicator `json:"indicators"`
	BuyThreshold   float64             `json:"buy_threshold"`
	SellThreshold  float64             `json:"sell_threshold"`
	MaxPositionPct float64             `json:"max_position_pct"`
	InitialCapital float64             `json:"initial_capital"`
}

// Validate checks the config once at load. The engine never validates per bar.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if len(c.Indicators) == 0 {
		return fmt.Errorf("%w: %s has no indicators", ErrInvalidConfig, c.Name)
	}

	weightSum := 0.0
	for _, ind := range c.Indicators {
		if err := ind.validate(); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		weightSum += ind.Weight
	}
	if weightSum <= 0 {
		return fmt.Errorf("%w: %s indicator weights sum to %v", ErrInvalidConfig, c.Name, weightSum)
	}

	for _, v := range []float64{c.BuyThreshold, c.SellThreshold, c.MaxPositionPct, c.InitialCapital} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has a non-finite threshold", ErrInvalidConfig, c.Name)
		}
	}
	if c.BuyThreshold <= c.SellThreshold {
		return fmt.Errorf("%w: %s buy threshold %v must exceed sell threshold %v",
			ErrInvalidConfig, c.Name, c.BuyThreshold, c.SellThreshold)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("%w: %s max position pct %v must be in (0,1]", ErrInvalidConfig, c.Name, c.MaxPositionPct)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: %s initial capital must be positive", ErrInvalidConfig, c.Name)
	}
	return nil
}

// BullishConfig returns the trend-following personality used in confirmed
// bullish regimes.
func BullishConfig(initialCapital float64) *Config {
	return &Config{
		Name: "bullish",
		Indicators: []WeightedIndicator{
			{Kind: KindEMA, Period: 12, Weight: 1.5},
			{Kind: KindMomentum, Period: 20, Weight: 1.2},
			{Kind: KindMACD, Weight: 1.0},
			{Kind: KindRSI, Period: 14, Weight: 0.8},
		},
		BuyThreshold:   0.15,
		SellThreshold:  -0.35,
		MaxPositionPct: 0.5,
		InitialCapital: initialCapital,
	}
}

// BearishConfig returns the defensive personality used in confirmed bearish
// regimes: harder to buy, quick to sell.
func BearishConfig(initialCapital float64) *Config {
	return &Config{
		Name: "bearish",
		Indicators: []WeightedIndicator{
			{Kind: KindRSI, Period: 14, Weight: 1.5},
			{Kind: KindSMA, Period: 50, Weight: 1.2},
			{Kind: KindMACD, Weight: 1.0},
			{Kind: KindATR, Period: 14, Weight: 0.8},
		},
		BuyThreshold:   0.45,
		SellThreshold:  -0.1,
		MaxPositionPct: 0.2,
		InitialCapital: initialCapital,
	}
}

// NeutralConfig returns the balanced personality used in neutral or
// unconfirmed regimes.
func NeutralConfig(initialCapital float64) *Config {
	return &Config{
		Name: "neutral",
		Indicators: []WeightedIndicator{
			{Kind: KindSMA, Period: 20, Weight: 1.0},
			{Kind: KindRSI, Period: 14, Weight: 1.0},
			{Kind: KindMACD, Weight: 1.0},
			{Kind: KindMomentum, Period: 20, Weight: 0.8},
		},
		BuyThreshold:   0.3,
		SellThreshold:  -0.3,
		MaxPositionPct: 0.3,
		InitialCapital: initialCapital,
	}
}
