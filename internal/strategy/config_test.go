package strategy

import (
	"errors"
	"testing"
)

func TestPresetConfigsValidate(t *testing.T) {
	for _, cfg := range []*Config{BullishConfig(10000), BearishConfig(10000), NeutralConfig(10000)} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s should validate: %v", cfg.Name, err)
		}
	}
}

func TestConfigValidateRejections(t *testing.T) {
	base := func() *Config { return NeutralConfig(10000) }

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"no indicators", func(c *Config) { c.Indicators = nil }},
		{"unknown kind", func(c *Config) { c.Indicators[0].Kind = "fib" }},
		{"zero period", func(c *Config) { c.Indicators[0].Period = 0 }},
		{"negative weight", func(c *Config) { c.Indicators[0].Weight = -1 }},
		{"buy below sell", func(c *Config) { c.BuyThreshold = -0.5 }},
		{"macd fast above slow", func(c *Config) {
			c.Indicators[2].FastPeriod = 30
			c.Indicators[2].SlowPeriod = 20
		}},
		{"negative macd period", func(c *Config) { c.Indicators[2].SignalPeriod = -1 }},
		{"max position zero", func(c *Config) { c.MaxPositionPct = 0 }},
		{"max position above one", func(c *Config) { c.MaxPositionPct = 1.5 }},
		{"no capital", func(c *Config) { c.InitialCapital = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: error %v does not wrap ErrInvalidConfig", tc.name, err)
		}
	}
}

func TestMACDPeriodsDefaults(t *testing.T) {
	fast, slow, signal := WeightedIndicator{Kind: KindMACD}.MACDPeriods()
	if fast != 12 || slow != 26 || signal != 9 {
		t.Fatalf("zero periods should default to 12/26/9, got %d/%d/%d", fast, slow, signal)
	}

	fast, slow, signal = WeightedIndicator{Kind: KindMACD, FastPeriod: 5, SlowPeriod: 35, SignalPeriod: 5}.MACDPeriods()
	if fast != 5 || slow != 35 || signal != 5 {
		t.Fatalf("configured periods must pass through, got %d/%d/%d", fast, slow, signal)
	}
}

func TestPersonalityThresholdOrdering(t *testing.T) {
	bullish := BullishConfig(10000)
	bearish := BearishConfig(10000)
	neutral := NeutralConfig(10000)

	// The bearish personality must be strictly harder to buy and quicker to
	// sell than the bullish one, with neutral in between.
	if !(bullish.BuyThreshold < neutral.BuyThreshold && neutral.BuyThreshold < bearish.BuyThreshold) {
		t.Error("buy thresholds must tighten from bullish to bearish")
	}
	if !(bearish.SellThreshold > neutral.SellThreshold && neutral.SellThreshold > bullish.SellThreshold) {
		t.Error("sell thresholds must tighten from bullish to bearish")
	}
	if !(bullish.MaxPositionPct > neutral.MaxPositionPct && neutral.MaxPositionPct > bearish.MaxPositionPct) {
		t.Error("position limits must shrink from bullish to bearish")
	}
}
