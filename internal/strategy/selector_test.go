package strategy

import (
	"testing"

	"github.com/rs/zerolog"

	"regime-engine/internal/regime"
)

func newTestSelector() *Selector {
	return NewSelector(nil, BullishConfig(10000), BearishConfig(10000), NeutralConfig(10000), zerolog.Nop())
}

func bullishSig(momentum float64) regime.Signal {
	return regime.Signal{Regime: regime.Bullish, Confidence: 0.8, Momentum: momentum}
}

func bearishSig(confidence float64) regime.Signal {
	return regime.Signal{Regime: regime.Bearish, Confidence: confidence, Momentum: -0.5}
}

func neutralSig() regime.Signal {
	return regime.Signal{Regime: regime.Neutral, Confidence: 0.1}
}

func TestSelectorStartsNeutral(t *testing.T) {
	s := newTestSelector()
	if s.Active().Name != "neutral" {
		t.Fatalf("selector should start neutral, got %s", s.Active().Name)
	}
}

func TestSelectorSingleBarDoesNotSwitch(t *testing.T) {
	s := newTestSelector()

	// Build a neutral history first
	for i := 0; i < 5; i++ {
		s.Select(neutralSig())
	}

	// One bearish bar amid neutral history: quorum is 2, so no switch
	cfg, _ := s.Select(bearishSig(0.9))
	if cfg.Name != "neutral" {
		t.Fatalf("single contrary bar switched strategy to %s", cfg.Name)
	}
}

func TestSelectorSwitchesAfterPersistence(t *testing.T) {
	s := newTestSelector()

	s.Select(bearishSig(0.9))
	cfg, _ := s.Select(bearishSig(0.9))
	if cfg.Name != "bearish" {
		t.Fatalf("two persistent bearish bars should switch, got %s", cfg.Name)
	}
}

func TestSelectorBearishNeedsConfidence(t *testing.T) {
	s := newTestSelector()

	s.Select(bearishSig(0.05))
	cfg, _ := s.Select(bearishSig(0.05))
	if cfg.Name != "neutral" {
		t.Fatalf("low-confidence bearish regime should not switch, got %s", cfg.Name)
	}
}

func TestSelectorBullishTwoStageGate(t *testing.T) {
	s := newTestSelector()

	// Regime confirmed but momentum below the confirmation threshold
	s.Select(bullishSig(0.1))
	cfg, confirmed := s.Select(bullishSig(0.1))
	if confirmed {
		t.Error("momentum 0.1 should not confirm")
	}
	if cfg.Name != "neutral" {
		t.Fatalf("unconfirmed bullish regime should stay neutral, got %s", cfg.Name)
	}

	// Momentum clears the gate on a later bar
	cfg, confirmed = s.Select(bullishSig(0.4))
	if !confirmed {
		t.Error("momentum 0.4 should confirm")
	}
	if cfg.Name != "bullish" {
		t.Fatalf("confirmed bullish regime should switch, got %s", cfg.Name)
	}
}

func TestSelectorRevertsToNeutral(t *testing.T) {
	s := newTestSelector()

	s.Select(bullishSig(0.4))
	s.Select(bullishSig(0.4))
	if s.Active().Name != "bullish" {
		t.Fatal("setup failed to switch to bullish")
	}

	s.Select(neutralSig())
	cfg, _ := s.Select(neutralSig())
	if cfg.Name != "neutral" {
		t.Fatalf("persistent neutral regime should revert, got %s", cfg.Name)
	}
}

func TestSelectorWindowIsBounded(t *testing.T) {
	s := newTestSelector()
	for i := 0; i < 20; i++ {
		s.Select(neutralSig())
	}
	if got := len(s.Window()); got != DefaultSelectorConfig().WindowSize {
		t.Fatalf("window size %d, want %d", got, DefaultSelectorConfig().WindowSize)
	}
}

func TestSelectorRestore(t *testing.T) {
	s := newTestSelector()
	s.Restore([]regime.Regime{regime.Bullish, regime.Bullish, regime.Bullish}, "bullish")

	if s.Active().Name != "bullish" {
		t.Fatalf("restore should reinstate the active config, got %s", s.Active().Name)
	}
	if len(s.Window()) != 3 {
		t.Fatalf("restore should rebuild the window, got %d entries", len(s.Window()))
	}

	// A restored window counts toward persistence immediately
	cfg, _ := s.Select(bullishSig(0.4))
	if cfg.Name != "bullish" {
		t.Fatalf("restored window should keep bullish active, got %s", cfg.Name)
	}
}
