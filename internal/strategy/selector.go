package strategy

import (
	"github.com/rs/zerolog"

	"regime-engine/internal/regime"
)

// SelectorConfig tunes the regime-to-strategy transition rules. Defaults are
// intentionally quick to switch; raise the persistence to trade calmer.
type SelectorConfig struct {
	WindowSize               int     `json:"window_size"`                // trailing regime bars kept
	RegimePersistencePeriods int     `json:"regime_persistence_periods"` // quorum for a switch
	MomentumConfirmThreshold float64 `json:"momentum_confirm_threshold"` // bullish second gate
	RegimeConfidenceThreshold float64 `json:"regime_confidence_threshold"`
}

// DefaultSelectorConfig returns the tuned defaults
func DefaultSelectorConfig() *SelectorConfig {
	return &SelectorConfig{
		WindowSize:                5,
		RegimePersistencePeriods:  2,
		MomentumConfirmThreshold:  0.25,
		RegimeConfidenceThreshold: 0.2,
	}
}

// Selector picks which strategy personality governs each bar. A candidate
// regime needs a quorum of the trailing window before the switch is honored
// (the whipsaw guard), and a bullish switch additionally needs momentum
// confirmation.
type Selector struct {
	config  *SelectorConfig
	window  []regime.Regime
	active  *Config
	bullish *Config
	bearish *Config
	neutral *Config
	log     zerolog.Logger
}

// NewSelector creates a selector over the three personalities. The neutral
// config is active until a regime is confirmed.
func NewSelector(config *SelectorConfig, bullish, bearish, neutral *Config, logger zerolog.Logger) *Selector {
	if config == nil {
		config = DefaultSelectorConfig()
	}
	return &Selector{
		config:  config,
		window:  make([]regime.Regime, 0, config.WindowSize),
		active:  neutral,
		bullish: bullish,
		bearish: bearish,
		neutral: neutral,
		log:     logger.With().Str("component", "selector").Logger(),
	}
}

// Select records the bar's regime signal and returns the config that governs
// this bar, plus whether bullish momentum confirmation passed.
func (s *Selector) Select(sig regime.Signal) (*Config, bool) {
	s.push(sig.Regime)

	momentumConfirmed := sig.Momentum >= s.config.MomentumConfirmThreshold

	switch {
	case s.confirmed(regime.Bullish):
		// Two-stage gate: a confirmed bullish regime still needs the
		// momentum composite to clear the threshold, otherwise the read
		// is distrusted and the neutral personality stays in charge.
		if momentumConfirmed {
			s.activate(s.bullish)
		} else {
			s.activate(s.neutral)
		}
	case s.confirmed(regime.Bearish):
		if sig.Confidence >= s.config.RegimeConfidenceThreshold {
			s.activate(s.bearish)
		}
	case s.confirmed(regime.Neutral):
		s.activate(s.neutral)
	}

	return s.active, momentumConfirmed
}

// Active returns the currently governing config
func (s *Selector) Active() *Config {
	return s.active
}

// Window returns a copy of the trailing regime window, oldest first
func (s *Selector) Window() []regime.Regime {
	out := make([]regime.Regime, len(s.window))
	copy(out, s.window)
	return out
}

// Restore reloads a persisted trailing window, oldest first
func (s *Selector) Restore(window []regime.Regime, activeName string) {
	s.window = s.window[:0]
	for _, r := range window {
		s.push(r)
	}
	switch activeName {
	case s.bullish.Name:
		s.active = s.bullish
	case s.bearish.Name:
		s.active = s.bearish
	default:
		s.active = s.neutral
	}
}

func (s *Selector) push(r regime.Regime) {
	s.window = append(s.window, r)
	if len(s.window) > s.config.WindowSize {
		s.window = s.window[1:]
	}
}

// confirmed reports whether r holds a quorum of the trailing window. A single
// bar amid a contrary window never flips the active strategy.
func (s *Selector) confirmed(r regime.Regime) bool {
	if len(s.window) == 0 || s.window[len(s.window)-1] != r {
		return false
	}
	count := 0
	for _, w := range s.window {
		if w == r {
			count++
		}
	}
	return count >= s.config.RegimePersistencePeriods
}

func (s *Selector) activate(cfg *Config) {
	if s.active == cfg {
		return
	}
	s.log.Info().
		Str("from", s.active.Name).
		Str("to", cfg.Name).
		Msg("strategy switch")
	s.active = cfg
}
