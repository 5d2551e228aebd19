// Package circuit implements the trading circuit breaker: threshold-driven
// fail-safes that gate new entries on rolling win rate and drawdown. A
// breach is a state transition, not an error; exits and stops keep running
// while entries are blocked, so a session can self-resume once conditions
// recover.
package circuit

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"regime-engine/internal/alert"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed         State = "closed"          // normal operation
	StateEntriesBlocked State = "entries_blocked" // win-rate gate: no new entries
	StatePaused         State = "paused"          // drawdown breach: trading paused
)

// Config holds circuit breaker configuration. Thresholds are relative
// fractions (0.18 == 18%).
type Config struct {
	Enabled          bool    `json:"enabled"`
	MinWinRate       float64 `json:"min_win_rate"`        // rolling win rate below this blocks entries
	WinRateMinSample int     `json:"win_rate_min_sample"` // closed trades required before the gate applies
	MaxDrawdown      float64 `json:"max_drawdown"`        // drawdown at or above this pauses trading
	DrawdownWarning  float64 `json:"drawdown_warning"`    // early-warning alert threshold
}

// DefaultConfig returns safe defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		MinWinRate:       0.18,
		WinRateMinSample: 5,
		MaxDrawdown:      0.20,
		DrawdownWarning:  0.18,
	}
}

// Breaker gates new entries based on observed risk metrics
type Breaker struct {
	mu     sync.RWMutex
	config *Config
	state  State
	reason string

	warnedDrawdown bool

	alerts *alert.Manager
	log    zerolog.Logger
}

// NewBreaker creates a circuit breaker
func NewBreaker(config *Config, alerts *alert.Manager, logger zerolog.Logger) *Breaker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
		alerts: alerts,
		log:    logger.With().Str("component", "circuit").Logger(),
	}
}

// Observe feeds the breaker the latest rolling win rate (with its sample
// size) and drawdown, and applies any state transition. Called after each
// closed trade and each snapshot.
func (b *Breaker) Observe(winRate float64, sample int, drawdown float64) {
	if !b.config.Enabled {
		return
	}
	if math.IsNaN(winRate) || math.IsNaN(drawdown) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state

	switch {
	case drawdown >= b.config.MaxDrawdown:
		b.state = StatePaused
		b.reason = fmt.Sprintf("drawdown %.1f%% >= %.1f%%", drawdown*100, b.config.MaxDrawdown*100)
	case sample >= b.config.WinRateMinSample && winRate < b.config.MinWinRate:
		b.state = StateEntriesBlocked
		b.reason = fmt.Sprintf("rolling win rate %.1f%% < %.1f%% over %d trades",
			winRate*100, b.config.MinWinRate*100, sample)
	default:
		b.state = StateClosed
		b.reason = ""
	}

	if b.state != prev {
		b.transitionLocked(prev, winRate, drawdown)
	}

	// Early drawdown warning, once per excursion above the warning line
	if drawdown >= b.config.DrawdownWarning && drawdown < b.config.MaxDrawdown {
		if !b.warnedDrawdown {
			b.warnedDrawdown = true
			b.emit(alert.Event{
				Type:     alert.TypeDrawdownWarning,
				Severity: alert.SeverityWarning,
				Message:  fmt.Sprintf("drawdown %.1f%% approaching limit %.1f%%", drawdown*100, b.config.MaxDrawdown*100),
				Context:  map[string]interface{}{"drawdown": drawdown},
			})
		}
	} else if drawdown < b.config.DrawdownWarning {
		b.warnedDrawdown = false
	}
}

func (b *Breaker) transitionLocked(prev State, winRate, drawdown float64) {
	b.log.Warn().
		Str("from", string(prev)).
		Str("to", string(b.state)).
		Str("reason", b.reason).
		Msg("circuit breaker transition")

	ctx := map[string]interface{}{
		"win_rate": winRate,
		"drawdown": drawdown,
	}

	switch b.state {
	case StatePaused:
		b.emit(alert.Event{
			Type:     alert.TypeDrawdownBreach,
			Severity: alert.SeverityCritical,
			Message:  b.reason,
			Context:  ctx,
		})
	case StateEntriesBlocked:
		b.emit(alert.Event{
			Type:     alert.TypeWinRateBlock,
			Severity: alert.SeverityWarning,
			Message:  b.reason,
			Context:  ctx,
		})
	case StateClosed:
		b.emit(alert.Event{
			Type:     alert.TypeWinRateRecover,
			Severity: alert.SeverityInfo,
			Message:  "circuit breaker recovered, entries allowed",
			Context:  ctx,
		})
	}
}

func (b *Breaker) emit(event alert.Event) {
	if b.alerts != nil {
		b.alerts.Emit(event)
	}
}

// CanEnter reports whether new entries are allowed. Exits and stop-loss
// evaluation never consult this.
func (b *Breaker) CanEnter() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.state == StateClosed {
		return true, ""
	}
	return false, b.reason
}

// GetState returns the current breaker state
func (b *Breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reason returns the active block reason, empty when closed
func (b *Breaker) Reason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reason
}

// Restore reloads persisted breaker state when resuming a session
func (b *Breaker) Restore(state State, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state == "" {
		state = StateClosed
	}
	b.state = state
	b.reason = reason
}

// ForceReset manually closes the breaker
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.reason = ""
	b.warnedDrawdown = false
}
