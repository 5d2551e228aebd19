// Package risk provides position sizing, stop-loss management, and
// portfolio risk metrics. Everything here is pure: the execution engine owns
// all state and feeds plain values in.
package risk

import "math"

// KellyConfig tunes the fractional Kelly criterion sizer
type KellyConfig struct {
	MinTrades int     `json:"min_trades"` // closed trades required before Kelly activates
	Lookback  int     `json:"lookback"`   // most recent closed trades considered
	Fraction  float64 `json:"fraction"`   // fractional Kelly multiplier, e.g. 0.5 for half-Kelly
}

// DefaultKellyConfig returns conservative half-Kelly defaults
func DefaultKellyConfig() *KellyConfig {
	return &KellyConfig{
		MinTrades: 10,
		Lookback:  50,
		Fraction:  0.5,
	}
}

// KellySizer derives a position fraction from realized trade history
type KellySizer struct {
	config *KellyConfig
}

// NewKellySizer creates a Kelly criterion sizer
func NewKellySizer(config *KellyConfig) *KellySizer {
	if config == nil {
		config = DefaultKellyConfig()
	}
	return &KellySizer{config: config}
}

// PositionFraction returns the fraction of available balance to commit,
// always within [0, maxPositionPct]. With fewer than MinTrades closed trades
// it returns maxPositionPct unchanged (no Kelly adjustment). A Kelly fraction
// at or below zero returns 0, skipping the trade rather than erroring.
//
// pnls are realized PnLs of closed trades, oldest first.
func (k *KellySizer) PositionFraction(pnls []float64, maxPositionPct float64) float64 {
	if maxPositionPct <= 0 {
		return 0
	}
	if len(pnls) < k.config.MinTrades {
		return maxPositionPct
	}

	if len(pnls) > k.config.Lookback {
		pnls = pnls[len(pnls)-k.config.Lookback:]
	}

	wins, losses := 0, 0
	winSum, lossSum := 0.0, 0.0
	for _, pnl := range pnls {
		if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
			continue
		}
		if pnl > 0 {
			wins++
			winSum += pnl
		} else {
			losses++
			lossSum += -pnl
		}
	}

	n := wins + losses
	if n == 0 || wins == 0 {
		return 0
	}

	winRate := float64(wins) / float64(n)

	// No losing trades in the window: payoff ratio is unbounded and the
	// loss term vanishes, so f* collapses to the win rate.
	kelly := winRate
	if losses > 0 && lossSum > 0 {
		avgWin := winSum / float64(wins)
		avgLoss := lossSum / float64(losses)
		payoff := avgWin / avgLoss
		kelly = winRate - (1-winRate)/payoff
	}

	fraction := kelly * k.config.Fraction
	if fraction <= 0 {
		return 0
	}
	return math.Min(fraction, maxPositionPct)
}
