package risk

import "math"

// Summary holds the per-session risk metrics recomputed after each closed
// trade (or periodically for live sessions).
type Summary struct {
	TotalReturn    float64 `json:"total_return"` // relative, 0.1 == +10%
	MaxDrawdown    float64 `json:"max_drawdown"` // relative, peak-to-trough
	RollingWinRate float64 `json:"rolling_win_rate"`
	RollingSample  int     `json:"rolling_sample"`
	Sharpe         float64 `json:"sharpe"`
	Sortino        float64 `json:"sortino"`
	Calmar         float64 `json:"calmar"`
}

// MetricsConfig tunes metric computation
type MetricsConfig struct {
	WinRateLookback int `json:"win_rate_lookback"` // closed trades in the rolling window
}

// DefaultMetricsConfig returns the tuned defaults
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{WinRateLookback: 10}
}

// Compute derives the full metric summary from the portfolio snapshot values
// (one per bar) and the realized PnLs of closed trades, oldest first.
func Compute(config *MetricsConfig, snapshotValues []float64, pnls []float64, initialCapital float64) Summary {
	if config == nil {
		config = DefaultMetricsConfig()
	}

	s := Summary{}
	if initialCapital > 0 && len(snapshotValues) > 0 {
		s.TotalReturn = (snapshotValues[len(snapshotValues)-1] - initialCapital) / initialCapital
	}
	s.MaxDrawdown = MaxDrawdown(snapshotValues)
	s.RollingWinRate, s.RollingSample = RollingWinRate(pnls, config.WinRateLookback)

	returns := barReturns(snapshotValues)
	s.Sharpe = sharpe(returns)
	s.Sortino = sortino(returns)
	if s.MaxDrawdown > 0 {
		s.Calmar = s.TotalReturn / s.MaxDrawdown
	}
	return s
}

// MaxDrawdown returns the largest relative peak-to-trough decline of a value
// series.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	maxDD := 0.0
	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// RollingWinRate returns the win rate over the most recent lookback closed
// trades, plus the sample size actually available.
func RollingWinRate(pnls []float64, lookback int) (float64, int) {
	if len(pnls) == 0 || lookback <= 0 {
		return 0, 0
	}
	if len(pnls) > lookback {
		pnls = pnls[len(pnls)-lookback:]
	}

	wins := 0
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls)), len(pnls)
}

func barReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// sharpe is the mean bar return over its standard deviation, zero risk-free
// rate.
func sharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(returns)))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

// sortino penalizes only downside deviation
func sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := meanOf(returns)

	downside := 0.0
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	downsideDev := math.Sqrt(downside / float64(len(returns)))
	if downsideDev == 0 {
		return 0
	}
	return mean / downsideDev
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
