package risk

// StopConfig tunes the ATR stop-loss manager
type StopConfig struct {
	ATRPeriod       int     `json:"atr_period"`
	ATRMultiplier   float64 `json:"atr_multiplier"`
	EMASmoothed     bool    `json:"ema_smoothed"`
	TrailingEnabled bool    `json:"trailing_enabled"`
}

// DefaultStopConfig returns the tuned defaults
func DefaultStopConfig() *StopConfig {
	return &StopConfig{
		ATRPeriod:       14,
		ATRMultiplier:   2.0,
		EMASmoothed:     false,
		TrailingEnabled: true,
	}
}

// StopManager computes ATR-proportional stop prices for long positions.
// The execution engine owns position state; this manager only computes.
type StopManager struct {
	config *StopConfig
}

// NewStopManager creates an ATR stop-loss manager
func NewStopManager(config *StopConfig) *StopManager {
	if config == nil {
		config = DefaultStopConfig()
	}
	return &StopManager{config: config}
}

// Config returns the manager's configuration
func (m *StopManager) Config() *StopConfig {
	return m.config
}

// InitialStop computes the stop price at entry for a long position
func (m *StopManager) InitialStop(entryPrice, atr float64) float64 {
	return entryPrice - atr*m.config.ATRMultiplier
}

// Trail recomputes the stop from the current price and ATR. The stop only
// moves in the position's favor: never down for a long.
func (m *StopManager) Trail(currentStop, price, atr float64) float64 {
	if !m.config.TrailingEnabled {
		return currentStop
	}
	candidate := price - atr*m.config.ATRMultiplier
	if candidate > currentStop {
		return candidate
	}
	return currentStop
}

// Triggered reports whether the stop fires at the current price.
// Market-on-touch: the exit executes at the current price, not the stop.
func (m *StopManager) Triggered(price, stop float64) bool {
	return price <= stop
}
