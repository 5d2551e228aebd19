package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"regime-engine/internal/circuit"
	"regime-engine/internal/market"
	"regime-engine/internal/regime"
	"regime-engine/internal/risk"
	"regime-engine/internal/strategy"
)

// SessionState is the session lifecycle state
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StatePaused    SessionState = "paused"
	StateCompleted SessionState = "completed"
)

// ErrUpdateInProgress is returned when a second update is attempted while one
// is already running against the same session.
var ErrUpdateInProgress = fmt.Errorf("session update already in progress")

// Configs bundles the three strategy personalities a session runs with
type Configs struct {
	Bullish *strategy.Config `json:"bullish"`
	Bearish *strategy.Config `json:"bearish"`
	Neutral *strategy.Config `json:"neutral"`
}

// DefaultConfigs returns the preset personalities for the given capital
func DefaultConfigs(initialCapital float64) Configs {
	return Configs{
		Bullish: strategy.BullishConfig(initialCapital),
		Bearish: strategy.BearishConfig(initialCapital),
		Neutral: strategy.NeutralConfig(initialCapital),
	}
}

// Validate checks all three personalities
func (c Configs) Validate() error {
	for _, cfg := range []*strategy.Config{c.Bullish, c.Bearish, c.Neutral} {
		if cfg == nil {
			return fmt.Errorf("%w: missing personality config", strategy.ErrInvalidConfig)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Session is the unit of simulation: one symbol, one interval, one portfolio,
// and everything needed to resume processing where it left off. All fields
// are plain data so a session round-trips through the store unchanged.
type Session struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Interval market.Interval `json:"interval"`

	State        SessionState `json:"state"`
	PausedReason string       `json:"paused_reason,omitempty"`

	Configs   Configs   `json:"configs"`
	Portfolio Portfolio `json:"portfolio"`

	Trades        []Trade    `json:"trades"`
	Snapshots     []Snapshot `json:"snapshots"`
	OpenPositions []Position `json:"open_positions"`

	// Resume state
	NextBar          int             `json:"next_bar"`
	RegimeWindow     []regime.Regime `json:"regime_window"` // trailing window, oldest first
	ActiveConfigName string          `json:"active_config_name"`
	LastRegime       regime.Regime   `json:"last_regime"`
	BarsSinceTrade   int             `json:"bars_since_trade"`

	Metrics       risk.Summary  `json:"metrics"`
	BreakerState  circuit.State `json:"breaker_state"`
	BreakerReason string        `json:"breaker_reason,omitempty"`

	// Guard against concurrent updates of the same session. The flag is
	// persisted so a crashed updater can be detected and cleared.
	UpdateInProgress bool      `json:"update_in_progress"`
	UpdateStartedAt  time.Time `json:"update_started_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an idle session ready for its first Run
func NewSession(symbol string, interval market.Interval, configs Configs) (*Session, error) {
	if err := configs.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		ID:               uuid.New().String(),
		Symbol:           symbol,
		Interval:         interval,
		State:            StateIdle,
		Configs:          configs,
		Portfolio:        NewPortfolio(configs.Neutral.InitialCapital),
		ActiveConfigName: configs.Neutral.Name,
		LastRegime:       regime.Neutral,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// BeginUpdate claims the session for an update pass. A flag older than
// staleAfter is treated as left over from a crashed updater and reclaimed.
func (s *Session) BeginUpdate(staleAfter time.Duration) error {
	if s.UpdateInProgress && time.Since(s.UpdateStartedAt) < staleAfter {
		return ErrUpdateInProgress
	}
	s.UpdateInProgress = true
	s.UpdateStartedAt = time.Now().UTC()
	return nil
}

// EndUpdate releases the update claim
func (s *Session) EndUpdate() {
	s.UpdateInProgress = false
	s.UpdateStartedAt = time.Time{}
}

// WinRate is the lifetime win rate over all closed trades
func (s *Session) WinRate() float64 {
	closed := 0
	wins := 0
	for _, t := range s.Trades {
		if t.Side == SideSell {
			closed++
			if t.PnL > 0 {
				wins++
			}
		}
	}
	if closed == 0 {
		return 0
	}
	return float64(wins) / float64(closed)
}

// ClosedPnLs returns realized PnLs of closed trades, oldest first
func (s *Session) ClosedPnLs() []float64 {
	var pnls []float64
	for _, t := range s.Trades {
		if t.Side == SideSell {
			pnls = append(pnls, t.PnL)
		}
	}
	return pnls
}

// SnapshotValues returns the per-bar total portfolio values, oldest first
func (s *Session) SnapshotValues() []float64 {
	values := make([]float64, len(s.Snapshots))
	for i, snap := range s.Snapshots {
		values[i] = snap.TotalValue
	}
	return values
}
