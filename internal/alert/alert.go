// Package alert delivers structured engine alerts to pluggable sinks.
// Delivery is fire-and-forget: a failing sink never aborts or rolls back a
// simulation step.
package alert

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies the alert condition
type Type string

const (
	TypeDrawdownWarning Type = "drawdown_warning"
	TypeDrawdownBreach  Type = "drawdown_breach"
	TypeWinRateBlock    Type = "win_rate_block"
	TypeWinRateRecover  Type = "win_rate_recover"
	TypeNoTrade         Type = "no_trade"
	TypeAPIFailure      Type = "api_failure"
	TypeTradeClosed     Type = "trade_closed"
)

// Severity grades an alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a structured alert emitted by the engine
type Event struct {
	Type      Type                   `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink receives alert events. Implementations must not block the caller for
// long; the manager already decouples delivery from the hot path.
type Sink interface {
	Emit(event Event)
}

// Manager fans alerts out to multiple sinks
type Manager struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewManager creates an alert manager
func NewManager(sinks ...Sink) *Manager {
	return &Manager{sinks: sinks}
}

// AddSink registers an additional sink
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Emit delivers the event to every sink
func (m *Manager) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()

	for _, s := range sinks {
		s.Emit(event)
	}
}

// LogSink writes alerts to a zerolog logger
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a logging sink
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger.With().Str("component", "alert").Logger()}
}

// Emit logs the alert at a level matching its severity
func (s *LogSink) Emit(event Event) {
	var e *zerolog.Event
	switch event.Severity {
	case SeverityCritical:
		e = s.log.Error()
	case SeverityWarning:
		e = s.log.Warn()
	default:
		e = s.log.Info()
	}
	e.Str("alert_type", string(event.Type)).
		Fields(event.Context).
		Msg(event.Message)
}

// CaptureSink records alerts in memory for tests
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureSink creates a capturing sink
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Emit records the event
func (s *CaptureSink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything captured so far
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns captured events of one type
func (s *CaptureSink) ByType(t Type) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
