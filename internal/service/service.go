// Package service orchestrates the pieces the engine deliberately keeps out
// of its loop: fetching candles, claiming the update lock, running the
// engine, and persisting the result.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"regime-engine/internal/alert"
	"regime-engine/internal/circuit"
	"regime-engine/internal/engine"
	"regime-engine/internal/events"
	"regime-engine/internal/market"
	"regime-engine/internal/regime"
	"regime-engine/internal/risk"
	"regime-engine/internal/store"
	"regime-engine/internal/strategy"
)

// ErrLocked is returned when another process is already updating a session
var ErrLocked = fmt.Errorf("session is locked by another update")

const updateStaleAfter = 5 * time.Minute

// Options bundles the engine tunables the service passes through, plus the
// request defaults applied when a backtest omits them.
type Options struct {
	Regime    *regime.Config
	Selector  *strategy.SelectorConfig
	Kelly     *risk.KellyConfig
	Stop      *risk.StopConfig
	Metrics   *risk.MetricsConfig
	Breaker   *circuit.Config
	SafetyCap float64

	InitialCapital float64 // default capital for requests that omit it
	DefaultLimit   int     // default candle count for requests that omit it
}

func (o Options) engineOptions() engine.Options {
	return engine.Options{
		Regime:    o.Regime,
		Selector:  o.Selector,
		Kelly:     o.Kelly,
		Stop:      o.Stop,
		Metrics:   o.Metrics,
		Breaker:   o.Breaker,
		SafetyCap: o.SafetyCap,
	}
}

// Service runs and advances sessions
type Service struct {
	source market.Source
	store  store.SessionStore
	locker store.UpdateLocker
	opts   Options
	alerts *alert.Manager
	bus    *events.EventBus
	log    zerolog.Logger
}

// New creates the orchestration service
func New(source market.Source, sessions store.SessionStore, locker store.UpdateLocker, opts Options, alerts *alert.Manager, bus *events.EventBus, logger zerolog.Logger) *Service {
	if locker == nil {
		locker = store.NewLocalLocker(updateStaleAfter)
	}
	return &Service{
		source: source,
		store:  sessions,
		locker: locker,
		opts:   opts,
		alerts: alerts,
		bus:    bus,
		log:    logger.With().Str("component", "service").Logger(),
	}
}

// BacktestRequest describes one backtest run
type BacktestRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Interval       market.Interval `json:"interval" binding:"required"`
	Limit          int             `json:"limit"`
	InitialCapital float64         `json:"initial_capital"`
}

// RunBacktest fetches candles, runs a full session over them, and persists
// the completed session.
func (s *Service) RunBacktest(ctx context.Context, req BacktestRequest) (*engine.Session, error) {
	if req.Limit <= 0 {
		req.Limit = s.opts.DefaultLimit
	}
	if req.Limit <= 0 {
		req.Limit = 500
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = s.opts.InitialCapital
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 10000
	}

	candles, err := s.source.Klines(ctx, req.Symbol, req.Interval, req.Limit)
	if err != nil {
		s.emitAPIFailure(req.Symbol, err)
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", req.Symbol, err)
	}

	session, err := engine.NewSession(req.Symbol, req.Interval, engine.DefaultConfigs(req.InitialCapital))
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(session, candles, s.opts.engineOptions(), s.alerts, s.bus, s.log)
	if err != nil {
		return nil, err
	}
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return session, nil
}

// Advance fetches the latest candles for a persisted session and processes
// any bars newer than its resume point. Concurrent advances on the same
// session are rejected.
func (s *Service) Advance(ctx context.Context, sessionID string, limit int) (*engine.Session, error) {
	ok, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	defer func() {
		if err := s.locker.Release(ctx, sessionID); err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to release update lock")
		}
	}()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.BeginUpdate(updateStaleAfter); err != nil {
		return nil, err
	}
	defer session.EndUpdate()

	if limit <= 0 {
		limit = session.NextBar + 500
	}
	candles, err := s.source.Klines(ctx, session.Symbol, session.Interval, limit)
	if err != nil {
		s.emitAPIFailure(session.Symbol, err)
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", session.Symbol, err)
	}
	if len(candles) <= session.NextBar {
		return session, nil
	}

	// New bars arrived after completion: reopen the session
	if session.State == engine.StateCompleted {
		session.State = engine.StateRunning
	}

	eng, err := engine.New(session, candles, s.opts.engineOptions(), s.alerts, s.bus, s.log)
	if err != nil {
		return nil, err
	}
	if err := eng.Run(ctx); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return session, nil
}

// Get loads a session
func (s *Service) Get(ctx context.Context, id string) (*engine.Session, error) {
	return s.store.Get(ctx, id)
}

// List returns all sessions
func (s *Service) List(ctx context.Context) ([]*engine.Session, error) {
	return s.store.List(ctx)
}

// Delete removes a session
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) emitAPIFailure(symbol string, err error) {
	if s.alerts == nil {
		return
	}
	s.alerts.Emit(alert.Event{
		Type:     alert.TypeAPIFailure,
		Severity: alert.SeverityWarning,
		Message:  fmt.Sprintf("market data fetch failed for %s", symbol),
		Context:  map[string]interface{}{"error": err.Error()},
	})
}
