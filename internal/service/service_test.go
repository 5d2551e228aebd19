package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"regime-engine/internal/alert"
	"regime-engine/internal/engine"
	"regime-engine/internal/events"
	"regime-engine/internal/market"
	"regime-engine/internal/store"
)

// stubSource serves a fixed candle series so advances see a stable,
// append-only view of history.
type stubSource struct {
	candles []market.Candle
	err     error
}

func (s *stubSource) Klines(_ context.Context, _ string, _ market.Interval, limit int) ([]market.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > len(s.candles) {
		limit = len(s.candles)
	}
	return s.candles[:limit], nil
}

func trendingCandles(n int, start, perBar float64) []market.Candle {
	stepMs := market.Interval1h.Duration().Milliseconds()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime:  base + int64(i)*stepMs,
			Open:      price,
			High:      price * 1.004,
			Low:       price * 0.996,
			Close:     price,
			Volume:    1000,
			CloseTime: base + int64(i+1)*stepMs - 1,
		}
		price *= 1 + perBar
	}
	return candles
}

func newTestService(source market.Source, sessions store.SessionStore, locker store.UpdateLocker) (*Service, *alert.CaptureSink) {
	sink := alert.NewCaptureSink()
	svc := New(source, sessions, locker, Options{}, alert.NewManager(sink), events.NewEventBus(), zerolog.Nop())
	return svc, sink
}

func TestRunBacktestCompletesAndPersists(t *testing.T) {
	candles := trendingCandles(150, 100, 0.01)
	sessions := store.NewMemoryStore()
	svc, _ := newTestService(&stubSource{candles: candles}, sessions, nil)
	ctx := context.Background()

	session, err := svc.RunBacktest(ctx, BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
		Limit:    150,
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if session.State != engine.StateCompleted {
		t.Fatalf("session state %s, want completed", session.State)
	}
	if session.NextBar != len(candles) {
		t.Fatalf("resume point %d, want %d", session.NextBar, len(candles))
	}
	if len(session.Snapshots) != len(candles) {
		t.Fatalf("%d snapshots for %d bars", len(session.Snapshots), len(candles))
	}

	persisted, err := sessions.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("session was not persisted: %v", err)
	}
	if persisted.NextBar != session.NextBar {
		t.Fatal("persisted session diverges from the returned one")
	}
}

func TestRunBacktestUsesConfiguredDefaults(t *testing.T) {
	candles := trendingCandles(150, 100, 0.005)
	sessions := store.NewMemoryStore()
	sink := alert.NewCaptureSink()
	svc := New(&stubSource{candles: candles}, sessions, nil, Options{
		InitialCapital: 25000,
		DefaultLimit:   60,
	}, alert.NewManager(sink), events.NewEventBus(), zerolog.Nop())

	// Request omits limit and capital: the configured defaults apply
	session, err := svc.RunBacktest(context.Background(), BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if session.Portfolio.InitialCapital != 25000 {
		t.Fatalf("initial capital %v, want the configured 25000", session.Portfolio.InitialCapital)
	}
	if len(session.Snapshots) != 60 {
		t.Fatalf("%d snapshots, want the configured default limit of 60", len(session.Snapshots))
	}

	// Explicit request values still win over the configured defaults
	session, err = svc.RunBacktest(context.Background(), BacktestRequest{
		Symbol:         "TESTUSDT",
		Interval:       market.Interval1h,
		Limit:          80,
		InitialCapital: 5000,
	})
	if err != nil {
		t.Fatalf("RunBacktest with explicit values: %v", err)
	}
	if session.Portfolio.InitialCapital != 5000 || len(session.Snapshots) != 80 {
		t.Fatalf("explicit request values were overridden: capital %v, %d snapshots",
			session.Portfolio.InitialCapital, len(session.Snapshots))
	}
}

func TestRunBacktestFetchFailureEmitsAlert(t *testing.T) {
	svc, sink := newTestService(&stubSource{err: errors.New("exchange down")}, store.NewMemoryStore(), nil)

	_, err := svc.RunBacktest(context.Background(), BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
	})
	if err == nil {
		t.Fatal("expected an error when the source fails")
	}
	if len(sink.ByType(alert.TypeAPIFailure)) != 1 {
		t.Fatal("fetch failure should emit an api_failure alert")
	}
}

func TestAdvanceProcessesNewBars(t *testing.T) {
	candles := trendingCandles(150, 100, 0.01)
	sessions := store.NewMemoryStore()
	svc, _ := newTestService(&stubSource{candles: candles}, sessions, nil)
	ctx := context.Background()

	session, err := svc.RunBacktest(ctx, BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
		Limit:    80,
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}
	if session.NextBar != 80 {
		t.Fatalf("resume point %d after partial run, want 80", session.NextBar)
	}

	advanced, err := svc.Advance(ctx, session.ID, 150)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if advanced.NextBar != 150 {
		t.Fatalf("resume point %d after advance, want 150", advanced.NextBar)
	}
	if advanced.State != engine.StateCompleted {
		t.Fatalf("advanced session state %s, want completed", advanced.State)
	}
	if len(advanced.Snapshots) != 150 {
		t.Fatalf("%d snapshots after advance, want 150", len(advanced.Snapshots))
	}
}

func TestAdvanceWithoutNewBarsIsANoop(t *testing.T) {
	candles := trendingCandles(100, 100, 0.005)
	sessions := store.NewMemoryStore()
	svc, _ := newTestService(&stubSource{candles: candles}, sessions, nil)
	ctx := context.Background()

	session, err := svc.RunBacktest(ctx, BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
		Limit:    100,
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}

	advanced, err := svc.Advance(ctx, session.ID, 100)
	if err != nil {
		t.Fatalf("Advance with no new bars: %v", err)
	}
	if advanced.NextBar != 100 {
		t.Fatal("noop advance must not move the resume point")
	}
}

func TestAdvanceRejectsConcurrentUpdates(t *testing.T) {
	candles := trendingCandles(100, 100, 0.005)
	sessions := store.NewMemoryStore()
	locker := store.NewLocalLocker(time.Minute)
	svc, _ := newTestService(&stubSource{candles: candles}, sessions, locker)
	ctx := context.Background()

	session, err := svc.RunBacktest(ctx, BacktestRequest{
		Symbol:   "TESTUSDT",
		Interval: market.Interval1h,
		Limit:    80,
	})
	if err != nil {
		t.Fatalf("RunBacktest: %v", err)
	}

	// Simulate another process holding the update lock
	if ok, _ := locker.Acquire(ctx, session.ID); !ok {
		t.Fatal("could not pre-acquire the lock")
	}
	if _, err := svc.Advance(ctx, session.ID, 100); !errors.Is(err, ErrLocked) {
		t.Fatalf("Advance under contention: %v, want ErrLocked", err)
	}

	// Released lock clears the way
	if err := locker.Release(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(ctx, session.ID, 100); err != nil {
		t.Fatalf("Advance after release: %v", err)
	}
}

func TestAdvanceUnknownSession(t *testing.T) {
	svc, _ := newTestService(&stubSource{candles: trendingCandles(10, 100, 0)}, store.NewMemoryStore(), nil)

	_, err := svc.Advance(context.Background(), "missing", 100)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Advance on unknown session: %v, want ErrNotFound", err)
	}
}
