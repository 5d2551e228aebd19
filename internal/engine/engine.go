// Package engine runs the adaptive simulation loop: per bar it trails stops,
// detects the market regime, selects a strategy personality, generates a
// signal, and executes against the session's virtual portfolio. The loop is
// deterministic and does no I/O; persistence and transport live elsewhere.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"regime-engine/internal/alert"
	"regime-engine/internal/circuit"
	"regime-engine/internal/events"
	"regime-engine/internal/indicator"
	"regime-engine/internal/market"
	"regime-engine/internal/regime"
	"regime-engine/internal/risk"
	"regime-engine/internal/strategy"
)

const (
	// DefaultSafetyCap bounds any single entry to this fraction of the quote
	// balance, regardless of what the sizing pipeline produces.
	DefaultSafetyCap = 0.95

	// minTradeFraction of initial capital below which an entry is skipped
	// instead of executed as dust.
	minTradeFraction = 0.001

	// noTradeAlertBars of consecutive inactivity before a no-trade alert
	noTradeAlertBars = 100
)

// Options wires the tunable sub-components of an engine. Nil fields fall
// back to defaults.
type Options struct {
	Regime    *regime.Config
	Selector  *strategy.SelectorConfig
	Kelly     *risk.KellyConfig
	Stop      *risk.StopConfig
	Metrics   *risk.MetricsConfig
	Breaker   *circuit.Config
	SafetyCap float64
}

// Engine drives one session over a candle series. It is not safe for
// concurrent use; callers serialize access per session.
type Engine struct {
	session *Session
	mktCtx  *regime.Context

	detector  *regime.Detector
	selector  *strategy.Selector
	generator *strategy.Generator
	kelly     *risk.KellySizer
	stops     *risk.StopManager
	metrics   *risk.MetricsConfig
	breaker   *circuit.Breaker

	alerts *alert.Manager
	bus    *events.EventBus
	log    zerolog.Logger

	positions      []*Position // open positions, FIFO order
	closedPnLs     []float64
	snapshotValues []float64
	safetyCap      float64
}

// New builds an engine for the session over the given candles. For a resumed
// session the candles must extend the series the session was built on; the
// engine restores the selector window, breaker state, and open positions from
// the session.
func New(session *Session, candles []market.Candle, opts Options, alerts *alert.Manager, bus *events.EventBus, logger zerolog.Logger) (*Engine, error) {
	if session == nil {
		return nil, fmt.Errorf("engine: nil session")
	}
	if err := session.Configs.Validate(); err != nil {
		return nil, err
	}
	if err := market.ValidateSeries(candles, session.Interval); err != nil {
		return nil, err
	}
	if session.NextBar > len(candles) {
		return nil, fmt.Errorf("engine: session resumes at bar %d but only %d candles given", session.NextBar, len(candles))
	}

	log := logger.With().
		Str("component", "engine").
		Str("session_id", session.ID).
		Str("symbol", session.Symbol).
		Logger()

	safetyCap := opts.SafetyCap
	if safetyCap <= 0 || safetyCap > 1 {
		safetyCap = DefaultSafetyCap
	}

	selector := strategy.NewSelector(opts.Selector, session.Configs.Bullish, session.Configs.Bearish, session.Configs.Neutral, log)
	selector.Restore(session.RegimeWindow, session.ActiveConfigName)

	breaker := circuit.NewBreaker(opts.Breaker, alerts, log)
	breaker.Restore(session.BreakerState, session.BreakerReason)

	e := &Engine{
		session:   session,
		mktCtx:    regime.NewContext(candles),
		detector:  regime.NewDetector(opts.Regime),
		selector:  selector,
		generator: strategy.NewGenerator(),
		kelly:     risk.NewKellySizer(opts.Kelly),
		stops:     risk.NewStopManager(opts.Stop),
		metrics:   opts.Metrics,
		breaker:   breaker,
		alerts:    alerts,
		bus:       bus,
		log:       log,
		safetyCap: safetyCap,
	}

	for i := range session.OpenPositions {
		pos := session.OpenPositions[i]
		e.positions = append(e.positions, &pos)
	}
	e.closedPnLs = session.ClosedPnLs()
	e.snapshotValues = session.SnapshotValues()

	return e, nil
}

// Session returns the session the engine drives
func (e *Engine) Session() *Session {
	return e.session
}

// ExtendSeries appends newer candles for a live session. The new series must
// be an append-only extension of the current one.
func (e *Engine) ExtendSeries(candles []market.Candle) error {
	if err := market.ValidateSeries(candles, e.session.Interval); err != nil {
		return err
	}
	if !market.IsExtensionOf(candles, e.mktCtx.Candles()) {
		return fmt.Errorf("engine: candle series is not an extension of the session's series")
	}
	e.mktCtx.Update(candles)
	return nil
}

// Run processes all remaining bars, checking for cancellation between bars.
// A cancelled run leaves the session resumable at the bar it stopped before.
func (e *Engine) Run(ctx context.Context) error {
	candles := e.mktCtx.Candles()
	if e.session.State == StateIdle {
		e.session.State = StateRunning
		e.publish(events.EventSessionStarted, map[string]interface{}{"bars": len(candles)})
	}

	for i := e.session.NextBar; i < len(candles); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.Step(i)
	}

	e.finish(candles)
	return nil
}

// Step processes one bar. Bars must be processed in order; i must equal the
// session's NextBar.
func (e *Engine) Step(i int) {
	candles := e.mktCtx.Candles()
	candle := candles[i]
	price := candle.Close

	atrSeries := e.mktCtx.ATR(e.stops.Config().ATRPeriod, e.stops.Config().EMASmoothed)
	atr := atrSeries[i]

	// Stops first: trail against the new bar and collect fills before any
	// entry decision can touch the balance.
	stopped := e.trailAndCollect(price, atr)

	regSig := e.detector.Detect(e.mktCtx, i)
	if regSig.Regime != e.session.LastRegime {
		e.publishRegimeChange(e.session.LastRegime, regSig)
		e.session.LastRegime = regSig.Regime
	}

	cfg, momentumConfirmed := e.selector.Select(regSig)
	sig := e.generator.Evaluate(e.mktCtx, cfg, i)
	sig.MomentumConfirmed = momentumConfirmed

	for _, pos := range stopped {
		e.closePosition(pos, candle, i, sig, regSig, ReasonStopLoss)
	}

	traded := len(stopped) > 0
	switch sig.Action {
	case strategy.ActionSell:
		for len(e.positions) > 0 {
			pos := e.positions[0]
			e.closePosition(pos, candle, i, sig, regSig, ReasonSignal)
			traded = true
		}
	case strategy.ActionBuy:
		if e.openPosition(candle, i, sig, regSig, atr) {
			traded = true
		}
	}

	e.snapshot(candle, i, price)
	e.recomputeRisk()
	e.syncPositions()

	if traded {
		e.session.BarsSinceTrade = 0
	} else {
		e.session.BarsSinceTrade++
		if e.session.BarsSinceTrade == noTradeAlertBars {
			e.emitAlert(alert.Event{
				Type:     alert.TypeNoTrade,
				Severity: alert.SeverityInfo,
				Message:  fmt.Sprintf("no trades for %d bars", noTradeAlertBars),
				Context:  map[string]interface{}{"session_id": e.session.ID, "bar": i},
			})
		}
	}

	e.session.RegimeWindow = e.selector.Window()
	e.session.ActiveConfigName = e.selector.Active().Name
	e.session.NextBar = i + 1
	e.session.UpdatedAt = candleTime(candle)
}

// trailAndCollect trails every open stop and returns positions whose stop
// fired at this bar's close, FIFO order. Triggered positions are removed
// from the open set; the caller realizes the exits.
func (e *Engine) trailAndCollect(price, atr float64) []*Position {
	var triggered []*Position
	remaining := e.positions[:0]

	for _, pos := range e.positions {
		if pos.Trailing && indicator.Valid(atr) {
			pos.StopPrice = e.stops.Trail(pos.StopPrice, price, atr)
		}
		if pos.StopPrice > 0 && e.stops.Triggered(price, pos.StopPrice) {
			triggered = append(triggered, pos)
		} else {
			remaining = append(remaining, pos)
		}
	}
	e.positions = remaining
	return triggered
}

// openPosition sizes and executes a buy entry. Returns false when the entry
// was vetoed or sized to nothing.
func (e *Engine) openPosition(candle market.Candle, i int, sig strategy.Signal, regSig regime.Signal, atr float64) bool {
	if ok, reason := e.breaker.CanEnter(); !ok {
		e.log.Debug().Str("reason", reason).Int("bar", i).Msg("entry vetoed by circuit breaker")
		return false
	}

	price := candle.Close
	confMult := regime.Multiplier(regSig, sig.Strength)
	kellyFrac := e.kelly.PositionFraction(e.closedPnLs, sig.Config.MaxPositionPct)

	fraction := confMult * sig.SizeMultiplier * kellyFrac
	spend := e.session.Portfolio.QuoteBalance * fraction

	maxSpend := e.session.Portfolio.QuoteBalance * e.safetyCap
	if spend > maxSpend {
		spend = maxSpend
	}
	if spend < e.session.Portfolio.InitialCapital*minTradeFraction {
		return false
	}

	assetAmount := e.session.Portfolio.buy(spend, price)

	trade := Trade{
		ID:             uuid.New().String(),
		Side:           SideBuy,
		Timestamp:      candle.CloseTime,
		BarIndex:       i,
		Price:          price,
		AssetAmount:    assetAmount,
		QuoteAmount:    spend,
		SignalStrength: sig.Strength,
		Confidence:     regSig.Confidence,
		ConfigName:     sig.ConfigName,
		PortfolioValue: e.session.Portfolio.TotalValue(price),
	}
	e.session.Trades = append(e.session.Trades, trade)

	stop := 0.0
	trailing := false
	if indicator.Valid(atr) {
		stop = e.stops.InitialStop(price, atr)
		trailing = e.stops.Config().TrailingEnabled
	}
	e.positions = append(e.positions, &Position{
		TradeID:     trade.ID,
		EntryPrice:  price,
		EntryATR:    atr,
		StopPrice:   stop,
		Trailing:    trailing,
		AssetAmount: assetAmount,
		CostBasis:   spend,
	})

	e.log.Info().
		Int("bar", i).
		Float64("price", price).
		Float64("quote", spend).
		Str("config", sig.ConfigName).
		Msg("opened position")
	if e.bus != nil {
		e.bus.PublishTradeOpened(e.session.ID, e.session.Symbol, price, spend)
	}
	return true
}

// closePosition realizes one exit. Each closed position produces exactly one
// sell trade matched back to its opening buy.
func (e *Engine) closePosition(pos *Position, candle market.Candle, i int, sig strategy.Signal, regSig regime.Signal, reason string) {
	price := candle.Close
	proceeds := pos.AssetAmount * price
	pnl := proceeds - pos.CostBasis

	e.session.Portfolio.sell(pos.AssetAmount, price, pnl)
	e.closedPnLs = append(e.closedPnLs, pnl)

	trade := Trade{
		ID:             uuid.New().String(),
		Side:           SideSell,
		Timestamp:      candle.CloseTime,
		BarIndex:       i,
		Price:          price,
		AssetAmount:    pos.AssetAmount,
		QuoteAmount:    proceeds,
		SignalStrength: sig.Strength,
		Confidence:     regSig.Confidence,
		ConfigName:     sig.ConfigName,
		PortfolioValue: e.session.Portfolio.TotalValue(price),
		PnL:            pnl,
		MatchedBuyID:   pos.TradeID,
		ExitReason:     reason,
	}
	e.session.Trades = append(e.session.Trades, trade)

	// Remove from the open set if still present (signal exits pass
	// positions that trailAndCollect has not already removed).
	for idx, p := range e.positions {
		if p == pos {
			e.positions = append(e.positions[:idx], e.positions[idx+1:]...)
			break
		}
	}

	e.log.Info().
		Int("bar", i).
		Float64("price", price).
		Float64("pnl", pnl).
		Str("reason", reason).
		Msg("closed position")
	if e.bus != nil {
		e.bus.PublishTradeClosed(e.session.ID, e.session.Symbol, price, pnl, reason)
		if reason == ReasonStopLoss {
			e.bus.Publish(events.Event{
				Type: events.EventStopTriggered,
				Data: map[string]interface{}{
					"session_id": e.session.ID,
					"price":      price,
					"stop":       pos.StopPrice,
				},
			})
		}
	}
	e.emitAlert(alert.Event{
		Type:     alert.TypeTradeClosed,
		Severity: alert.SeverityInfo,
		Message:  fmt.Sprintf("closed %s position, pnl %.4f (%s)", e.session.Symbol, pnl, reason),
		Context:  map[string]interface{}{"session_id": e.session.ID, "pnl": pnl, "reason": reason},
	})
}

func (e *Engine) snapshot(candle market.Candle, i int, price float64) {
	total := e.session.Portfolio.TotalValue(price)
	e.session.Snapshots = append(e.session.Snapshots, Snapshot{
		BarIndex:     i,
		Timestamp:    candle.CloseTime,
		Price:        price,
		QuoteBalance: e.session.Portfolio.QuoteBalance,
		AssetBalance: e.session.Portfolio.AssetBalance,
		TotalValue:   total,
	})
	e.snapshotValues = append(e.snapshotValues, total)
}

// recomputeRisk refreshes metrics and lets the breaker observe them. Breaker
// state projects onto the session: any open breaker pauses the session for
// entries while exits keep running.
func (e *Engine) recomputeRisk() {
	e.session.Metrics = risk.Compute(e.metrics, e.snapshotValues, e.closedPnLs, e.session.Portfolio.InitialCapital)
	e.breaker.Observe(e.session.Metrics.RollingWinRate, e.session.Metrics.RollingSample, e.session.Metrics.MaxDrawdown)

	prevState := e.session.BreakerState
	e.session.BreakerState = e.breaker.GetState()
	e.session.BreakerReason = e.breaker.Reason()

	if e.session.BreakerState != prevState && e.bus != nil {
		e.bus.PublishBreakerUpdate(e.session.ID, string(e.session.BreakerState), e.session.BreakerReason)
	}

	if e.session.State == StateCompleted {
		return
	}
	if e.session.BreakerState != circuit.StateClosed {
		e.session.State = StatePaused
		e.session.PausedReason = e.session.BreakerReason
	} else if e.session.State == StatePaused {
		e.session.State = StateRunning
		e.session.PausedReason = ""
		e.publish(events.EventSessionResumed, nil)
	}
}

func (e *Engine) syncPositions() {
	e.session.OpenPositions = e.session.OpenPositions[:0]
	for _, pos := range e.positions {
		e.session.OpenPositions = append(e.session.OpenPositions, *pos)
	}
}

// finish marks the session completed once every bar has been processed.
// Open positions stay open; a completed backtest reports them at their last
// marked value.
func (e *Engine) finish(candles []market.Candle) {
	if e.session.NextBar < len(candles) {
		return
	}
	e.session.State = StateCompleted
	e.session.PausedReason = ""
	e.publish(events.EventSessionCompleted, map[string]interface{}{
		"trades":       e.session.Portfolio.TradeCount,
		"total_return": e.session.Metrics.TotalReturn,
	})
	e.log.Info().
		Int("trades", e.session.Portfolio.TradeCount).
		Float64("total_return", e.session.Metrics.TotalReturn).
		Float64("max_drawdown", e.session.Metrics.MaxDrawdown).
		Msg("session completed")
}

func (e *Engine) publish(t events.EventType, data map[string]interface{}) {
	if e.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["session_id"] = e.session.ID
	e.bus.Publish(events.Event{Type: t, Data: data})
}

func (e *Engine) publishRegimeChange(from regime.Regime, sig regime.Signal) {
	e.log.Info().
		Str("from", string(from)).
		Str("to", string(sig.Regime)).
		Float64("confidence", sig.Confidence).
		Msg("regime change")
	if e.bus != nil {
		e.bus.PublishRegimeChanged(e.session.ID, string(from), string(sig.Regime), sig.Confidence)
	}
}

func (e *Engine) emitAlert(event alert.Event) {
	if e.alerts != nil {
		e.alerts.Emit(event)
	}
}

func candleTime(c market.Candle) time.Time {
	return time.UnixMilli(c.CloseTime).UTC()
}
