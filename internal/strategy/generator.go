package strategy

import (
	"math"

	"regime-engine/internal/indicator"
	"regime-engine/internal/regime"
)

// Action classifies a trading signal
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is the per-bar output of the generator for the active config
type Signal struct {
	Action            Action  `json:"action"`
	Strength          float64 `json:"strength"` // [-1,1]
	SizeMultiplier    float64 `json:"size_multiplier"`
	Config            *Config `json:"-"`
	ConfigName        string  `json:"config"`
	MomentumConfirmed bool    `json:"momentum_confirmed"`
}

// Generator scores a candle series against a strategy config
type Generator struct{}

// NewGenerator creates a signal generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Evaluate computes the weighted composite signal for config cfg at bar i and
// classifies it against the config's thresholds. Indicators still inside
// their warm-up window contribute nothing; with no valid indicator at all the
// result is a hold.
func (g *Generator) Evaluate(ctx *regime.Context, cfg *Config, i int) Signal {
	sig := Signal{
		Action:         ActionHold,
		Config:         cfg,
		ConfigName:     cfg.Name,
		SizeMultiplier: 0,
	}
	if i < 0 || i >= len(ctx.Candles()) {
		return sig
	}

	price := ctx.Candles()[i].Close
	if price <= 0 {
		return sig
	}

	weightedSum := 0.0
	weightTotal := 0.0
	for _, ind := range cfg.Indicators {
		score, ok := g.score(ctx, ind, i, price)
		if !ok {
			continue
		}
		weightedSum += score * ind.Weight
		weightTotal += ind.Weight
	}
	if weightTotal == 0 {
		return sig
	}

	strength := clampSignal(weightedSum / weightTotal)
	sig.Strength = strength

	switch {
	case strength > cfg.BuyThreshold:
		sig.Action = ActionBuy
	case strength < cfg.SellThreshold:
		sig.Action = ActionSell
	}

	// Size multiplier grows with signal magnitude; distinct from the
	// regime-confidence multiplier applied later.
	if sig.Action != ActionHold {
		sig.SizeMultiplier = math.Min(1, 0.25+math.Abs(strength)*1.5)
	}

	return sig
}

// score normalizes one configured indicator's read at bar i into [-1,1].
// Returns ok=false while the indicator is inside its warm-up window.
func (g *Generator) score(ctx *regime.Context, ind WeightedIndicator, i int, price float64) (float64, bool) {
	switch ind.Kind {
	case KindSMA:
		v := ctx.SMA(ind.Period)[i]
		if !indicator.Valid(v) || v == 0 {
			return 0, false
		}
		return clampSignal((price - v) / v * 20), true

	case KindEMA:
		v := ctx.EMA(ind.Period)[i]
		if !indicator.Valid(v) || v == 0 {
			return 0, false
		}
		return clampSignal((price - v) / v * 20), true

	case KindRSI:
		v := ctx.RSI(ind.Period)[i]
		if !indicator.Valid(v) {
			return 0, false
		}
		// Mean-reversion read: oversold scores positive, overbought negative
		return clampSignal((50 - v) / 25), true

	case KindMACD:
		fast, slow, signalPeriod := ind.MACDPeriods()
		m := ctx.MACD(fast, slow, signalPeriod)
		if !indicator.Valid(m.Histogram[i]) {
			return 0, false
		}
		return clampSignal(m.Histogram[i] / price * 400), true

	case KindMomentum:
		v := ctx.Momentum(ind.Period)[i]
		if !indicator.Valid(v) {
			return 0, false
		}
		return clampSignal(v * 10), true

	case KindATR:
		v := ctx.ATR(ind.Period, false)[i]
		if !indicator.Valid(v) || price == 0 {
			return 0, false
		}
		// High volatility dampens the composite toward hold/sell
		return clampSignal(-((v / price * 50) - 0.5)), true
	}

	return 0, false
}

func clampSignal(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
