// Package regime classifies market state (bullish/bearish/neutral) from a
// candle series using a redundant multi-indicator composite: no single
// indicator failing can flip the regime on its own.
package regime

import (
	"fmt"
	"math"

	"regime-engine/internal/indicator"
	"regime-engine/internal/market"
)

// Regime is a classified market state
type Regime string

const (
	Bullish Regime = "bullish"
	Bearish Regime = "bearish"
	Neutral Regime = "neutral"
)

// Signal is the per-bar output of the detector
type Signal struct {
	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"` // [0,1]
	Trend      float64 `json:"trend"`      // [-1,1]
	Momentum   float64 `json:"momentum"`   // [-1,1]
	Volatility float64 `json:"volatility"` // [0,1]
	Strength   float64 `json:"strength"`   // mean |sub-signal|, [0,1]
}

// Config holds regime detection thresholds. The numeric defaults were tuned
// empirically; treat them as configuration, not algorithmic constants.
type Config struct {
	WarmupBars        int     `json:"warmup_bars"`
	RegimeThreshold   float64 `json:"regime_threshold"`   // |combined| above this is directional
	StrengthFloor     float64 `json:"strength_floor"`     // min mean sub-signal strength
	CrossSignificance float64 `json:"cross_significance"` // SMA50/200 separation for a significant cross
	CrossBoost        float64 `json:"cross_boost"`
	AgreementBoost    float64 `json:"agreement_boost"`
	VolatilityBars    int     `json:"volatility_bars"`
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() *Config {
	return &Config{
		WarmupBars:        50,
		RegimeThreshold:   0.05,
		StrengthFloor:     0.1,
		CrossSignificance: 0.02,
		CrossBoost:        1.3,
		AgreementBoost:    1.1,
		VolatilityBars:    20,
	}
}

// Detector computes regime signals over a session context
type Detector struct {
	config *Config
}

// NewDetector creates a regime detector
func NewDetector(config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{config: config}
}

// Detect classifies the regime at bar index i, using the context cache.
// Below the warm-up window it returns neutral with zero confidence; it never
// fails on insufficient data.
func (d *Detector) Detect(ctx *Context, i int) Signal {
	if sig, ok := ctx.cached(i); ok {
		return sig
	}

	sig := d.compute(ctx, i)
	ctx.store(i, sig)
	return sig
}

func (d *Detector) compute(ctx *Context, i int) Signal {
	if i < d.config.WarmupBars || i >= len(ctx.closes) {
		return Signal{Regime: Neutral}
	}

	price := ctx.closes[i]
	if price <= 0 {
		return Signal{Regime: Neutral}
	}

	var trend, momentum composite

	sma20 := ctx.SMA(20)[i]
	sma50 := ctx.SMA(50)[i]
	sma200 := ctx.SMA(200)[i]
	ema12 := ctx.EMA(12)[i]
	ema26 := ctx.EMA(26)[i]

	// Trend: price vs each SMA, long-term weighted heavier
	if indicator.Valid(sma20) {
		trend.add(relDeviation(price, sma20)*20, 1.0)
	}
	if indicator.Valid(sma50) {
		trend.add(relDeviation(price, sma50)*20, 1.0)
	}
	if indicator.Valid(sma200) {
		trend.add(relDeviation(price, sma200)*20, 1.5)
	}

	// Golden/death cross is the most reliable trend signal
	crossSpread := math.NaN()
	if indicator.Valid(sma50) && indicator.Valid(sma200) {
		crossSpread = relDeviation(sma50, sma200)
		trend.add(crossSpread*25, 2.0)
	}
	if indicator.Valid(sma20) && indicator.Valid(sma50) {
		trend.add(relDeviation(sma20, sma50)*25, 1.0)
	}
	if indicator.Valid(ema12) && indicator.Valid(ema26) {
		trend.add(relDeviation(ema12, ema26)*25, 1.0)
	}

	// Moving-average alignment bonus
	if indicator.Valid(sma20) && indicator.Valid(sma50) && indicator.Valid(sma200) {
		if price > sma20 && sma20 > sma50 && sma50 > sma200 {
			trend.add(1, 0.5)
		} else if price < sma20 && sma20 < sma50 && sma50 < sma200 {
			trend.add(-1, 0.5)
		}
	}

	// Momentum: MACD histogram weighted heaviest
	macd := ctx.MACD(12, 26, 9)
	if indicator.Valid(macd.Histogram[i]) {
		momentum.add(macd.Histogram[i]/price*400, 1.5)
	}
	if indicator.Valid(macd.Line[i]) && indicator.Valid(macd.Signal[i]) {
		// Discrete cross reads only count when the separation is material
		// relative to price, otherwise flat noise flips them at random.
		const minSeparation = 5e-4
		cross := 0.0
		if sep := (macd.Line[i] - macd.Signal[i]) / price; math.Abs(sep) > minSeparation {
			if sep > 0 {
				cross += 0.5
			} else {
				cross -= 0.5
			}
		}
		// Zero-line bonus
		if zl := macd.Line[i] / price; math.Abs(zl) > minSeparation {
			if zl > 0 {
				cross += 0.5
			} else {
				cross -= 0.5
			}
		}
		if cross != 0 {
			momentum.add(cross, 1.0)
		}
	}

	rsi := ctx.RSI(14)[i]
	if indicator.Valid(rsi) {
		momentum.add(rsiMomentum(rsi), 1.0)
	}

	mom20 := ctx.Momentum(20)[i]
	if indicator.Valid(mom20) {
		momentum.add(mom20*10, 1.0)
	}
	mom50 := ctx.Momentum(50)[i]
	if indicator.Valid(mom50) {
		momentum.add(mom50*5, 1.2)
	}

	trendScore := trend.score()
	momentumScore := momentum.score()
	strength := mergedStrength(trend, momentum)

	combined := 0.5*trendScore + 0.5*momentumScore

	sig := Signal{
		Regime:     Neutral,
		Trend:      trendScore,
		Momentum:   momentumScore,
		Volatility: d.volatility(ctx, i),
		Strength:   strength,
	}

	if combined > d.config.RegimeThreshold && strength > d.config.StrengthFloor {
		sig.Regime = Bullish
	} else if combined < -d.config.RegimeThreshold && strength > d.config.StrengthFloor {
		sig.Regime = Bearish
	}

	confidence := math.Min(1, math.Abs(combined)*0.7+strength*0.3)
	if !math.IsNaN(crossSpread) && math.Abs(crossSpread) > d.config.CrossSignificance {
		confidence *= d.config.CrossBoost
	}
	if trendScore*momentumScore > 0 {
		confidence *= d.config.AgreementBoost
	}
	sig.Confidence = math.Min(1, confidence)

	return sig
}

// volatility is the mean absolute bar-to-bar return over the lookback,
// scaled into [0,1]. Uses a shorter window when history is thin.
func (d *Detector) volatility(ctx *Context, i int) float64 {
	lookback := d.config.VolatilityBars
	if i < lookback {
		lookback = i
	}
	if lookback == 0 {
		return 0
	}

	sum := 0.0
	for j := i - lookback + 1; j <= i; j++ {
		prev := ctx.closes[j-1]
		if prev == 0 {
			continue
		}
		sum += math.Abs((ctx.closes[j] - prev) / prev)
	}
	mean := sum / float64(lookback)

	return math.Min(1, mean*50)
}

// rsiMomentum maps RSI into a bullish/bearish momentum scale. Overbought and
// oversold zones invert the signal: an overbought market reads as bearish
// momentum ahead.
func rsiMomentum(rsi float64) float64 {
	switch {
	case rsi >= 70:
		return clamp((70 - rsi) / 30)
	case rsi <= 30:
		return clamp((30 - rsi) / 30) // oversold reads bullish
	default:
		return clamp((rsi - 50) / 20)
	}
}

func relDeviation(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (a - b) / b
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// composite accumulates clamped, weighted sub-signals
type composite struct {
	sum     float64
	weights float64
	absSum  float64
	count   int
}

func (c *composite) add(value, weight float64) {
	v := clamp(value)
	c.sum += v * weight
	c.weights += weight
	c.absSum += math.Abs(v)
	c.count++
}

// score is the weight-normalized mean of the sub-signals
func (c *composite) score() float64 {
	if c.weights == 0 {
		return 0
	}
	return clamp(c.sum / c.weights)
}

func mergedStrength(parts ...composite) float64 {
	sum := 0.0
	count := 0
	for _, p := range parts {
		sum += p.absSum
		count += p.count
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Context is a session-scoped cache of indicator series and regime signals,
// keyed by bar index. Each session owns its own context so concurrent asset
// sessions never cross-contaminate.
type Context struct {
	candles []market.Candle
	closes  []float64

	series   map[string][]float64
	macdMemo map[string]*indicator.MACD
	signals  map[int]Signal
}

// NewContext creates a context over a candle series
func NewContext(candles []market.Candle) *Context {
	return &Context{
		candles:  candles,
		closes:   market.Closes(candles),
		series:   make(map[string][]float64),
		macdMemo: make(map[string]*indicator.MACD),
		signals:  make(map[int]Signal),
	}
}

// Candles returns the underlying series
func (c *Context) Candles() []market.Candle {
	return c.candles
}

// Update replaces the underlying series. An append-only extension keeps the
// per-bar signal cache; anything else clears everything.
func (c *Context) Update(candles []market.Candle) {
	appendOnly := market.IsExtensionOf(candles, c.candles)

	c.candles = candles
	c.closes = market.Closes(candles)
	c.series = make(map[string][]float64)
	c.macdMemo = make(map[string]*indicator.MACD)
	if !appendOnly {
		c.signals = make(map[int]Signal)
	}
}

// ATR returns the cached ATR series for the context's candles
func (c *Context) ATR(period int, emaSmoothed bool) []float64 {
	key := fmt.Sprintf("atr:%d:%t", period, emaSmoothed)
	if s, ok := c.series[key]; ok {
		return s
	}
	s := indicator.ATRSeries(c.candles, period, emaSmoothed)
	c.series[key] = s
	return s
}

func (c *Context) SMA(period int) []float64 {
	return c.memo("sma", period, func() []float64 { return indicator.SMASeries(c.closes, period) })
}

func (c *Context) EMA(period int) []float64 {
	return c.memo("ema", period, func() []float64 { return indicator.EMASeries(c.closes, period) })
}

func (c *Context) RSI(period int) []float64 {
	return c.memo("rsi", period, func() []float64 { return indicator.RSISeries(c.closes, period) })
}

func (c *Context) Momentum(period int) []float64 {
	return c.memo("mom", period, func() []float64 { return indicator.MomentumSeries(c.closes, period) })
}

// MACD returns the cached MACD series for the given periods
func (c *Context) MACD(fast, slow, signal int) *indicator.MACD {
	key := fmt.Sprintf("macd:%d:%d:%d", fast, slow, signal)
	if m, ok := c.macdMemo[key]; ok {
		return m
	}
	m := indicator.MACDSeries(c.closes, fast, slow, signal)
	c.macdMemo[key] = &m
	return &m
}

func (c *Context) memo(kind string, period int, compute func() []float64) []float64 {
	key := fmt.Sprintf("%s:%d", kind, period)
	if s, ok := c.series[key]; ok {
		return s
	}
	s := compute()
	c.series[key] = s
	return s
}

func (c *Context) cached(i int) (Signal, bool) {
	sig, ok := c.signals[i]
	return sig, ok
}

func (c *Context) store(i int, sig Signal) {
	c.signals[i] = sig
}
