package engine

// TradeSide is the direction of an executed trade
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Exit reasons recorded on sell trades
const (
	ReasonSignal     = "signal"
	ReasonStopLoss   = "stop_loss"
	ReasonSessionEnd = "session_end"
)

// Trade is one executed trade. Trades are append-only: never mutated after
// creation.
type Trade struct {
	ID             string    `json:"id"`
	Side           TradeSide `json:"side"`
	Timestamp      int64     `json:"timestamp"` // bar close time, ms epoch
	BarIndex       int       `json:"bar_index"`
	Price          float64   `json:"price"`
	AssetAmount    float64   `json:"asset_amount"`
	QuoteAmount    float64   `json:"quote_amount"`
	SignalStrength float64   `json:"signal_strength"`
	Confidence     float64   `json:"confidence"`
	ConfigName     string    `json:"config_name"`
	PortfolioValue float64   `json:"portfolio_value"` // total value after execution

	// Sell-only fields
	PnL          float64 `json:"pnl,omitempty"`
	MatchedBuyID string  `json:"matched_buy_id,omitempty"`
	ExitReason   string  `json:"exit_reason,omitempty"`
}

// Position is an open long position between a buy and its matching close.
// Positions are owned exclusively by the engine for the session's lifetime.
type Position struct {
	TradeID     string  `json:"trade_id"`
	EntryPrice  float64 `json:"entry_price"`
	EntryATR    float64 `json:"entry_atr"`
	StopPrice   float64 `json:"stop_price"` // 0 disables the stop
	Trailing    bool    `json:"trailing"`
	AssetAmount float64 `json:"asset_amount"`
	CostBasis   float64 `json:"cost_basis"` // quote spent on entry
}

// Snapshot is the portfolio state recorded once per processed bar
type Snapshot struct {
	BarIndex     int     `json:"bar_index"`
	Timestamp    int64   `json:"timestamp"`
	Price        float64 `json:"price"`
	QuoteBalance float64 `json:"quote_balance"`
	AssetBalance float64 `json:"asset_balance"`
	TotalValue   float64 `json:"total_value"`
}

// Portfolio tracks the session's balances. Mutated only by the engine, once
// per executed trade.
type Portfolio struct {
	QuoteBalance   float64 `json:"quote_balance"`
	AssetBalance   float64 `json:"asset_balance"`
	InitialCapital float64 `json:"initial_capital"`
	TradeCount     int     `json:"trade_count"`
	WinCount       int     `json:"win_count"`
}

// NewPortfolio creates a portfolio holding only quote currency
func NewPortfolio(initialCapital float64) Portfolio {
	return Portfolio{
		QuoteBalance:   initialCapital,
		InitialCapital: initialCapital,
	}
}

// TotalValue is the portfolio identity: quote balance plus asset balance at
// the given price.
func (p *Portfolio) TotalValue(price float64) float64 {
	return p.QuoteBalance + p.AssetBalance*price
}

// buy moves quote into asset at the given price
func (p *Portfolio) buy(quoteAmount, price float64) float64 {
	assetAmount := quoteAmount / price
	p.QuoteBalance -= quoteAmount
	p.AssetBalance += assetAmount
	p.TradeCount++
	return assetAmount
}

// sell moves asset back into quote at the given price, returning proceeds
func (p *Portfolio) sell(assetAmount, price float64, pnl float64) float64 {
	proceeds := assetAmount * price
	p.AssetBalance -= assetAmount
	p.QuoteBalance += proceeds
	p.TradeCount++
	if pnl > 0 {
		p.WinCount++
	}
	return proceeds
}
