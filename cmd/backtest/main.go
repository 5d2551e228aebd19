// Command backtest runs one full simulation from the command line and prints
// the result summary. It uses the in-memory store and never touches the
// database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"regime-engine/config"
	"regime-engine/internal/alert"
	"regime-engine/internal/events"
	"regime-engine/internal/logging"
	"regime-engine/internal/market"
	"regime-engine/internal/service"
	"regime-engine/internal/store"
)

func main() {
	var (
		symbol   = flag.String("symbol", "BTCUSDT", "trading pair symbol")
		interval = flag.String("interval", "1h", "candle interval")
		limit    = flag.Int("limit", 500, "number of candles")
		capital  = flag.Float64("capital", 10000, "initial capital in quote currency")
		mock     = flag.Bool("mock", false, "use synthetic candles instead of the exchange API")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logging.Setup(level, false)

	var source market.Source
	if *mock || cfg.MarketConfig.MockMode {
		source = market.NewMockSource(100)
	} else {
		source = market.NewClient(cfg.MarketConfig.BaseURL)
	}

	alerts := alert.NewManager(alert.NewLogSink(log))
	svc := service.New(source, store.NewMemoryStore(), nil, service.Options{
		Regime:    cfg.EngineConfig.Regime,
		Selector:  cfg.EngineConfig.Selector,
		Kelly:     cfg.EngineConfig.Kelly,
		Stop:      cfg.EngineConfig.Stop,
		Metrics:   cfg.EngineConfig.Metrics,
		Breaker:   cfg.EngineConfig.Breaker,
		SafetyCap: cfg.EngineConfig.SafetyCap,
	}, alerts, events.NewEventBus(), log)

	session, err := svc.RunBacktest(context.Background(), service.BacktestRequest{
		Symbol:         *symbol,
		Interval:       market.Interval(*interval),
		Limit:          *limit,
		InitialCapital: *capital,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest failed: %v\n", err)
		os.Exit(1)
	}

	finalValue := session.Portfolio.QuoteBalance
	if len(session.Snapshots) > 0 {
		last := session.Snapshots[len(session.Snapshots)-1]
		finalValue = last.TotalValue
	}

	fmt.Printf("Backtest %s %s over %d candles\n", *symbol, *interval, *limit)
	fmt.Printf("  Session:       %s\n", session.ID)
	fmt.Printf("  Trades:        %d (%d wins)\n", session.Portfolio.TradeCount, session.Portfolio.WinCount)
	fmt.Printf("  Win rate:      %.1f%%\n", session.WinRate()*100)
	fmt.Printf("  Final value:   %.2f (started %.2f)\n", finalValue, session.Portfolio.InitialCapital)
	fmt.Printf("  Total return:  %+.2f%%\n", session.Metrics.TotalReturn*100)
	fmt.Printf("  Max drawdown:  %.2f%%\n", session.Metrics.MaxDrawdown*100)
	fmt.Printf("  Sharpe:        %.3f  Sortino: %.3f  Calmar: %.3f\n",
		session.Metrics.Sharpe, session.Metrics.Sortino, session.Metrics.Calmar)
	fmt.Printf("  Breaker:       %s\n", session.BreakerState)
	if session.BreakerReason != "" {
		fmt.Printf("  Breaker cause: %s\n", session.BreakerReason)
	}
}
