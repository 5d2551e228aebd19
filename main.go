package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regime-engine/config"
	"regime-engine/internal/alert"
	"regime-engine/internal/api"
	"regime-engine/internal/events"
	"regime-engine/internal/logging"
	"regime-engine/internal/market"
	"regime-engine/internal/service"
	"regime-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.Setup("info", true)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.Setup(cfg.LoggingConfig.Level, cfg.LoggingConfig.JSONFormat)
	log.Info().Msg("starting regime engine service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Market data source
	var source market.Source
	if cfg.MarketConfig.MockMode {
		log.Warn().Msg("mock market mode enabled, serving synthetic candles")
		source = market.NewMockSource(100)
	} else {
		source = market.NewClient(cfg.MarketConfig.BaseURL)
	}

	// Persistence: PostgreSQL when reachable, in-memory otherwise
	var sessions store.SessionStore
	pg, err := store.NewPostgresStore(ctx, cfg.Database, log)
	if err != nil {
		log.Warn().Err(err).Msg("PostgreSQL unavailable, falling back to in-memory store")
		sessions = store.NewMemoryStore()
	} else {
		sessions = pg
		defer pg.Close()
	}

	// Update lock: Redis when enabled, in-process otherwise
	var locker store.UpdateLocker
	if cfg.Redis.Enabled {
		redisLocker, err := store.NewRedisLocker(ctx, cfg.Redis, 5*time.Minute, log)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to local update lock")
		} else {
			locker = redisLocker
			defer redisLocker.Close()
			sessions = store.NewCachedStore(sessions, redisLocker, 10*time.Minute, log)
		}
	}

	// Alerts
	alerts := alert.NewManager(alert.NewLogSink(log))
	if cfg.AlertConfig.Enabled {
		alerts.AddSink(alert.NewDiscordSink(cfg.AlertConfig.Discord, log))
		alerts.AddSink(alert.NewTelegramSink(cfg.AlertConfig.Telegram, log))
	}

	bus := events.NewEventBus()

	// Live kline streams feed API clients through the event bus
	var streams []*market.Stream
	if !cfg.MarketConfig.MockMode && len(cfg.MarketConfig.WatchSymbols) > 0 {
		interval := market.Interval(cfg.MarketConfig.WatchInterval)
		for _, symbol := range cfg.MarketConfig.WatchSymbols {
			stream := market.NewStream(cfg.MarketConfig.WSBaseURL, symbol, interval,
				func(symbol string, interval market.Interval, candle market.Candle) {
					bus.PublishCandleClosed(symbol, string(interval), candle.OpenTime, candle.Close, candle.Volume)
				}, log)
			if err := stream.Start(); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Msg("failed to start kline stream")
				continue
			}
			streams = append(streams, stream)
		}
	}

	svc := service.New(source, sessions, locker, service.Options{
		Regime:         cfg.EngineConfig.Regime,
		Selector:       cfg.EngineConfig.Selector,
		Kelly:          cfg.EngineConfig.Kelly,
		Stop:           cfg.EngineConfig.Stop,
		Metrics:        cfg.EngineConfig.Metrics,
		Breaker:        cfg.EngineConfig.Breaker,
		SafetyCap:      cfg.EngineConfig.SafetyCap,
		InitialCapital: cfg.EngineConfig.InitialCapital,
		DefaultLimit:   cfg.MarketConfig.DefaultLimit,
	}, alerts, bus, log)

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: cfg.LoggingConfig.JSONFormat,
	}, svc, bus, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")
	for _, stream := range streams {
		stream.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("regime engine service stopped")
}
