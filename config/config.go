// Package config loads service configuration from an optional JSON file with
// environment variable overrides. Environment always wins over the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"regime-engine/internal/alert"
	"regime-engine/internal/circuit"
	"regime-engine/internal/regime"
	"regime-engine/internal/risk"
	"regime-engine/internal/store"
	"regime-engine/internal/strategy"
)

type Config struct {
	ServerConfig  ServerConfig         `json:"server"`
	MarketConfig  MarketConfig         `json:"market"`
	EngineConfig  EngineConfig         `json:"engine"`
	LoggingConfig LoggingConfig        `json:"logging"`
	AlertConfig   AlertConfig          `json:"alerts"`
	Database      store.PostgresConfig `json:"database"`
	Redis         store.RedisConfig    `json:"redis"`
}

// ServerConfig holds the HTTP API configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	AllowedOrigins string `json:"allowed_origins"`
}

// MarketConfig holds market data source configuration
type MarketConfig struct {
	BaseURL       string   `json:"base_url"`
	WSBaseURL     string   `json:"ws_base_url"`
	MockMode      bool     `json:"mock_mode"` // serve synthetic candles instead of hitting the API
	DefaultLimit  int      `json:"default_limit"`
	WatchSymbols  []string `json:"watch_symbols"`  // live kline streams broadcast to API clients
	WatchInterval string   `json:"watch_interval"` // interval for the watch streams
}

// EngineConfig bundles every tunable of the simulation pipeline
type EngineConfig struct {
	InitialCapital float64                  `json:"initial_capital"`
	SafetyCap      float64                  `json:"safety_cap"`
	Regime         *regime.Config           `json:"regime"`
	Selector       *strategy.SelectorConfig `json:"selector"`
	Kelly          *risk.KellyConfig        `json:"kelly"`
	Stop           *risk.StopConfig         `json:"stop"`
	Metrics        *risk.MetricsConfig      `json:"metrics"`
	Breaker        *circuit.Config          `json:"circuit_breaker"`
}

type LoggingConfig struct {
	Level      string `json:"level"` // debug, info, warn, error
	JSONFormat bool   `json:"json_format"`
}

// AlertConfig holds outbound alert channel configuration
type AlertConfig struct {
	Enabled  bool                 `json:"enabled"`
	Discord  alert.DiscordConfig  `json:"discord"`
	Telegram alert.TelegramConfig `json:"telegram"`
}

// Default returns the full default configuration
func Default() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "*",
		},
		MarketConfig: MarketConfig{
			BaseURL:       "https://api.binance.com",
			WSBaseURL:     "wss://stream.binance.com:9443",
			DefaultLimit:  500,
			WatchInterval: "1h",
		},
		EngineConfig: EngineConfig{
			InitialCapital: 10000,
			SafetyCap:      0.95,
			Regime:         regime.DefaultConfig(),
			Selector:       strategy.DefaultSelectorConfig(),
			Kelly:          risk.DefaultKellyConfig(),
			Stop:           risk.DefaultStopConfig(),
			Metrics:        risk.DefaultMetricsConfig(),
			Breaker:        circuit.DefaultConfig(),
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
		Database: store.PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "regime_engine",
			SSLMode:  "disable",
		},
		Redis: store.RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Load reads CONFIG_FILE (default config.json) if present, then applies
// environment overrides on top.
func Load() (*Config, error) {
	cfg := Default()

	path := getEnvOrDefault("CONFIG_FILE", "config.json")
	if _, err := os.Stat(path); err == nil {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Market data
	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", cfg.MarketConfig.BaseURL)
	cfg.MarketConfig.WSBaseURL = getEnvOrDefault("MARKET_WS_BASE_URL", cfg.MarketConfig.WSBaseURL)
	cfg.MarketConfig.MockMode = getEnvBoolOrDefault("MARKET_MOCK_MODE", cfg.MarketConfig.MockMode)
	cfg.MarketConfig.DefaultLimit = getEnvIntOrDefault("MARKET_DEFAULT_LIMIT", cfg.MarketConfig.DefaultLimit)
	if v := os.Getenv("MARKET_WATCH_SYMBOLS"); v != "" {
		cfg.MarketConfig.WatchSymbols = strings.Split(v, ",")
	}
	cfg.MarketConfig.WatchInterval = getEnvOrDefault("MARKET_WATCH_INTERVAL", cfg.MarketConfig.WatchInterval)

	// Engine
	cfg.EngineConfig.InitialCapital = getEnvFloatOrDefault("ENGINE_INITIAL_CAPITAL", cfg.EngineConfig.InitialCapital)
	cfg.EngineConfig.SafetyCap = getEnvFloatOrDefault("ENGINE_SAFETY_CAP", cfg.EngineConfig.SafetyCap)
	cfg.EngineConfig.Breaker.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.EngineConfig.Breaker.Enabled)
	cfg.EngineConfig.Breaker.MaxDrawdown = getEnvFloatOrDefault("CIRCUIT_MAX_DRAWDOWN", cfg.EngineConfig.Breaker.MaxDrawdown)
	cfg.EngineConfig.Breaker.MinWinRate = getEnvFloatOrDefault("CIRCUIT_MIN_WIN_RATE", cfg.EngineConfig.Breaker.MinWinRate)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Alerts
	cfg.AlertConfig.Enabled = getEnvBoolOrDefault("ALERTS_ENABLED", cfg.AlertConfig.Enabled)
	cfg.AlertConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.AlertConfig.Discord.Enabled)
	cfg.AlertConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.AlertConfig.Discord.WebhookURL)
	cfg.AlertConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.AlertConfig.Telegram.Enabled)
	cfg.AlertConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.AlertConfig.Telegram.BotToken)
	cfg.AlertConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.AlertConfig.Telegram.ChatID)

	// Database
	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Start from defaults so absent sections keep their tuned values
	config := Default()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}
