package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"regime-engine/internal/engine"
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// PostgresStore is the PostgreSQL SessionStore. The full session document is
// stored as JSONB; trades are additionally written to their own table so
// they can be queried without loading the whole session.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresStore connects to PostgreSQL and runs migrations
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &PostgresStore{
		pool: pool,
		log:  logger.With().Str("component", "postgres_store").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")
	return s, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			interval VARCHAR(10) NOT NULL,
			state VARCHAR(20) NOT NULL,
			total_return DECIMAL(20, 8) DEFAULT 0,
			trade_count INT DEFAULT 0,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_symbol ON sessions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
		`CREATE TABLE IF NOT EXISTS session_trades (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			side VARCHAR(4) NOT NULL,
			bar_index INT NOT NULL,
			ts BIGINT NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			asset_amount DECIMAL(30, 12) NOT NULL,
			quote_amount DECIMAL(20, 8) NOT NULL,
			pnl DECIMAL(20, 8),
			matched_buy_id TEXT,
			exit_reason VARCHAR(20),
			config_name VARCHAR(40),
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_trades_session ON session_trades(session_id, bar_index)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save upserts the session document and inserts any new trades, atomically
func (s *PostgresStore) Save(ctx context.Context, session *engine.Session) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (id, symbol, interval, state, total_return, trade_count, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			total_return = EXCLUDED.total_return,
			trade_count = EXCLUDED.trade_count,
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at`,
		session.ID, session.Symbol, string(session.Interval), string(session.State),
		session.Metrics.TotalReturn, session.Portfolio.TradeCount, doc,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	for _, t := range session.Trades {
		_, err = tx.Exec(ctx, `
			INSERT INTO session_trades (id, session_id, side, bar_index, ts, price, asset_amount, quote_amount, pnl, matched_buy_id, exit_reason, config_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, session.ID, string(t.Side), t.BarIndex, t.Timestamp, t.Price,
			t.AssetAmount, t.QuoteAmount, t.PnL, nullable(t.MatchedBuyID), nullable(t.ExitReason), t.ConfigName,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trade %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session save: %w", err)
	}
	return nil
}

// Get loads a session by ID
func (s *PostgresStore) Get(ctx context.Context, id string) (*engine.Session, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	var session engine.Session
	if err := json.Unmarshal(doc, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &session, nil
}

// List returns all sessions, newest first
func (s *PostgresStore) List(ctx context.Context) ([]*engine.Session, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*engine.Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var session engine.Session
		if err := json.Unmarshal(doc, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// Delete removes a session and its trades
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
