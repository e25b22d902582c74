/*

This file manages the postgres connection and schema for the durable Curve Ledger.
Amounts are stored as NUMERIC(78,0) so full 256-bit wei quantities round-trip without
loss.

*/

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// OpenDB opens and verifies a postgres connection pool.
func OpenDB(cfg DBConfig) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return db, nil
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS token_profiles (
			token VARCHAR(64) PRIMARY KEY,
			profile JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS runtime_state (
			token VARCHAR(64) PRIMARY KEY REFERENCES token_profiles(token),
			eth_pool NUMERIC(78,0) NOT NULL,
			circulating_supply NUMERIC(78,0) NOT NULL,
			graduated BOOLEAN NOT NULL DEFAULT FALSE,
			start_time TIMESTAMPTZ NOT NULL,
			limits_start TIMESTAMPTZ NOT NULL,
			real_token VARCHAR(64) NOT NULL DEFAULT '',
			lp_address VARCHAR(64) NOT NULL DEFAULT '',
			claim_mode BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS holder_balances (
			token VARCHAR(64) NOT NULL,
			holder VARCHAR(64) NOT NULL,
			balance NUMERIC(78,0) NOT NULL,
			position BIGSERIAL,
			PRIMARY KEY (token, holder)
		);
		CREATE INDEX IF NOT EXISTS idx_holder_balances_token_position
			ON holder_balances(token, position);

		CREATE TABLE IF NOT EXISTS native_balances (
			account VARCHAR(64) PRIMARY KEY,
			balance NUMERIC(78,0) NOT NULL
		);

		CREATE TABLE IF NOT EXISTS claims (
			token VARCHAR(64) NOT NULL,
			holder VARCHAR(64) NOT NULL,
			claimed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (token, holder)
		);

		CREATE TABLE IF NOT EXISTS claim_cursors (
			token VARCHAR(64) PRIMARY KEY,
			cursor_position INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS market_events (
			id UUID PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			token VARCHAR(64) NOT NULL,
			actor VARCHAR(64) NOT NULL,
			side VARCHAR(8) NOT NULL DEFAULT '',
			eth_amount NUMERIC(78,0) NOT NULL,
			token_amount NUMERIC(78,0) NOT NULL,
			platform_fee NUMERIC(78,0) NOT NULL,
			dev_fee NUMERIC(78,0) NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_market_events_timestamp ON market_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_market_events_token ON market_events(token);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}
