package database

import (
	"context"
	"fmt"
	"time"

	"github.com/alim08/landing/pkg/logger"
	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create landing schema",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS tokens (
				id BIGSERIAL PRIMARY KEY,
				token TEXT UNIQUE NOT NULL,
				session_id VARCHAR(64) NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				gclid TEXT NOT NULL DEFAULT '',
				utm_source TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_tokens_session_id ON tokens(session_id);
			CREATE INDEX IF NOT EXISTS idx_tokens_created_at ON tokens(created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_tokens_expires_at ON tokens(expires_at);

			CREATE TABLE IF NOT EXISTS events (
				id BIGSERIAL PRIMARY KEY,
				session_id VARCHAR(64) NOT NULL,
				event_type VARCHAR(64) NOT NULL,
				meta JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_events_session_created ON events(session_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

			CREATE TABLE IF NOT EXISTS conversions (
				id BIGSERIAL PRIMARY KEY,
				session_id VARCHAR(64) NOT NULL,
				input_value TEXT NOT NULL DEFAULT '',
				target_url TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_conversions_session_id ON conversions(session_id);

			CREATE TABLE IF NOT EXISTS conversion_links (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				target_url TEXT NOT NULL,
				weight DOUBLE PRECISION NOT NULL DEFAULT 1.0 CHECK (weight >= 0),
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_conversion_links_active ON conversion_links(is_active);

			CREATE TABLE IF NOT EXISTS admin_users (
				id BIGSERIAL PRIMARY KEY,
				username VARCHAR(128) UNIQUE NOT NULL,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS google_tracking_settings (
				id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
				ga4_measurement_id VARCHAR(64) NOT NULL DEFAULT '',
				google_ads_conversion_id VARCHAR(64) NOT NULL DEFAULT '',
				google_ads_conversion_label VARCHAR(128) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS google_tracking_settings;
			DROP TABLE IF EXISTS admin_users;
			DROP TABLE IF EXISTS conversion_links;
			DROP TABLE IF EXISTS conversions;
			DROP TABLE IF EXISTS events;
			DROP TABLE IF EXISTS tokens;
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range Migrations {
		if _, ok := applied[migration.Version]; ok {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	logger.Log.Info("database migrations completed")
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// getAppliedMigrations returns applied migration versions and when they ran
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}

	return applied, rows.Err()
}

// applyMigration applies a single migration
func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO migrations (version, description) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(Migrations))
	for _, migration := range Migrations {
		at, ok := applied[migration.Version]
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Applied:     ok,
			AppliedAt:   at,
			Description: migration.Description,
		})
	}
	return status, nil
}
