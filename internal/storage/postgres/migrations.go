package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewMigrator(db *sql.DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger.With(zap.String("component", "migrator")),
	}
}

// RunMigrationsFromStrings runs migrations from string slice (for testing/embedding)
func (m *Migrator) RunMigrationsFromStrings(ctx context.Context, migrationSQL []string) error {
	migrations := make([]Migration, len(migrationSQL))
	for i, sql := range migrationSQL {
		migrations[i] = Migration{
			Version: i + 1,
			Name:    fmt.Sprintf("migration_%03d", i+1),
			SQL:     sql,
		}
	}

	return m.runMigrations(ctx, migrations)
}

func (m *Migrator) runMigrations(ctx context.Context, migrations []Migration) error {
	// Ensure migrations table exists
	if err := m.ensureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	// Get applied migrations
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	// Sort migrations by version
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	// Run pending migrations
	for _, migration := range migrations {
		if applied[migration.Version] {
			m.logger.Debug("Migration already applied",
				zap.Int("version", migration.Version),
				zap.String("name", migration.Name))
			continue
		}

		m.logger.Info("Running migration",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))

		if err := m.runMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w",
				migration.Version, migration.Name, err)
		}

		m.logger.Info("Migration completed successfully",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name))
	}

	return nil
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT NOW()
		)`

	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	query := `SELECT version FROM schema_migrations`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) runMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Execute migration SQL
	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	// Record migration as applied
	query := `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Name, time.Now()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetCurrentVersion returns the highest applied migration version
func (m *Migrator) GetCurrentVersion(ctx context.Context) (int, error) {
	// Ensure migration table exists
	if err := m.ensureMigrationTable(ctx); err != nil {
		return 0, err
	}

	query := `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`

	var version int
	err := m.db.QueryRowContext(ctx, query).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, nil
}

// Embedded migrations for easy deployment
var EmbeddedMigrations = []string{
	// Migration 001: Initial schema
	`-- Migration: 001_initial_schema.sql
-- Create initial database schema for the chat relay

-- Chat sessions table
CREATE TABLE chat_sessions (
    id VARCHAR(100) PRIMARY KEY,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW(),
    message_count INTEGER DEFAULT 0
);

-- Messages table (finalized conversation turns)
CREATE TABLE messages (
    id UUID PRIMARY KEY,
    session_id VARCHAR(100) NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
    user_id VARCHAR(100) NULL,
    role VARCHAR(20) NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,

    -- Error-flagged turns: partial assistant output persisted after a broken stream
    is_error BOOLEAN DEFAULT FALSE,

    created_at TIMESTAMP DEFAULT NOW(),
    metadata JSONB DEFAULT '{}'
);

-- Indexes for performance
CREATE INDEX idx_messages_session_id ON messages(session_id);
CREATE INDEX idx_messages_session_created ON messages(session_id, created_at);
CREATE INDEX idx_chat_sessions_updated ON chat_sessions(updated_at);

-- Function to update session updated_at and message_count
CREATE OR REPLACE FUNCTION update_session_stats()
RETURNS TRIGGER AS $$
BEGIN
    IF TG_OP = 'INSERT' THEN
        UPDATE chat_sessions
        SET
            updated_at = NOW(),
            message_count = (
                SELECT COUNT(*)
                FROM messages
                WHERE session_id = NEW.session_id
            )
        WHERE id = NEW.session_id;
        RETURN NEW;
    ELSIF TG_OP = 'DELETE' THEN
        UPDATE chat_sessions
        SET
            updated_at = NOW(),
            message_count = (
                SELECT COUNT(*)
                FROM messages
                WHERE session_id = OLD.session_id
            )
        WHERE id = OLD.session_id;
        RETURN OLD;
    END IF;
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

-- Triggers to automatically update session stats
CREATE TRIGGER trigger_update_session_on_message_insert
    AFTER INSERT ON messages
    FOR EACH ROW
    EXECUTE FUNCTION update_session_stats();

CREATE TRIGGER trigger_update_session_on_message_delete
    AFTER DELETE ON messages
    FOR EACH ROW
    EXECUTE FUNCTION update_session_stats();

COMMENT ON TABLE messages IS 'Finalized conversation turns relayed from the inference engine';
COMMENT ON COLUMN messages.is_error IS 'True if the assistant turn is partial output of a failed stream';`,
}
