package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/interfaces"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/models"

	"github.com/lib/pq"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(databaseURL string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStorage{
		db:     db,
		logger: logger.With(zap.String("component", "postgres_storage")),
	}, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDB returns the underlying database connection (for migrations)
func (s *PostgresStorage) GetDB() *sql.DB {
	return s.db
}

// MessageStore implementation
func (s *PostgresStorage) SaveMessage(ctx context.Context, msg models.Message) error {
	query := `
		INSERT INTO messages (id, session_id, user_id, role, content, is_error, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var userID *string
	if msg.UserID != "" {
		userID = &msg.UserID
	}

	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, userID, msg.Role, msg.Content,
		msg.IsError, msg.Timestamp, metadataJSON)

	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	s.logger.Debug("Message saved",
		zap.String("message_id", msg.ID),
		zap.String("session_id", msg.SessionID),
		zap.String("role", msg.Role),
		zap.Bool("is_error", msg.IsError))

	return nil
}

func (s *PostgresStorage) GetMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	// Последние N сообщений, в хронологическом порядке
	query := `
		SELECT id, session_id, user_id, role, content, is_error, created_at, metadata
		FROM (
			SELECT id, session_id, user_id, role, content, is_error, created_at, metadata
			FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

func (s *PostgresStorage) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE session_id = $1`

	var count int
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

func (s *PostgresStorage) DeleteSession(ctx context.Context, sessionID string) error {
	// Delete session (cascade will handle messages)
	_, err := s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("Session deleted", zap.String("session_id", sessionID))
	return nil
}

// SessionStore implementation
func (s *PostgresStorage) CreateSession(ctx context.Context, sessionID string) error {
	query := `INSERT INTO chat_sessions (id, created_at, updated_at, message_count) VALUES ($1, NOW(), NOW(), 0)`

	_, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		// Check if session already exists
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique violation
			return nil // Session already exists, which is fine
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug("Session created", zap.String("session_id", sessionID))
	return nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	query := `SELECT id, created_at, updated_at, message_count FROM chat_sessions WHERE id = $1`

	var session models.ChatSession
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &session.CreatedAt, &session.UpdatedAt, &session.MessageCount)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (s *PostgresStorage) UpdateSession(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

// Helper methods for scanning
func (s *PostgresStorage) scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message

	for rows.Next() {
		var msg models.Message
		var userID sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&msg.ID, &msg.SessionID, &userID, &msg.Role, &msg.Content,
			&msg.IsError, &msg.Timestamp, &metadataJSON)

		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		// Handle nullable fields
		if userID.Valid {
			msg.UserID = userID.String
		}

		// Unmarshal metadata
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			s.logger.Warn("Failed to unmarshal message metadata", zap.Error(err))
			msg.Metadata = models.Metadata{}
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return messages, nil
}

// Verify interfaces implementation
var _ interfaces.MessageStore = (*PostgresStorage)(nil)
var _ interfaces.SessionStore = (*PostgresStorage)(nil)
