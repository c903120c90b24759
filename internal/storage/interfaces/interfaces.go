package interfaces

import (
	"context"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/models"
)

type MessageStore interface {
	// Basic message operations
	SaveMessage(ctx context.Context, msg models.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]models.Message, error)
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	UpdateSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Storage combines all storage interfaces for convenience
type Storage interface {
	MessageStore
	SessionStore
}
