package models

import (
	"time"
)

type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	IsError   bool      `json:"is_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

type Metadata struct {
	Model      string `json:"model,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	BlobRef    string `json:"blob_ref,omitempty"`
}

type ChatSession struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
