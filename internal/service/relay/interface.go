package relay

import (
	"context"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/contextcache"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/models"
)

// RelayService один потоковый обмен с движком: загрузка контекста,
// трансляция чанков клиенту, персистентность результата
type RelayService interface {
	// ProcessMessageStream запускает обмен и возвращает канал чанков.
	// Канал закрывается после терминального состояния обмена
	ProcessMessageStream(ctx context.Context, req ProcessMessageRequest) (<-chan StreamResponse, error)

	// GetHistory возвращает последние сообщения сессии из message store
	GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error)

	// GetContext возвращает текущее контекстное окно и его статистику
	GetContext(ctx context.Context, sessionID, userID string) ([]contextcache.Turn, *contextcache.Stats, error)

	// ClearContext очищает контекстное окно. Идемпотентна
	ClearContext(ctx context.Context, sessionID, userID string) error

	// DeleteSession удаляет сессию, сообщения и контекстное окно
	DeleteSession(ctx context.Context, sessionID, userID string) error
}

// Verify interface implementation
var _ RelayService = (*Service)(nil)
