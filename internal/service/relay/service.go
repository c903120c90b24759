package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/contextcache"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/interfaces"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/models"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/llm"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	SystemPrompt    string        // Системный промпт, добавляется первым сообщением
	UpstreamTimeout time.Duration // Жёсткий потолок одного обращения к движку
	HistoryLimit    int           // Лимит выдачи истории по умолчанию
	Model           string        // Имя модели движка, пишется в метаданные
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:    "You are a helpful AI assistant. Answer clearly and concisely.",
		UpstreamTimeout: 5 * time.Minute,
		HistoryLimit:    50,
	}
}

// Service ретранслятор потока: один обмен от загрузки контекста до
// персистентности. Инвариант: на сессию — не больше одного живого обмена.
type Service struct {
	messageStore interfaces.MessageStore
	sessionStore interfaces.SessionStore
	contextCache contextcache.ContextCache
	llmClient    llm.LLMClient
	config       Config
	logger       *zap.Logger
	metrics      *SimpleMetrics

	// Сессии с живым обменом; второй конкурентный send отклоняется
	inflight   map[string]struct{}
	inflightMu sync.Mutex
}

func NewService(
	messageStore interfaces.MessageStore,
	sessionStore interfaces.SessionStore,
	contextCache contextcache.ContextCache,
	llmClient llm.LLMClient,
	config Config,
	logger *zap.Logger,
) *Service {
	if config.UpstreamTimeout <= 0 {
		config.UpstreamTimeout = DefaultConfig().UpstreamTimeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}

	return &Service{
		messageStore: messageStore,
		sessionStore: sessionStore,
		contextCache: contextCache,
		llmClient:    llmClient,
		config:       config,
		logger:       logger,
		metrics:      NewSimpleMetrics(),
		inflight:     make(map[string]struct{}),
	}
}

type ProcessMessageRequest struct {
	SessionID     string
	Message       string
	UserID        string
	AttachmentRef string
}

type StreamResponse struct {
	Content   string
	Done      bool
	Error     error
	MessageID string
}

// ProcessMessageStream выполняет один обмен. Возвращённый канал отдаёт
// чанки в том порядке, в котором их прислал движок; потребитель обязан
// вычитать канал до закрытия.
func (s *Service) ProcessMessageStream(ctx context.Context, req ProcessMessageRequest) (<-chan StreamResponse, error) {
	// 1. Валидация
	if err := ValidateProcessMessageRequest(req); err != nil {
		return nil, err
	}

	// 2. Single-flight: второй конкурентный обмен для сессии отклоняем,
	// иначе два накопителя перемешают персистентный ответ
	if !s.acquireSession(req.SessionID) {
		return nil, ErrSessionBusy
	}

	s.logger.Info("Processing streaming message",
		zap.String("session_id", req.SessionID),
		zap.String("user_id", req.UserID),
		zap.Int("message_length", len(req.Message)),
	)

	responseCh := make(chan StreamResponse, 100)

	go func() {
		defer close(responseCh)
		defer s.releaseSession(req.SessionID)

		s.runExchange(ctx, req, responseCh)
	}()

	return responseCh, nil
}

// runExchange машина состояний одного обмена:
// IDLE → CONTEXT_LOADED → UPSTREAM_REQUESTED → STREAMING → {COMPLETED|FAILED|CANCELLED}
func (s *Service) runExchange(ctx context.Context, req ProcessMessageRequest, responseCh chan<- StreamResponse) {
	startTime := time.Now()
	userID := normalizeUserID(req.UserID)

	// 3. Создаём сессию если её нет
	if err := s.ensureSession(ctx, req.SessionID); err != nil {
		responseCh <- StreamResponse{Error: fmt.Errorf("failed to ensure session: %w", err)}
		return
	}

	// 4. IDLE → CONTEXT_LOADED: недоступный кэш деградирует до пустого
	// контекста, обмен не роняем
	contextTurns, err := s.contextCache.GetRecent(ctx, req.SessionID, userID)
	if err != nil {
		s.logger.Warn("Failed to load context, proceeding with empty window",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		contextTurns = nil
	}

	messages := s.buildMessages(contextTurns, req.Message)

	// 5. CONTEXT_LOADED → UPSTREAM_REQUESTED: жёсткий потолок на весь стрим
	upstreamCtx, cancelUpstream := context.WithTimeout(ctx, s.config.UpstreamTimeout)
	defer cancelUpstream()

	streamCh, err := s.llmClient.ChatCompletionStream(upstreamCtx, messages)
	if err != nil {
		s.metrics.RecordFailure()
		responseCh <- StreamResponse{Error: fmt.Errorf("failed to start upstream stream: %w", err)}
		return
	}

	assistantMessageID := uuid.New().String()

	// 6. STREAMING: каждый чанк уходит клиенту сразу и копится в буфере;
	// итоговый сохранённый ответ — ровно конкатенация отданных чанков
	var accumulated strings.Builder
	chunkCount := 0

	for chunk := range streamCh {
		// Клиент отключился: CANCELLED — гасим upstream, ничего не сохраняем
		if ctx.Err() != nil {
			cancelUpstream()
			s.drainStream(streamCh)
			s.metrics.RecordCancellation()
			s.logger.Info("Exchange cancelled by client disconnect",
				zap.String("session_id", req.SessionID),
				zap.Int("chunks_forwarded", chunkCount))
			return
		}

		if chunk.Error != nil {
			s.handleStreamFailure(ctx, req, userID, assistantMessageID, accumulated.String(), chunkCount, chunk.Error, responseCh)
			return
		}

		if chunk.Content != "" {
			accumulated.WriteString(chunk.Content)
			chunkCount++
			responseCh <- StreamResponse{
				Content:   chunk.Content,
				MessageID: assistantMessageID,
			}
		}

		if chunk.Done {
			s.completeExchange(ctx, req, userID, assistantMessageID, accumulated.String(), chunkCount, startTime, responseCh)
			return
		}
	}

	// Канал закрылся без Done и без ошибки — считаем обрывом стрима
	s.handleStreamFailure(ctx, req, userID, assistantMessageID, accumulated.String(), chunkCount, ErrStreamTruncated, responseCh)
}

// completeExchange STREAMING → COMPLETED: персистентность ровно один раз,
// затем контекстное окно
func (s *Service) completeExchange(
	ctx context.Context,
	req ProcessMessageRequest,
	userID, assistantMessageID, fullContent string,
	chunkCount int,
	startTime time.Time,
	responseCh chan<- StreamResponse,
) {
	duration := time.Since(startTime)
	now := time.Now()

	userMessage := models.Message{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Role:      "user",
		Content:   req.Message,
		Timestamp: now,
		Metadata: models.Metadata{
			BlobRef: req.AttachmentRef,
		},
	}

	assistantMessage := models.Message{
		ID:        assistantMessageID,
		SessionID: req.SessionID,
		Role:      "assistant",
		Content:   fullContent,
		Timestamp: now,
		Metadata: models.Metadata{
			Model:      s.config.Model,
			ChunkCount: chunkCount,
			DurationMS: duration.Milliseconds(),
		},
	}

	// 7. Message store не идемпотентен — пишем строго один раз на обмен
	if err := s.messageStore.SaveMessage(ctx, userMessage); err != nil {
		s.metrics.RecordFailure()
		responseCh <- StreamResponse{Error: fmt.Errorf("failed to save user message: %w", err)}
		return
	}
	if err := s.messageStore.SaveMessage(ctx, assistantMessage); err != nil {
		s.metrics.RecordFailure()
		responseCh <- StreamResponse{Error: fmt.Errorf("failed to save assistant message: %w", err)}
		return
	}

	// 8. Пополняем окно; сбой кэша не отменяет уже завершённый обмен
	s.appendToContext(ctx, req.SessionID, userID, userMessage)
	s.appendToContext(ctx, req.SessionID, userID, assistantMessage)

	s.metrics.RecordExchange(chunkCount, duration)

	s.logger.Info("Streaming exchange completed",
		zap.String("session_id", req.SessionID),
		zap.String("message_id", assistantMessageID),
		zap.Int("chunk_count", chunkCount),
		zap.Int("content_length", len(fullContent)),
		zap.Duration("duration", duration),
	)

	responseCh <- StreamResponse{
		Done:      true,
		MessageID: assistantMessageID,
	}
}

// handleStreamFailure STREAMING → FAILED: уже отданные чанки остаются у
// клиента, частичный текст сохраняется с пометкой об ошибке, контекстное
// окно не трогаем — сломанный ход не должен отравлять будущий контекст
func (s *Service) handleStreamFailure(
	ctx context.Context,
	req ProcessMessageRequest,
	userID, assistantMessageID, partialContent string,
	chunkCount int,
	streamErr error,
	responseCh chan<- StreamResponse,
) {
	// Отмена клиентом — не ошибка
	if ctx.Err() != nil {
		s.metrics.RecordCancellation()
		s.logger.Info("Exchange cancelled during stream failure handling",
			zap.String("session_id", req.SessionID))
		return
	}

	s.metrics.RecordFailure()
	s.logger.Error("Upstream stream failed",
		zap.String("session_id", req.SessionID),
		zap.Int("chunks_forwarded", chunkCount),
		zap.Error(streamErr))

	if chunkCount > 0 {
		now := time.Now()

		userMessage := models.Message{
			ID:        uuid.New().String(),
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Role:      "user",
			Content:   req.Message,
			Timestamp: now,
			Metadata: models.Metadata{
				BlobRef: req.AttachmentRef,
			},
		}
		assistantMessage := models.Message{
			ID:        assistantMessageID,
			SessionID: req.SessionID,
			Role:      "assistant",
			Content:   partialContent,
			IsError:   true,
			Timestamp: now,
			Metadata: models.Metadata{
				ChunkCount: chunkCount,
			},
		}

		if err := s.messageStore.SaveMessage(ctx, userMessage); err != nil {
			s.logger.Error("Failed to save user message after stream failure", zap.Error(err))
		}
		if err := s.messageStore.SaveMessage(ctx, assistantMessage); err != nil {
			s.logger.Error("Failed to save partial assistant message", zap.Error(err))
		}
	}

	responseCh <- StreamResponse{
		Error:     streamErr,
		MessageID: assistantMessageID,
	}
}

func (s *Service) appendToContext(ctx context.Context, sessionID, userID string, msg models.Message) {
	turn := contextcache.Turn{
		TurnID:    msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.Timestamp,
	}
	if err := s.contextCache.Append(ctx, sessionID, userID, turn); err != nil {
		s.logger.Warn("Failed to append turn to context cache",
			zap.String("session_id", sessionID),
			zap.String("turn_id", msg.ID),
			zap.Error(err))
	}
}

// drainStream дочитывает канал после отмены, чтобы горутина провайдера
// не зависла на отправке
func (s *Service) drainStream(streamCh <-chan llm.StreamChunk) {
	for range streamCh {
	}
}

func (s *Service) buildMessages(contextTurns []contextcache.Turn, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(contextTurns)+2)

	if s.config.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: s.config.SystemPrompt})
	}

	for _, turn := range contextTurns {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: "user", Content: userMessage})
	return messages
}

// GetContext возвращает текущее окно вместе со статистикой
func (s *Service) GetContext(ctx context.Context, sessionID, userID string) ([]contextcache.Turn, *contextcache.Stats, error) {
	userID = normalizeUserID(userID)

	turns, err := s.contextCache.GetRecent(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get context: %w", err)
	}

	stats, err := s.contextCache.Stats(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get context stats: %w", err)
	}

	return turns, stats, nil
}

// ClearContext очищает окно. Идемпотентна: успех и для несуществующего окна
func (s *Service) ClearContext(ctx context.Context, sessionID, userID string) error {
	return s.contextCache.Clear(ctx, sessionID, normalizeUserID(userID))
}

// DeleteSession удаляет сессию, её сообщения и контекстное окно
func (s *Service) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if err := s.contextCache.Clear(ctx, sessionID, normalizeUserID(userID)); err != nil {
		s.logger.Warn("Failed to clear context during session deletion",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	if err := s.messageStore.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	s.logger.Info("Session deleted with context cleanup",
		zap.String("session_id", sessionID))
	return nil
}

func (s *Service) GetHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = s.config.HistoryLimit
	}

	messages, err := s.messageStore.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	return messages, nil
}

// Metrics снимок метрик ретранслятора
func (s *Service) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *Service) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		return s.sessionStore.CreateSession(ctx, sessionID)
	}
	return nil
}

func (s *Service) acquireSession(sessionID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if _, busy := s.inflight[sessionID]; busy {
		return false
	}
	s.inflight[sessionID] = struct{}{}
	return true
}

func (s *Service) releaseSession(sessionID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	delete(s.inflight, sessionID)
}

func normalizeUserID(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
