package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/relay"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/interfaces"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/storage/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatHandler struct {
	relayService relay.RelayService
	sessionStore interfaces.SessionStore
	logger       *zap.Logger
}

func NewChatHandler(
	relayService relay.RelayService,
	sessionStore interfaces.SessionStore,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		relayService: relayService,
		sessionStore: sessionStore,
		logger:       logger,
	}
}

type ChatRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	Message       string `json:"message" binding:"required"`
	UserID        string `json:"user_id,omitempty"`
	AttachmentRef string `json:"attachment_ref,omitempty"`
}

type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
	Total     int              `json:"total"`
}

type SessionResponse struct {
	SessionID string              `json:"session_id"`
	Session   *models.ChatSession `json:"session"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// POST /chat - основной эндпоинт для отправки сообщений.
// Ответ — сырой chunked text/plain: чанки движка уходят клиенту по мере
// прихода, без SSE-обёртки. Ошибка посреди потока дописывается
// человекочитаемой строкой-маркером.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	serviceReq := relay.ProcessMessageRequest{
		SessionID:     req.SessionID,
		Message:       req.Message,
		UserID:        req.UserID,
		AttachmentRef: req.AttachmentRef,
	}

	// Валидация запроса
	if err := relay.ValidateProcessMessageRequest(serviceReq); err != nil {
		h.logger.Error("Request validation failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION_ERROR",
			Details: err.Error(),
		})
		return
	}

	streamCh, err := h.relayService.ProcessMessageStream(c.Request.Context(), serviceReq)
	if err != nil {
		// Второй конкурентный обмен для той же сессии
		if errors.Is(err, relay.ErrSessionBusy) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "Session already has an exchange in flight",
				Code:    "SESSION_BUSY",
				Details: err.Error(),
			})
			return
		}

		h.logger.Error("Failed to start streaming", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to process message",
			Code:    "PROCESSING_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, canFlush := c.Writer.(http.Flusher)

	// Транслируем поток; каждый чанк уходит клиенту немедленно.
	// Сбой записи означает ушедшего клиента: перестаём вычитывать канал,
	// возврат из хендлера отменяет контекст запроса, ретранслятор
	// переходит в отмену вместо молчаливого обрыва
	for streamResp := range streamCh {
		if streamResp.Error != nil {
			h.logger.Error("Stream error",
				zap.Error(streamResp.Error),
				zap.String("session_id", req.SessionID),
			)
			fmt.Fprintf(c.Writer, "\n\n❌ Error: %s", streamResp.Error.Error())
			if canFlush {
				flusher.Flush()
			}
			return
		}

		if streamResp.Content != "" {
			if _, err := c.Writer.WriteString(streamResp.Content); err != nil {
				h.logger.Warn("Client write failed, aborting stream relay",
					zap.String("session_id", req.SessionID),
					zap.Error(err))
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}

		if streamResp.Done {
			return
		}
	}
}

// GET /chat/:session_id/history - получение истории сообщений
func (h *ChatHandler) GetHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	messages, err := h.relayService.GetHistory(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to get messages",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get messages",
			Code:    "HISTORY_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Messages:  messages,
		Total:     len(messages),
	})
}

// GET /chat/:session_id - получение информации о сессии
func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}

	session, err := h.sessionStore.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to get session",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Session not found",
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		SessionID: sessionID,
		Session:   session,
	})
}

// DELETE /chat/:session_id - удаление сессии вместе с контекстным окном
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}
	userID := c.DefaultQuery("user_id", c.GetHeader("X-User-ID"))

	if err := h.relayService.DeleteSession(c.Request.Context(), sessionID, userID); err != nil {
		h.logger.Error("Failed to delete session",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete session",
			Code:    "DELETE_ERROR",
			Details: err.Error(),
		})
		return
	}

	h.logger.Info("Session deleted with context cleanup", zap.String("session_id", sessionID))
	c.JSON(http.StatusOK, gin.H{
		"message":    "Session deleted successfully",
		"session_id": sessionID,
	})
}
