package handlers

import (
	"net/http"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/relay"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ContextHandler struct {
	relayService relay.RelayService
	logger       *zap.Logger
}

func NewContextHandler(relayService relay.RelayService, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		relayService: relayService,
		logger:       logger,
	}
}

// GET /context/:session_id - текущее контекстное окно со статистикой
func (h *ContextHandler) GetContext(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}
	userID := c.DefaultQuery("user_id", c.GetHeader("X-User-ID"))

	turns, stats, err := h.relayService.GetContext(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.logger.Error("Failed to get context",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get context",
			Code:    "CONTEXT_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"turns":      turns,
		"stats":      stats,
	})
}

// GET /context/:session_id/stats - только статистика окна
func (h *ContextHandler) GetStats(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}
	userID := c.DefaultQuery("user_id", c.GetHeader("X-User-ID"))

	_, stats, err := h.relayService.GetContext(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.logger.Error("Failed to get context stats",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get context stats",
			Code:    "CONTEXT_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// DELETE /context/:session_id - очистка контекстного окна. Идемпотентна:
// повторный вызов для пустого окна тоже успех
func (h *ContextHandler) ClearContext(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
			Code:  "MISSING_SESSION_ID",
		})
		return
	}
	userID := c.DefaultQuery("user_id", c.GetHeader("X-User-ID"))

	if err := h.relayService.ClearContext(c.Request.Context(), sessionID, userID); err != nil {
		h.logger.Error("Failed to clear context",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to clear context",
			Code:    "CLEAR_ERROR",
			Details: err.Error(),
		})
		return
	}

	h.logger.Info("Context window cleared", zap.String("session_id", sessionID))
	c.JSON(http.StatusOK, gin.H{
		"message":    "Context cleared successfully",
		"session_id": sessionID,
	})
}
