package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/internal/service/upload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UploadHandler struct {
	uploadService *upload.Service
	logger        *zap.Logger
}

func NewUploadHandler(uploadService *upload.Service, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		logger:        logger,
	}
}

type UploadResponse struct {
	Reference   string `json:"reference"`
	ContentHash string `json:"content_hash"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	IsDuplicate bool   `json:"is_duplicate"`
	BytesSaved  int64  `json:"bytes_saved,omitempty"`
}

type CheckRequest struct {
	ContentHash string `json:"content_hash" binding:"required"`
}

type CheckResponse struct {
	IsDuplicate       bool   `json:"is_duplicate"`
	ExistingReference string `json:"existing_reference,omitempty"`
	Size              int64  `json:"size,omitempty"`
}

type CompactRequest struct {
	DryRun bool `json:"dry_run"`
}

// POST /uploads - дедуплицирующая загрузка вложения (multipart)
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "multipart field 'file' is required",
			Code:    "MISSING_FILE",
			Details: err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to open uploaded file",
			Code:    "INVALID_FILE",
			Details: err.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Failed to read uploaded file",
			Code:    "INVALID_FILE",
			Details: err.Error(),
		})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	decision, err := h.uploadService.Upload(c.Request.Context(), upload.UploadRequest{
		Data:        data,
		ContentType: contentType,
		Filename:    fileHeader.Filename,
	})
	if err != nil {
		if errors.Is(err, upload.ErrEmptyData) || errors.Is(err, upload.ErrBlobTooLarge) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Upload rejected",
				Code:    "VALIDATION_ERROR",
				Details: err.Error(),
			})
			return
		}

		h.logger.Error("Failed to store upload",
			zap.Error(err),
			zap.String("filename", fileHeader.Filename),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to store upload",
			Code:    "UPLOAD_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Reference:   decision.Ref,
		ContentHash: decision.ContentHash,
		ContentType: decision.ContentType,
		Size:        decision.Size,
		IsDuplicate: decision.IsDuplicate,
		BytesSaved:  decision.BytesSaved,
	})
}

// POST /uploads/check - проверка наличия контента по отпечатку
func (h *UploadHandler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	object, err := h.uploadService.CheckDuplicate(c.Request.Context(), req.ContentHash)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidFingerprint) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Malformed content hash",
				Code:    "VALIDATION_ERROR",
				Details: err.Error(),
			})
			return
		}

		h.logger.Error("Failed to check fingerprint", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to check fingerprint",
			Code:    "CHECK_ERROR",
			Details: err.Error(),
		})
		return
	}

	if object == nil {
		c.JSON(http.StatusOK, CheckResponse{IsDuplicate: false})
		return
	}

	c.JSON(http.StatusOK, CheckResponse{
		IsDuplicate:       true,
		ExistingReference: object.Ref,
		Size:              object.Size,
	})
}

// POST /uploads/compact - операторский проход уплотнения хранилища
func (h *UploadHandler) Compact(c *gin.Context) {
	var req CompactRequest
	// Пустое тело эквивалентно {"dry_run": false}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	report, err := h.uploadService.Compact(c.Request.Context(), req.DryRun)
	if err != nil {
		h.logger.Error("Compaction pass failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Compaction failed",
			Code:    "COMPACT_ERROR",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
