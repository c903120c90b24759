package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/blob"
	"github.com/Tathastu2004/Recilens-Nexus-AI-Chatbot-sub000/pkg/hash"

	"go.uber.org/zap"
)

const maxBlobSize = 25 << 20 // 25 MiB

var (
	ErrEmptyData          = errors.New("blob data cannot be empty")
	ErrBlobTooLarge       = fmt.Errorf("blob exceeds %d bytes", maxBlobSize)
	ErrInvalidFingerprint = errors.New("fingerprint is not a valid content hash")
)

// TagFilename имя тега с исходным именем файла
const TagFilename = "filename"

// UploadRequest параметры дедуплицирующей загрузки
type UploadRequest struct {
	Data        []byte
	ContentType string
	Filename    string
	Tags        map[string]string
}

// UploadDecision результат дедуплицирующей загрузки
type UploadDecision struct {
	Ref         string `json:"ref"`
	ContentHash string `json:"content_hash"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	IsDuplicate bool   `json:"is_duplicate"`
	BytesSaved  int64  `json:"bytes_saved"`
}

// Service дедуплицирующий оркестратор загрузок. Само хранилище ничего
// не знает про дубликаты; вся дедупликация — здесь, через отпечаток
// содержимого.
type Service struct {
	store  blob.Store
	logger *zap.Logger
}

func NewService(store blob.Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With(zap.String("component", "upload_service")),
	}
}

// Upload загружает блоб, переиспользуя уже сохранённый объект с тем же
// содержимым. Повторная загрузка тех же байт возвращает ту же ссылку
// и не пишет в хранилище. Имя файла и теги вызывающего сохраняются
// как теги объекта.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadDecision, error) {
	// 1. Валидация
	if len(req.Data) == 0 {
		return nil, ErrEmptyData
	}
	if len(req.Data) > maxBlobSize {
		return nil, ErrBlobTooLarge
	}

	// 2. Отпечаток считается только от байт содержимого;
	// имя файла и теги на идентичность не влияют
	fingerprint := hash.Sum(req.Data)

	// 3. Ищем существующий объект с тем же отпечатком
	existing, err := s.store.FindByHash(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate blob detected, reusing stored object",
			zap.String("ref", existing.Ref),
			zap.String("content_hash", fingerprint),
			zap.Int64("bytes_saved", int64(len(req.Data))),
		)
		return &UploadDecision{
			Ref:         existing.Ref,
			ContentHash: fingerprint,
			ContentType: existing.ContentType,
			Size:        existing.Size,
			IsDuplicate: true,
			BytesSaved:  int64(len(req.Data)),
		}, nil
	}

	// 4. Новый контент — загружаем вместе с метаданными вызывающего
	tags := make(map[string]string, len(req.Tags)+1)
	for k, v := range req.Tags {
		tags[k] = v
	}
	if req.Filename != "" {
		tags[TagFilename] = req.Filename
	}

	object, err := s.store.Put(ctx, blob.PutRequest{
		Data:        req.Data,
		ContentType: req.ContentType,
		ContentHash: fingerprint,
		Tags:        tags,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	s.logger.Info("Blob stored",
		zap.String("ref", object.Ref),
		zap.String("content_hash", fingerprint),
		zap.Int64("size", object.Size),
	)

	return &UploadDecision{
		Ref:         object.Ref,
		ContentHash: fingerprint,
		ContentType: object.ContentType,
		Size:        object.Size,
		IsDuplicate: false,
	}, nil
}

// CheckDuplicate отвечает, хранится ли уже контент с таким отпечатком.
// Ничего не загружает и не меняет.
func (s *Service) CheckDuplicate(ctx context.Context, fingerprint string) (*blob.Object, error) {
	if !hash.IsValid(fingerprint) {
		return nil, ErrInvalidFingerprint
	}

	object, err := s.store.FindByHash(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	return object, nil
}
