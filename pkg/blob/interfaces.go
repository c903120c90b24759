package blob

import (
	"context"
	"time"
)

// TagContentHash имя тега, под которым хранится отпечаток содержимого
const TagContentHash = "content-hash"

// Object описывает один сохранённый блоб
type Object struct {
	Ref         string            `json:"ref"`
	ContentHash string            `json:"content_hash"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// PutRequest параметры загрузки блоба
type PutRequest struct {
	Data        []byte
	ContentType string
	ContentHash string
	Tags        map[string]string
}

// Store узкий контракт хранилища блобов: загрузка, поиск по тегу,
// перечисление и удаление. Хранилище "глупое" — никакой дедупликации
// оно само не делает.
type Store interface {
	Put(ctx context.Context, req PutRequest) (Object, error)
	FindByHash(ctx context.Context, contentHash string) (*Object, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
}
