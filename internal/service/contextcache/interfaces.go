package contextcache

import (
	"context"
	"time"
)

// Turn один ход диалога в контекстном окне. Неизменяем после создания.
type Turn struct {
	TurnID    string    `json:"turn_id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats наблюдаемое состояние окна. Только чтение, состояние не меняет.
type Stats struct {
	Count        int           `json:"count"`
	Capacity     int           `json:"capacity"`
	TTLRemaining time.Duration `json:"ttl_remaining"`
	Backend      string        `json:"backend"`
}

// ContextCache скользящее контекстное окно per-(session, user)
type ContextCache interface {
	Append(ctx context.Context, sessionID, userID string, turn Turn) error
	GetRecent(ctx context.Context, sessionID, userID string) ([]Turn, error)
	Clear(ctx context.Context, sessionID, userID string) error
	Stats(ctx context.Context, sessionID, userID string) (*Stats, error)
}

// TurnStore бэкенд хранения окон. Две реализации: разделяемый Redis
// и локальный in-process fallback. Выбор — при конструировании Cache,
// никакого глобального состояния.
type TurnStore interface {
	Append(ctx context.Context, key string, turn Turn, capacity int, ttl time.Duration) error
	GetRecent(ctx context.Context, key string, capacity int) ([]Turn, error)
	Clear(ctx context.Context, key string) error
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
	Name() string
}
