package contextcache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Capacity  int           // Максимум ходов в окне (N)
	TTL       time.Duration // Горизонт неактивности, обновляется при каждом append
	KeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		Capacity:  15,
		TTL:       30 * time.Minute,
		KeyPrefix: "chat:context:",
	}
}

// Cache фасад контекстного кэша: пишет в разделяемый бэкенд,
// при его недоступности прозрачно уходит в локальный fallback.
// Недоступность разделяемого бэкенда никогда не поднимается
// до вызывающего — только логируется.
type Cache struct {
	shared   TurnStore
	fallback TurnStore
	config   Config
	logger   *zap.Logger
}

func NewCache(shared, fallback TurnStore, config Config, logger *zap.Logger) *Cache {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}

	return &Cache{
		shared:   shared,
		fallback: fallback,
		config:   config,
		logger:   logger.With(zap.String("component", "context_cache")),
	}
}

func (c *Cache) key(sessionID, userID string) string {
	return c.config.KeyPrefix + sessionID + ":" + userID
}

// Append добавляет ход и усекает окно до Capacity. Атомарность cap-and-trim
// обеспечивает бэкенд; после возврата длина окна ≤ Capacity и последний
// элемент — turn.
func (c *Cache) Append(ctx context.Context, sessionID, userID string, turn Turn) error {
	key := c.key(sessionID, userID)

	if c.shared != nil {
		err := c.shared.Append(ctx, key, turn, c.config.Capacity, c.config.TTL)
		if err == nil {
			return nil
		}
		c.logger.Warn("Shared cache backend unavailable, writing through to fallback",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	if err := c.fallback.Append(ctx, key, turn, c.config.Capacity, c.config.TTL); err != nil {
		return fmt.Errorf("fallback append: %w", err)
	}
	return nil
}

// GetRecent возвращает до Capacity ходов, старые первыми. Fallback
// читается только когда разделяемый бэкенд недоступен — окна из двух
// бэкендов никогда не сливаются.
func (c *Cache) GetRecent(ctx context.Context, sessionID, userID string) ([]Turn, error) {
	key := c.key(sessionID, userID)

	if c.shared != nil {
		turns, err := c.shared.GetRecent(ctx, key, c.config.Capacity)
		if err == nil {
			return turns, nil
		}
		c.logger.Warn("Shared cache backend unavailable, reading from fallback",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	turns, err := c.fallback.GetRecent(ctx, key, c.config.Capacity)
	if err != nil {
		return nil, fmt.Errorf("fallback get: %w", err)
	}
	return turns, nil
}

// Clear удаляет окно из обоих бэкендов. Идемпотентна.
func (c *Cache) Clear(ctx context.Context, sessionID, userID string) error {
	key := c.key(sessionID, userID)

	if c.shared != nil {
		if err := c.shared.Clear(ctx, key); err != nil {
			c.logger.Warn("Failed to clear window in shared backend",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	if err := c.fallback.Clear(ctx, key); err != nil {
		return fmt.Errorf("fallback clear: %w", err)
	}
	return nil
}

// Stats состояние окна для наблюдаемости. Состояние не меняет.
func (c *Cache) Stats(ctx context.Context, sessionID, userID string) (*Stats, error) {
	key := c.key(sessionID, userID)

	store := c.fallback
	if c.shared != nil && c.shared.Ping(ctx) == nil {
		store = c.shared
	}

	turns, err := store.GetRecent(ctx, key, c.config.Capacity)
	if err != nil {
		return nil, fmt.Errorf("stats get: %w", err)
	}

	ttl, err := store.TTLRemaining(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stats ttl: %w", err)
	}

	return &Stats{
		Count:        len(turns),
		Capacity:     c.config.Capacity,
		TTLRemaining: ttl,
		Backend:      store.Name(),
	}, nil
}

// Verify interface implementation
var _ ContextCache = (*Cache)(nil)
