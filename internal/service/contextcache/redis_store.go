package contextcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore хранит окно как ограниченный список Redis.
// Append — атомарный RPUSH+LTRIM+EXPIRE в одной транзакции,
// поэтому после каждого вызова длина списка ≤ capacity,
// а TTL обновлён (активные сессии не истекают посреди диалога).
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With(zap.String("component", "redis_turn_store")),
	}
}

func (s *RedisStore) Append(ctx context.Context, key string, turn Turn, capacity int, ttl time.Duration) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-capacity), -1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}

	return nil
}

func (s *RedisStore) GetRecent(ctx context.Context, key string, capacity int) ([]Turn, error) {
	values, err := s.client.LRange(ctx, key, int64(-capacity), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	turns, err := decodeWindow(values)
	if err != nil {
		// Повреждённая запись компрометирует порядок всего окна:
		// отдаём пустой контекст, терять его можно, ронять обмен нельзя
		s.logger.Warn("Corrupted cache entry, treating window as empty",
			zap.String("key", key),
			zap.Error(err))
		return nil, nil
	}

	return turns, nil
}

// decodeWindow разбирает сырые записи окна. Любая нечитаемая запись
// делает недействительным всё окно.
func decodeWindow(values []string) ([]Turn, error) {
	turns := make([]Turn, 0, len(values))
	for _, value := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Name() string {
	return "redis"
}

// Verify interface implementation
var _ TurnStore = (*RedisStore)(nil)
